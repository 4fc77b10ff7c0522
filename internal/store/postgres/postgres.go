// Package postgres is the durable Entity Store, used when RP_DATABASE_URL is
// set. The schema is embedded and migrated on open.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Pool settings for the clinic workload: a handful of staff, short queries.
const (
	maxOpenConns    = 10
	maxIdleConns    = 2
	connMaxLifetime = 30 * time.Minute
)

// Store implements store.Store on PostgreSQL. The same type serves inside a
// transaction, where q is the *sql.Tx and db is nil.
type Store struct {
	db *sql.DB
	q  executor
}

var _ store.Store = (*Store)(nil)

// New opens databaseURL, checks the connection and applies pending
// migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return newStore(db), nil
}

func newStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: "rp_schema_migrations"})
	if err != nil {
		return fmt.Errorf("migrations driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the pool. It does nothing inside a transaction.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunInTransaction runs fn against a Store bound to one transaction and
// commits if fn succeeds. Nested calls join the outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Store{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) CreateBranch(ctx context.Context, branch *model.Branch) error {
	return queryCreateBranch(ctx, s.q, branch)
}

func (s *Store) GetBranch(ctx context.Context, id string) (*model.Branch, error) {
	return queryGetBranch(ctx, s.q, id)
}

func (s *Store) ListBranches(ctx context.Context) ([]*model.Branch, error) {
	return queryListBranches(ctx, s.q)
}

func (s *Store) CreateIssue(ctx context.Context, issue *model.Issue) error {
	// The issue row and its first log entries commit together.
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return queryCreateIssue(ctx, tx.(*Store).q, issue)
	})
}

func (s *Store) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	return queryGetIssue(ctx, s.q, id)
}

func (s *Store) ListIssues(ctx context.Context, filter model.IssueFilter) ([]*model.Issue, error) {
	return queryListIssues(ctx, s.q, filter)
}

func (s *Store) UpdateIssue(ctx context.Context, issue *model.Issue) error {
	return queryUpdateIssue(ctx, s.q, issue)
}

func (s *Store) AddUpdateLog(ctx context.Context, log *model.UpdateLog) error {
	return queryAddUpdateLog(ctx, s.q, log)
}

func (s *Store) EditUpdateLog(ctx context.Context, issueID, logID, text string) error {
	return queryEditUpdateLog(ctx, s.q, issueID, logID, text)
}

func (s *Store) DeleteUpdateLog(ctx context.Context, issueID, logID string) error {
	return queryDeleteUpdateLog(ctx, s.q, issueID, logID)
}

func (s *Store) CreateMeeting(ctx context.Context, meeting *model.Meeting) error {
	return queryCreateMeeting(ctx, s.q, meeting)
}

func (s *Store) GetMeeting(ctx context.Context, id string) (*model.Meeting, error) {
	return queryGetMeeting(ctx, s.q, id)
}

func (s *Store) ListMeetings(ctx context.Context) ([]*model.Meeting, error) {
	return queryListMeetings(ctx, s.q)
}

func (s *Store) UpdateMeeting(ctx context.Context, id string, notes map[string]string, attendees string) error {
	return queryUpdateMeeting(ctx, s.q, id, notes, attendees)
}

func (s *Store) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.q, event)
}

func (s *Store) GetEvents(ctx context.Context, subjectID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.q, subjectID)
}
