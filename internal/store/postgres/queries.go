package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/store"
)

// issueColumns is the column list used for SELECT statements on the issues table.
const issueColumns = `id, title, description, status, priority, branch_id,
	created_at, updated_at, resolved_at, due_date`

// meetingColumns is the column list used for SELECT statements on the meetings table.
const meetingColumns = `id, date, attendees, notes, discussed_issue_ids`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// notFound maps sql.ErrNoRows to store.ErrNotFound.
func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %q: %w", kind, id, store.ErrNotFound)
	}
	return err
}

// requireAffected returns store.ErrNotFound when res touched no rows.
func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// --- branches ---

func queryCreateBranch(ctx context.Context, db executor, b *model.Branch) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO branches (id, name, location) VALUES ($1, $2, $3)`,
		b.ID, b.Name, b.Location,
	)
	return err
}

func queryGetBranch(ctx context.Context, db executor, id string) (*model.Branch, error) {
	var b model.Branch
	err := db.QueryRowContext(ctx,
		`SELECT id, name, location FROM branches WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Location)
	if err != nil {
		return nil, notFound(err, "branch", id)
	}
	return &b, nil
}

func queryListBranches(ctx context.Context, db executor) ([]*model.Branch, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, location FROM branches ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []*model.Branch
	for rows.Next() {
		var b model.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Location); err != nil {
			return nil, err
		}
		branches = append(branches, &b)
	}
	return branches, rows.Err()
}

// --- issues ---

func queryCreateIssue(ctx context.Context, db executor, i *model.Issue) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO issues (
			id, title, description, status, priority, branch_id,
			created_at, updated_at, resolved_at, due_date
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)`,
		i.ID,
		i.Title,
		i.Description,
		string(i.Status),
		string(i.Priority),
		i.BranchID,
		i.CreatedAt,
		i.UpdatedAt,
		nullTimePtr(i.ResolvedAt),
		nullTimePtr(i.DueDate),
	)
	if err != nil {
		return err
	}
	for _, u := range i.Updates {
		if err := queryAddUpdateLog(ctx, db, u); err != nil {
			return fmt.Errorf("add log %s: %w", u.ID, err)
		}
	}
	return nil
}

func queryGetIssue(ctx context.Context, db executor, id string) (*model.Issue, error) {
	row := db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id)
	i, err := scanIssue(row)
	if err != nil {
		return nil, notFound(err, "issue", id)
	}
	logs, err := queryGetUpdateLogs(ctx, db, []string{id})
	if err != nil {
		return nil, err
	}
	i.Updates = logs[id]
	return i, nil
}

func queryListIssues(ctx context.Context, db executor, filter model.IssueFilter) ([]*model.Issue, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Priority) > 0 {
		placeholders := make([]string, len(filter.Priority))
		for i, p := range filter.Priority {
			placeholders[i] = nextArg()
			args = append(args, string(p))
		}
		whereClauses = append(whereClauses, "priority IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.BranchID != "" {
		whereClauses = append(whereClauses, "branch_id = "+nextArg())
		args = append(args, filter.BranchID)
	}

	if len(filter.IDs) > 0 {
		whereClauses = append(whereClauses, "id = ANY("+nextArg()+")")
		args = append(args, pq.Array(filter.IDs))
	}

	if q := strings.TrimSpace(filter.Search); q != "" {
		p := nextArg()
		whereClauses = append(whereClauses, "(title ILIKE "+p+" OR description ILIKE "+p+")")
		args = append(args, "%"+escapeLike(q)+"%")
	}

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	issues, err := scanIssues(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return issues, nil
	}

	ids := make([]string, len(issues))
	for n, i := range issues {
		ids[n] = i.ID
	}
	logs, err := queryGetUpdateLogs(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	for _, i := range issues {
		i.Updates = logs[i.ID]
	}
	return issues, nil
}

// queryUpdateIssue writes the scalar issue columns. Logs are untouched.
func queryUpdateIssue(ctx context.Context, db executor, i *model.Issue) error {
	res, err := db.ExecContext(ctx, `
		UPDATE issues SET
			title = $2,
			description = $3,
			status = $4,
			priority = $5,
			branch_id = $6,
			updated_at = $7,
			resolved_at = $8,
			due_date = $9
		WHERE id = $1`,
		i.ID,
		i.Title,
		i.Description,
		string(i.Status),
		string(i.Priority),
		i.BranchID,
		i.UpdatedAt,
		nullTimePtr(i.ResolvedAt),
		nullTimePtr(i.DueDate),
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "issue", i.ID)
}

// --- update logs ---

func queryAddUpdateLog(ctx context.Context, db executor, u *model.UpdateLog) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO update_logs (id, issue_id, text, author, created_at)
		SELECT $1, id, $3, $4, $5 FROM issues WHERE id = $2`,
		u.ID, u.IssueID, u.Text, u.Author, u.Timestamp,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "issue", u.IssueID)
}

func queryEditUpdateLog(ctx context.Context, db executor, issueID, logID, text string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE update_logs SET text = $3 WHERE issue_id = $1 AND id = $2`,
		issueID, logID, text,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "log", logID)
}

func queryDeleteUpdateLog(ctx context.Context, db executor, issueID, logID string) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM update_logs WHERE issue_id = $1 AND id = $2`,
		issueID, logID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "log", logID)
}

// queryGetUpdateLogs returns the logs of the given issues keyed by issue id,
// each in insertion order.
func queryGetUpdateLogs(ctx context.Context, db executor, issueIDs []string) (map[string][]*model.UpdateLog, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, issue_id, text, author, created_at
		FROM update_logs
		WHERE issue_id = ANY($1)
		ORDER BY seq ASC`,
		pq.Array(issueIDs),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]*model.UpdateLog, len(issueIDs))
	for rows.Next() {
		u, err := scanUpdateLog(rows)
		if err != nil {
			return nil, err
		}
		out[u.IssueID] = append(out[u.IssueID], u)
	}
	return out, rows.Err()
}

// --- meetings ---

func queryCreateMeeting(ctx context.Context, db executor, m *model.Meeting) error {
	notes, err := notesJSON(m.Notes)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO meetings (id, date, attendees, notes, discussed_issue_ids)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Date, m.Attendees, notes, pq.Array(nonNil(m.DiscussedIssueIDs)),
	)
	return err
}

func queryGetMeeting(ctx context.Context, db executor, id string) (*model.Meeting, error) {
	row := db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id)
	m, err := scanMeeting(row)
	if err != nil {
		return nil, notFound(err, "meeting", id)
	}
	return m, nil
}

func queryListMeetings(ctx context.Context, db executor) ([]*model.Meeting, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meetings ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meetings []*model.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// queryUpdateMeeting replaces notes and attendees; the date and discussed
// list are never written after creation.
func queryUpdateMeeting(ctx context.Context, db executor, id string, notes map[string]string, attendees string) error {
	b, err := notesJSON(notes)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE meetings SET notes = $2, attendees = $3 WHERE id = $1`,
		id, b, attendees,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "meeting", id)
}

// --- events ---

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, subject_id, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, e.SubjectID, nullString(e.Actor), jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, subjectID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, subject_id, actor, payload, created_at
		FROM events
		WHERE subject_id = $1
		ORDER BY created_at ASC, id ASC`,
		subjectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// escapeLike escapes the ILIKE wildcards in s.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func notesJSON(notes map[string]string) ([]byte, error) {
	if notes == nil {
		notes = map[string]string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(notes); err != nil {
		return nil, fmt.Errorf("marshal notes: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
