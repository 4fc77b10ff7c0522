// Package store defines the Entity Store: the owned collections of branches,
// issues and meetings every operation reads from and commits to.
package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/reg2progress/internal/model"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for branches, issues and meetings.
type Store interface {
	// Branches
	CreateBranch(ctx context.Context, branch *model.Branch) error
	GetBranch(ctx context.Context, id string) (*model.Branch, error)
	ListBranches(ctx context.Context) ([]*model.Branch, error)

	// Issues. ListIssues returns newest first and includes update logs.
	CreateIssue(ctx context.Context, issue *model.Issue) error
	GetIssue(ctx context.Context, id string) (*model.Issue, error)
	ListIssues(ctx context.Context, filter model.IssueFilter) ([]*model.Issue, error)
	UpdateIssue(ctx context.Context, issue *model.Issue) error

	// Update logs
	AddUpdateLog(ctx context.Context, log *model.UpdateLog) error
	EditUpdateLog(ctx context.Context, issueID, logID, text string) error
	DeleteUpdateLog(ctx context.Context, issueID, logID string) error

	// Meetings. ListMeetings returns newest first by meeting date.
	CreateMeeting(ctx context.Context, meeting *model.Meeting) error
	GetMeeting(ctx context.Context, id string) (*model.Meeting, error)
	ListMeetings(ctx context.Context) ([]*model.Meeting, error)
	UpdateMeeting(ctx context.Context, id string, notes map[string]string, attendees string) error

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, subjectID string) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

// Seed creates each branch that does not exist yet.
func Seed(ctx context.Context, s Store, branches []model.Branch) error {
	return s.RunInTransaction(ctx, func(tx Store) error {
		for i := range branches {
			b := branches[i]
			_, err := tx.GetBranch(ctx, b.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			if err := tx.CreateBranch(ctx, &b); err != nil {
				return err
			}
		}
		return nil
	})
}
