// Package issues implements issue creation, partial updates and the update
// log operations on top of a store.Store.
package issues

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/idgen"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/store"
)

// CreateInput holds the parameters for a new issue.
type CreateInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	BranchID    string         `json:"branch_id"`
	Priority    model.Priority `json:"priority,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
}

// UpdateInput holds a partial update. Nil fields are left untouched.
// A zero DueDate clears the due date.
type UpdateInput struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Status      *model.Status   `json:"status,omitempty"`
	Priority    *model.Priority `json:"priority,omitempty"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
}

// Service applies issue operations against a store.
type Service struct {
	store store.Store
	now   func() time.Time
}

// New returns a Service backed by s. A nil clock means time.Now.
func New(s store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, now: now}
}

// Create validates in, persists a new OPEN issue and its "Issue created." log
// entry in one transaction, and returns the stored issue.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Issue, error) {
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}

	now := s.now().UTC()
	issueID, err := idgen.Issue()
	if err != nil {
		return nil, fmt.Errorf("generate issue id: %w", err)
	}
	logID, err := idgen.Log()
	if err != nil {
		return nil, fmt.Errorf("generate log id: %w", err)
	}

	issue := &model.Issue{
		ID:          issueID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Status:      model.StatusOpen,
		Priority:    in.Priority,
		BranchID:    strings.TrimSpace(in.BranchID),
		CreatedAt:   now,
		UpdatedAt:   now,
		DueDate:     in.DueDate,
		Updates: []*model.UpdateLog{{
			ID:        logID,
			IssueID:   issueID,
			Text:      model.IssueCreatedText,
			Author:    model.AuthorSystem,
			Timestamp: now,
		}},
	}
	if err := model.ValidateIssue(issue); err != nil {
		return nil, err
	}

	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := requireBranch(ctx, tx, issue.BranchID); err != nil {
			return err
		}
		if err := tx.CreateIssue(ctx, issue); err != nil {
			return fmt.Errorf("create issue: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// Update applies in to the issue with the given id. Blank titles and
// descriptions are ignored. A status change appends a system log entry and
// reconciles ResolvedAt. The returned map names the fields that changed.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*model.Issue, map[string]any, error) {
	var (
		issue   *model.Issue
		changes = make(map[string]any)
	)
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		issue, err = tx.GetIssue(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
			issue.Title = strings.TrimSpace(*in.Title)
			changes["title"] = issue.Title
		}
		if in.Description != nil && strings.TrimSpace(*in.Description) != "" {
			issue.Description = strings.TrimSpace(*in.Description)
			changes["description"] = issue.Description
		}
		if in.Priority != nil {
			issue.Priority = *in.Priority
			changes["priority"] = issue.Priority
		}
		if in.DueDate != nil {
			if in.DueDate.IsZero() {
				issue.DueDate = nil
			} else {
				d := *in.DueDate
				issue.DueDate = &d
			}
			changes["due_date"] = issue.DueDate
		}

		var statusLog *model.UpdateLog
		if in.Status != nil && *in.Status != issue.Status {
			issue.Status = *in.Status
			changes["status"] = issue.Status
			if issue.Status.IsValid() {
				logID, err := idgen.Log()
				if err != nil {
					return fmt.Errorf("generate log id: %w", err)
				}
				statusLog = &model.UpdateLog{
					ID:        logID,
					IssueID:   issue.ID,
					Text:      model.StatusChangeText(issue.Status),
					Author:    model.AuthorSystem,
					Timestamp: now,
				}
			}
		}

		// Reconcile ResolvedAt with Status changes.
		if issue.Status == model.StatusResolved && issue.ResolvedAt == nil {
			issue.ResolvedAt = &now
			changes["resolved_at"] = issue.ResolvedAt
		}
		if issue.Status != model.StatusResolved && issue.ResolvedAt != nil {
			issue.ResolvedAt = nil
			changes["resolved_at"] = issue.ResolvedAt
		}

		issue.UpdatedAt = now
		if err := model.ValidateIssue(issue); err != nil {
			return err
		}
		if err := tx.UpdateIssue(ctx, issue); err != nil {
			return fmt.Errorf("update issue: %w", err)
		}
		if statusLog != nil {
			if err := tx.AddUpdateLog(ctx, statusLog); err != nil {
				return fmt.Errorf("add status log: %w", err)
			}
			issue.Updates = append(issue.Updates, statusLog)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return issue, changes, nil
}

// AddLog appends a comment to the issue's log. A blank author becomes
// model.AuthorMeetingUser.
func (s *Service) AddLog(ctx context.Context, issueID, text, author string) (*model.UpdateLog, error) {
	text = strings.TrimSpace(text)
	if err := model.ValidateLogText(text); err != nil {
		return nil, err
	}
	if strings.TrimSpace(author) == "" {
		author = model.AuthorMeetingUser
	}
	id, err := idgen.Log()
	if err != nil {
		return nil, fmt.Errorf("generate log id: %w", err)
	}
	entry := &model.UpdateLog{
		ID:        id,
		IssueID:   issueID,
		Text:      text,
		Author:    strings.TrimSpace(author),
		Timestamp: s.now().UTC(),
	}
	if err := s.store.AddUpdateLog(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// EditLog replaces the text of one log entry in place.
func (s *Service) EditLog(ctx context.Context, issueID, logID, text string) error {
	text = strings.TrimSpace(text)
	if err := model.ValidateLogText(text); err != nil {
		return err
	}
	return s.store.EditUpdateLog(ctx, issueID, logID, text)
}

// DeleteLog removes exactly one log entry. Callers must have obtained the
// user's confirmation.
func (s *Service) DeleteLog(ctx context.Context, issueID, logID string) error {
	return s.store.DeleteUpdateLog(ctx, issueID, logID)
}

func requireBranch(ctx context.Context, s store.Store, id string) error {
	if _, err := s.GetBranch(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Invalid("branch_id", fmt.Sprintf("unknown branch %q", id))
		}
		return fmt.Errorf("get branch: %w", err)
	}
	return nil
}
