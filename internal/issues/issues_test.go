package issues

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/store"
	"github.com/alfredjeanlab/reg2progress/internal/store/memory"
)

var fixedNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s := memory.New()
	if err := store.Seed(context.Background(), s, model.DefaultBranches); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return New(s, func() time.Time { return fixedNow }), s
}

func ptr[T any](v T) *T { return &v }

func TestCreate(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	issue, err := svc.Create(ctx, CreateInput{
		Title:       "  Broken autoclave ",
		Description: "Sterilizer shows error E4",
		BranchID:    "BRANCH-2",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(issue.ID, "ISSUE-") {
		t.Errorf("expected ISSUE- prefix, got %q", issue.ID)
	}
	if issue.Title != "Broken autoclave" {
		t.Errorf("expected trimmed title, got %q", issue.Title)
	}
	if issue.Status != model.StatusOpen || issue.Priority != model.PriorityMedium {
		t.Errorf("expected OPEN/MEDIUM defaults, got %s/%s", issue.Status, issue.Priority)
	}
	if len(issue.Updates) != 1 {
		t.Fatalf("expected 1 initial log, got %d", len(issue.Updates))
	}
	first := issue.Updates[0]
	if first.Text != model.IssueCreatedText || first.Author != model.AuthorSystem || !first.Timestamp.Equal(fixedNow) {
		t.Errorf("unexpected initial log: %+v", first)
	}

	stored, err := s.GetIssue(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if len(stored.Updates) != 1 {
		t.Errorf("expected stored issue to carry its log, got %d", len(stored.Updates))
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	for _, tc := range []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"no title", CreateInput{Description: "d", BranchID: "BRANCH-1"}, "title"},
		{"blank description", CreateInput{Title: "t", Description: "  ", BranchID: "BRANCH-1"}, "description"},
		{"no branch", CreateInput{Title: "t", Description: "d"}, "branch_id"},
		{"unknown branch", CreateInput{Title: "t", Description: "d", BranchID: "BRANCH-404"}, "branch_id"},
		{"bad priority", CreateInput{Title: "t", Description: "d", BranchID: "BRANCH-1", Priority: "URGENT"}, "priority"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.in)
			var ve *model.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, fe := range ve.Errors {
				if fe.Field == tc.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %q, got %v", tc.field, ve)
			}
		})
	}

	all, _ := s.ListIssues(ctx, model.IssueFilter{})
	if len(all) != 0 {
		t.Errorf("expected no issues after failed creates, got %d", len(all))
	}
}

func TestUpdate_StatusChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	issue, _ := svc.Create(ctx, CreateInput{Title: "t", Description: "d", BranchID: "BRANCH-1"})

	updated, changes, err := svc.Update(ctx, issue.ID, UpdateInput{Status: ptr(model.StatusResolved)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ResolvedAt == nil || !updated.ResolvedAt.Equal(fixedNow) {
		t.Errorf("expected ResolvedAt to be set, got %v", updated.ResolvedAt)
	}
	if _, ok := changes["status"]; !ok {
		t.Error("expected status in changes")
	}
	if len(updated.Updates) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(updated.Updates))
	}
	if got := updated.Updates[1].Text; got != "Status changed to RESOLVED." {
		t.Errorf("unexpected status log %q", got)
	}

	reopened, _, err := svc.Update(ctx, issue.ID, UpdateInput{Status: ptr(model.StatusInProgress)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if reopened.ResolvedAt != nil {
		t.Errorf("expected ResolvedAt cleared, got %v", reopened.ResolvedAt)
	}
	if len(reopened.Updates) != 3 {
		t.Errorf("expected 3 logs, got %d", len(reopened.Updates))
	}

	// Same status again is not a change.
	same, changes, _ := svc.Update(ctx, issue.ID, UpdateInput{Status: ptr(model.StatusInProgress)})
	if len(same.Updates) != 3 {
		t.Errorf("expected no new log for unchanged status, got %d", len(same.Updates))
	}
	if _, ok := changes["status"]; ok {
		t.Error("unchanged status reported as a change")
	}
}

func TestUpdate_Fields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	issue, _ := svc.Create(ctx, CreateInput{Title: "t", Description: "d", BranchID: "BRANCH-1"})
	due := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	updated, _, err := svc.Update(ctx, issue.ID, UpdateInput{
		Title:       ptr("   "),
		Description: ptr("new description"),
		Priority:    ptr(model.PriorityHigh),
		DueDate:     &due,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "t" {
		t.Errorf("blank title should be ignored, got %q", updated.Title)
	}
	if updated.Description != "new description" || updated.Priority != model.PriorityHigh {
		t.Errorf("unexpected update result: %+v", updated)
	}
	if updated.DueDate == nil || !updated.DueDate.Equal(due) {
		t.Errorf("expected due date %v, got %v", due, updated.DueDate)
	}

	cleared, _, _ := svc.Update(ctx, issue.ID, UpdateInput{DueDate: &time.Time{}})
	if cleared.DueDate != nil {
		t.Errorf("expected due date cleared, got %v", cleared.DueDate)
	}

	if _, _, err := svc.Update(ctx, issue.ID, UpdateInput{Status: ptr(model.Status("DONE"))}); err == nil {
		t.Error("expected invalid status to fail")
	}
	if _, _, err := svc.Update(ctx, "ISSUE-404", UpdateInput{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLogs(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	issue, _ := svc.Create(ctx, CreateInput{Title: "t", Description: "d", BranchID: "BRANCH-1"})

	entry, err := svc.AddLog(ctx, issue.ID, "  called the vendor ", "")
	if err != nil {
		t.Fatalf("AddLog: %v", err)
	}
	if entry.Text != "called the vendor" || entry.Author != model.AuthorMeetingUser {
		t.Errorf("unexpected log entry: %+v", entry)
	}
	if _, err := svc.AddLog(ctx, issue.ID, "   ", ""); err == nil {
		t.Error("expected blank log text to fail")
	}

	if err := svc.EditLog(ctx, issue.ID, entry.ID, "vendor is coming Tuesday"); err != nil {
		t.Fatalf("EditLog: %v", err)
	}
	if err := svc.EditLog(ctx, issue.ID, entry.ID, ""); err == nil {
		t.Error("expected blank edit to fail")
	}

	got, _ := s.GetIssue(ctx, issue.ID)
	if len(got.Updates) != 2 || got.Updates[1].Text != "vendor is coming Tuesday" {
		t.Fatalf("unexpected logs after edit: %+v", got.Updates)
	}

	if err := svc.DeleteLog(ctx, issue.ID, entry.ID); err != nil {
		t.Fatalf("DeleteLog: %v", err)
	}
	got, _ = s.GetIssue(ctx, issue.ID)
	if len(got.Updates) != 1 || got.Updates[0].Text != model.IssueCreatedText {
		t.Errorf("expected only the creation log to remain, got %+v", got.Updates)
	}
	if err := svc.DeleteLog(ctx, issue.ID, entry.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}
