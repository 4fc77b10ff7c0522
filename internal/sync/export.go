package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	BranchCount  int       `json:"branch_count"`
	IssueCount   int       `json:"issue_count"`
	MeetingCount int       `json:"meeting_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes a snapshot of branches, issues and meetings as JSONL
// to w. Branches keep store order; issues and meetings are sorted by ID.
// Issues carry their update logs.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	branches, err := s.ListBranches(ctx)
	if err != nil {
		return fmt.Errorf("list branches: %w", err)
	}

	issues, err := s.ListIssues(ctx, model.IssueFilter{})
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}
	sort.Slice(issues, func(i, j int) bool {
		return issues[i].ID < issues[j].ID
	})

	meetings, err := s.ListMeetings(ctx)
	if err != nil {
		return fmt.Errorf("list meetings: %w", err)
	}
	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].ID < meetings[j].ID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		BranchCount:  len(branches),
		IssueCount:   len(issues),
		MeetingCount: len(meetings),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, b := range branches {
		if err := enc.Encode(record{Type: "branch", Data: b}); err != nil {
			return fmt.Errorf("encode branch %s: %w", b.ID, err)
		}
	}
	for _, i := range issues {
		if err := enc.Encode(record{Type: "issue", Data: i}); err != nil {
			return fmt.Errorf("encode issue %s: %w", i.ID, err)
		}
	}
	for _, m := range meetings {
		if err := enc.Encode(record{Type: "meeting", Data: m}); err != nil {
			return fmt.Errorf("encode meeting %s: %w", m.ID, err)
		}
	}

	return nil
}
