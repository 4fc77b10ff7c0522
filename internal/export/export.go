// Package export shapes meeting history into the three sheets of the
// meeting report and writes them as a spreadsheet.
package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/notes"
	"github.com/alfredjeanlab/reg2progress/internal/store"
)

// DateLayout is the layout of the start and end dates of a report.
const DateLayout = "2006-01-02"

// displayLayout formats dates inside the report.
const displayLayout = "2 January 2006"

// Sheet names, in workbook order.
const (
	SheetSummary = "Meeting Summary"
	SheetNotes   = "Meeting Notes"
	SheetIssues  = "Issue Details"
)

// Sheet is one named table of the report. Rows line up with Columns.
type Sheet struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Writer renders sheets into a spreadsheet file.
type Writer interface {
	Write(w io.Writer, sheets []Sheet) error
}

// Range is an inclusive range of calendar days.
type Range struct {
	Start time.Time
	End   time.Time

	startLabel string
	endLabel   string
}

// ParseRange parses the start and end days of a report in loc. Start is
// floored to the first millisecond of its day and end is ceiled to the last.
func ParseRange(start, end string, loc *time.Location) (Range, error) {
	if loc == nil {
		loc = time.Local
	}
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)

	var ve model.ValidationError
	var s, e time.Time
	var err error
	if start == "" {
		ve.Add("start", "is required")
	} else if s, err = time.ParseInLocation(DateLayout, start, loc); err != nil {
		ve.Add("start", "must be a date in YYYY-MM-DD form")
	}
	if end == "" {
		ve.Add("end", "is required")
	} else if e, err = time.ParseInLocation(DateLayout, end, loc); err != nil {
		ve.Add("end", "must be a date in YYYY-MM-DD form")
	}
	if ve.HasErrors() {
		return Range{}, &ve
	}

	r := Range{
		Start:      time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc),
		End:        time.Date(e.Year(), e.Month(), e.Day(), 23, 59, 59, int(999*time.Millisecond), loc),
		startLabel: start,
		endLabel:   end,
	}
	if r.Start.After(r.End) {
		return Range{}, model.Invalid("end", "must not be before start")
	}
	return r, nil
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// FileName is the report's file name, built from the dates as entered.
func (r Range) FileName() string {
	return fmt.Sprintf("Meeting Report %s - %s.xlsx", r.startLabel, r.endLabel)
}

// Report is a built meeting report ready to be written.
type Report struct {
	FileName string
	Meetings int
	Sheets   []Sheet
}

// Build selects the meetings inside r and shapes the report sheets. Meetings
// keep their input order; issues keep theirs. It returns a validation error
// when no meeting falls inside the range.
func Build(r Range, meetings []*model.Meeting, issues []*model.Issue, branches []*model.Branch) (*Report, error) {
	var selected []*model.Meeting
	for _, m := range meetings {
		if r.Contains(m.Date) {
			selected = append(selected, m)
		}
	}
	if len(selected) == 0 {
		return nil, model.Invalid("range", fmt.Sprintf("no meetings found between %s and %s", r.startLabel, r.endLabel))
	}

	loc := r.Start.Location()
	branchIdx := model.BranchIndex(branches)

	summary := Sheet{Name: SheetSummary, Columns: []string{"Meeting Date", "Attendees", "Issues Discussed"}}
	noteSheet := Sheet{Name: SheetNotes, Columns: []string{"Meeting Date", "Branch", "Note"}}
	referenced := make(map[string]bool)

	for _, m := range selected {
		date := m.Date.In(loc).Format(displayLayout)
		summary.Rows = append(summary.Rows, []any{date, m.Attendees, len(m.DiscussedIssueIDs)})

		for _, n := range sortedNotes(m.Notes, branchIdx) {
			noteSheet.Rows = append(noteSheet.Rows, []any{date, n.branch, n.text})
		}
		for _, id := range m.DiscussedIssueIDs {
			referenced[id] = true
		}
	}

	issueSheet := Sheet{Name: SheetIssues, Columns: []string{"ID", "Title", "Branch", "Status", "Priority", "Created"}}
	for _, issue := range issues {
		if !referenced[issue.ID] {
			continue
		}
		issueSheet.Rows = append(issueSheet.Rows, []any{
			issue.ID,
			issue.Title,
			model.BranchName(branchIdx, issue.BranchID),
			issue.Status.String(),
			issue.Priority.String(),
			issue.CreatedAt.In(loc).Format(displayLayout),
		})
	}

	return &Report{
		FileName: r.FileName(),
		Meetings: len(selected),
		Sheets:   []Sheet{summary, noteSheet, issueSheet},
	}, nil
}

// Load reads meetings, issues and branches from s and builds the report.
func Load(ctx context.Context, s store.Store, r Range) (*Report, error) {
	meetings, err := s.ListMeetings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	issues, err := s.ListIssues(ctx, model.IssueFilter{})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	branches, err := s.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return Build(r, meetings, issues, branches)
}

type noteRow struct {
	branchID string
	branch   string
	text     string
}

// sortedNotes returns the non-blank notes as plain text, ordered by branch
// name.
func sortedNotes(m map[string]string, branchIdx map[string]*model.Branch) []noteRow {
	rows := make([]noteRow, 0, len(m))
	for id, markup := range m {
		if notes.IsBlank(markup) {
			continue
		}
		rows = append(rows, noteRow{
			branchID: id,
			branch:   model.BranchName(branchIdx, id),
			text:     notes.PlainText(markup),
		})
	}
	sort.Slice(rows, func(a, b int) bool {
		if rows[a].branch != rows[b].branch {
			return rows[a].branch < rows[b].branch
		}
		return rows[a].branchID < rows[b].branchID
	})
	return rows
}
