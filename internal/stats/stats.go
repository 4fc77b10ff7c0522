// Package stats computes the dashboard aggregates over the issue list.
package stats

import (
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/model"
)

// TrendMonths is the number of calendar months in the trend series,
// including the current one.
const TrendMonths = 6

// BranchCount is the number of unresolved issues of one branch.
type BranchCount struct {
	BranchID   string `json:"branch_id"`
	BranchName string `json:"branch_name"`
	Open       int    `json:"open"`
}

// PriorityCount is the number of unresolved issues of one priority.
type PriorityCount struct {
	Priority model.Priority `json:"priority"`
	Open     int            `json:"open"`
}

// MonthCount holds how many issues were created and resolved in a month.
type MonthCount struct {
	Month    string `json:"month"` // YYYY-MM
	Created  int    `json:"created"`
	Resolved int    `json:"resolved"`
}

// Dashboard is the set of aggregates behind the dashboard charts.
type Dashboard struct {
	ByBranch   []BranchCount   `json:"by_branch"`
	ByPriority []PriorityCount `json:"by_priority"`
	Trend      []MonthCount    `json:"trend"`
}

// Compute aggregates issues. Branches keep their given order, priorities run
// from HIGH to LOW, and the trend covers the TrendMonths months ending with
// the month of now, in now's location.
func Compute(issues []*model.Issue, branches []*model.Branch, now time.Time) Dashboard {
	d := Dashboard{
		ByBranch:   make([]BranchCount, len(branches)),
		ByPriority: make([]PriorityCount, len(model.Priorities)),
		Trend:      make([]MonthCount, TrendMonths),
	}

	branchIdx := make(map[string]int, len(branches))
	for i, b := range branches {
		d.ByBranch[i] = BranchCount{BranchID: b.ID, BranchName: b.Name}
		branchIdx[b.ID] = i
	}
	priorityIdx := make(map[model.Priority]int, len(model.Priorities))
	for i, p := range model.Priorities {
		d.ByPriority[i] = PriorityCount{Priority: p}
		priorityIdx[p] = i
	}

	loc := now.Location()
	first := time.Date(now.Year(), now.Month()-(TrendMonths-1), 1, 0, 0, 0, 0, loc)
	for i := range d.Trend {
		d.Trend[i].Month = first.AddDate(0, i, 0).Format("2006-01")
	}
	monthIndex := func(t time.Time) (int, bool) {
		t = t.In(loc)
		n := (t.Year()-first.Year())*12 + int(t.Month()) - int(first.Month())
		return n, n >= 0 && n < TrendMonths
	}

	for _, issue := range issues {
		if issue.IsOpen() {
			if i, ok := branchIdx[issue.BranchID]; ok {
				d.ByBranch[i].Open++
			}
			if i, ok := priorityIdx[issue.Priority]; ok {
				d.ByPriority[i].Open++
			}
		}
		if i, ok := monthIndex(issue.CreatedAt); ok {
			d.Trend[i].Created++
		}
		if resolved := resolvedAt(issue); resolved != nil {
			if i, ok := monthIndex(*resolved); ok {
				d.Trend[i].Resolved++
			}
		}
	}
	return d
}

// resolvedAt returns when the issue was resolved. Issues without a
// ResolvedAt fall back to their first "Status changed to RESOLVED." entry.
func resolvedAt(issue *model.Issue) *time.Time {
	if issue.ResolvedAt != nil {
		return issue.ResolvedAt
	}
	want := model.StatusChangeText(model.StatusResolved)
	for _, u := range issue.Updates {
		if u.Text == want {
			t := u.Timestamp
			return &t
		}
	}
	return nil
}
