package model

import (
	"sort"
	"time"
)

// Status represents the current state of an issue.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// Priority ranks how urgently an issue needs attention.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// IsValid checks whether the priority is a known value.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Priorities lists the priorities from most to least urgent.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Authors used for log entries written by the system rather than a person.
const (
	AuthorSystem      = "System"
	AuthorMeetingUser = "Meeting user"
)

// Issue is a trackable problem scoped to one branch.
type Issue struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      Status       `json:"status"`
	Priority    Priority     `json:"priority"`
	BranchID    string       `json:"branch_id"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Updates     []*UpdateLog `json:"updates"`
}

// IsOpen reports whether the issue still needs discussion (anything but resolved).
func (i *Issue) IsOpen() bool {
	return i.Status != StatusResolved
}

// Clone returns a deep copy of the issue, including its log entries.
func (i *Issue) Clone() *Issue {
	c := *i
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		c.ResolvedAt = &t
	}
	if i.DueDate != nil {
		t := *i.DueDate
		c.DueDate = &t
	}
	c.Updates = make([]*UpdateLog, len(i.Updates))
	for n, u := range i.Updates {
		cu := *u
		c.Updates[n] = &cu
	}
	return &c
}

// UpdateLog is a single entry in an issue's history.
type UpdateLog struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issue_id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// NewestFirst returns the log entries ordered by timestamp, newest first.
// Storage order is untouched; this is for display only.
func NewestFirst(logs []*UpdateLog) []*UpdateLog {
	out := make([]*UpdateLog, len(logs))
	copy(out, logs)
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Timestamp.After(out[b].Timestamp)
	})
	return out
}

// StatusChangeText is the log text recorded when an issue moves to s.
func StatusChangeText(s Status) string {
	return "Status changed to " + string(s) + "."
}

// IssueCreatedText is the log text recorded when an issue is created.
const IssueCreatedText = "Issue created."
