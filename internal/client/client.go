// Package client talks to the reg2progress HTTP/JSON API.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/meeting"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/stats"
)

// ClinicClient is what the CLI commands use to reach the server.
type ClinicClient interface {
	ListBranches(ctx context.Context) ([]*model.Branch, error)
	ListAttendees(ctx context.Context) ([]string, error)

	CreateIssue(ctx context.Context, req *CreateIssueRequest) (*model.Issue, error)
	GetIssue(ctx context.Context, id string) (*model.Issue, error)
	ListIssues(ctx context.Context, req *ListIssuesRequest) (*ListIssuesResponse, error)
	UpdateIssue(ctx context.Context, id string, req *UpdateIssueRequest) (*model.Issue, error)
	AddLog(ctx context.Context, issueID, text, author string) (*model.UpdateLog, error)
	EditLog(ctx context.Context, issueID, logID, text string) error
	DeleteLog(ctx context.Context, issueID, logID string) error

	ListMeetings(ctx context.Context, query string) ([]*model.Meeting, error)
	GetMeeting(ctx context.Context, id string) (*MeetingDetail, error)

	GetSession(ctx context.Context) (*SessionView, error)
	StartMeeting(ctx context.Context) (*SessionView, error)
	EditMeeting(ctx context.Context, id string) (*SessionView, error)
	SetNote(ctx context.Context, branchID, markup string) (*meeting.Session, error)
	SetAttendees(ctx context.Context, req *AttendeesRequest) (*meeting.Session, error)
	AddMeetingIssue(ctx context.Context, req *CreateIssueRequest) (*model.Issue, error)
	FinishMeeting(ctx context.Context) (*model.Meeting, error)
	SaveMeeting(ctx context.Context) (*model.Meeting, error)
	CancelMeeting(ctx context.Context) (*meeting.Session, error)

	Export(ctx context.Context, start, end string) (*ExportFile, error)
	Stats(ctx context.Context) (*stats.Dashboard, error)
	GetEvents(ctx context.Context, subjectID string) ([]*model.Event, error)
	Health(ctx context.Context) (*HealthResponse, error)

	Close() error
}

// CreateIssueRequest holds parameters for creating an issue.
type CreateIssueRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	BranchID    string     `json:"branch_id"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// ListIssuesRequest holds issue list filters. Empty fields do not filter.
type ListIssuesRequest struct {
	Status   []string
	Priority []string
	BranchID string
	Search   string
}

// ListIssuesResponse is the response from ListIssues.
type ListIssuesResponse struct {
	Issues []*model.Issue `json:"issues"`
	Total  int            `json:"total"`
}

// UpdateIssueRequest holds a partial update. Nil pointer fields mean
// "don't change"; a zero DueDate clears the due date.
type UpdateIssueRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// AttendeesRequest sets the attendee string directly, or builds it from
// selected names plus a comma-separated manual list.
type AttendeesRequest struct {
	Attendees *string  `json:"attendees,omitempty"`
	Selected  []string `json:"selected,omitempty"`
	Manual    string   `json:"manual,omitempty"`
}

// MeetingDetail is a stored meeting with its discussed issues grouped by
// branch.
type MeetingDetail struct {
	Meeting *model.Meeting        `json:"meeting"`
	Groups  []meeting.BranchGroup `json:"groups"`
}

// SessionView is the open meeting as the server presents it.
type SessionView struct {
	Session  meeting.Session       `json:"session"`
	Branches []*model.Branch       `json:"branches,omitempty"`
	Groups   []meeting.BranchGroup `json:"groups,omitempty"`
}

// ExportFile is a downloaded meeting report.
type ExportFile struct {
	Name     string
	Meetings int
	Data     []byte
}

// HealthResponse is the response from Health.
type HealthResponse struct {
	Status   string          `json:"status"`
	Meeting  meeting.State   `json:"meeting"`
	Snapshot *SnapshotResult `json:"snapshot,omitempty"`
}

// SnapshotResult mirrors the server's last backup snapshot.
type SnapshotResult struct {
	At     time.Time         `json:"at"`
	Bytes  int               `json:"bytes"`
	Failed map[string]string `json:"failed,omitempty"`
}
