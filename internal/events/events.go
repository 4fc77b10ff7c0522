package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/model"
)

// Event topic constants
const (
	TopicIssueCreated = "clinic.issue.created"
	TopicIssueUpdated = "clinic.issue.updated"

	TopicLogAdded   = "clinic.log.added"
	TopicLogEdited  = "clinic.log.edited"
	TopicLogDeleted = "clinic.log.deleted"

	// Meeting lifecycle events.
	TopicMeetingStarted   = "clinic.meeting.started"
	TopicMeetingEditing   = "clinic.meeting.editing"
	TopicMeetingFinished  = "clinic.meeting.finished"
	TopicMeetingSaved     = "clinic.meeting.saved"
	TopicMeetingCancelled = "clinic.meeting.cancelled"
)

// TopicAll matches every topic above.
const TopicAll = "clinic.>"

// Event types

type IssueCreated struct {
	Issue *model.Issue `json:"issue"`
}

type IssueUpdated struct {
	Issue   *model.Issue   `json:"issue"`
	Changes map[string]any `json:"changes"` // field name -> new value
}

type LogAdded struct {
	Log *model.UpdateLog `json:"log"`
}

type LogEdited struct {
	IssueID string `json:"issue_id"`
	LogID   string `json:"log_id"`
	Text    string `json:"text"`
}

type LogDeleted struct {
	IssueID string `json:"issue_id"`
	LogID   string `json:"log_id"`
}

type MeetingStarted struct {
	Date              time.Time `json:"date"`
	DiscussedIssueIDs []string  `json:"discussed_issue_ids"`
}

type MeetingEditing struct {
	MeetingID string `json:"meeting_id"`
}

type MeetingFinished struct {
	Meeting *model.Meeting `json:"meeting"`
}

type MeetingSaved struct {
	Meeting *model.Meeting `json:"meeting"`
}

type MeetingCancelled struct {
	MeetingID string `json:"meeting_id,omitempty"` // empty for a new meeting
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// NoopPublisher drops every event. The server uses it when RP_NATS_URL is
// unset; events are still recorded in the store.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (*NoopPublisher) Close() error                               { return nil }
