package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/reg2progress/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanIssue scans a single row into a model.Issue.
// The row must contain columns in the order defined by issueColumns.
func scanIssue(row scannable) (*model.Issue, error) {
	var i model.Issue
	var resolvedAt, dueDate sql.NullTime

	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Description,
		&i.Status,
		&i.Priority,
		&i.BranchID,
		&i.CreatedAt,
		&i.UpdatedAt,
		&resolvedAt,
		&dueDate,
	)
	if err != nil {
		return nil, err
	}
	i.ResolvedAt = timePtr(resolvedAt)
	i.DueDate = timePtr(dueDate)
	return &i, nil
}

// scanIssues scans multiple rows into a slice of model.Issue pointers.
func scanIssues(rows *sql.Rows) ([]*model.Issue, error) {
	issues := []*model.Issue{}
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return issues, nil
}

// scanUpdateLog scans a single row into a model.UpdateLog.
func scanUpdateLog(row scannable) (*model.UpdateLog, error) {
	var u model.UpdateLog
	if err := row.Scan(&u.ID, &u.IssueID, &u.Text, &u.Author, &u.Timestamp); err != nil {
		return nil, err
	}
	return &u, nil
}

// scanMeeting scans a single row into a model.Meeting.
// The row must contain columns in the order defined by meetingColumns.
func scanMeeting(row scannable) (*model.Meeting, error) {
	var m model.Meeting
	var notes []byte
	err := row.Scan(&m.ID, &m.Date, &m.Attendees, &notes, pq.Array(&m.DiscussedIssueIDs))
	if err != nil {
		return nil, err
	}
	m.Notes = map[string]string{}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &m.Notes); err != nil {
			return nil, fmt.Errorf("decode notes of meeting %s: %w", m.ID, err)
		}
	}
	if m.DiscussedIssueIDs == nil {
		m.DiscussedIssueIDs = []string{}
	}
	return &m, nil
}

// scanEvent scans a single row into a model.Event.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		actor   sql.NullString
		payload []byte
	)
	err := row.Scan(&e.ID, &e.Topic, &e.SubjectID, &actor, &payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Actor = actor.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// timePtr converts a sql.NullTime back to a *time.Time.
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
