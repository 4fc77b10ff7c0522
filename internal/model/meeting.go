package model

import "time"

// Meeting is a recorded cross-branch discussion.
//
// DiscussedIssueIDs is captured when the meeting starts and is never
// re-evaluated; readers must tolerate IDs that no longer resolve. Notes only
// holds entries whose text is non-blank; a missing key means "no note".
type Meeting struct {
	ID                string            `json:"id"`
	Date              time.Time         `json:"date"`
	Attendees         string            `json:"attendees"`
	Notes             map[string]string `json:"notes"`
	DiscussedIssueIDs []string          `json:"discussed_issue_ids"`
}

// Clone returns a deep copy of the meeting.
func (m *Meeting) Clone() *Meeting {
	c := *m
	c.Notes = make(map[string]string, len(m.Notes))
	for k, v := range m.Notes {
		c.Notes[k] = v
	}
	c.DiscussedIssueIDs = append([]string(nil), m.DiscussedIssueIDs...)
	return &c
}
