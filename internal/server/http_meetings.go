package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alfredjeanlab/reg2progress/internal/events"
	"github.com/alfredjeanlab/reg2progress/internal/issues"
	"github.com/alfredjeanlab/reg2progress/internal/meeting"
	"github.com/alfredjeanlab/reg2progress/internal/model"
)

// handleListMeetings handles GET /v1/meetings?q=.
func (s *ClinicServer) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meetings, err := s.store.ListMeetings(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}

	if q := r.URL.Query().Get("q"); q != "" {
		all, err := s.store.ListIssues(ctx, model.IssueFilter{})
		if err != nil {
			writeErr(w, err)
			return
		}
		meetings = meeting.Search(meetings, all, q)
	}
	if meetings == nil {
		meetings = []*model.Meeting{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"meetings": meetings})
}

// meetingView is a meeting with its discussed issues grouped by branch.
type meetingView struct {
	Meeting *model.Meeting        `json:"meeting"`
	Groups  []meeting.BranchGroup `json:"groups"`
}

// handleGetMeeting handles GET /v1/meetings/{id}.
func (s *ClinicServer) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := s.store.GetMeeting(ctx, r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	groups, err := s.groupIssues(ctx, m.DiscussedIssueIDs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meetingView{Meeting: m, Groups: groups})
}

func (s *ClinicServer) groupIssues(ctx context.Context, ids []string) ([]meeting.BranchGroup, error) {
	if len(ids) == 0 {
		return []meeting.BranchGroup{}, nil
	}
	discussed, err := s.store.ListIssues(ctx, model.IssueFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("list discussed issues: %w", err)
	}
	branches, err := s.store.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return meeting.GroupByBranch(ids, discussed, branches), nil
}

// sessionView is the open meeting as a client renders it.
type sessionView struct {
	Session  meeting.Session       `json:"session"`
	Branches []*model.Branch       `json:"branches,omitempty"`
	Groups   []meeting.BranchGroup `json:"groups,omitempty"`
}

// sessionLocked builds the view of the controller. Callers hold s.mu.
func (s *ClinicServer) sessionLocked(ctx context.Context) (sessionView, error) {
	v := sessionView{Session: s.meeting.Session()}
	if v.Session.State == meeting.StateIdle {
		return v, nil
	}
	branches, err := s.meeting.BranchesForView(ctx)
	if err != nil {
		return v, err
	}
	groups, err := s.groupIssues(ctx, v.Session.DiscussedIssueIDs)
	if err != nil {
		return v, err
	}
	v.Branches = branches
	v.Groups = groups
	return v, nil
}

// writeSessionLocked writes the controller view. Callers hold s.mu.
func (s *ClinicServer) writeSessionLocked(w http.ResponseWriter, r *http.Request, status int) {
	v, err := s.sessionLocked(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, status, v)
}

// handleGetSession handles GET /v1/session.
func (s *ClinicServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeSessionLocked(w, r, http.StatusOK)
}

// handleStartMeeting handles POST /v1/session/start.
func (s *ClinicServer) handleStartMeeting(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.meeting.Start(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	s.recordAndPublish(r.Context(), events.TopicMeetingStarted, "", events.MeetingStarted{
		Date:              sess.Date,
		DiscussedIssueIDs: sess.DiscussedIssueIDs,
	})
	s.writeSessionLocked(w, r, http.StatusOK)
}

// handleEditMeeting handles POST /v1/session/edit/{id}.
func (s *ClinicServer) handleEditMeeting(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.meeting.Edit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	s.recordAndPublish(r.Context(), events.TopicMeetingEditing, sess.MeetingID, events.MeetingEditing{MeetingID: sess.MeetingID})
	s.writeSessionLocked(w, r, http.StatusOK)
}

type noteInput struct {
	Markup string `json:"markup"`
}

// handleSetNote handles PUT /v1/session/notes/{branch_id}.
func (s *ClinicServer) handleSetNote(w http.ResponseWriter, r *http.Request) {
	var in noteInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.meeting.SetNote(r.Context(), r.PathValue("branch_id"), in.Markup); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.meeting.Session())
}

// attendeesInput either replaces the attendee string outright or builds it
// from checkbox selections plus a comma-separated manual list.
type attendeesInput struct {
	Attendees *string  `json:"attendees,omitempty"`
	Selected  []string `json:"selected,omitempty"`
	Manual    string   `json:"manual,omitempty"`
}

// handleSetAttendees handles PUT /v1/session/attendees.
func (s *ClinicServer) handleSetAttendees(w http.ResponseWriter, r *http.Request) {
	var in attendeesInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	attendees := meeting.JoinAttendees(in.Selected, in.Manual)
	if in.Attendees != nil {
		attendees = *in.Attendees
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.meeting.SetAttendees(attendees); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.meeting.Session())
}

// handleAddSessionIssue handles POST /v1/session/issues.
func (s *ClinicServer) handleAddSessionIssue(w http.ResponseWriter, r *http.Request) {
	var in issues.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	issue, err := s.meeting.AddIssue(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.recordAndPublish(r.Context(), events.TopicIssueCreated, issue.ID, events.IssueCreated{Issue: issue})
	writeJSON(w, http.StatusCreated, issue)
}

// handleFinishMeeting handles POST /v1/session/finish.
func (s *ClinicServer) handleFinishMeeting(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.meeting.Finish(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	s.recordAndPublish(r.Context(), events.TopicMeetingFinished, m.ID, events.MeetingFinished{Meeting: m})
	writeJSON(w, http.StatusCreated, m)
}

// handleSaveMeeting handles POST /v1/session/save.
func (s *ClinicServer) handleSaveMeeting(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.meeting.Save(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	s.recordAndPublish(r.Context(), events.TopicMeetingSaved, m.ID, events.MeetingSaved{Meeting: m})
	writeJSON(w, http.StatusOK, m)
}

// handleCancelMeeting handles POST /v1/session/cancel.
func (s *ClinicServer) handleCancelMeeting(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.meeting.Session().MeetingID
	if err := s.meeting.Cancel(); err != nil {
		writeErr(w, err)
		return
	}
	s.recordAndPublish(r.Context(), events.TopicMeetingCancelled, id, events.MeetingCancelled{MeetingID: id})
	writeJSON(w, http.StatusOK, s.meeting.Session())
}
