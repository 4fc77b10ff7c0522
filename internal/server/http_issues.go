package server

import (
	"net/http"
	"strings"

	"github.com/alfredjeanlab/reg2progress/internal/events"
	"github.com/alfredjeanlab/reg2progress/internal/issues"
	"github.com/alfredjeanlab/reg2progress/internal/model"
)

// handleCreateIssue handles POST /v1/issues.
func (s *ClinicServer) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var in issues.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	issue, err := s.issues.Create(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}

	s.recordAndPublish(r.Context(), events.TopicIssueCreated, issue.ID, events.IssueCreated{Issue: issue})
	writeJSON(w, http.StatusCreated, issue)
}

// handleListIssues handles GET /v1/issues.
func (s *ClinicServer) handleListIssues(w http.ResponseWriter, r *http.Request) {
	filter, err := issueFilterFromQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	list, err := s.store.ListIssues(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []*model.Issue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issues": list,
		"total":  len(list),
	})
}

func issueFilterFromQuery(r *http.Request) (model.IssueFilter, error) {
	q := r.URL.Query()
	filter := model.IssueFilter{
		BranchID: q.Get("branch"),
		Search:   q.Get("search"),
	}
	for _, v := range splitList(q.Get("status")) {
		st := model.Status(strings.ToUpper(v))
		if !st.IsValid() {
			return filter, inputError("invalid status " + v)
		}
		filter.Status = append(filter.Status, st)
	}
	for _, v := range splitList(q.Get("priority")) {
		p := model.Priority(strings.ToUpper(v))
		if !p.IsValid() {
			return filter, inputError("invalid priority " + v)
		}
		filter.Priority = append(filter.Priority, p)
	}
	filter.IDs = splitList(q.Get("ids"))
	return filter, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// handleGetIssue handles GET /v1/issues/{id}.
func (s *ClinicServer) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.store.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// handleUpdateIssue handles PATCH /v1/issues/{id}.
func (s *ClinicServer) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	var in issues.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	issue, changes, err := s.issues.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeErr(w, err)
		return
	}

	if len(changes) > 0 {
		s.recordAndPublish(r.Context(), events.TopicIssueUpdated, issue.ID, events.IssueUpdated{Issue: issue, Changes: changes})
	}
	writeJSON(w, http.StatusOK, issue)
}

type logInput struct {
	Text   string `json:"text"`
	Author string `json:"author,omitempty"`
}

// handleAddLog handles POST /v1/issues/{id}/logs.
func (s *ClinicServer) handleAddLog(w http.ResponseWriter, r *http.Request) {
	var in logInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	if in.Author == "" {
		in.Author = actorFromContext(r.Context())
	}

	log, err := s.issues.AddLog(r.Context(), r.PathValue("id"), in.Text, in.Author)
	if err != nil {
		writeErr(w, err)
		return
	}

	s.recordAndPublish(r.Context(), events.TopicLogAdded, log.IssueID, events.LogAdded{Log: log})
	writeJSON(w, http.StatusCreated, log)
}

// handleEditLog handles PATCH /v1/issues/{id}/logs/{log_id}.
func (s *ClinicServer) handleEditLog(w http.ResponseWriter, r *http.Request) {
	var in logInput
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	issueID, logID := r.PathValue("id"), r.PathValue("log_id")

	if err := s.issues.EditLog(r.Context(), issueID, logID, in.Text); err != nil {
		writeErr(w, err)
		return
	}

	text := strings.TrimSpace(in.Text)
	s.recordAndPublish(r.Context(), events.TopicLogEdited, issueID, events.LogEdited{IssueID: issueID, LogID: logID, Text: text})
	writeJSON(w, http.StatusOK, map[string]string{"issue_id": issueID, "log_id": logID, "text": text})
}

// handleDeleteLog handles DELETE /v1/issues/{id}/logs/{log_id}?confirm=true.
func (s *ClinicServer) handleDeleteLog(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeErr(w, inputError("deleting a log entry requires confirm=true"))
		return
	}
	issueID, logID := r.PathValue("id"), r.PathValue("log_id")

	if err := s.issues.DeleteLog(r.Context(), issueID, logID); err != nil {
		writeErr(w, err)
		return
	}

	s.recordAndPublish(r.Context(), events.TopicLogDeleted, issueID, events.LogDeleted{IssueID: issueID, LogID: logID})
	w.WriteHeader(http.StatusNoContent)
}
