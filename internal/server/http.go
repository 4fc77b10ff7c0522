package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alfredjeanlab/reg2progress/internal/meeting"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/store"
)

// NewHTTPHandler returns an http.Handler with all routes and middleware.
// When authToken is non-empty, every request except GET /v1/health must
// carry it as a bearer token.
func (s *ClinicServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/branches", s.handleListBranches)
	mux.HandleFunc("GET /v1/attendees", s.handleListAttendees)

	mux.HandleFunc("POST /v1/issues", s.handleCreateIssue)
	mux.HandleFunc("GET /v1/issues", s.handleListIssues)
	mux.HandleFunc("GET /v1/issues/{id}", s.handleGetIssue)
	mux.HandleFunc("PATCH /v1/issues/{id}", s.handleUpdateIssue)
	mux.HandleFunc("POST /v1/issues/{id}/logs", s.handleAddLog)
	mux.HandleFunc("PATCH /v1/issues/{id}/logs/{log_id}", s.handleEditLog)
	mux.HandleFunc("DELETE /v1/issues/{id}/logs/{log_id}", s.handleDeleteLog)

	mux.HandleFunc("GET /v1/meetings", s.handleListMeetings)
	mux.HandleFunc("GET /v1/meetings/{id}", s.handleGetMeeting)

	mux.HandleFunc("GET /v1/session", s.handleGetSession)
	mux.HandleFunc("POST /v1/session/start", s.handleStartMeeting)
	mux.HandleFunc("POST /v1/session/edit/{id}", s.handleEditMeeting)
	mux.HandleFunc("PUT /v1/session/notes/{branch_id}", s.handleSetNote)
	mux.HandleFunc("PUT /v1/session/attendees", s.handleSetAttendees)
	mux.HandleFunc("POST /v1/session/issues", s.handleAddSessionIssue)
	mux.HandleFunc("POST /v1/session/finish", s.handleFinishMeeting)
	mux.HandleFunc("POST /v1/session/save", s.handleSaveMeeting)
	mux.HandleFunc("POST /v1/session/cancel", s.handleCancelMeeting)

	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/events", s.handleListEvents)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)

	var h http.Handler = mux
	h = ActorMiddleware(h)
	h = AuthMiddleware(authToken, h)
	h = RecoveryMiddleware(h)
	return LoggingMiddleware(h)
}

// handleHealth handles GET /v1/health.
func (s *ClinicServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	state := s.meeting.State()
	s.mu.Unlock()

	resp := map[string]any{"status": "ok", "meeting": state}
	if s.snapshots != nil {
		if last := s.snapshots.Last(); last != nil {
			resp["snapshot"] = last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListBranches handles GET /v1/branches.
func (s *ClinicServer) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := s.store.ListBranches(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if branches == nil {
		branches = []*model.Branch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

// handleListAttendees handles GET /v1/attendees.
func (s *ClinicServer) handleListAttendees(w http.ResponseWriter, _ *http.Request) {
	names := s.attendees
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendees": names})
}

// decodeJSON reads the request body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return inputError("invalid JSON body")
	}
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps an error from the domain packages to a status code.
func writeErr(w http.ResponseWriter, err error) {
	var (
		ve *model.ValidationError
		ie inputError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  ve.Error(),
			"fields": ve.Errors,
		})
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case isTransitionError(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func isTransitionError(err error) bool {
	for _, target := range []error{
		meeting.ErrNoMeeting,
		meeting.ErrMeetingOpen,
		meeting.ErrAddIssueDisabled,
		meeting.ErrNotActive,
		meeting.ErrNotEditing,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
