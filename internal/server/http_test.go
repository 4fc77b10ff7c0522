package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/alfredjeanlab/reg2progress/internal/events"
	"github.com/alfredjeanlab/reg2progress/internal/meeting"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/notes"
	"github.com/alfredjeanlab/reg2progress/internal/store"
	"github.com/alfredjeanlab/reg2progress/internal/store/memory"
)

var testNow = time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

// newTestServer returns a server over a seeded memory store with a fixed
// clock, the store, and its HTTP handler.
func newTestServer(t *testing.T) (*ClinicServer, *memory.Store, http.Handler) {
	t.Helper()
	ms := memory.New()
	if err := store.Seed(context.Background(), ms, model.DefaultBranches); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s := New(ms, &events.NoopPublisher{},
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC),
	)
	return s, ms, s.NewHTTPHandler("")
}

// doJSON performs a request with an optional JSON body and returns the recorder.
func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// requireStatus asserts the recorder has the expected HTTP status code.
func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("expected status %d, got %d; body: %s", code, rec.Code, rec.Body.String())
	}
}

// decodeBody decodes the recorder's response body into v.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func createIssue(t *testing.T, h http.Handler, title, branchID string) model.Issue {
	t.Helper()
	rec := doJSON(t, h, "POST", "/v1/issues", map[string]any{
		"title":       title,
		"description": title + " needs attention",
		"branch_id":   branchID,
	})
	requireStatus(t, rec, http.StatusCreated)
	var issue model.Issue
	decodeBody(t, rec, &issue)
	return issue
}

func TestHandleHTTPErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   any
		code   int
	}{
		{"CreateIssue/MissingTitle", "POST", "/v1/issues", map[string]any{"description": "d", "branch_id": "BRANCH-1"}, 400},
		{"CreateIssue/UnknownBranch", "POST", "/v1/issues", map[string]any{"title": "t", "description": "d", "branch_id": "BRANCH-99"}, 400},
		{"CreateIssue/BadPriority", "POST", "/v1/issues", map[string]any{"title": "t", "description": "d", "branch_id": "BRANCH-1", "priority": "URGENT"}, 400},
		{"GetIssue/NotFound", "GET", "/v1/issues/ISSUE-missing", nil, 404},
		{"UpdateIssue/NotFound", "PATCH", "/v1/issues/ISSUE-missing", map[string]any{"title": "x"}, 404},
		{"ListIssues/BadStatus", "GET", "/v1/issues?status=CLOSED", nil, 400},
		{"AddLog/NotFound", "POST", "/v1/issues/ISSUE-missing/logs", map[string]any{"text": "hi"}, 404},
		{"GetMeeting/NotFound", "GET", "/v1/meetings/MTG-missing", nil, 404},
		{"Finish/Idle", "POST", "/v1/session/finish", nil, 409},
		{"Save/Idle", "POST", "/v1/session/save", nil, 409},
		{"Cancel/Idle", "POST", "/v1/session/cancel", nil, 409},
		{"SetNote/Idle", "PUT", "/v1/session/notes/BRANCH-1", map[string]any{"markup": "<p>x</p>"}, 409},
		{"AddIssue/Idle", "POST", "/v1/session/issues", map[string]any{"title": "t"}, 409},
		{"Edit/NotFound", "POST", "/v1/session/edit/MTG-missing", nil, 404},
		{"Export/MissingBounds", "GET", "/v1/export", nil, 400},
		{"Events/MissingSubject", "GET", "/v1/events", nil, 400},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, h := newTestServer(t)
			rec := doJSON(t, h, tc.method, tc.path, tc.body)
			requireStatus(t, rec, tc.code)
			var body map[string]any
			decodeBody(t, rec, &body)
			if body["error"] == "" || body["error"] == nil {
				t.Fatalf("expected error message, got %v", body)
			}
		})
	}
}

func TestHandleInvalidJSON(t *testing.T) {
	_, _, h := newTestServer(t)
	req := httptest.NewRequest("POST", "/v1/issues", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestHandleValidationFields(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := doJSON(t, h, "POST", "/v1/issues", map[string]any{"branch_id": "BRANCH-1"})
	requireStatus(t, rec, http.StatusBadRequest)
	var body struct {
		Fields []model.FieldError `json:"fields"`
	}
	decodeBody(t, rec, &body)
	got := map[string]bool{}
	for _, f := range body.Fields {
		got[f.Field] = true
	}
	if !got["title"] || !got["description"] {
		t.Fatalf("expected title and description errors, got %+v", body.Fields)
	}
}

func TestHandleHealth(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := doJSON(t, h, "GET", "/v1/health", nil)
	requireStatus(t, rec, http.StatusOK)
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" || body["meeting"] != "idle" {
		t.Fatalf("unexpected health: %v", body)
	}
}

func TestHandleBranchesAndAttendees(t *testing.T) {
	_, _, h := newTestServer(t)

	rec := doJSON(t, h, "GET", "/v1/branches", nil)
	requireStatus(t, rec, http.StatusOK)
	var branches struct {
		Branches []model.Branch `json:"branches"`
	}
	decodeBody(t, rec, &branches)
	if len(branches.Branches) != len(model.DefaultBranches) {
		t.Fatalf("expected %d branches, got %d", len(model.DefaultBranches), len(branches.Branches))
	}

	rec = doJSON(t, h, "GET", "/v1/attendees", nil)
	requireStatus(t, rec, http.StatusOK)
	var attendees struct {
		Attendees []string `json:"attendees"`
	}
	decodeBody(t, rec, &attendees)
	if len(attendees.Attendees) != len(model.DefaultAttendees) {
		t.Fatalf("expected default attendees, got %v", attendees.Attendees)
	}
}

func TestHandleIssueLifecycle(t *testing.T) {
	_, ms, h := newTestServer(t)
	issue := createIssue(t, h, "Broken autoclave", "BRANCH-2")

	if issue.Status != model.StatusOpen || issue.Priority != model.PriorityMedium {
		t.Fatalf("defaults: status=%s priority=%s", issue.Status, issue.Priority)
	}
	if len(issue.Updates) != 1 || issue.Updates[0].Text != model.IssueCreatedText {
		t.Fatalf("expected creation log, got %+v", issue.Updates)
	}

	rec := doJSON(t, h, "PATCH", "/v1/issues/"+issue.ID, map[string]any{"status": "RESOLVED", "title": "  "})
	requireStatus(t, rec, http.StatusOK)
	var updated model.Issue
	decodeBody(t, rec, &updated)
	if updated.Status != model.StatusResolved || updated.ResolvedAt == nil {
		t.Fatalf("expected resolved with timestamp, got %s %v", updated.Status, updated.ResolvedAt)
	}
	if updated.Title != "Broken autoclave" {
		t.Fatalf("blank title should be ignored, got %q", updated.Title)
	}

	rec = doJSON(t, h, "GET", "/v1/issues/"+issue.ID, nil)
	requireStatus(t, rec, http.StatusOK)
	var got model.Issue
	decodeBody(t, rec, &got)
	if n := len(got.Updates); n != 2 || got.Updates[1].Text != model.StatusChangeText(model.StatusResolved) {
		t.Fatalf("expected status log, got %+v", got.Updates)
	}

	evts, err := ms.GetEvents(context.Background(), issue.ID)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(evts) != 2 || evts[0].Topic != events.TopicIssueCreated || evts[1].Topic != events.TopicIssueUpdated {
		t.Fatalf("unexpected events: %+v", evts)
	}
}

func TestHandleListIssues_Filters(t *testing.T) {
	_, _, h := newTestServer(t)
	a := createIssue(t, h, "Leaking roof", "BRANCH-1")
	createIssue(t, h, "Printer jam", "BRANCH-2")
	doJSON(t, h, "PATCH", "/v1/issues/"+a.ID, map[string]any{"status": "IN_PROGRESS"})

	for _, tc := range []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?status=in_progress", 1},
		{"?branch=BRANCH-2", 1},
		{"?search=ROOF", 1},
		{"?priority=HIGH", 0},
		{"?ids=" + a.ID, 1},
	} {
		rec := doJSON(t, h, "GET", "/v1/issues"+tc.query, nil)
		requireStatus(t, rec, http.StatusOK)
		var body struct {
			Issues []model.Issue `json:"issues"`
			Total  int           `json:"total"`
		}
		decodeBody(t, rec, &body)
		if body.Total != tc.want || len(body.Issues) != tc.want {
			t.Errorf("%q: expected %d issues, got %d", tc.query, tc.want, body.Total)
		}
	}
}

func TestHandleLogs(t *testing.T) {
	_, _, h := newTestServer(t)
	issue := createIssue(t, h, "Broken chair", "BRANCH-3")

	rec := doJSON(t, h, "POST", "/v1/issues/"+issue.ID+"/logs", map[string]any{"text": "  ordered a new one  "})
	requireStatus(t, rec, http.StatusCreated)
	var log model.UpdateLog
	decodeBody(t, rec, &log)
	if log.Text != "ordered a new one" || log.Author != model.AuthorMeetingUser {
		t.Fatalf("unexpected log: %+v", log)
	}

	rec = doJSON(t, h, "POST", "/v1/issues/"+issue.ID+"/logs", map[string]any{"text": "   "})
	requireStatus(t, rec, http.StatusBadRequest)

	rec = doJSON(t, h, "PATCH", "/v1/issues/"+issue.ID+"/logs/"+log.ID, map[string]any{"text": "delivered"})
	requireStatus(t, rec, http.StatusOK)

	rec = doJSON(t, h, "DELETE", "/v1/issues/"+issue.ID+"/logs/"+log.ID, nil)
	requireStatus(t, rec, http.StatusBadRequest)

	rec = doJSON(t, h, "DELETE", "/v1/issues/"+issue.ID+"/logs/"+log.ID+"?confirm=true", nil)
	requireStatus(t, rec, http.StatusNoContent)

	rec = doJSON(t, h, "DELETE", "/v1/issues/"+issue.ID+"/logs/"+log.ID+"?confirm=true", nil)
	requireStatus(t, rec, http.StatusNotFound)

	rec = doJSON(t, h, "GET", "/v1/issues/"+issue.ID, nil)
	var got model.Issue
	decodeBody(t, rec, &got)
	if len(got.Updates) != 1 || got.Updates[0].Text != model.IssueCreatedText {
		t.Fatalf("expected only the creation log, got %+v", got.Updates)
	}
}

func TestHandleLogs_ActorBecomesAuthor(t *testing.T) {
	_, _, h := newTestServer(t)
	issue := createIssue(t, h, "Broken chair", "BRANCH-3")

	b, _ := json.Marshal(map[string]any{"text": "called vendor"})
	req := httptest.NewRequest("POST", "/v1/issues/"+issue.ID+"/logs", bytes.NewReader(b))
	req.Header.Set("X-Actor", "dr. Eko")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	requireStatus(t, rec, http.StatusCreated)

	var log model.UpdateLog
	decodeBody(t, rec, &log)
	if log.Author != "dr. Eko" {
		t.Fatalf("author = %q", log.Author)
	}
}

func TestHandleMeetingLifecycle(t *testing.T) {
	_, _, h := newTestServer(t)
	open := createIssue(t, h, "Leaking roof", "BRANCH-2")
	resolved := createIssue(t, h, "Printer jam", "BRANCH-1")
	doJSON(t, h, "PATCH", "/v1/issues/"+resolved.ID, map[string]any{"status": "RESOLVED"})

	rec := doJSON(t, h, "POST", "/v1/session/start", nil)
	requireStatus(t, rec, http.StatusOK)
	var view sessionView
	decodeBody(t, rec, &view)
	if view.Session.State != meeting.StateActive {
		t.Fatalf("state = %s", view.Session.State)
	}
	if len(view.Session.DiscussedIssueIDs) != 1 || view.Session.DiscussedIssueIDs[0] != open.ID {
		t.Fatalf("snapshot = %v", view.Session.DiscussedIssueIDs)
	}
	if len(view.Branches) != len(model.DefaultBranches) || view.Branches[0].Name != "FHC Bali" {
		t.Fatalf("expected all branches sorted by name, got %d", len(view.Branches))
	}
	if view.Session.Notes["BRANCH-1"] != notes.BlankList {
		t.Fatalf("expected blank note, got %q", view.Session.Notes["BRANCH-1"])
	}

	requireStatus(t, doJSON(t, h, "POST", "/v1/session/start", nil), http.StatusConflict)

	rec = doJSON(t, h, "PUT", "/v1/session/notes/BRANCH-2", map[string]any{"markup": "<p>Roof repaired next week</p>"})
	requireStatus(t, rec, http.StatusOK)
	requireStatus(t, doJSON(t, h, "PUT", "/v1/session/notes/BRANCH-99", map[string]any{"markup": "x"}), http.StatusBadRequest)

	rec = doJSON(t, h, "PUT", "/v1/session/attendees", map[string]any{"selected": []string{"dr. Agus"}, "manual": "Bu Sari, "})
	requireStatus(t, rec, http.StatusOK)
	var sess meeting.Session
	decodeBody(t, rec, &sess)
	if sess.Attendees != "dr. Agus, Bu Sari" {
		t.Fatalf("attendees = %q", sess.Attendees)
	}

	rec = doJSON(t, h, "POST", "/v1/session/issues", map[string]any{"title": "Power cut", "description": "Generator failed", "branch_id": "BRANCH-4"})
	requireStatus(t, rec, http.StatusCreated)
	var raised model.Issue
	decodeBody(t, rec, &raised)

	rec = doJSON(t, h, "POST", "/v1/session/finish", nil)
	requireStatus(t, rec, http.StatusCreated)
	var finished model.Meeting
	decodeBody(t, rec, &finished)
	if len(finished.Notes) != 1 || finished.Notes["BRANCH-2"] == "" {
		t.Fatalf("expected only the written note, got %v", finished.Notes)
	}
	if len(finished.DiscussedIssueIDs) != 2 || finished.DiscussedIssueIDs[1] != raised.ID {
		t.Fatalf("discussed = %v", finished.DiscussedIssueIDs)
	}
	if !finished.Date.Equal(testNow) {
		t.Fatalf("date = %v", finished.Date)
	}

	rec = doJSON(t, h, "GET", "/v1/meetings/"+finished.ID, nil)
	requireStatus(t, rec, http.StatusOK)
	var mv meetingView
	decodeBody(t, rec, &mv)
	if len(mv.Groups) != 2 || mv.Groups[0].BranchID != "BRANCH-2" || mv.Groups[1].BranchID != "BRANCH-4" {
		t.Fatalf("unexpected groups: %+v", mv.Groups)
	}

	rec = doJSON(t, h, "GET", "/v1/meetings?q=generator", nil)
	requireStatus(t, rec, http.StatusOK)
	var list struct {
		Meetings []model.Meeting `json:"meetings"`
	}
	decodeBody(t, rec, &list)
	if len(list.Meetings) != 1 {
		t.Fatalf("expected search hit, got %d", len(list.Meetings))
	}
	rec = doJSON(t, h, "GET", "/v1/meetings?q=printer", nil)
	decodeBody(t, rec, &list)
	if len(list.Meetings) != 0 {
		t.Fatalf("resolved issue was not discussed, got %d", len(list.Meetings))
	}

	// Edit, revise, save.
	rec = doJSON(t, h, "POST", "/v1/session/edit/"+finished.ID, nil)
	requireStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &view)
	if view.Session.State != meeting.StateEditing || len(view.Branches) != 2 {
		t.Fatalf("editing view: state=%s branches=%d", view.Session.State, len(view.Branches))
	}
	requireStatus(t, doJSON(t, h, "POST", "/v1/session/issues", map[string]any{"title": "x", "description": "y", "branch_id": "BRANCH-1"}), http.StatusConflict)
	requireStatus(t, doJSON(t, h, "POST", "/v1/session/finish", nil), http.StatusConflict)

	doJSON(t, h, "PUT", "/v1/session/notes/BRANCH-2", map[string]any{"markup": "<ul><li> </li></ul>"})
	doJSON(t, h, "PUT", "/v1/session/attendees", map[string]any{"attendees": "dr. Eko"})
	rec = doJSON(t, h, "POST", "/v1/session/save", nil)
	requireStatus(t, rec, http.StatusOK)
	var saved model.Meeting
	decodeBody(t, rec, &saved)
	if saved.ID != finished.ID || saved.Attendees != "dr. Eko" || len(saved.Notes) != 0 {
		t.Fatalf("unexpected saved meeting: %+v", saved)
	}
	if len(saved.DiscussedIssueIDs) != 2 {
		t.Fatalf("discussed list changed: %v", saved.DiscussedIssueIDs)
	}
}

func TestHandleCancelMeeting(t *testing.T) {
	_, ms, h := newTestServer(t)
	doJSON(t, h, "POST", "/v1/session/start", nil)
	doJSON(t, h, "PUT", "/v1/session/attendees", map[string]any{"attendees": "dr. Agus"})

	rec := doJSON(t, h, "POST", "/v1/session/cancel", nil)
	requireStatus(t, rec, http.StatusOK)
	var sess meeting.Session
	decodeBody(t, rec, &sess)
	if sess.State != meeting.StateIdle {
		t.Fatalf("state = %s", sess.State)
	}

	meetings, err := ms.ListMeetings(context.Background())
	if err != nil {
		t.Fatalf("list meetings: %v", err)
	}
	if len(meetings) != 0 {
		t.Fatalf("cancel must not store a meeting, got %d", len(meetings))
	}
}

func TestHandleExport(t *testing.T) {
	_, _, h := newTestServer(t)
	createIssue(t, h, "Leaking roof", "BRANCH-2")
	doJSON(t, h, "POST", "/v1/session/start", nil)
	doJSON(t, h, "PUT", "/v1/session/notes/BRANCH-2", map[string]any{"markup": "<p>Call the roofer</p>"})
	requireStatus(t, doJSON(t, h, "POST", "/v1/session/finish", nil), http.StatusCreated)

	rec := doJSON(t, h, "GET", "/v1/export?start=2025-05-10&end=2025-05-10", nil)
	requireStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("content type = %q", ct)
	}
	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("parse disposition: %v", err)
	}
	if params["filename"] != "Meeting Report 2025-05-10 - 2025-05-10.xlsx" {
		t.Fatalf("filename = %q", params["filename"])
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Meeting Notes")
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 2 || rows[1][2] != "Call the roofer" {
		t.Fatalf("unexpected note rows: %v", rows)
	}

	for _, q := range []string{
		"?start=2025-05-11&end=2025-05-10",
		"?start=2025-06-01&end=2025-06-30",
		"?start=10/05/2025&end=2025-05-10",
	} {
		rec := doJSON(t, h, "GET", "/v1/export"+q, nil)
		requireStatus(t, rec, http.StatusBadRequest)
		if rec.Header().Get("Content-Disposition") != "" {
			t.Fatalf("%s: no file should be offered", q)
		}
	}
}

func TestHandleStats(t *testing.T) {
	_, _, h := newTestServer(t)
	createIssue(t, h, "Leaking roof", "BRANCH-2")
	createIssue(t, h, "Printer jam", "BRANCH-2")

	rec := doJSON(t, h, "GET", "/v1/stats", nil)
	requireStatus(t, rec, http.StatusOK)
	var body struct {
		ByBranch []struct {
			BranchID string `json:"branch_id"`
			Open     int    `json:"open"`
		} `json:"by_branch"`
		Trend []struct {
			Month   string `json:"month"`
			Created int    `json:"created"`
		} `json:"trend"`
	}
	decodeBody(t, rec, &body)
	if len(body.Trend) != 6 || body.Trend[5].Month != "2025-05" || body.Trend[5].Created != 2 {
		t.Fatalf("unexpected trend: %+v", body.Trend)
	}
}

func TestHandleListEvents(t *testing.T) {
	_, _, h := newTestServer(t)
	issue := createIssue(t, h, "Leaking roof", "BRANCH-2")

	rec := doJSON(t, h, "GET", "/v1/events?subject="+issue.ID, nil)
	requireStatus(t, rec, http.StatusOK)
	var body struct {
		Events []model.Event `json:"events"`
	}
	decodeBody(t, rec, &body)
	if len(body.Events) != 1 || body.Events[0].Topic != events.TopicIssueCreated {
		t.Fatalf("unexpected events: %+v", body.Events)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.NewHTTPHandler("secret")

	for _, tc := range []struct {
		name   string
		path   string
		header string
		code   int
	}{
		{"HealthExempt", "/v1/health", "", http.StatusOK},
		{"Missing", "/v1/branches", "", http.StatusUnauthorized},
		{"WrongScheme", "/v1/branches", "Basic secret", http.StatusUnauthorized},
		{"WrongToken", "/v1/branches", "Bearer nope", http.StatusUnauthorized},
		{"Valid", "/v1/branches", "Bearer secret", http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			requireStatus(t, rec, tc.code)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	requireStatus(t, rec, http.StatusInternalServerError)
}
