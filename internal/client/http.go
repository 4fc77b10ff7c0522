package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/reg2progress/internal/meeting"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/stats"
)

// HTTPClient implements ClinicClient over the HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	actor      string
	httpClient *http.Client
}

var _ ClinicClient = (*HTTPClient)(nil)

// NewHTTPClient creates a client for baseURL (e.g. "http://localhost:8080").
// A non-empty token is sent as a bearer token; a non-empty actor is sent as
// X-Actor and recorded against the changes it makes.
func NewHTTPClient(baseURL, token, actor string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		actor:      actor,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) ListBranches(ctx context.Context) ([]*model.Branch, error) {
	var resp struct {
		Branches []*model.Branch `json:"branches"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/branches", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Branches, nil
}

func (c *HTTPClient) ListAttendees(ctx context.Context) ([]string, error) {
	var resp struct {
		Attendees []string `json:"attendees"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/attendees", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Attendees, nil
}

// --- Issues ---

func (c *HTTPClient) CreateIssue(ctx context.Context, req *CreateIssueRequest) (*model.Issue, error) {
	var issue model.Issue
	if err := c.doJSON(ctx, http.MethodPost, "/v1/issues", req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *HTTPClient) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	var issue model.Issue
	if err := c.doJSON(ctx, http.MethodGet, "/v1/issues/"+url.PathEscape(id), nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *HTTPClient) ListIssues(ctx context.Context, req *ListIssuesRequest) (*ListIssuesResponse, error) {
	q := url.Values{}
	if len(req.Status) > 0 {
		q.Set("status", strings.Join(req.Status, ","))
	}
	if len(req.Priority) > 0 {
		q.Set("priority", strings.Join(req.Priority, ","))
	}
	if req.BranchID != "" {
		q.Set("branch", req.BranchID)
	}
	if req.Search != "" {
		q.Set("search", req.Search)
	}

	var resp ListIssuesResponse
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/v1/issues", q), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) UpdateIssue(ctx context.Context, id string, req *UpdateIssueRequest) (*model.Issue, error) {
	var issue model.Issue
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/issues/"+url.PathEscape(id), req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *HTTPClient) AddLog(ctx context.Context, issueID, text, author string) (*model.UpdateLog, error) {
	body := map[string]string{"text": text}
	if author != "" {
		body["author"] = author
	}
	var log model.UpdateLog
	if err := c.doJSON(ctx, http.MethodPost, "/v1/issues/"+url.PathEscape(issueID)+"/logs", body, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

func (c *HTTPClient) EditLog(ctx context.Context, issueID, logID, text string) error {
	return c.doJSON(ctx, http.MethodPatch, logPath(issueID, logID), map[string]string{"text": text}, nil)
}

// DeleteLog removes a log entry. The caller is responsible for having
// confirmed the deletion with the user.
func (c *HTTPClient) DeleteLog(ctx context.Context, issueID, logID string) error {
	return c.doJSON(ctx, http.MethodDelete, logPath(issueID, logID)+"?confirm=true", nil, nil)
}

func logPath(issueID, logID string) string {
	return "/v1/issues/" + url.PathEscape(issueID) + "/logs/" + url.PathEscape(logID)
}

// --- Meetings ---

func (c *HTTPClient) ListMeetings(ctx context.Context, query string) ([]*model.Meeting, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	var resp struct {
		Meetings []*model.Meeting `json:"meetings"`
	}
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/v1/meetings", q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Meetings, nil
}

func (c *HTTPClient) GetMeeting(ctx context.Context, id string) (*MeetingDetail, error) {
	var resp MeetingDetail
	if err := c.doJSON(ctx, http.MethodGet, "/v1/meetings/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetSession(ctx context.Context) (*SessionView, error) {
	return c.sessionView(ctx, http.MethodGet, "/v1/session")
}

func (c *HTTPClient) StartMeeting(ctx context.Context) (*SessionView, error) {
	return c.sessionView(ctx, http.MethodPost, "/v1/session/start")
}

func (c *HTTPClient) EditMeeting(ctx context.Context, id string) (*SessionView, error) {
	return c.sessionView(ctx, http.MethodPost, "/v1/session/edit/"+url.PathEscape(id))
}

func (c *HTTPClient) sessionView(ctx context.Context, method, path string) (*SessionView, error) {
	var resp SessionView
	if err := c.doJSON(ctx, method, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) SetNote(ctx context.Context, branchID, markup string) (*meeting.Session, error) {
	var sess meeting.Session
	body := map[string]string{"markup": markup}
	if err := c.doJSON(ctx, http.MethodPut, "/v1/session/notes/"+url.PathEscape(branchID), body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *HTTPClient) SetAttendees(ctx context.Context, req *AttendeesRequest) (*meeting.Session, error) {
	var sess meeting.Session
	if err := c.doJSON(ctx, http.MethodPut, "/v1/session/attendees", req, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *HTTPClient) AddMeetingIssue(ctx context.Context, req *CreateIssueRequest) (*model.Issue, error) {
	var issue model.Issue
	if err := c.doJSON(ctx, http.MethodPost, "/v1/session/issues", req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *HTTPClient) FinishMeeting(ctx context.Context) (*model.Meeting, error) {
	var m model.Meeting
	if err := c.doJSON(ctx, http.MethodPost, "/v1/session/finish", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *HTTPClient) SaveMeeting(ctx context.Context) (*model.Meeting, error) {
	var m model.Meeting
	if err := c.doJSON(ctx, http.MethodPost, "/v1/session/save", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *HTTPClient) CancelMeeting(ctx context.Context) (*meeting.Session, error) {
	var sess meeting.Session
	if err := c.doJSON(ctx, http.MethodPost, "/v1/session/cancel", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// --- Reports ---

// Export downloads the meeting report for the inclusive date range.
func (c *HTTPClient) Export(ctx context.Context, start, end string) (*ExportFile, error) {
	q := url.Values{}
	q.Set("start", start)
	q.Set("end", end)

	resp, err := c.do(ctx, http.MethodGet, withQuery("/v1/export", q), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, data)
	}

	file := &ExportFile{Data: data}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		file.Name = params["filename"]
	}
	if file.Name == "" {
		file.Name = fmt.Sprintf("Meeting Report %s - %s.xlsx", start, end)
	}
	file.Meetings, _ = strconv.Atoi(resp.Header.Get("X-Meeting-Count"))
	return file, nil
}

func (c *HTTPClient) Stats(ctx context.Context) (*stats.Dashboard, error) {
	var d stats.Dashboard
	if err := c.doJSON(ctx, http.MethodGet, "/v1/stats", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *HTTPClient) GetEvents(ctx context.Context, subjectID string) ([]*model.Event, error) {
	q := url.Values{}
	q.Set("subject", subjectID)
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/v1/events", q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []model.FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func apiError(status int, body []byte) error {
	var errResp struct {
		Error  string             `json:"error"`
		Fields []model.FieldError `json:"fields"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: status, Message: errResp.Error, Fields: errResp.Fields}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.actor != "" {
		req.Header.Set("X-Actor", c.actor)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	return resp, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
