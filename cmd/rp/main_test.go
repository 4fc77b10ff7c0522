package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/client"
	"github.com/alfredjeanlab/reg2progress/internal/events"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/server"
	"github.com/alfredjeanlab/reg2progress/internal/store"
	"github.com/alfredjeanlab/reg2progress/internal/store/memory"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var testNow = time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) string {
	t.Helper()
	st := memory.New()
	if err := store.Seed(t.Context(), st, model.DefaultBranches); err != nil {
		t.Fatalf("seed: %v", err)
	}
	srv := server.New(st, &events.NoopPublisher{},
		server.WithClock(func() time.Time { return testNow }),
		server.WithLocation(time.UTC),
	)
	ts := httptest.NewServer(srv.NewHTTPHandler(""))
	t.Cleanup(ts.Close)
	return ts.URL
}

// resetFlags puts every flag back to its default so commands can be run
// more than once in the same process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// run executes rp against url and returns stdout.
func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--url", url, "--actor", "tester"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, url string, args ...string) string {
	t.Helper()
	out, err := run(t, url, args...)
	if err != nil {
		t.Fatalf("rp %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func mustDecode(t *testing.T, data string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(data), v); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
}

func createIssue(t *testing.T, url, title, branch string, extra ...string) *model.Issue {
	t.Helper()
	args := append([]string{"--json", "issue", "create", title, "-b", branch, "-d", "details"}, extra...)
	var issue model.Issue
	mustDecode(t, mustRun(t, url, args...), &issue)
	return &issue
}

func TestBranchesTable(t *testing.T) {
	url := newTestServer(t)
	out := mustRun(t, url, "branches")
	for _, want := range []string{"ID", "BRANCH-1", "FHC Bali", "TMC Yogyakarta"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestIssueCommands(t *testing.T) {
	url := newTestServer(t)

	issue := createIssue(t, url, "Printer jammed", "BRANCH-2", "-p", "high", "--due", "2025-06-01")
	if issue.Priority != model.PriorityHigh {
		t.Errorf("priority = %s, want HIGH", issue.Priority)
	}
	if issue.DueDate == nil || issue.DueDate.Format(dateFormat) != "2025-06-01" {
		t.Errorf("due date = %v", issue.DueDate)
	}
	createIssue(t, url, "AC broken", "BRANCH-3")

	var list client.ListIssuesResponse
	mustDecode(t, mustRun(t, url, "--json", "issue", "list", "-b", "BRANCH-2"), &list)
	if list.Total != 1 || list.Issues[0].ID != issue.ID {
		t.Fatalf("filtered list = %+v", list)
	}

	table := mustRun(t, url, "issue", "list", "-p", "high")
	if !strings.Contains(table, "Printer jammed") || strings.Contains(table, "AC broken") {
		t.Errorf("priority filter table:\n%s", table)
	}
	if !strings.Contains(table, "TMC Mataram") {
		t.Errorf("table should show the branch name:\n%s", table)
	}

	out := mustRun(t, url, "issue", "update", issue.ID, "-s", "in_progress")
	if !strings.Contains(out, "IN_PROGRESS") {
		t.Errorf("update output = %q", out)
	}

	var added model.UpdateLog
	mustDecode(t, mustRun(t, url, "--json", "issue", "log", "add", issue.ID, "Called the vendor"), &added)
	if added.Author != "tester" {
		t.Errorf("author = %q, want the actor", added.Author)
	}

	show := mustRun(t, url, "issue", "show", issue.ID)
	for _, want := range []string{"Printer jammed", "Called the vendor", model.StatusChangeText(model.StatusInProgress), model.IssueCreatedText} {
		if !strings.Contains(show, want) {
			t.Errorf("show missing %q:\n%s", want, show)
		}
	}

	if _, err := run(t, url, "issue", "log", "rm", issue.ID, added.ID); err == nil {
		t.Fatal("log rm without --yes should refuse when stdin is not a terminal")
	}
	mustRun(t, url, "issue", "log", "rm", issue.ID, added.ID, "--yes")

	var got model.Issue
	mustDecode(t, mustRun(t, url, "--json", "issue", "show", issue.ID), &got)
	for _, u := range got.Updates {
		if u.ID == added.ID {
			t.Errorf("log %s still present after rm", added.ID)
		}
	}

	if got.DueDate == nil {
		t.Fatal("expected a due date before --clear-due")
	}
	mustRun(t, url, "issue", "update", issue.ID, "--clear-due")
	out := mustRun(t, url, "--json", "issue", "show", issue.ID)
	if strings.Contains(out, "due_date") {
		t.Errorf("due_date still present after --clear-due:\n%s", out)
	}
	var cleared model.Issue
	mustDecode(t, out, &cleared)
	if cleared.DueDate != nil {
		t.Errorf("due date = %v after --clear-due", cleared.DueDate)
	}
}

func TestIssueUpdate_NothingToUpdate(t *testing.T) {
	url := newTestServer(t)
	issue := createIssue(t, url, "Leaky tap", "BRANCH-1")
	if _, err := run(t, url, "issue", "update", issue.ID); err == nil {
		t.Fatal("expected an error when no field flags are given")
	}
}

func TestIssueCreate_ServerValidation(t *testing.T) {
	url := newTestServer(t)
	_, err := run(t, url, "issue", "create", "Ghost", "-b", "BRANCH-99", "-d", "x")
	if err == nil {
		t.Fatal("expected an error for an unknown branch")
	}
	if !strings.Contains(err.Error(), "branch") {
		t.Errorf("error = %v, want it to name the branch", err)
	}
}

func TestMeetingFlow(t *testing.T) {
	url := newTestServer(t)
	open := createIssue(t, url, "Fridge temperature alarm", "BRANCH-4")

	var view client.SessionView
	mustDecode(t, mustRun(t, url, "--json", "meeting", "start"), &view)
	if len(view.Session.DiscussedIssueIDs) != 1 || view.Session.DiscussedIssueIDs[0] != open.ID {
		t.Fatalf("discussed = %v", view.Session.DiscussedIssueIDs)
	}

	if _, err := run(t, url, "meeting", "start"); err == nil {
		t.Fatal("second start should fail while a meeting is open")
	}

	mustRun(t, url, "meeting", "note", "BRANCH-4", "<p>Replace the <b>compressor</b></p>")
	out := mustRun(t, url, "meeting", "attendees", "--select", "dr. Eko", "--select", "dr. Agus", "--manual", "Bu Rina, dr. Eko")
	for _, want := range []string{"dr. Eko", "dr. Agus", "Bu Rina"} {
		if !strings.Contains(out, want) {
			t.Errorf("attendees output missing %q:\n%s", want, out)
		}
	}

	added := createIssueInMeeting(t, url)

	session := mustRun(t, url, "meeting", "show-session")
	for _, want := range []string{"active", "TMC Surabaya", "Fridge temperature alarm", "compressor", added.Title} {
		if !strings.Contains(session, want) {
			t.Errorf("show-session missing %q:\n%s", want, session)
		}
	}

	var m model.Meeting
	mustDecode(t, mustRun(t, url, "--json", "meeting", "finish"), &m)
	if m.Attendees != "dr. Eko, dr. Agus, Bu Rina" {
		t.Errorf("attendees = %q", m.Attendees)
	}
	if len(m.DiscussedIssueIDs) != 2 {
		t.Errorf("discussed = %v, want the open issue and the one added", m.DiscussedIssueIDs)
	}

	list := mustRun(t, url, "meeting", "list")
	if !strings.Contains(list, m.ID) || !strings.Contains(list, "1 meetings") {
		t.Errorf("meeting list:\n%s", list)
	}
	hits := mustRun(t, url, "meeting", "list", "-q", "fridge")
	if !strings.Contains(hits, m.ID) {
		t.Errorf("search should find the meeting:\n%s", hits)
	}
	misses := mustRun(t, url, "meeting", "list", "-q", "elevator")
	if strings.Contains(misses, m.ID) {
		t.Errorf("search should not match:\n%s", misses)
	}

	show := mustRun(t, url, "meeting", "show", m.ID)
	for _, want := range []string{m.ID, "Bu Rina", "TMC Surabaya", "Fridge temperature alarm"} {
		if !strings.Contains(show, want) {
			t.Errorf("meeting show missing %q:\n%s", want, show)
		}
	}

	mustDecode(t, mustRun(t, url, "--json", "meeting", "edit", m.ID), &view)
	if view.Session.MeetingID != m.ID {
		t.Fatalf("editing %q, want %q", view.Session.MeetingID, m.ID)
	}
	if _, err := run(t, url, "meeting", "add-issue", "Nope", "-b", "BRANCH-1", "-d", "x"); err == nil {
		t.Error("add-issue should be refused while editing")
	}
	mustRun(t, url, "meeting", "attendees", "--set", "dr. Lestari")
	var saved model.Meeting
	mustDecode(t, mustRun(t, url, "--json", "meeting", "save"), &saved)
	if saved.ID != m.ID || saved.Attendees != "dr. Lestari" {
		t.Errorf("saved = %+v", saved)
	}
}

func createIssueInMeeting(t *testing.T, url string) *model.Issue {
	t.Helper()
	var issue model.Issue
	mustDecode(t, mustRun(t, url, "--json", "meeting", "add-issue", "Generator fuel low", "-b", "BRANCH-5", "-d", "raised in meeting"), &issue)
	return &issue
}

func TestMeetingNote_FromStdin(t *testing.T) {
	url := newTestServer(t)
	mustRun(t, url, "meeting", "start")

	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("<p>from stdin</p>"))
	rootCmd.SetArgs([]string{"--url", url, "meeting", "note", "BRANCH-1", "--file", "-"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("note: %v", err)
	}

	var view client.SessionView
	mustDecode(t, mustRun(t, url, "--json", "meeting", "show-session"), &view)
	if got := view.Session.Notes["BRANCH-1"]; got != "<p>from stdin</p>" {
		t.Errorf("note = %q", got)
	}

	if _, err := run(t, url, "meeting", "note", "BRANCH-1", "inline", "--file", "x.html"); err == nil {
		t.Error("argument and --file together should be rejected")
	}
}

func TestMeetingCancel(t *testing.T) {
	url := newTestServer(t)
	mustRun(t, url, "meeting", "start")
	out := mustRun(t, url, "meeting", "cancel")
	if !strings.Contains(out, "discarded") {
		t.Errorf("cancel output = %q", out)
	}
	if _, err := run(t, url, "meeting", "finish"); err == nil {
		t.Error("finish after cancel should fail")
	}
}

func TestExportWritesWorkbook(t *testing.T) {
	url := newTestServer(t)
	createIssue(t, url, "Broken scale", "BRANCH-1")
	mustRun(t, url, "meeting", "start")
	mustRun(t, url, "meeting", "finish")

	dir := t.TempDir()
	out := mustRun(t, url, "export", "--start", "2025-05-01", "--end", "2025-05-31", "-o", dir)
	if !strings.Contains(out, "(1 meetings)") {
		t.Errorf("export output = %q", out)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".xlsx" {
		t.Fatalf("export dir = %v", entries)
	}

	if _, err := run(t, url, "export", "--start", "2025-05-31", "--end", "2025-05-01", "-o", dir); err == nil {
		t.Error("reversed range should be rejected")
	}
}

func TestStatsAndHealth(t *testing.T) {
	url := newTestServer(t)
	createIssue(t, url, "Broken scale", "BRANCH-1", "-p", "LOW")

	out := mustRun(t, url, "stats")
	for _, want := range []string{"Unresolved by branch", "FHC Bali", "LOW", "2025-05"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %q:\n%s", want, out)
		}
	}

	health := mustRun(t, url, "health")
	if !strings.Contains(health, "Health:   ok") || !strings.Contains(health, "idle") {
		t.Errorf("health output:\n%s", health)
	}
}

func TestEventsList(t *testing.T) {
	url := newTestServer(t)
	issue := createIssue(t, url, "Broken scale", "BRANCH-1")
	out := mustRun(t, url, "events", "list", issue.ID)
	if !strings.Contains(out, events.TopicIssueCreated) || !strings.Contains(out, "tester") {
		t.Errorf("events list:\n%s", out)
	}
}

type fakeSubscriber struct {
	ch      chan events.Message
	pattern string
}

func (f *fakeSubscriber) Subscribe(pattern string) (<-chan events.Message, func(), error) {
	f.pattern = pattern
	return f.ch, func() {}, nil
}

func (f *fakeSubscriber) Close() error { return nil }

func TestWatchEvents(t *testing.T) {
	sub := &fakeSubscriber{ch: make(chan events.Message, 2)}
	sub.ch <- events.Message{Topic: events.TopicIssueCreated, Data: []byte(`{"issue":{"id":"ISSUE-1"}}`)}
	sub.ch <- events.Message{Topic: events.TopicMeetingCancelled, Data: []byte(`{}`)}
	close(sub.ch)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })
	if err := watchEvents(t.Context(), cmd, sub, events.TopicAll); err != nil {
		t.Fatal(err)
	}
	if sub.pattern != events.TopicAll {
		t.Errorf("subscribed to %q", sub.pattern)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), out.String())
	}
	var first struct {
		Topic string          `json:"topic"`
		Event json.RawMessage `json:"event"`
	}
	mustDecode(t, lines[0], &first)
	if first.Topic != events.TopicIssueCreated || string(first.Event) != `{"issue":{"id":"ISSUE-1"}}` {
		t.Errorf("first line = %+v", first)
	}
	if !strings.Contains(lines[1], events.TopicMeetingCancelled) {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestEventsWatch_RequiresNATSURL(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RP_NATS_URL", "")
	if _, err := run(t, "http://unused", "events", "watch"); err == nil {
		t.Fatal("expected an error without a NATS URL")
	}
}

func TestProfileCommands(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	mustRun(t, "http://unused", "profile", "add", "clinic", "https://clinic.example.com", "--token", "tok_1234567890")
	mustRun(t, "http://unused", "profile", "add", "local", "http://localhost:8080")

	list := mustRun(t, "http://unused", "profile", "list")
	if !strings.Contains(list, "* clinic") || !strings.Contains(list, "  local") {
		t.Errorf("first profile should be active:\n%s", list)
	}

	mustRun(t, "http://unused", "profile", "use", "local")
	show := mustRun(t, "http://unused", "profile", "show", "clinic")
	if !strings.Contains(show, "tok_1234**") || strings.Contains(show, "tok_1234567890") {
		t.Errorf("token should be masked:\n%s", show)
	}
	if strings.Contains(show, "(active)") {
		t.Errorf("clinic should no longer be active:\n%s", show)
	}

	mustRun(t, "http://unused", "profile", "rm", "local")
	if _, err := run(t, "http://unused", "profile", "show"); err == nil {
		t.Error("show with no active profile should fail")
	}
	if _, err := run(t, "http://unused", "profile", "use", "missing"); err == nil {
		t.Error("use of an unknown profile should fail")
	}
}
