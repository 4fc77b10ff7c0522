// Package memory implements store.Store in process memory. It backs the
// server when no database URL is configured and is the fixture for tests
// of the packages above the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/store"
)

// Store keeps every entity in maps guarded by a single RWMutex. Values
// handed in or out are cloned so callers never share state with the store.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

type state struct {
	branches  map[string]*model.Branch
	branchSeq []string
	issues    map[string]*model.Issue
	meetings  map[string]*model.Meeting
	events    []*model.Event
	nextEvent int64
}

func newState() *state {
	return &state{
		branches: make(map[string]*model.Branch),
		issues:   make(map[string]*model.Issue),
		meetings: make(map[string]*model.Meeting),
	}
}

func (st *state) clone() *state {
	c := newState()
	for id, b := range st.branches {
		cb := *b
		c.branches[id] = &cb
	}
	c.branchSeq = append([]string(nil), st.branchSeq...)
	for id, i := range st.issues {
		c.issues[id] = i.Clone()
	}
	for id, m := range st.meetings {
		c.meetings[id] = m.Clone()
	}
	c.events = append([]*model.Event(nil), st.events...)
	c.nextEvent = st.nextEvent
	return c
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// RunInTransaction runs fn against the store while holding the write lock.
// If fn returns an error every change it made is rolled back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	tx := &txStore{state: s.state}
	if err := fn(tx); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) CreateBranch(ctx context.Context, branch *model.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createBranch(branch)
}

func (s *Store) GetBranch(ctx context.Context, id string) (*model.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getBranch(id)
}

func (s *Store) ListBranches(ctx context.Context) ([]*model.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listBranches(), nil
}

func (s *Store) CreateIssue(ctx context.Context, issue *model.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createIssue(issue)
}

func (s *Store) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getIssue(id)
}

func (s *Store) ListIssues(ctx context.Context, filter model.IssueFilter) ([]*model.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listIssues(filter), nil
}

func (s *Store) UpdateIssue(ctx context.Context, issue *model.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateIssue(issue)
}

func (s *Store) AddUpdateLog(ctx context.Context, log *model.UpdateLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.addUpdateLog(log)
}

func (s *Store) EditUpdateLog(ctx context.Context, issueID, logID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.editUpdateLog(issueID, logID, text)
}

func (s *Store) DeleteUpdateLog(ctx context.Context, issueID, logID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.deleteUpdateLog(issueID, logID)
}

func (s *Store) CreateMeeting(ctx context.Context, meeting *model.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createMeeting(meeting)
}

func (s *Store) GetMeeting(ctx context.Context, id string) (*model.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getMeeting(id)
}

func (s *Store) ListMeetings(ctx context.Context) ([]*model.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listMeetings(), nil
}

func (s *Store) UpdateMeeting(ctx context.Context, id string, notes map[string]string, attendees string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateMeeting(id, notes, attendees)
}

func (s *Store) RecordEvent(ctx context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.recordEvent(event)
	return nil
}

func (s *Store) GetEvents(ctx context.Context, subjectID string) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getEvents(subjectID), nil
}

// txStore runs the same operations on state the caller already holds the
// lock for.
type txStore struct {
	state *state
}

var _ store.Store = (*txStore)(nil)

func (t *txStore) Close() error { return nil }

func (t *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *txStore) CreateBranch(ctx context.Context, branch *model.Branch) error {
	return t.state.createBranch(branch)
}

func (t *txStore) GetBranch(ctx context.Context, id string) (*model.Branch, error) {
	return t.state.getBranch(id)
}

func (t *txStore) ListBranches(ctx context.Context) ([]*model.Branch, error) {
	return t.state.listBranches(), nil
}

func (t *txStore) CreateIssue(ctx context.Context, issue *model.Issue) error {
	return t.state.createIssue(issue)
}

func (t *txStore) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	return t.state.getIssue(id)
}

func (t *txStore) ListIssues(ctx context.Context, filter model.IssueFilter) ([]*model.Issue, error) {
	return t.state.listIssues(filter), nil
}

func (t *txStore) UpdateIssue(ctx context.Context, issue *model.Issue) error {
	return t.state.updateIssue(issue)
}

func (t *txStore) AddUpdateLog(ctx context.Context, log *model.UpdateLog) error {
	return t.state.addUpdateLog(log)
}

func (t *txStore) EditUpdateLog(ctx context.Context, issueID, logID, text string) error {
	return t.state.editUpdateLog(issueID, logID, text)
}

func (t *txStore) DeleteUpdateLog(ctx context.Context, issueID, logID string) error {
	return t.state.deleteUpdateLog(issueID, logID)
}

func (t *txStore) CreateMeeting(ctx context.Context, meeting *model.Meeting) error {
	return t.state.createMeeting(meeting)
}

func (t *txStore) GetMeeting(ctx context.Context, id string) (*model.Meeting, error) {
	return t.state.getMeeting(id)
}

func (t *txStore) ListMeetings(ctx context.Context) ([]*model.Meeting, error) {
	return t.state.listMeetings(), nil
}

func (t *txStore) UpdateMeeting(ctx context.Context, id string, notes map[string]string, attendees string) error {
	return t.state.updateMeeting(id, notes, attendees)
}

func (t *txStore) RecordEvent(ctx context.Context, event *model.Event) error {
	t.state.recordEvent(event)
	return nil
}

func (t *txStore) GetEvents(ctx context.Context, subjectID string) ([]*model.Event, error) {
	return t.state.getEvents(subjectID), nil
}

// --- state operations; callers hold the lock ---

func (st *state) createBranch(b *model.Branch) error {
	if _, ok := st.branches[b.ID]; ok {
		return fmt.Errorf("branch %q already exists", b.ID)
	}
	cb := *b
	st.branches[b.ID] = &cb
	st.branchSeq = append(st.branchSeq, b.ID)
	return nil
}

func (st *state) getBranch(id string) (*model.Branch, error) {
	b, ok := st.branches[id]
	if !ok {
		return nil, fmt.Errorf("branch %q: %w", id, store.ErrNotFound)
	}
	cb := *b
	return &cb, nil
}

func (st *state) listBranches() []*model.Branch {
	out := make([]*model.Branch, 0, len(st.branchSeq))
	for _, id := range st.branchSeq {
		cb := *st.branches[id]
		out = append(out, &cb)
	}
	return out
}

func (st *state) createIssue(issue *model.Issue) error {
	if _, ok := st.issues[issue.ID]; ok {
		return fmt.Errorf("issue %q already exists", issue.ID)
	}
	st.issues[issue.ID] = issue.Clone()
	return nil
}

func (st *state) getIssue(id string) (*model.Issue, error) {
	i, ok := st.issues[id]
	if !ok {
		return nil, fmt.Errorf("issue %q: %w", id, store.ErrNotFound)
	}
	return i.Clone(), nil
}

func (st *state) listIssues(filter model.IssueFilter) []*model.Issue {
	needle := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]*model.Issue, 0, len(st.issues))
	for _, i := range st.issues {
		if !filter.Matches(i) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(i.Title), needle) &&
			!strings.Contains(strings.ToLower(i.Description), needle) {
			continue
		}
		out = append(out, i.Clone())
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out
}

// updateIssue replaces the scalar fields of an issue. Log entries are only
// changed through the log operations.
func (st *state) updateIssue(issue *model.Issue) error {
	cur, ok := st.issues[issue.ID]
	if !ok {
		return fmt.Errorf("issue %q: %w", issue.ID, store.ErrNotFound)
	}
	updated := issue.Clone()
	updated.Updates = cur.Updates
	st.issues[issue.ID] = updated
	return nil
}

func (st *state) addUpdateLog(log *model.UpdateLog) error {
	i, ok := st.issues[log.IssueID]
	if !ok {
		return fmt.Errorf("issue %q: %w", log.IssueID, store.ErrNotFound)
	}
	cl := *log
	i.Updates = append(i.Updates, &cl)
	return nil
}

func (st *state) editUpdateLog(issueID, logID, text string) error {
	i, ok := st.issues[issueID]
	if !ok {
		return fmt.Errorf("issue %q: %w", issueID, store.ErrNotFound)
	}
	for _, u := range i.Updates {
		if u.ID == logID {
			u.Text = text
			return nil
		}
	}
	return fmt.Errorf("log %q: %w", logID, store.ErrNotFound)
}

func (st *state) deleteUpdateLog(issueID, logID string) error {
	i, ok := st.issues[issueID]
	if !ok {
		return fmt.Errorf("issue %q: %w", issueID, store.ErrNotFound)
	}
	for n, u := range i.Updates {
		if u.ID == logID {
			i.Updates = append(i.Updates[:n:n], i.Updates[n+1:]...)
			return nil
		}
	}
	return fmt.Errorf("log %q: %w", logID, store.ErrNotFound)
}

func (st *state) createMeeting(m *model.Meeting) error {
	if _, ok := st.meetings[m.ID]; ok {
		return fmt.Errorf("meeting %q already exists", m.ID)
	}
	st.meetings[m.ID] = m.Clone()
	return nil
}

func (st *state) getMeeting(id string) (*model.Meeting, error) {
	m, ok := st.meetings[id]
	if !ok {
		return nil, fmt.Errorf("meeting %q: %w", id, store.ErrNotFound)
	}
	return m.Clone(), nil
}

func (st *state) listMeetings() []*model.Meeting {
	out := make([]*model.Meeting, 0, len(st.meetings))
	for _, m := range st.meetings {
		out = append(out, m.Clone())
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Date.Equal(out[b].Date) {
			return out[a].ID > out[b].ID
		}
		return out[a].Date.After(out[b].Date)
	})
	return out
}

// updateMeeting replaces notes and attendees. Date and the discussed list are
// fixed once the meeting exists.
func (st *state) updateMeeting(id string, notes map[string]string, attendees string) error {
	m, ok := st.meetings[id]
	if !ok {
		return fmt.Errorf("meeting %q: %w", id, store.ErrNotFound)
	}
	m.Notes = make(map[string]string, len(notes))
	for k, v := range notes {
		m.Notes[k] = v
	}
	m.Attendees = attendees
	return nil
}

func (st *state) recordEvent(e *model.Event) {
	st.nextEvent++
	ce := *e
	ce.ID = st.nextEvent
	if ce.CreatedAt.IsZero() {
		ce.CreatedAt = time.Now().UTC()
	}
	e.ID = ce.ID
	e.CreatedAt = ce.CreatedAt
	st.events = append(st.events, &ce)
}

func (st *state) getEvents(subjectID string) []*model.Event {
	var out []*model.Event
	for _, e := range st.events {
		if e.SubjectID == subjectID {
			ce := *e
			out = append(out, &ce)
		}
	}
	return out
}
