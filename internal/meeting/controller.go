// Package meeting holds the meeting lifecycle controller and the pure
// functions over meetings: grouping discussed issues by branch, history
// search and attendee joining.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/idgen"
	"github.com/alfredjeanlab/reg2progress/internal/issues"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/notes"
	"github.com/alfredjeanlab/reg2progress/internal/store"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateActive  State = "active"
	StateEditing State = "editing"
)

var (
	// ErrNoMeeting is returned when an operation needs an open meeting and
	// the controller is idle.
	ErrNoMeeting = errors.New("no meeting in progress")
	// ErrMeetingOpen is returned by Start and Edit while a meeting is open.
	ErrMeetingOpen = errors.New("a meeting is already in progress")
	// ErrAddIssueDisabled is returned by AddIssue while editing a past meeting.
	ErrAddIssueDisabled = errors.New("issues can only be added during a new meeting")
	// ErrNotActive is returned by Finish while a saved meeting is being edited.
	ErrNotActive = errors.New("no new meeting in progress")
	// ErrNotEditing is returned by Save while a new meeting is in progress.
	ErrNotEditing = errors.New("no saved meeting being edited")
)

// IssueCreator creates issues on behalf of the controller.
type IssueCreator interface {
	Create(ctx context.Context, in issues.CreateInput) (*model.Issue, error)
}

// Session is a copy of the controller's transient state.
type Session struct {
	State             State             `json:"state"`
	MeetingID         string            `json:"meeting_id,omitempty"`
	Date              time.Time         `json:"date,omitzero"`
	Attendees         string            `json:"attendees"`
	Notes             map[string]string `json:"notes"`
	DiscussedIssueIDs []string          `json:"discussed_issue_ids"`
}

// Controller drives a meeting from start (or edit) to finish (or save) or
// cancel. It is not safe for concurrent use; callers serialise access.
type Controller struct {
	store   store.Store
	creator IssueCreator
	now     func() time.Time

	state     State
	meetingID string
	date      time.Time
	attendees string
	notes     map[string]string
	discussed []string
	saved     map[string]bool // branches with a note when editing began
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController returns an idle controller over s. New issues raised during
// a meeting are created through creator.
func NewController(s store.Store, creator IssueCreator, opts ...Option) *Controller {
	c := &Controller{
		store:   s,
		creator: creator,
		now:     time.Now,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.state }

// Session returns a copy of the transient meeting state.
func (c *Controller) Session() Session {
	s := Session{
		State:             c.state,
		MeetingID:         c.meetingID,
		Date:              c.date,
		Attendees:         c.attendees,
		Notes:             make(map[string]string, len(c.notes)),
		DiscussedIssueIDs: append([]string{}, c.discussed...),
	}
	for k, v := range c.notes {
		s.Notes[k] = v
	}
	return s
}

// Start opens a new meeting. Every issue that is not resolved at this
// instant is captured as the discussed list, and every branch gets a blank
// note.
func (c *Controller) Start(ctx context.Context) (Session, error) {
	if c.state != StateIdle {
		return Session{}, ErrMeetingOpen
	}

	unresolved, err := c.store.ListIssues(ctx, model.IssueFilter{
		Status: []model.Status{model.StatusOpen, model.StatusInProgress},
	})
	if err != nil {
		return Session{}, fmt.Errorf("list unresolved issues: %w", err)
	}
	branches, err := c.store.ListBranches(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("list branches: %w", err)
	}

	c.discussed = make([]string, len(unresolved))
	for i, issue := range unresolved {
		c.discussed[i] = issue.ID
	}
	c.notes = make(map[string]string, len(branches))
	for _, b := range branches {
		c.notes[b.ID] = notes.BlankList
	}
	c.state = StateActive
	c.meetingID = ""
	c.date = c.now().UTC()
	c.attendees = ""
	return c.Session(), nil
}

// Edit opens a saved meeting for revision. Its discussed list is kept as it
// was saved.
func (c *Controller) Edit(ctx context.Context, meetingID string) (Session, error) {
	if c.state != StateIdle {
		return Session{}, ErrMeetingOpen
	}
	m, err := c.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return Session{}, err
	}

	c.state = StateEditing
	c.meetingID = m.ID
	c.date = m.Date
	c.attendees = m.Attendees
	c.notes = make(map[string]string, len(m.Notes))
	for id, markup := range m.Notes {
		c.notes[id] = markup
	}
	c.saved = make(map[string]bool, len(m.Notes))
	for id := range m.Notes {
		c.saved[id] = true
	}
	c.discussed = append([]string(nil), m.DiscussedIssueIDs...)
	return c.Session(), nil
}

// SetNote replaces the transient note markup for a branch.
func (c *Controller) SetNote(ctx context.Context, branchID, markup string) error {
	if c.state == StateIdle {
		return ErrNoMeeting
	}
	if _, err := c.store.GetBranch(ctx, branchID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Invalid("branch_id", fmt.Sprintf("unknown branch %q", branchID))
		}
		return err
	}
	c.notes[branchID] = markup
	return nil
}

// SetAttendees replaces the transient attendee string.
func (c *Controller) SetAttendees(attendees string) error {
	if c.state == StateIdle {
		return ErrNoMeeting
	}
	c.attendees = attendees
	return nil
}

// AddIssue creates an issue raised during an active meeting and appends it
// to the meeting's discussed list.
func (c *Controller) AddIssue(ctx context.Context, in issues.CreateInput) (*model.Issue, error) {
	switch c.state {
	case StateIdle:
		return nil, ErrNoMeeting
	case StateEditing:
		return nil, ErrAddIssueDisabled
	}
	issue, err := c.creator.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	c.discussed = append(c.discussed, issue.ID)
	return issue, nil
}

// Finish commits the active meeting with sanitized notes and returns to idle.
func (c *Controller) Finish(ctx context.Context) (*model.Meeting, error) {
	switch c.state {
	case StateIdle:
		return nil, ErrNoMeeting
	case StateEditing:
		return nil, ErrNotActive
	}
	id, err := idgen.Meeting()
	if err != nil {
		return nil, fmt.Errorf("generate meeting id: %w", err)
	}
	m := &model.Meeting{
		ID:                id,
		Date:              c.date,
		Attendees:         c.attendees,
		Notes:             notes.Clean(c.notes),
		DiscussedIssueIDs: append([]string{}, c.discussed...),
	}
	if err := c.store.CreateMeeting(ctx, m); err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}
	c.reset()
	return m, nil
}

// Save writes the revised notes and attendees of the meeting being edited
// and returns to idle. The meeting's id, date and discussed list are kept.
func (c *Controller) Save(ctx context.Context) (*model.Meeting, error) {
	switch c.state {
	case StateIdle:
		return nil, ErrNoMeeting
	case StateActive:
		return nil, ErrNotEditing
	}
	cleaned := notes.Clean(c.notes)
	if err := c.store.UpdateMeeting(ctx, c.meetingID, cleaned, c.attendees); err != nil {
		return nil, fmt.Errorf("update meeting: %w", err)
	}
	m, err := c.store.GetMeeting(ctx, c.meetingID)
	if err != nil {
		return nil, err
	}
	c.reset()
	return m, nil
}

// Cancel discards the transient state without touching the store.
func (c *Controller) Cancel() error {
	if c.state == StateIdle {
		return ErrNoMeeting
	}
	c.reset()
	return nil
}

// BranchesForView returns the branches shown for the open meeting, sorted
// by name. A new meeting shows every branch; an edited one only those with a
// saved note or at least one discussed issue.
func (c *Controller) BranchesForView(ctx context.Context) ([]*model.Branch, error) {
	if c.state == StateIdle {
		return nil, ErrNoMeeting
	}
	branches, err := c.store.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	if c.state == StateEditing {
		relevant := make(map[string]bool)
		for id := range c.saved {
			relevant[id] = true
		}
		if len(c.discussed) > 0 {
			discussed, err := c.store.ListIssues(ctx, model.IssueFilter{IDs: c.discussed})
			if err != nil {
				return nil, fmt.Errorf("list discussed issues: %w", err)
			}
			for _, issue := range discussed {
				relevant[issue.BranchID] = true
			}
		}
		kept := branches[:0]
		for _, b := range branches {
			if relevant[b.ID] {
				kept = append(kept, b)
			}
		}
		branches = kept
	}

	SortBranches(branches)
	return branches, nil
}

// SortBranches orders branches by name, then id.
func SortBranches(branches []*model.Branch) {
	sort.SliceStable(branches, func(a, b int) bool {
		na, nb := strings.ToLower(branches[a].Name), strings.ToLower(branches[b].Name)
		if na != nb {
			return na < nb
		}
		return branches[a].ID < branches[b].ID
	})
}

func (c *Controller) reset() {
	c.state = StateIdle
	c.meetingID = ""
	c.date = time.Time{}
	c.attendees = ""
	c.notes = nil
	c.discussed = nil
	c.saved = nil
}
