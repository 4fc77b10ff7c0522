// Package server exposes the clinic tracker over HTTP/JSON. A single meeting
// controller is shared by every client and guarded by one mutex.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/events"
	"github.com/alfredjeanlab/reg2progress/internal/export"
	"github.com/alfredjeanlab/reg2progress/internal/issues"
	"github.com/alfredjeanlab/reg2progress/internal/meeting"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/store"
	snapshot "github.com/alfredjeanlab/reg2progress/internal/sync"
)

// SnapshotStatus reports the outcome of the latest backup snapshot.
type SnapshotStatus interface {
	Last() *snapshot.Result
}

// ClinicServer serves the HTTP API over a store.
type ClinicServer struct {
	store     store.Store
	publisher events.Publisher
	issues    *issues.Service
	hub       *streamHub
	xlsx      export.Writer
	loc       *time.Location
	now       func() time.Time
	attendees []string
	snapshots SnapshotStatus

	// mu serialises every access to meeting.
	mu      sync.Mutex
	meeting *meeting.Controller
}

// Option configures a ClinicServer.
type Option func(*ClinicServer)

// WithLocation sets the time zone used for export date bounds and report
// dates. The default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *ClinicServer) { s.loc = loc }
}

// WithClock replaces time.Now for issue, meeting and dashboard timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ClinicServer) { s.now = now }
}

// WithAttendees sets the predefined attendee list offered to clients.
func WithAttendees(names []string) Option {
	return func(s *ClinicServer) { s.attendees = names }
}

// WithSnapshots reports the snapshot scheduler's last result on /v1/health.
func WithSnapshots(st SnapshotStatus) Option {
	return func(s *ClinicServer) { s.snapshots = st }
}

// New returns a server backed by st that publishes events to p.
func New(st store.Store, p events.Publisher, opts ...Option) *ClinicServer {
	s := &ClinicServer{
		store:     st,
		publisher: p,
		hub:       newStreamHub(),
		xlsx:      export.XLSXWriter{},
		loc:       time.Local,
		now:       time.Now,
		attendees: model.DefaultAttendees,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.issues = issues.New(st, s.now)
	s.meeting = meeting.NewController(st, s.issues, meeting.WithClock(s.now))
	return s
}

// recordAndPublish stores an event, publishes it on the bus and fans it out
// to stream clients. Failures are logged and never returned.
func (s *ClinicServer) recordAndPublish(ctx context.Context, topic, subjectID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event", "topic", topic, "subject_id", subjectID, "error", err)
		return
	}
	if err := s.store.RecordEvent(ctx, &model.Event{
		Topic:     topic,
		SubjectID: subjectID,
		Actor:     actorFromContext(ctx),
		Payload:   payload,
	}); err != nil {
		slog.Warn("failed to record event", "topic", topic, "subject_id", subjectID, "error", err)
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "subject_id", subjectID, "error", err)
	}
	s.hub.broadcast(topic, payload)
}

// inputError indicates invalid user input and maps to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

type actorKey struct{}

// actorFromContext returns the actor set by the X-Actor header, if any.
func actorFromContext(ctx context.Context) string {
	a, _ := ctx.Value(actorKey{}).(string)
	return a
}
