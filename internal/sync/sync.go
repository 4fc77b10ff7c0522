// Package sync periodically writes a JSONL snapshot of the clinic tracker
// to one or more backup destinations.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/reg2progress/internal/store"
)

// Destination is a place snapshots are written to.
type Destination interface {
	// Name identifies the destination in logs and results.
	Name() string
	// Write stores the JSONL payload, replacing any previous snapshot.
	Write(ctx context.Context, data []byte) error
}

// Result describes one snapshot run.
type Result struct {
	At     time.Time         `json:"at"`
	Bytes  int               `json:"bytes"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Scheduler exports the store on a fixed interval.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	mu   sync.Mutex
	last *Result

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler returns a scheduler for the given destinations. It does
// nothing until Start is called.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start runs one snapshot immediately and then one per interval until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop cancels the loop and waits for an in-flight snapshot.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Last returns the most recent result, or nil before the first run.
func (s *Scheduler) Last() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

func (s *Scheduler) loop(ctx context.Context) {
	s.logResult(s.RunOnce(ctx))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logResult(s.RunOnce(ctx))
		}
	}
}

func (s *Scheduler) logResult(err error) {
	if err != nil {
		s.logger.Error("snapshot failed", "err", err)
	}
}

// RunOnce exports the store and writes it to every destination. A failing
// destination does not stop the others; their errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	data := buf.Bytes()

	res := &Result{At: time.Now().UTC(), Bytes: len(data)}
	var errs []error
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			if res.Failed == nil {
				res.Failed = make(map[string]string)
			}
			res.Failed[dest.Name()] = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
		}
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()

	s.logger.Info("snapshot written",
		"destinations", len(s.destinations),
		"failed", len(res.Failed),
		"bytes", res.Bytes)
	return errors.Join(errs...)
}
