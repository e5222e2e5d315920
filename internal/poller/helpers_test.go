package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Fantasim/paysync/internal/models"
)

// step is one scripted source reply.
type step struct {
	snap models.Snapshot
	err  error
}

func ok(snap models.Snapshot) step { return step{snap: snap} }
func fail(msg string) step         { return step{err: errors.New(msg)} }

// scriptedSource replays steps in order and counts calls. Once the script
// runs out it keeps answering with an error.
type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func newScriptedSource(steps ...step) *scriptedSource {
	return &scriptedSource{steps: steps}
}

func (s *scriptedSource) FetchStatus(_ context.Context, _ string) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.steps) == 0 {
		return nil, errors.New("script exhausted")
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.snap, st.err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// blockingSource parks every fetch until release is closed, then answers
// with snap. started receives the invoice id of each fetch as it begins.
type blockingSource struct {
	started chan string
	release chan struct{}
	snap    models.Snapshot

	mu      sync.Mutex
	ctxErrs []error
}

func newBlockingSource(snap models.Snapshot) *blockingSource {
	return &blockingSource{
		started: make(chan string, 16),
		release: make(chan struct{}),
		snap:    snap,
	}
}

func (s *blockingSource) FetchStatus(ctx context.Context, invoiceID string) (models.Snapshot, error) {
	s.started <- invoiceID
	<-s.release
	s.mu.Lock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.mu.Unlock()
	return s.snap, nil
}

// eventLog records session events in order.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(eventType string, u Update) {
	l.mu.Lock()
	l.events = append(l.events, Event{Type: eventType, Data: u})
	l.mu.Unlock()
}

func (l *eventLog) Types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func (l *eventLog) All() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func fastOptions(src StatusSource) Options {
	return Options{
		Source:        src,
		PollInterval:  time.Millisecond,
		RetryInterval: 2 * time.Millisecond,
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session for %s did not finish, state %s", s.seed.InvoiceID, s.Snapshot().State)
	}
}
