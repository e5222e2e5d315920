package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/models"
	"github.com/Fantasim/paysync/internal/validate"
)

// TrackerConfig holds the tracker's cadence and limits.
type TrackerConfig struct {
	PollInterval  time.Duration
	RetryInterval time.Duration
	MaxSessions   int
	RedirectURL   string
}

type tracked struct {
	session *Session
	cancel  context.CancelFunc
}

// Tracker runs one Session per invoice on the server side and publishes
// their events to a Hub. Finished sessions stay readable for
// config.FinishedSessionRetention.
type Tracker struct {
	source StatusSource
	hub    *Hub
	cfg    TrackerConfig

	mu       sync.Mutex
	sessions map[string]*tracked
	wg       sync.WaitGroup
	stopped  bool
}

// NewTracker creates a tracker reading from source. hub may be nil.
func NewTracker(source StatusSource, hub *Hub, cfg TrackerConfig) *Tracker {
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = config.DefaultMaxSessions
	}

	slog.Info("tracker initialized",
		"maxSessions", cfg.MaxSessions,
		"pollInterval", cfg.PollInterval,
		"retryInterval", cfg.RetryInterval,
	)

	return &Tracker{
		source:   source,
		hub:      hub,
		cfg:      cfg,
		sessions: make(map[string]*tracked),
	}
}

// Track starts polling seed.InvoiceID. An invoice that is still being polled
// cannot be tracked twice; a finished one is replaced.
func (t *Tracker) Track(seed models.Seed) (Update, error) {
	id, err := validate.InvoiceID(seed.InvoiceID)
	if err != nil {
		return Update{}, err
	}
	seed.InvoiceID = id

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return Update{}, fmt.Errorf("tracker stopped: %w", context.Canceled)
	}

	t.pruneLocked(time.Now())

	if existing, ok := t.sessions[id]; ok && !isDone(existing.session) {
		return Update{}, fmt.Errorf("%w: %s", config.ErrAlreadyTracking, id)
	}
	if active := t.activeLocked(); active >= t.cfg.MaxSessions {
		return Update{}, fmt.Errorf("%w: limit is %d", config.ErrMaxSessions, t.cfg.MaxSessions)
	}

	session := NewSession(seed, Options{
		Source:        t.source,
		Redirector:    RedirectFunc(t.logRedirect),
		RedirectURL:   t.cfg.RedirectURL,
		PollInterval:  t.cfg.PollInterval,
		RetryInterval: t.cfg.RetryInterval,
		OnEvent:       t.publish,
	})
	cancel := session.Start(context.Background())
	t.sessions[id] = &tracked{session: session, cancel: cancel}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		<-session.Done()
	}()

	slog.Info("invoice tracking started",
		"invoiceId", id,
		"activeSessions", t.activeLocked(),
	)
	return session.Snapshot(), nil
}

// Cancel stops polling an invoice and forgets it.
func (t *Tracker) Cancel(invoiceID string) error {
	t.mu.Lock()
	tr, ok := t.sessions[invoiceID]
	if ok {
		delete(t.sessions, invoiceID)
	}
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", config.ErrSessionNotFound, invoiceID)
	}
	tr.cancel()
	slog.Info("invoice tracking cancelled", "invoiceId", invoiceID)
	return nil
}

// Get returns the current state of a tracked invoice.
func (t *Tracker) Get(invoiceID string) (Update, error) {
	t.mu.Lock()
	tr, ok := t.sessions[invoiceID]
	t.mu.Unlock()

	if !ok {
		return Update{}, fmt.Errorf("%w: %s", config.ErrSessionNotFound, invoiceID)
	}
	return tr.session.Snapshot(), nil
}

// List returns every tracked invoice ordered by id.
func (t *Tracker) List() []Update {
	t.mu.Lock()
	sessions := make([]*Session, 0, len(t.sessions))
	for _, tr := range t.sessions {
		sessions = append(sessions, tr.session)
	}
	t.mu.Unlock()

	out := make([]Update, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceID < out[j].InvoiceID })
	return out
}

// ActiveCount returns the number of sessions still polling.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked()
}

// MaxSessions returns the active session limit.
func (t *Tracker) MaxSessions() int {
	return t.cfg.MaxSessions
}

// Stop cancels every session and waits up to config.TrackerShutdownWindow
// for their goroutines to exit. In-flight fetches are allowed to finish.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	slog.Info("tracker stopping", "activeSessions", t.activeLocked())
	for _, tr := range t.sessions {
		tr.cancel()
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("tracker stopped cleanly")
	case <-time.After(config.TrackerShutdownWindow):
		slog.Warn("tracker shutdown timed out, some sessions may still be finishing a fetch",
			"timeout", config.TrackerShutdownWindow,
		)
	}
}

func (t *Tracker) activeLocked() int {
	n := 0
	for _, tr := range t.sessions {
		if !isDone(tr.session) {
			n++
		}
	}
	return n
}

// pruneLocked drops finished sessions past their retention.
func (t *Tracker) pruneLocked(now time.Time) {
	for id, tr := range t.sessions {
		if !isDone(tr.session) {
			continue
		}
		if now.Sub(tr.session.Snapshot().UpdatedAt) > config.FinishedSessionRetention {
			delete(t.sessions, id)
			slog.Debug("finished session pruned", "invoiceId", id)
		}
	}
}

func (t *Tracker) publish(eventType string, u Update) {
	if t.hub == nil {
		return
	}
	t.hub.Broadcast(Event{Type: eventType, Data: u})
}

// logRedirect is the server-side redirect: there is no browser to move, so
// the target is recorded on the session and announced to subscribers.
func (t *Tracker) logRedirect(view models.InvoiceView, target string) {
	slog.Info("confirmed invoice ready for redirect",
		"invoiceId", view.InvoiceID,
		"target", target,
	)
}

func isDone(s *Session) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}
