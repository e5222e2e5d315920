// Package poller keeps a client-side invoice view in step with the Core.
//
// A Session polls one invoice: the first tick runs immediately, successful
// ticks are spaced by the poll interval and failed ones by the retry
// interval. Polling stops for good once the view reaches a terminal status
// or its expiresAt deadline passes locally. A confirmed invoice triggers the
// redirect side effect exactly once.
//
// Every session owns its view; sessions share nothing but the source.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/models"
	"github.com/Fantasim/paysync/internal/reconcile"
)

// Update is a point-in-time copy of a session.
type Update struct {
	InvoiceID   string             `json:"invoiceId"`
	State       string             `json:"state"`
	View        models.InvoiceView `json:"invoice"`
	Error       string             `json:"error,omitempty"`
	Ticks       int                `json:"ticks"`
	Redirected  bool               `json:"redirected"`
	RedirectURL string             `json:"redirectUrl,omitempty"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Redirector performs the one-time side effect for a confirmed invoice.
type Redirector interface {
	Redirect(view models.InvoiceView, target string)
}

// RedirectFunc adapts a plain function to Redirector.
type RedirectFunc func(view models.InvoiceView, target string)

func (f RedirectFunc) Redirect(view models.InvoiceView, target string) {
	f(view, target)
}

// Options configure a Session. Source is required.
type Options struct {
	Source        StatusSource
	Redirector    Redirector
	RedirectURL   string // used when the seed has none
	PollInterval  time.Duration
	RetryInterval time.Duration

	// OnEvent, when set, is called from the session goroutine after every
	// state change with one of the config.EventInvoice* types.
	OnEvent func(eventType string, u Update)

	now func() time.Time
}

// Session is the polling state machine for one invoice: idle, polling,
// then terminal or cancelled.
type Session struct {
	seed models.Seed
	opts Options
	done chan struct{}

	mu         sync.Mutex
	state      string
	view       models.InvoiceView
	lastErr    string
	ticks      int
	redirected bool
	updatedAt  time.Time
}

// NewSession returns an idle session seeded with what the storefront
// already knows about the invoice.
func NewSession(seed models.Seed, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = config.PollInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = config.PollRetryInterval
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if seed.RedirectURL == "" {
		seed.RedirectURL = opts.RedirectURL
	}

	return &Session{
		seed:      seed,
		opts:      opts,
		done:      make(chan struct{}),
		state:     config.SessionIdle,
		view:      reconcile.FromSeed(seed),
		updatedAt: opts.now(),
	}
}

// Start polls invoice seed.InvoiceID until it is terminal or the returned
// cancel func is called.
func Start(ctx context.Context, seed models.Seed, opts Options) (*Session, context.CancelFunc) {
	s := NewSession(seed, opts)
	return s, s.Start(ctx)
}

// Start moves an idle session to polling and runs the first tick
// immediately. A session with no invoice id, or one already started, stays
// as it is and the returned cancel func is a no-op.
func (s *Session) Start(ctx context.Context) context.CancelFunc {
	s.mu.Lock()
	if s.state != config.SessionIdle || s.seed.InvoiceID == "" {
		s.mu.Unlock()
		return func() {}
	}
	s.state = config.SessionPolling
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	go s.run(ctx)

	slog.Info("invoice polling started",
		"invoiceId", s.seed.InvoiceID,
		"pollInterval", s.opts.PollInterval,
		"retryInterval", s.opts.RetryInterval,
	)
	return cancel
}

// Done is closed when the polling goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Update {
	u := Update{
		InvoiceID:  s.seed.InvoiceID,
		State:      s.state,
		View:       s.view,
		Error:      s.lastErr,
		Ticks:      s.ticks,
		Redirected: s.redirected,
		UpdatedAt:  s.updatedAt,
	}
	if s.redirected {
		u.RedirectURL = s.seed.RedirectURL
	}
	return u
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	for {
		delay, halt := s.tick(ctx)
		if halt {
			slog.Debug("invoice polling halted",
				"invoiceId", s.seed.InvoiceID,
				"reason", context.Cause(ctx),
			)
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.markCancelled()
			slog.Info("invoice polling cancelled", "invoiceId", s.seed.InvoiceID)
			return
		case <-timer.C:
		}
	}
}

// tick runs one poll and returns the delay before the next one, or halt.
func (s *Session) tick(ctx context.Context) (time.Duration, bool) {
	if ctx.Err() != nil {
		s.markCancelled()
		return 0, true
	}

	s.mu.Lock()
	view := s.view
	if view.Status.IsTerminal() {
		s.state = config.SessionTerminal
		s.mu.Unlock()
		return 0, true
	}
	if reconcile.DeadlinePassed(view, s.opts.now()) {
		s.view.Status = models.StatusExpired
		s.state = config.SessionTerminal
		s.updatedAt = s.opts.now()
		u := s.snapshotLocked()
		s.mu.Unlock()

		slog.Info("invoice deadline passed locally", "invoiceId", s.seed.InvoiceID)
		s.emit(config.EventInvoiceTerminal, u)
		return 0, true
	}
	s.mu.Unlock()

	// The fetch is not aborted by cancellation; its result is dropped below.
	snap, err := s.opts.Source.FetchStatus(context.WithoutCancel(ctx), s.seed.InvoiceID)
	if ctx.Err() != nil {
		s.markCancelled()
		slog.Debug("discarding poll result after cancellation", "invoiceId", s.seed.InvoiceID)
		return 0, true
	}

	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.updatedAt = s.opts.now()
		u := s.snapshotLocked()
		s.mu.Unlock()

		slog.Warn("invoice poll failed, will retry",
			"invoiceId", s.seed.InvoiceID,
			"retryIn", s.opts.RetryInterval,
			"error", err,
		)
		s.emit(config.EventInvoiceError, u)
		return s.opts.RetryInterval, false
	}

	s.mu.Lock()
	next := reconcile.Merge(s.view, snap)
	s.view = next
	s.lastErr = ""
	s.ticks++
	s.updatedAt = s.opts.now()

	fireRedirect := false
	if next.Status.IsTerminal() {
		s.state = config.SessionTerminal
		if next.Status == models.StatusConfirmed && !s.redirected {
			s.redirected = true
			fireRedirect = true
		}
	}
	u := s.snapshotLocked()
	s.mu.Unlock()

	slog.Debug("invoice poll merged",
		"invoiceId", s.seed.InvoiceID,
		"status", next.Status,
		"txStatus", next.TxStatus,
		"tick", u.Ticks,
	)

	if !next.Status.IsTerminal() {
		s.emit(config.EventInvoiceUpdate, u)
		return s.opts.PollInterval, false
	}

	slog.Info("invoice reached terminal status",
		"invoiceId", s.seed.InvoiceID,
		"status", next.Status,
		"ticks", u.Ticks,
	)
	s.emit(config.EventInvoiceTerminal, u)

	if fireRedirect {
		if s.opts.Redirector != nil {
			s.opts.Redirector.Redirect(next, s.seed.RedirectURL)
		}
		s.emit(config.EventInvoiceRedirect, u)
	}
	return 0, true
}

// markCancelled records that polling stopped before a terminal status.
func (s *Session) markCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == config.SessionPolling {
		s.state = config.SessionCancelled
		s.updatedAt = s.opts.now()
	}
}

func (s *Session) emit(eventType string, u Update) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(eventType, u)
	}
}
