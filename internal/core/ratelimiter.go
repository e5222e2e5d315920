package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Fantasim/paysync/internal/config"
)

// RateLimiter is the token bucket shared by every outbound Core call. Hold
// pauses it when the Core asks callers to back off.
type RateLimiter struct {
	limiter *rate.Limiter
	name    string

	mu        sync.Mutex
	holdUntil time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with a
// burst of one, so gateway traffic reaches the Core evenly spaced.
func NewRateLimiter(name string, rps int) *RateLimiter {
	slog.Debug("core rate limiter created",
		"name", name,
		"rps", rps,
	)
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		name:    name,
	}
}

// Hold stops Wait from returning for d, capped at config.CoreRetryAfterMax.
// A shorter hold never cuts an existing one short. Returns the applied hold.
func (rl *RateLimiter) Hold(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if d > config.CoreRetryAfterMax {
		d = config.CoreRetryAfterMax
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if until := time.Now().Add(d); until.After(rl.holdUntil) {
		rl.holdUntil = until
	}
	return d
}

// Wait blocks until any hold has passed and a token is available, or ctx
// is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	remaining := time.Until(rl.holdUntil)
	rl.mu.Unlock()

	if remaining > 0 {
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Warn("core rate limiter hold interrupted",
				"name", rl.name,
				"remaining", remaining,
				"error", ctx.Err(),
			)
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := rl.limiter.Wait(ctx); err != nil {
		slog.Warn("core rate limiter wait cancelled",
			"name", rl.name,
			"error", err,
		)
		return err
	}
	return nil
}

// Name returns the limiter name used in logs.
func (rl *RateLimiter) Name() string {
	return rl.name
}
