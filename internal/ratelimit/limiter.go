package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

// window tracks one user's request cadence. Guarded by its own mutex so two
// users never contend with each other.
type window struct {
	mu        sync.Mutex
	startedAt time.Time
	count     int
}

// Limiter is a per-user sliding window counter. State is in-memory only; it
// is a cadence guard, not an audit log, and does not survive restarts.
type Limiter struct {
	maxRequests int
	windowLen   time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu      sync.Mutex
	windows map[int64]*window
}

func NewLimiter(maxRequests int, windowLen time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		windowLen:   windowLen,
		now:         time.Now,
		logger:      logger,
		windows:     make(map[int64]*window),
	}
}

// WithClock swaps the time source. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check records one request for userID and decides whether it may proceed.
// Blocked requests do not increment the counter, so the count saturates at
// maxRequests and a flood of rejected calls cannot extend the window.
func (l *Limiter) Check(userID int64) Decision {
	w := l.userWindow(userID)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()

	if w.startedAt.IsZero() || now.Sub(w.startedAt) >= l.windowLen {
		w.startedAt = now
		w.count = 1
		return Decision{Allowed: true}
	}

	if w.count >= l.maxRequests {
		retryAfter := l.windowLen - now.Sub(w.startedAt)
		seconds := int(retryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		l.logger.Warn("rate limit exceeded", "user_id", userID, "retry_after_seconds", seconds)
		return Decision{Allowed: false, RetryAfterSeconds: seconds}
	}

	w.count++
	return Decision{Allowed: true}
}

// userWindow returns the window for userID, creating it lazily. Only the map
// lookup holds the limiter-wide lock; counting happens under the per-user one.
func (l *Limiter) userWindow(userID int64) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[userID]
	if !ok {
		w = &window{}
		l.windows[userID] = w
	}
	return w
}
