// Package admission gates calls to the AI dependency with fixed-window quotas.
//
// Two windows (minute and hour) compose conjunctively: a call is admitted only
// when both are under their limit, and admitting it counts against both.
// Rejection never blocks; it carries the time until the tightest window resets.
package admission

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPerMinute = 20
	DefaultPerHour   = 300
)

// Limits configures the per-period quotas. A non-positive limit disables its window.
type Limits struct {
	PerMinute int
	PerHour   int
}

// Decision is the outcome of one admission check.
type Decision struct {
	Admitted   bool
	RetryAfter time.Duration
}

// RetryAfterMs returns the wait hint in milliseconds, rounded up so a pending
// reset is never reported as zero.
func (d Decision) RetryAfterMs() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int64((d.RetryAfter + time.Millisecond - 1) / time.Millisecond)
}

// Window is a fixed-window counter.
type Window struct {
	name     string
	limit    int
	duration time.Duration
	count    int
	start    time.Time
}

func newWindow(name string, limit int, duration time.Duration, now time.Time) *Window {
	return &Window{name: name, limit: limit, duration: duration, start: now}
}

// roll resets the window when now has crossed its boundary.
func (w *Window) roll(now time.Time) bool {
	if now.Sub(w.start) < w.duration {
		return false
	}
	w.count = 0
	w.start = now
	return true
}

func (w *Window) enabled() bool {
	return w.limit > 0
}

func (w *Window) exhausted() bool {
	return w.enabled() && w.count >= w.limit
}

func (w *Window) resetsIn(now time.Time) time.Duration {
	return w.start.Add(w.duration).Sub(now)
}

// Controller is the shared admission gate. It is safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	windows []*Window
	clock   func() time.Time
	logger  *zap.Logger
}

type Option func(*Controller)

// WithClock replaces time.Now, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(limits Limits, opts ...Option) *Controller {
	c := &Controller{
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	now := c.clock()
	c.windows = []*Window{
		newWindow("minute", limits.PerMinute, time.Minute, now),
		newWindow("hour", limits.PerHour, time.Hour, now),
	}

	return c
}

// Admit checks the quota against the controller's clock.
func (c *Controller) Admit() Decision {
	return c.TryAdmit(c.clock())
}

// TryAdmit performs a single atomic check-and-increment at the given instant.
func (c *Controller) TryAdmit(now time.Time) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	var wait time.Duration
	rejected := false
	for _, w := range c.windows {
		if w.roll(now) {
			c.logger.Debug("quota window reset", zap.String("window", w.name))
		}
		if !w.exhausted() {
			continue
		}
		rejected = true
		if d := w.resetsIn(now); d > wait {
			wait = d
		}
	}

	if rejected {
		c.logger.Info("admission rejected",
			zap.Duration("retry_after", wait),
			zap.Int("minute_count", c.windows[0].count),
			zap.Int("hour_count", c.windows[1].count),
		)
		return Decision{RetryAfter: wait}
	}

	for _, w := range c.windows {
		w.count++
	}

	return Decision{Admitted: true}
}

// WindowStatus is a point-in-time view of one window.
type WindowStatus struct {
	Limit     int           `json:"limit"`
	Count     int           `json:"count"`
	Remaining int           `json:"remaining"`
	ResetsIn  time.Duration `json:"resets_in"`
}

type Status struct {
	Minute WindowStatus `json:"minute"`
	Hour   WindowStatus `json:"hour"`
}

// Status reports the counters without consuming quota.
func (c *Controller) Status(now time.Time) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	views := make([]WindowStatus, len(c.windows))
	for i, w := range c.windows {
		w.roll(now)
		remaining := 0
		if w.enabled() && w.limit > w.count {
			remaining = w.limit - w.count
		}
		views[i] = WindowStatus{
			Limit:     w.limit,
			Count:     w.count,
			Remaining: remaining,
			ResetsIn:  w.resetsIn(now),
		}
	}

	return Status{Minute: views[0], Hour: views[1]}
}

// Now exposes the controller clock so callers can share it.
func (c *Controller) Now() time.Time {
	return c.clock()
}
