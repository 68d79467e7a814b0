package polling

import (
	"context"
	"log/slog"

	"banana3d/internal/logging"
	"banana3d/internal/scheduler"
)

// Controller owns at most one live session. Starting a new session retires
// the previous one first, so a superseded session never delivers.
type Controller[T any] struct {
	sched   scheduler.Scheduler
	logger  *slog.Logger
	nextID  uint64
	current *Session[T]
}

// NewController binds a controller to a scheduler.
func NewController[T any](sched scheduler.Scheduler, logger *slog.Logger) *Controller[T] {
	return &Controller[T]{
		sched:  sched,
		logger: logging.NewComponentLogger(logger, "polling"),
	}
}

// Start retires any live session and begins a new one. The first check runs
// one interval after Start. Must be called on the scheduler goroutine.
func (c *Controller[T]) Start(ctx context.Context, check CheckFunc[T], opts Options, deliver func(Outcome[T])) *Session[T] {
	c.Cancel()
	c.nextID++
	var session *Session[T]
	session = newSession(ctx, c.sched, c.nextID, check, opts, c.logger, func(out Outcome[T]) {
		if c.current == session {
			c.current = nil
		}
		if deliver != nil {
			deliver(out)
		}
	})
	c.current = session
	return session
}

// Cancel retires the live session, if any.
func (c *Controller[T]) Cancel() {
	if c.current == nil {
		return
	}
	c.current.Cancel()
	c.current = nil
}

// Current returns the live session or nil.
func (c *Controller[T]) Current() *Session[T] {
	return c.current
}

// Active reports whether a session is live.
func (c *Controller[T]) Active() bool {
	return c.current.Active()
}

// LastID returns the most recently issued session number.
func (c *Controller[T]) LastID() uint64 {
	return c.nextID
}
