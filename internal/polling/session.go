package polling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"banana3d/internal/logging"
	"banana3d/internal/scheduler"
	"banana3d/internal/services"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 120 * time.Second
)

// Status is the verdict of a single check.
type Status int

const (
	StatusPending Status = iota
	StatusDone
)

// Result is what a check reports. Value is meaningful only when Done.
type Result[T any] struct {
	Status Status
	Value  T
}

// Pending reports that the remote work is still running.
func Pending[T any]() Result[T] {
	return Result[T]{Status: StatusPending}
}

// Done reports a finished result.
func Done[T any](value T) Result[T] {
	return Result[T]{Status: StatusDone, Value: value}
}

// CheckFunc asks the remote side once. It runs off the scheduler goroutine.
type CheckFunc[T any] func(ctx context.Context) (Result[T], error)

// OutcomeKind classifies how a session ended.
type OutcomeKind int

const (
	OutcomeDone OutcomeKind = iota
	OutcomeFailed
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDone:
		return "done"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is delivered exactly once per session unless it is cancelled.
type Outcome[T any] struct {
	Session uint64
	Kind    OutcomeKind
	Value   T
	Err     error
	Checks  int
}

// Options bounds a session. OnPending, when set, runs on the scheduler after
// every check that reports pending.
type Options struct {
	Interval  time.Duration
	Timeout   time.Duration
	OnPending func(checks int)
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Session is one bounded polling window. All methods must be called on the
// scheduler goroutine.
type Session[T any] struct {
	id      uint64
	sched   scheduler.Scheduler
	check   CheckFunc[T]
	deliver func(Outcome[T])
	opts    Options
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	ticker   scheduler.Timer
	deadline scheduler.Timer

	active   bool
	inFlight bool
	checks   int
	skipped  int
}

func newSession[T any](ctx context.Context, sched scheduler.Scheduler, id uint64, check CheckFunc[T], opts Options, logger *slog.Logger, deliver func(Outcome[T])) *Session[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	opts = opts.withDefaults()
	sessionCtx, cancel := context.WithCancel(services.WithSessionID(ctx, id))
	s := &Session[T]{
		id:      id,
		sched:   sched,
		check:   check,
		deliver: deliver,
		opts:    opts,
		logger:  logging.WithContext(sessionCtx, logger),
		ctx:     sessionCtx,
		cancel:  cancel,
		active:  true,
	}
	// A tick sharing an instant with the deadline runs first; arm order decides.
	s.ticker = sched.Every(opts.Interval, s.tick)
	s.deadline = sched.AfterFunc(opts.Timeout, s.expire)
	s.logger.Debug("polling session started",
		logging.Duration("interval", opts.Interval),
		logging.Duration("timeout", opts.Timeout),
		logging.String(logging.FieldEventType, "poll_started"),
	)
	return s
}

// ID returns the session number.
func (s *Session[T]) ID() uint64 { return s.id }

// Checks reports how many times the check has been invoked.
func (s *Session[T]) Checks() int { return s.checks }

// Skipped reports ticks dropped because a check was still unresolved.
func (s *Session[T]) Skipped() int { return s.skipped }

// Active reports whether the session can still deliver an outcome.
func (s *Session[T]) Active() bool { return s != nil && s.active }

// Cancel retires the session without delivering anything. Safe to call
// repeatedly and on a nil session.
func (s *Session[T]) Cancel() {
	if s == nil || !s.active {
		return
	}
	s.retire()
	s.logger.Debug("polling session cancelled",
		logging.Int("checks", s.checks),
		logging.String(logging.FieldEventType, "poll_cancelled"),
	)
}

func (s *Session[T]) tick() {
	if !s.active {
		return
	}
	if s.inFlight {
		s.skipped++
		s.logger.Debug("check still in flight; skipping tick", logging.Int("checks", s.checks))
		return
	}
	s.inFlight = true
	s.checks++
	ctx, check := s.ctx, s.check
	scheduler.Go(s.sched, func() checkResult[T] {
		res, err := check(ctx)
		return checkResult[T]{res: res, err: err}
	}, s.complete)
}

type checkResult[T any] struct {
	res Result[T]
	err error
}

func (s *Session[T]) complete(r checkResult[T]) {
	s.inFlight = false
	if !s.active {
		s.logger.Debug("discarding stale check result", logging.String(logging.FieldEventType, "poll_stale_result"))
		return
	}
	switch {
	case r.err != nil:
		s.finish(Outcome[T]{Kind: OutcomeFailed, Err: r.err})
	case r.res.Status == StatusDone:
		s.finish(Outcome[T]{Kind: OutcomeDone, Value: r.res.Value})
	case s.opts.OnPending != nil:
		s.opts.OnPending(s.checks)
	}
}

func (s *Session[T]) expire() {
	if !s.active {
		return
	}
	err := services.Wrap(services.ErrTimeout, "", "poll", fmt.Sprintf("no result after %s", s.opts.Timeout), nil)
	s.finish(Outcome[T]{Kind: OutcomeTimeout, Err: err})
}

func (s *Session[T]) finish(out Outcome[T]) {
	s.retire()
	out.Session = s.id
	out.Checks = s.checks
	s.logger.Debug("polling session finished",
		logging.String("outcome", out.Kind.String()),
		logging.Int("checks", s.checks),
		logging.Int("skipped", s.skipped),
		logging.String(logging.FieldEventType, "poll_finished"),
	)
	if s.deliver != nil {
		s.deliver(out)
	}
}

func (s *Session[T]) retire() {
	s.active = false
	s.ticker.Stop()
	s.deadline.Stop()
	s.cancel()
}
