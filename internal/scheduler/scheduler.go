package scheduler

import "time"

// Scheduler runs callbacks one at a time on a single logical thread.
//
// Every callback handed to Post, AfterFunc, or Every executes on the
// scheduler's loop, so state touched only from those callbacks needs no
// locking. Spawn is the one escape hatch: its work runs off the loop and must
// hand results back through Post (see Go).
type Scheduler interface {
	// Now reports the scheduler's notion of the current time.
	Now() time.Time
	// Post enqueues fn to run on the loop after the currently running callback.
	Post(fn func())
	// AfterFunc arms a one-shot timer that runs fn on the loop after d.
	AfterFunc(d time.Duration, fn func()) Timer
	// Every arms a periodic timer that runs fn on the loop every d, first
	// firing one period after the call.
	Every(d time.Duration, fn func()) Timer
	// Spawn runs work outside the loop.
	Spawn(work func())
}

// Timer is a handle to an armed one-shot or periodic timer.
//
// Stop must be called from the loop. Once it returns, the timer's callback is
// guaranteed not to run again, even if the underlying clock already fired.
// Stop reports whether the timer was still armed.
type Timer interface {
	Stop() bool
}

// Go runs work off the loop and posts done with its result back onto the
// loop. It is the only sanctioned way to perform blocking I/O on behalf of
// loop-owned state.
func Go[T any](s Scheduler, work func() T, done func(T)) {
	s.Spawn(func() {
		value := work()
		s.Post(func() { done(value) })
	})
}
