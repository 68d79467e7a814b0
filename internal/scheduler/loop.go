package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Loop is a real-time Scheduler that drains its task queue on whichever
// goroutine calls Run.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// NewLoop constructs an idle loop. Tasks posted before Run starts are kept
// and executed once it does.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Run executes posted tasks until ctx is cancelled. Tasks posted after Run
// returns are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
	}()
	for {
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			task()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post enqueues fn. It never blocks, so it is safe to call from loop tasks.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Spawn runs work on a new goroutine.
func (l *Loop) Spawn(work func()) {
	go work()
}

// AfterFunc arms a wall-clock timer whose callback is posted to the loop.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.Load() {
				return
			}
			t.stopped.Store(true)
			fn()
		})
	})
	return t
}

// Every arms a wall-clock ticker whose ticks are posted to the loop.
func (l *Loop) Every(d time.Duration, fn func()) Timer {
	t := &loopTimer{done: make(chan struct{})}
	ticker := time.NewTicker(d)
	t.ticker = ticker
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				l.Post(func() {
					if t.stopped.Load() {
						return
					}
					fn()
				})
			}
		}
	}()
	return t
}

type loopTimer struct {
	stopped atomic.Bool
	timer   *time.Timer
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once
}

func (t *loopTimer) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}
	t.once.Do(func() {
		if t.timer != nil {
			t.timer.Stop()
		}
		if t.ticker != nil {
			t.ticker.Stop()
			close(t.done)
		}
	})
	return true
}
