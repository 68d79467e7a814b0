package scheduler

import (
	"container/heap"
	"time"
)

// Manual is a virtual-time Scheduler driven explicitly by its owner.
//
// Nothing runs until Flush or Advance is called. Spawned work executes
// synchronously, so its completion is queued immediately and runs on the
// next flush. Timers due at the same instant fire in the order they were
// armed (a periodic timer keeps its original position on every period), and
// all of them fire before any task they post runs.
//
// Manual is not safe for concurrent use; drive it from one goroutine.
type Manual struct {
	now    time.Time
	seq    uint64
	ready  []func()
	timers timerQueue
}

// NewManual returns a Manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	return m.now
}

// Post queues fn for the next flush.
func (m *Manual) Post(fn func()) {
	if fn != nil {
		m.ready = append(m.ready, fn)
	}
}

// Spawn runs work immediately on the caller's goroutine.
func (m *Manual) Spawn(work func()) {
	work()
}

// AfterFunc arms a one-shot virtual timer.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	return m.arm(d, 0, fn)
}

// Every arms a periodic virtual timer.
func (m *Manual) Every(d time.Duration, fn func()) Timer {
	if d <= 0 {
		d = time.Nanosecond
	}
	return m.arm(d, d, fn)
}

func (m *Manual) arm(d, period time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.seq++
	entry := &manualTimer{
		due:    m.now.Add(d),
		seq:    m.seq,
		period: period,
		fn:     fn,
		armed:  true,
	}
	heap.Push(&m.timers, entry)
	return entry
}

// Flush runs queued tasks, including tasks they post, until none remain.
// It reports how many ran.
func (m *Manual) Flush() int {
	ran := 0
	for len(m.ready) > 0 {
		task := m.ready[0]
		m.ready[0] = nil
		m.ready = m.ready[1:]
		task()
		ran++
	}
	return ran
}

// Advance moves the clock forward by d, firing every timer that comes due
// along the way and flushing queued tasks after each instant.
func (m *Manual) Advance(d time.Duration) {
	m.AdvanceTo(m.now.Add(d))
}

// AdvanceTo moves the clock to target. Targets in the past only flush.
func (m *Manual) AdvanceTo(target time.Time) {
	m.Flush()
	for {
		entry := m.peek()
		if entry == nil || entry.due.After(target) {
			break
		}
		instant := entry.due
		m.now = instant
		for {
			next := m.peek()
			if next == nil || !next.due.Equal(instant) {
				break
			}
			heap.Pop(&m.timers)
			if !next.armed {
				continue
			}
			if next.period > 0 {
				next.due = next.due.Add(next.period)
				heap.Push(&m.timers, next)
			} else {
				next.armed = false
			}
			next.fn()
		}
		m.Flush()
	}
	if target.After(m.now) {
		m.now = target
	}
}

// Armed reports how many timers are still armed.
func (m *Manual) Armed() int {
	n := 0
	for _, entry := range m.timers {
		if entry.armed {
			n++
		}
	}
	return n
}

// Queued reports how many tasks are waiting for the next flush.
func (m *Manual) Queued() int {
	return len(m.ready)
}

func (m *Manual) peek() *manualTimer {
	for len(m.timers) > 0 {
		top := m.timers[0]
		if top.armed {
			return top
		}
		heap.Pop(&m.timers)
	}
	return nil
}

type manualTimer struct {
	due    time.Time
	seq    uint64
	period time.Duration
	fn     func()
	armed  bool
	index  int
}

func (t *manualTimer) Stop() bool {
	if !t.armed {
		return false
	}
	t.armed = false
	return true
}

type timerQueue []*manualTimer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	entry := x.(*manualTimer)
	entry.index = len(*q)
	*q = append(*q, entry)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*q = old[:n-1]
	return entry
}
