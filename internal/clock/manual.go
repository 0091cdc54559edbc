package clock

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by virtual time. Nothing runs until Drain or
// Advance is called, which makes timer interleavings reproducible.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	queue  []func()
	timers []*manualTimer
	seq    int
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Post(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

func (m *Manual) Every(interval time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{
		m:        m,
		interval: interval,
		next:     m.now.Add(interval),
		fn:       fn,
		seq:      m.seq,
	}
	m.timers = append(m.timers, t)
	return t
}

// Background runs work immediately on the caller and queues done.
func (m *Manual) Background(work func(), done func()) {
	work()
	m.Post(done)
}

func (m *Manual) Call(fn func() error) error {
	m.Drain()
	err := fn()
	m.Drain()
	return err
}

// Drain runs queued callbacks, including ones they queue, until none remain.
func (m *Manual) Drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
	}
}

// Advance moves virtual time forward by d, firing due timers in order and
// draining the queue after each one.
func (m *Manual) Advance(d time.Duration) {
	m.Drain()

	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var due *manualTimer
		for _, t := range m.timers {
			if t.stopped || t.next.After(target) {
				continue
			}
			if due == nil || t.next.Before(due.next) || (t.next.Equal(due.next) && t.seq < due.seq) {
				due = t
			}
		}
		if due == nil {
			m.now = target
			m.compact()
			m.mu.Unlock()
			break
		}
		m.now = due.next
		due.next = due.next.Add(due.interval)
		fn := due.fn
		m.mu.Unlock()

		fn()
		m.Drain()
	}

	m.Drain()
}

// ActiveTimers reports how many timers have not been stopped.
func (m *Manual) ActiveTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (m *Manual) compact() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
}

type manualTimer struct {
	m        *Manual
	interval time.Duration
	next     time.Time
	fn       func()
	seq      int
	stopped  bool
}

func (t *manualTimer) Stop() {
	t.m.mu.Lock()
	t.stopped = true
	t.m.mu.Unlock()
}
