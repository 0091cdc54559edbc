// Package clock provides the single-threaded scheduler the session engine
// runs on and the one-second countdown built on top of it.
package clock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Call once the loop has stopped running.
var ErrStopped = errors.New("scheduler stopped")

// Timer is a repeating callback registered with Every.
type Timer interface {
	Stop()
}

// Scheduler serializes every callback onto one logical thread.
//
// Posted functions and timer callbacks never overlap and run in arrival
// order. A stopped Timer never runs its callback again, even when a tick was
// already queued.
type Scheduler interface {
	Now() time.Time
	Post(fn func())
	Every(interval time.Duration, fn func()) Timer
	// Background runs work off the loop and posts done back onto it.
	Background(work func(), done func())
	// Call runs fn on the loop and waits for its result. It must not be
	// invoked from a callback already running on the loop.
	Call(fn func() error) error
}

// Loop is the real-time Scheduler.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		now:  time.Now,
	}
}

func (l *Loop) Now() time.Time { return l.now() }

func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes posted work until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			batch := l.pending
			l.pending = nil
			l.mu.Unlock()

			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fn()
			}
		}
	}
}

func (l *Loop) Every(interval time.Duration, fn func()) Timer {
	t := &loopTimer{stop: make(chan struct{})}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-l.done:
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

func (l *Loop) Background(work func(), done func()) {
	go func() {
		work()
		l.Post(done)
	}()
}

func (l *Loop) Call(fn func() error) error {
	result := make(chan error, 1)
	l.Post(func() { result <- fn() })

	select {
	case err := <-result:
		return err
	case <-l.done:
		return ErrStopped
	}
}

type loopTimer struct {
	stopped atomic.Bool
	stop    chan struct{}
	once    sync.Once
}

func (t *loopTimer) Stop() {
	t.stopped.Store(true)
	t.once.Do(func() { close(t.stop) })
}
