package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type countdownLog struct {
	ticks   []int
	expired int
}

func (p *countdownLog) tick(remaining int) { p.ticks = append(p.ticks, remaining) }
func (p *countdownLog) expire()            { p.expired++ }

func TestCountdownRunsToCompletion(t *testing.T) {
	for _, d := range []int{0, 1, 2, 5, 60} {
		m := NewManual(epoch)
		c := NewCountdown(m)
		calls := &countdownLog{}

		c.Start(d, calls.tick, calls.expire)
		m.Advance(time.Duration(d+10) * time.Second)

		if len(calls.ticks) != d {
			t.Fatalf("D=%d: expected %d ticks, got %d", d, d, len(calls.ticks))
		}
		if calls.expired != 1 {
			t.Fatalf("D=%d: expected one expire, got %d", d, calls.expired)
		}
		for i, remaining := range calls.ticks {
			if remaining < 0 {
				t.Fatalf("D=%d: negative remaining %d", d, remaining)
			}
			if i > 0 && remaining > calls.ticks[i-1] {
				t.Fatalf("D=%d: remaining increased from %d to %d", d, calls.ticks[i-1], remaining)
			}
		}
		if d > 0 && calls.ticks[d-1] != 0 {
			t.Fatalf("D=%d: expected last tick 0, got %d", d, calls.ticks[d-1])
		}
		if c.Running() {
			t.Fatalf("D=%d: expected countdown to be inert after expiry", d)
		}
		if m.ActiveTimers() != 0 {
			t.Fatalf("D=%d: expected no live timers, got %d", d, m.ActiveTimers())
		}
	}
}

func TestCountdownCancelIsIdempotentAndSilent(t *testing.T) {
	m := NewManual(epoch)
	c := NewCountdown(m)
	calls := &countdownLog{}

	c.Start(10, calls.tick, calls.expire)
	m.Advance(3 * time.Second)
	c.Cancel()
	c.Cancel()
	m.Advance(20 * time.Second)

	if len(calls.ticks) != 3 {
		t.Fatalf("expected 3 ticks before cancel, got %d", len(calls.ticks))
	}
	if calls.expired != 0 {
		t.Fatalf("expected no expire after cancel, got %d", calls.expired)
	}
}

func TestCountdownSkipExpiresOnce(t *testing.T) {
	m := NewManual(epoch)
	c := NewCountdown(m)
	calls := &countdownLog{}

	c.Start(60, calls.tick, calls.expire)
	m.Advance(37 * time.Second)
	c.Skip()
	c.Skip()
	m.Advance(time.Minute)

	if len(calls.ticks) != 37 {
		t.Fatalf("expected 37 ticks before skip, got %d", len(calls.ticks))
	}
	if calls.expired != 1 {
		t.Fatalf("expected exactly one expire, got %d", calls.expired)
	}
	if c.Remaining() != 0 {
		t.Fatalf("expected remaining 0 after skip, got %d", c.Remaining())
	}
}

func TestCountdownRestartCancelsPrevious(t *testing.T) {
	m := NewManual(epoch)
	c := NewCountdown(m)
	first := &countdownLog{}
	second := &countdownLog{}

	c.Start(5, first.tick, first.expire)
	m.Advance(2 * time.Second)
	c.Start(3, second.tick, second.expire)
	m.Advance(10 * time.Second)

	if len(first.ticks) != 2 || first.expired != 0 {
		t.Fatalf("expected first run to stop after 2 ticks, got ticks=%v expired=%d", first.ticks, first.expired)
	}
	if len(second.ticks) != 3 || second.expired != 1 {
		t.Fatalf("expected second run to complete, got ticks=%v expired=%d", second.ticks, second.expired)
	}
	if m.ActiveTimers() != 0 {
		t.Fatalf("expected no leaked timers, got %d", m.ActiveTimers())
	}
}

func TestCountdownZeroCancelledBeforeExpire(t *testing.T) {
	m := NewManual(epoch)
	c := NewCountdown(m)
	calls := &countdownLog{}

	c.Start(0, calls.tick, calls.expire)
	c.Cancel()
	m.Drain()

	if calls.expired != 0 {
		t.Fatalf("expected cancelled zero countdown not to expire, got %d", calls.expired)
	}
}

func TestCountdownsAreIndependent(t *testing.T) {
	m := NewManual(epoch)
	session := NewCountdown(m)
	phase := NewCountdown(m)
	sessionProbe := &countdownLog{}
	phaseProbe := &countdownLog{}

	session.Start(10, sessionProbe.tick, sessionProbe.expire)
	phase.Start(10, phaseProbe.tick, phaseProbe.expire)
	m.Advance(4 * time.Second)
	phase.Cancel()
	m.Advance(10 * time.Second)

	if sessionProbe.expired != 1 || len(sessionProbe.ticks) != 10 {
		t.Fatalf("expected session countdown unaffected, got ticks=%d expired=%d", len(sessionProbe.ticks), sessionProbe.expired)
	}
	if phaseProbe.expired != 0 || len(phaseProbe.ticks) != 4 {
		t.Fatalf("expected phase countdown cancelled after 4 ticks, got ticks=%d expired=%d", len(phaseProbe.ticks), phaseProbe.expired)
	}
}
