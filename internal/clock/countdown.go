package clock

import "time"

// Countdown counts whole seconds down to zero on a Scheduler.
//
// A run of D seconds produces exactly D ticks carrying D-1 … 0 followed by a
// single expire. All methods must be called from the scheduler's thread.
type Countdown struct {
	sched Scheduler

	gen       int
	timer     Timer
	remaining int
	running   bool
	onTick    func(remaining int)
	onExpire  func()
}

func NewCountdown(sched Scheduler) *Countdown {
	return &Countdown{sched: sched}
}

// Start begins a new countdown, cancelling any run still in progress.
func (c *Countdown) Start(seconds int, onTick func(remaining int), onExpire func()) {
	c.Cancel()

	if seconds < 0 {
		seconds = 0
	}

	c.gen++
	gen := c.gen
	c.remaining = seconds
	c.running = true
	c.onTick = onTick
	c.onExpire = onExpire

	if seconds == 0 {
		c.sched.Post(func() {
			if c.gen != gen || !c.running {
				return
			}
			c.expire()
		})
		return
	}

	c.timer = c.sched.Every(time.Second, func() {
		if c.gen != gen || !c.running {
			return
		}
		c.remaining--
		if c.remaining < 0 {
			c.remaining = 0
		}
		if c.onTick != nil {
			c.onTick(c.remaining)
		}
		if c.remaining == 0 && c.gen == gen && c.running {
			c.expire()
		}
	})
}

// Cancel stops the countdown without expiring it. It is safe to call at any
// time.
func (c *Countdown) Cancel() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.running {
		c.gen++
	}
	c.running = false
	c.onTick = nil
	c.onExpire = nil
}

// Skip expires the countdown immediately. No further ticks are delivered.
func (c *Countdown) Skip() {
	if !c.running {
		return
	}
	c.remaining = 0
	c.expire()
}

func (c *Countdown) Remaining() int { return c.remaining }

func (c *Countdown) Running() bool { return c.running }

func (c *Countdown) expire() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	onExpire := c.onExpire
	c.running = false
	c.onTick = nil
	c.onExpire = nil
	c.gen++

	if onExpire != nil {
		onExpire()
	}
}
