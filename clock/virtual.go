// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clock

import (
	"math"

	"v.io/x/sched/nsync"
)

// Virtual is a mutable, listenable Clock whose time and speed are set
// explicitly by the caller, independent of wall-clock time. It is the
// clock used to drive simulations and deterministic tests: time only
// advances when SetTimeNs, AdvanceNs, or SetTimeSpeed is called.
//
// Virtual's own state is guarded by an nsync.Mu rather than a sync.Mutex
// so that a reader computing TimeNs/TimeSpeed together (a "clock
// snapshot", in the scheduler's terms) can do so without tearing, using
// the same primitive the scheduler itself uses for its queues.
type Virtual struct {
	mu        nsync.Mu
	timeNs    int64
	timeSpeed float64
	listeners map[int]Listener
	nextID    int
}

// NewVirtual creates a Virtual clock at the given initial time and speed.
// speed must be non-negative (+Inf is allowed); a negative or NaN speed is
// replaced with 1.
func NewVirtual(initialTimeNs int64, initialSpeed float64) *Virtual {
	if math.IsNaN(initialSpeed) || initialSpeed < 0 {
		initialSpeed = 1
	}
	return &Virtual{
		timeNs:    initialTimeNs,
		timeSpeed: initialSpeed,
		listeners: make(map[int]Listener),
	}
}

func (c *Virtual) TimeNs() int64 {
	c.mu.Lock()
	t := c.timeNs
	c.mu.Unlock()
	return t
}

func (c *Virtual) TimeSpeed() float64 {
	c.mu.Lock()
	s := c.timeSpeed
	c.mu.Unlock()
	return s
}

// Snapshot atomically observes (TimeNs, TimeSpeed) together, so a worker
// computing a wait duration sees a consistent pair.
func (c *Virtual) Snapshot() (timeNs int64, timeSpeed float64) {
	c.mu.Lock()
	timeNs, timeSpeed = c.timeNs, c.timeSpeed
	c.mu.Unlock()
	return
}

// SetTimeNs jumps the clock to timeNs, which may be forward or backward of
// the current time, and notifies listeners before returning.
func (c *Virtual) SetTimeNs(timeNs int64) {
	c.mu.Lock()
	c.timeNs = timeNs
	c.mu.Unlock()
	c.notify()
}

// AdvanceNs moves the clock forward (or backward, for a negative delta) by
// deltaNs and notifies listeners before returning.
func (c *Virtual) AdvanceNs(deltaNs int64) {
	c.mu.Lock()
	c.timeNs = AddSaturating(c.timeNs, deltaNs)
	c.mu.Unlock()
	c.notify()
}

// SetTimeSpeed changes the rate at which a worker should treat future
// deadlines as approaching, and notifies listeners before returning. speed
// must be non-negative (NaN or negative values are ignored); +Inf is
// accepted and means any future deadline is already elapsed.
func (c *Virtual) SetTimeSpeed(speed float64) {
	if math.IsNaN(speed) || speed < 0 {
		return
	}
	c.mu.Lock()
	c.timeSpeed = speed
	c.mu.Unlock()
	c.notify()
}

// AddListener registers l to be called, with c's lock not held, after
// every SetTimeNs/AdvanceNs/SetTimeSpeed call. The returned remove func
// deregisters it; calling remove more than once is a no-op.
func (c *Virtual) AddListener(l Listener) (remove func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	removed := false
	return func() {
		c.mu.Lock()
		if !removed {
			delete(c.listeners, id)
			removed = true
		}
		c.mu.Unlock()
	}
}

// notify invokes every registered listener. Listeners are snapshotted
// under the lock, then called with the lock released, so a listener that
// calls back into Virtual (e.g. to read TimeNs) cannot deadlock against
// the mutation that triggered it.
func (c *Virtual) notify() {
	c.mu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()
	for _, l := range ls {
		l()
	}
}

var _ ListenableClock = (*Virtual)(nil)
