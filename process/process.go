// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package process layers a begin/process/end lifecycle on top of a single
// sched.Scheduler submission stream (spec.md §4.7): start schedules a
// begin hook followed by repeated process ticks, each one re-submitting
// itself at the theoretical time it returns, until a tick declines to
// repeat or stop is requested, at which point an end hook runs and the
// cycle returns to its initial state.
package process

import (
	"sync"

	"v.io/x/sched"
	"v.io/x/sched/clock"
)

// State is a Process's lifecycle stage.
type State int

const (
	Stopped State = iota
	Started
	PendingStop
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Started:
		return "started"
	case PendingStop:
		return "pending-stop"
	default:
		return "unknown"
	}
}

// Hooks bundles the three callbacks a Process cycles through. OnBegin
// runs once at the start of a cycle; Process runs repeatedly, once per
// scheduled tick, returning the next theoretical time to run at and
// whether to continue; OnEnd runs once the cycle stops, however it
// stopped (Process declining to repeat, a Stop call, or a panic).
type Hooks struct {
	OnBegin func()
	Process func(theoreticalNs, actualNs int64) (nextNs int64, repeat bool)
	OnEnd   func()
}

// Process drives Hooks through repeated Started ticks on a Scheduler, one
// sched.Cancellable submission at a time. A Process instance is not
// reusable concurrently from multiple goroutines calling Start/Stop, but
// its own hooks never run concurrently with each other.
type Process struct {
	sched *sched.Scheduler
	hooks Hooks

	mu    sync.Mutex
	state State
	entry *sched.SchedEntry // the currently pending/running begin or tick submission, if any
}

// New creates a Process bound to s, initially Stopped.
func New(s *sched.Scheduler, hooks Hooks) *Process {
	return &Process{sched: s, state: Stopped, hooks: hooks}
}

// State returns p's current lifecycle stage.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start begins a cycle: if p is Stopped, it submits onBegin followed by
// the first process tick at the scheduler's current time, and
// transitions to Started. It is idempotent when already Started.
func (p *Process) Start() {
	p.startAt(p.sched.Clock().TimeNs())
}

// StartAfterNs is Start, but the first tick's theoretical time is delayed
// by delayNs relative to the scheduler's current time.
func (p *Process) StartAfterNs(delayNs int64) {
	p.startAt(clock.AddSaturating(p.sched.Clock().TimeNs(), delayNs))
}

// startAt submits onBegin as its own ASAP entry, chained into the first
// process tick at firstNs once onBegin returns. Submitting onBegin
// (rather than running it inline on the calling goroutine) keeps it on
// the same scheduler-worker execution path as every other hook, so a
// panic in onBegin reaches the same uncaught-exception-handler as a
// panic in process or onEnd, and so a Process whose hooks are still
// mid-cycle on a worker never runs onBegin concurrently with them.
func (p *Process) startAt(firstNs int64) {
	p.mu.Lock()
	if p.state != Stopped {
		p.mu.Unlock()
		return
	}
	p.state = Started
	p.entry = p.sched.Execute(cancellableFunc{run: func() {
		var firstPanic interface{}
		func() {
			defer func() {
				if r := recover(); r != nil {
					firstPanic = r
				}
			}()
			p.runBegin()
		}()

		p.mu.Lock()
		stopRequested := p.state == PendingStop
		p.mu.Unlock()

		if firstPanic != nil || stopRequested {
			p.runEndAfterPanic(firstPanic)
			return
		}
		p.submitTickAtNs(firstNs)
	}})
	p.mu.Unlock()
}

// Stop requests termination and moves p to PendingStop. If p's current
// entry (onBegin or a tick) is still pending, Stop cancels it and runs
// onEnd on the calling goroutine before returning, without waiting for the
// entry's scheduled time; if p has no current entry, onEnd likewise runs
// at once. If that entry is already running, Stop returns immediately: the
// running entry runs onEnd when it completes, without rescheduling, and p
// becomes Stopped only then. Stop does nothing if p is Stopped or already
// PendingStop.
func (p *Process) Stop() {
	p.mu.Lock()
	switch p.state {
	case Stopped:
		p.mu.Unlock()
		return
	case PendingStop:
		p.mu.Unlock()
		return
	}
	p.state = PendingStop
	entry := p.entry
	p.mu.Unlock()

	if entry == nil || !p.sched.CancelEntry(entry) {
		// No pending tick to cancel (already running, already finished,
		// or the cycle hadn't submitted one yet): the running tick, once
		// it sees PendingStop, runs onEnd itself; if nothing is in
		// flight at all, run it here.
		if entry == nil {
			p.runEndRecovered()
		}
		return
	}
	// entry was still pending and is now Cancelled: this goroutine owns
	// running onEnd, since no worker will ever run that tick's closure.
	p.runEndRecovered()
}

// runEndRecovered runs onEnd on the calling goroutine (there is no
// scheduler entry left to carry it, and submitting a fresh one could sit
// forever unpopped on a thread-less Scheduler), but through
// Scheduler.RunRecovered so a panic still reaches the same
// uncaught-exception-handler a panic from onBegin or a tick is routed
// through in runEntry, instead of escaping to whatever goroutine called
// Stop.
func (p *Process) runEndRecovered() {
	p.sched.RunRecovered(p.runEnd)
}

// submitTickAtNs submits the process tick to run no earlier than
// theoreticalNs.
func (p *Process) submitTickAtNs(theoreticalNs int64) {
	p.mu.Lock()
	p.entry = p.sched.ExecuteAtNs(cancellableFunc{run: p.tick(theoreticalNs)}, theoreticalNs)
	p.mu.Unlock()
}

// tick returns a Runnable closure that invokes Hooks.Process for the
// given theoretical time, guarding against a panic so onEnd still runs
// with the anti-suppression rule spec.md §4.7 requires: the first panic
// wins, even if onEnd itself panics while cleaning up.
func (p *Process) tick(theoreticalNs int64) func() {
	return func() {
		actualNs := p.sched.Clock().TimeNs()

		var firstPanic interface{}
		var nextNs int64
		var repeat bool
		func() {
			defer func() {
				if r := recover(); r != nil {
					firstPanic = r
				}
			}()
			nextNs, repeat = p.hooks.Process(theoreticalNs, actualNs)
		}()

		p.mu.Lock()
		stopRequested := p.state == PendingStop
		p.mu.Unlock()

		if firstPanic != nil || !repeat || stopRequested {
			p.runEndAfterPanic(firstPanic)
			return
		}
		p.submitTickAtNs(nextNs)
	}
}

// runBegin invokes Hooks.OnBegin, if set. Any panic propagates to the
// caller, which recovers it the same way tick recovers a panic from
// Hooks.Process, so a failing OnBegin still runs OnEnd before the panic
// reaches the scheduler's uncaught-exception-handler.
func (p *Process) runBegin() {
	if p.hooks.OnBegin == nil {
		return
	}
	p.hooks.OnBegin()
}

// runEnd invokes Hooks.OnEnd with no prior panic, then resets to Stopped.
func (p *Process) runEnd() {
	p.runEndAfterPanic(nil)
}

// runEndAfterPanic invokes Hooks.OnEnd, preserving firstPanic (from
// Process or OnBegin) over any panic OnEnd itself raises: only the first
// one reaches the uncaught-exception-handler, per spec.md's
// anti-suppression rule. It always resets p to Stopped.
func (p *Process) runEndAfterPanic(firstPanic interface{}) {
	if p.hooks.OnEnd != nil {
		func() {
			defer func() {
				if r := recover(); r != nil && firstPanic == nil {
					firstPanic = r
				}
			}()
			p.hooks.OnEnd()
		}()
	}

	p.mu.Lock()
	p.state = Stopped
	p.entry = nil
	p.mu.Unlock()

	if firstPanic != nil {
		p.forwardPanic(firstPanic)
	}
}

func (p *Process) forwardPanic(r interface{}) {
	panic(r)
}

// cancellableFunc adapts a plain run closure into a sched.Cancellable.
// Its OnCancel is a no-op: Process.Stop runs the end hook itself once it
// has confirmed (via Scheduler.CancelEntry) that a pending tick was
// successfully pulled out of the queue.
type cancellableFunc struct {
	run func()
}

func (c cancellableFunc) Run() { c.run() }

func (cancellableFunc) OnCancel(sched.CancelReason) {}
