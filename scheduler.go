// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sched implements a virtual-clock-aware task scheduler: two
// queues (ASAP and timed) served by a fixed worker pool, interpreting
// scheduled times through a pluggable, optionally listenable clock (v.io/x/sched/clock),
// with well-defined, at-most-once cancellation for every submitted task.
package sched

import (
	"fmt"
	"math"
	"time"

	"v.io/x/sched/clock"
	"v.io/x/sched/nsync"
)

// Scheduler is a virtual-clock-aware task scheduler. Submitted
// Cancellables are queued, then run by a fixed pool of worker goroutines
// (or by the caller, in thread-less mode), in the order spec'd by §4.2's
// priority policy: a due timed entry outranks an ASAP entry, which
// outranks a not-yet-due timed entry.
//
// A Scheduler's queues and state flags are the only mutable shared state;
// every mutation happens under mu, an nsync.Mu, paired with cv, an
// nsync.CV broadcast on every state-flag change, accepted submission,
// finished task, worker exit and clock notification, so workers can
// re-evaluate their wait condition (spec.md §4.6, §5). Removing entries
// by a cancel or a drain does not broadcast.
type Scheduler struct {
	opts Options

	mu nsync.Mu
	cv nsync.CV

	asap  *asapQueue
	timed *timedQueue

	accepting    bool
	processing   bool
	shutdownFlag bool
	nextSeq      int64

	idleWorkers    int
	workingWorkers int
	runningWorkers int

	threadLess bool

	clockRemove func()

	terminalObserver func(TerminalEvent)
}

// TerminalEvent describes a SchedEntry reaching a terminal state. Reason
// is only meaningful when Entry.State() == Cancelled; for a Done entry it
// is completedReason.
type TerminalEvent struct {
	Entry  *SchedEntry
	Reason CancelReason
}

// completedReason marks a TerminalEvent for an entry that ran to
// completion rather than being cancelled.
const completedReason CancelReason = -1

// NewScheduler constructs a Scheduler from opts. It validates opts
// synchronously: a nil Clock, a negative thread count, or a queue
// capacity below capacityUnbounded (-1) is reported as
// ErrInvalidArgument. On success, the scheduler starts with accepting and
// processing both true, and, unless opts.NbrOfThreads is 0 (thread-less
// mode), its worker pool already running.
func NewScheduler(opts Options) (*Scheduler, error) {
	if opts.Clock == nil {
		return nil, fmt.Errorf("%w: Clock is required", ErrInvalidArgument)
	}
	if opts.NbrOfThreads < 0 {
		return nil, fmt.Errorf("%w: NbrOfThreads must be >= 0", ErrInvalidArgument)
	}
	if opts.AsapQueueCapacity < 0 && opts.AsapQueueCapacity != capacityUnbounded {
		return nil, fmt.Errorf("%w: AsapQueueCapacity must be >= 0 or unbounded (-1)", ErrInvalidArgument)
	}
	if opts.TimedQueueCapacity < 0 && opts.TimedQueueCapacity != capacityUnbounded {
		return nil, fmt.Errorf("%w: TimedQueueCapacity must be >= 0 or unbounded (-1)", ErrInvalidArgument)
	}

	s := &Scheduler{
		opts:       opts,
		asap:       newASAPQueue(opts.AsapQueueCapacity),
		timed:      newTimedQueue(opts.TimedQueueCapacity),
		accepting:  true,
		processing: true,
		threadLess: opts.NbrOfThreads == 0,
	}
	if lc, ok := opts.Clock.(clock.ListenableClock); ok {
		s.clockRemove = lc.AddListener(func() {
			s.mu.Lock()
			s.cv.Broadcast()
			s.mu.Unlock()
		})
	}
	if !s.threadLess {
		s.spawnWorkers()
	}
	return s, nil
}

// SetTerminalObserver registers f to be called, with no Scheduler lock
// held, whenever an entry reaches Done or Cancelled. It is how the
// metrics and audit packages attach to a live Scheduler without the core
// depending on either.
func (s *Scheduler) SetTerminalObserver(f func(TerminalEvent)) {
	s.mu.Lock()
	s.terminalObserver = f
	s.mu.Unlock()
}

func (s *Scheduler) notifyTerminal(ev TerminalEvent) {
	s.mu.Lock()
	obs := s.terminalObserver
	s.mu.Unlock()
	if obs != nil {
		obs(ev)
	}
}

// ---- submission entry points (spec.md §4.4) ----

// submit validates accepting/shutdown/capacity, assigns a sequence
// number, and either enqueues the task or cancels it synchronously. It
// always returns a non-nil SchedEntry: callers inspect its State() to
// learn whether it is Pending or already Cancelled.
func (s *Scheduler) submit(kind Kind, theoreticalNs int64, task Cancellable) *SchedEntry {
	s.mu.Lock()
	seq := s.nextSeq
	s.nextSeq++
	e := newEntry(kind, theoreticalNs, seq, task)

	var reason CancelReason
	rejected := false
	switch {
	case s.shutdownFlag:
		reason, rejected = RejectShutdown, true
	case !s.accepting:
		reason, rejected = RejectNotAccepting, true
	default:
		var ok bool
		if kind == KindASAP {
			ok = s.asap.tryPush(e)
		} else {
			ok = s.timed.tryPush(e)
		}
		if !ok {
			reason, rejected = RejectQueueFull, true
		}
	}
	if !rejected {
		s.cv.Broadcast()
	}
	s.mu.Unlock()

	if rejected {
		e.cancel(reason)
		s.notifyTerminal(TerminalEvent{Entry: e, Reason: reason})
	}
	return e
}

// Execute submits task to run as soon as a worker is free.
func (s *Scheduler) Execute(task Cancellable) *SchedEntry {
	return s.submit(KindASAP, 0, task)
}

// ExecuteAtNs submits task to run no earlier than theoreticalNs.
func (s *Scheduler) ExecuteAtNs(task Cancellable, theoreticalNs int64) *SchedEntry {
	return s.submit(KindTimed, theoreticalNs, task)
}

// ExecuteAfterNs submits task to run no earlier than delayNs after the
// clock's current time. delayNs is added to the current time with
// saturating arithmetic, so a delay near the int64 extremes clamps
// instead of wrapping.
func (s *Scheduler) ExecuteAfterNs(task Cancellable, delayNs int64) *SchedEntry {
	now := s.opts.Clock.TimeNs()
	return s.submit(KindTimed, clock.AddSaturating(now, delayNs), task)
}

// ExecuteAfterS is ExecuteAfterNs with a seconds-denominated delay. A NaN
// delaySec is rejected synchronously as ErrInvalidArgument; any other
// non-finite or negative delaySec is saturated (see clock.SaturatingNs).
func (s *Scheduler) ExecuteAfterS(task Cancellable, delaySec float64) (*SchedEntry, error) {
	if !clock.IsValidDelaySeconds(delaySec) {
		return nil, fmt.Errorf("%w: delaySec must not be NaN", ErrInvalidArgument)
	}
	now := s.opts.Clock.TimeNs()
	delayNs := clock.SaturatingNs(delaySec)
	return s.submit(KindTimed, clock.AddSaturating(now, delayNs), task), nil
}

// ---- state machine controls (spec.md §4.3) ----

// Start makes the scheduler both accepting and processing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.accepting = true
	s.processing = true
	s.cv.Broadcast()
	s.mu.Unlock()
}

// Stop makes the scheduler neither accepting nor processing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.accepting = false
	s.processing = false
	s.cv.Broadcast()
	s.mu.Unlock()
}

func (s *Scheduler) StartAccepting() { s.setAccepting(true) }
func (s *Scheduler) StopAccepting() { s.setAccepting(false) }

func (s *Scheduler) StartProcessing() { s.setProcessing(true) }
func (s *Scheduler) StopProcessing() { s.setProcessing(false) }

func (s *Scheduler) setAccepting(v bool) {
	s.mu.Lock()
	s.accepting = v
	s.cv.Broadcast()
	s.mu.Unlock()
}

func (s *Scheduler) setProcessing(v bool) {
	s.mu.Lock()
	s.processing = v
	s.cv.Broadcast()
	s.mu.Unlock()
}

// Shutdown sets the one-way shutdown flag: no future submission will be
// accepted, and workers terminate once both queues are empty.
// In-flight and already-pending tasks still run (if processing is true).
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.shutdownFlag = true
	s.cv.Broadcast()
	s.mu.Unlock()
	if s.clockRemove != nil {
		s.clockRemove()
	}
}

// ShutdownNow is Shutdown plus an immediate cancel of both queues. If
// interruptWorking is true, it also delivers an interruption signal
// (cancels each worker's current context) to every worker executing a
// task.
func (s *Scheduler) ShutdownNow(interruptWorking bool) {
	s.Shutdown()
	s.CancelPendingSchedules()
	if interruptWorking {
		s.InterruptWorkers()
	}
}

// ---- bulk cancel and drain (spec.md §4.5) ----

// CancelPendingAsapSchedules cancels every entry currently pending in the
// ASAP queue, in FIFO order, invoking each one's OnCancel. If an OnCancel
// panics, cancellation stops: the panic propagates to the caller, and
// entries not yet reached remain pending. A later call resumes from
// where the previous one stopped.
func (s *Scheduler) CancelPendingAsapSchedules() {
	for {
		s.mu.Lock()
		e, ok := s.asap.popFront()
		s.mu.Unlock()
		if !ok {
			return
		}
		e.cancel(RejectDrained)
		s.notifyTerminal(TerminalEvent{Entry: e, Reason: RejectDrained})
	}
}

// CancelPendingTimedSchedules is CancelPendingAsapSchedules for the timed
// queue, in priority order.
func (s *Scheduler) CancelPendingTimedSchedules() {
	for {
		s.mu.Lock()
		e, ok := s.timed.popMin()
		s.mu.Unlock()
		if !ok {
			return
		}
		e.cancel(RejectDrained)
		s.notifyTerminal(TerminalEvent{Entry: e, Reason: RejectDrained})
	}
}

// CancelPendingSchedules cancels both queues: ASAP first, then timed.
func (s *Scheduler) CancelPendingSchedules() {
	s.CancelPendingAsapSchedules()
	s.CancelPendingTimedSchedules()
}

// CancelEntry cancels e if it is still pending in whichever queue it
// occupies, invoking its OnCancel with RejectDrained. It reports whether
// it found and cancelled e: false means e had already started running,
// already finished, or was already cancelled. This is the targeted
// counterpart to CancelPendingAsapSchedules/CancelPendingTimedSchedules,
// used by callers (such as the process package) that track one specific
// entry rather than wanting to cancel everything pending.
func (s *Scheduler) CancelEntry(e *SchedEntry) bool {
	match := func(q *SchedEntry) bool { return q == e }

	s.mu.Lock()
	var found *SchedEntry
	var ok bool
	if e.Kind() == KindASAP {
		found, ok = s.asap.removeFirstMatching(match)
	} else {
		found, ok = s.timed.removeFirstMatching(match)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	cancelled := found.cancel(RejectDrained)
	if cancelled {
		s.notifyTerminal(TerminalEvent{Entry: found, Reason: RejectDrained})
	}
	return cancelled
}

// DrainPendingAsapRunnablesInto removes every pending ASAP entry and
// passes its underlying Cancellable (not the envelope) to collect,
// without invoking OnCancel. Ownership of those tasks passes to the
// caller.
func (s *Scheduler) DrainPendingAsapRunnablesInto(collect func(Cancellable)) {
	s.mu.Lock()
	entries := s.asap.drainInto(nil)
	s.mu.Unlock()
	for _, e := range entries {
		collect(e.task)
	}
}

// DrainPendingTimedRunnablesInto is DrainPendingAsapRunnablesInto for the
// timed queue, in priority order.
func (s *Scheduler) DrainPendingTimedRunnablesInto(collect func(Cancellable)) {
	s.mu.Lock()
	entries := s.timed.drainInto(nil)
	s.mu.Unlock()
	for _, e := range entries {
		collect(e.task)
	}
}

// ---- observational getters (spec.md §2.8) ----

// Stats is a point-in-time snapshot of a Scheduler's counters and state
// flags, consumed by the metrics package and printed by cmd/schedctl's
// "run" command.
type Stats struct {
	NbrOfPendingAsapSchedules  int
	NbrOfPendingTimedSchedules int
	NbrOfPendingSchedules      int
	NbrOfIdleWorkers           int
	NbrOfWorkingWorkers        int
	NbrOfRunningWorkers        int
	Accepting                  bool
	Processing                 bool
	Shutdown                   bool
}

// Stats returns a consistent snapshot of s's counters and flags.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		NbrOfPendingAsapSchedules:  s.asap.size(),
		NbrOfPendingTimedSchedules: s.timed.size(),
		NbrOfPendingSchedules:      s.asap.size() + s.timed.size(),
		NbrOfIdleWorkers:           s.idleWorkers,
		NbrOfWorkingWorkers:        s.workingWorkers,
		NbrOfRunningWorkers:        s.runningWorkers,
		Accepting:                  s.accepting,
		Processing:                 s.processing,
		Shutdown:                   s.shutdownFlag,
	}
}

// Clock returns the time source s was constructed with, for callers (such
// as the process package) that need to compute a theoretical time
// relative to the scheduler's own notion of "now".
func (s *Scheduler) Clock() clock.Clock { return s.opts.Clock }

func (s *Scheduler) IsAccepting() bool  { return s.Stats().Accepting }
func (s *Scheduler) IsProcessing() bool { return s.Stats().Processing }
func (s *Scheduler) IsShutdown() bool   { return s.Stats().Shutdown }

// ---- timeouts (spec.md §5) ----

// WaitForNoMoreRunningWorkerSystemTimeNs blocks, using wall-clock time,
// until no worker is running (alive), or until timeoutNs elapses. It
// returns whether the condition held. A negative timeoutNs waits without
// a deadline.
func (s *Scheduler) WaitForNoMoreRunningWorkerSystemTimeNs(timeoutNs int64) bool {
	var deadline time.Time
	if timeoutNs < 0 {
		deadline = nsync.NoDeadline
	} else {
		deadline = time.Now().Add(time.Duration(timeoutNs))
	}
	return s.waitNoRunning(deadline)
}

// WaitForNoMoreRunningWorkerClockTimeNs is
// WaitForNoMoreRunningWorkerSystemTimeNs, but timeoutNs is expressed in
// the scheduler's clock time and is converted to a wall-clock wait by
// dividing by the clock's current time-speed. A frozen clock (speed 0)
// waits without a deadline; an infinite speed returns immediately.
func (s *Scheduler) WaitForNoMoreRunningWorkerClockTimeNs(timeoutNs int64) bool {
	speed := s.opts.Clock.TimeSpeed()
	switch {
	case speed <= 0:
		return s.waitNoRunning(nsync.NoDeadline)
	case math.IsInf(speed, 1):
		return s.waitNoRunning(time.Now())
	default:
		sysWaitNs := float64(timeoutNs) / speed
		return s.waitNoRunning(time.Now().Add(time.Duration(sysWaitNs)))
	}
}

func (s *Scheduler) waitNoRunning(deadline time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.runningWorkers > 0 {
		if s.cv.WaitWithDeadline(&s.mu, deadline, nil) != nsync.OK {
			return s.runningWorkers == 0
		}
	}
	return true
}
