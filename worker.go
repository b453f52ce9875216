// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"context"
	"math"
	"sync"
	"time"

	"v.io/x/sched/internal/gid"
)

// workerSlot records, for one worker goroutine, which Scheduler owns it
// and the cancellation context of whatever task it is currently running
// (nil between tasks). It is keyed in the global workerRegistry by the
// goroutine's runtime id, since Go has no goroutine-local storage.
type workerSlot struct {
	owner *Scheduler

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// workerRegistry maps a goroutine id (gid.Current()) to the workerSlot
// for that goroutine, for every goroutine currently running as a worker
// of some Scheduler (including a thread-less scheduler's
// StartAndWorkInCurrentThread caller). It backs IsWorkerThread and
// InterruptWorkers.
var workerRegistry sync.Map // int64 -> *workerSlot

// FatalError marks a panic value recovered from a task's Run as
// non-recoverable: the worker that catches one logs it and terminates
// instead of looping back for more work, shrinking the pool by one. Most
// genuinely fatal Go runtime conditions (stack overflow, an out-of-memory
// kill) cannot be intercepted by recover at all; FatalError only covers a
// task that wants to signal "this worker must not run anything else".
type FatalError interface {
	error
	SchedFatal()
}

// spawnWorkers starts opts.NbrOfThreads worker goroutines. Called once,
// from NewScheduler, only when NbrOfThreads > 0.
func (s *Scheduler) spawnWorkers() {
	for i := 0; i < s.opts.NbrOfThreads; i++ {
		s.mu.Lock()
		s.runningWorkers++
		s.mu.Unlock()
		go s.workerLoop()
	}
}

// workerLoop is the body of one background worker goroutine: register,
// then alternate between waiting for an entry and running it, until
// waitForEntry reports there is nothing left to do, or a task panics with
// a FatalError.
func (s *Scheduler) workerLoop() {
	slot := &workerSlot{owner: s}
	workerRegistry.Store(gid.Current(), slot)
	defer workerRegistry.Delete(gid.Current())
	defer s.workerTerminated()

	for {
		e, ok := s.waitForEntry()
		if !ok {
			return
		}
		if !s.runEntry(slot, e) {
			return
		}
	}
}

// StartAndWorkInCurrentThread runs the worker loop synchronously on the
// calling goroutine. It is the only way a thread-less Scheduler (one
// constructed with Options.NbrOfThreads == 0) makes progress: the caller
// blocks until shutdown drains both queues.
func (s *Scheduler) StartAndWorkInCurrentThread() {
	slot := &workerSlot{owner: s}
	workerRegistry.Store(gid.Current(), slot)
	defer workerRegistry.Delete(gid.Current())

	s.mu.Lock()
	s.runningWorkers++
	s.mu.Unlock()
	defer s.workerTerminated()

	for {
		e, ok := s.waitForEntry()
		if !ok {
			return
		}
		if !s.runEntry(slot, e) {
			return
		}
	}
}

func (s *Scheduler) workerTerminated() {
	s.mu.Lock()
	s.runningWorkers--
	s.cv.Broadcast()
	s.mu.Unlock()
}

// waitForEntry implements the cooperative wait/wake loop of spec.md §4.6:
// a due timed entry outranks an ASAP entry, which outranks a not-yet-due
// timed entry; absent either, the worker sleeps until woken by a
// submission, a state change, a clock listener firing, or
// maxSystemWaitTimeNs elapsing, whichever comes first. It returns
// (nil, false) once shutdown has been requested and both queues are
// empty: the signal for the worker to exit.
func (s *Scheduler) waitForEntry() (*SchedEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.shutdownFlag && s.asap.size() == 0 && s.timed.size() == 0 {
			return nil, false
		}

		if s.processing {
			now, speed := snapshotClock(s.opts.Clock)

			if min, ok := s.timed.peekMin(); ok {
				if min.theoreticalNs <= now || math.IsInf(speed, 1) {
					e, _ := s.timed.popMin()
					s.workingWorkers++
					return e, true
				}
			}
			if e, ok := s.asap.popFront(); ok {
				s.workingWorkers++
				return e, true
			}

			deadline := s.computeWaitDeadlineLocked(now, speed)
			s.idleWorkers++
			s.cv.WaitWithDeadline(&s.mu, deadline, nil)
			s.idleWorkers--
			continue
		}

		// Not processing: nothing to pop regardless of queue contents.
		// Sleep until a state change wakes us, re-checking periodically.
		s.idleWorkers++
		s.cv.WaitWithDeadline(&s.mu, time.Now().Add(s.opts.maxSystemWait()), nil)
		s.idleWorkers--
	}
}

// computeWaitDeadlineLocked picks the absolute wall-clock deadline for
// the next CV wait, given a clock snapshot already known not to have a
// due timed entry: the earlier of maxSystemWaitTimeNs from now, and the
// system-time equivalent of the timed queue's nearest deadline, scaled by
// the clock's current speed. s.mu must be held.
func (s *Scheduler) computeWaitDeadlineLocked(nowNs int64, speed float64) time.Time {
	maxWait := s.opts.maxSystemWait()
	deadline := time.Now().Add(maxWait)

	min, ok := s.timed.peekMin()
	if !ok || speed <= 0 {
		// No timed entry, or the clock is frozen: no amount of waiting
		// gets any closer, so fall back to the periodic re-evaluation
		// bound (a clock listener or submission still wakes us sooner).
		return deadline
	}
	remainingNs := min.theoreticalNs - nowNs
	if remainingNs <= 0 {
		return time.Now()
	}
	sysWaitNs := float64(remainingNs) / speed
	if sysWaitNs < float64(maxWait) {
		deadline = time.Now().Add(time.Duration(sysWaitNs))
	}
	return deadline
}

// snapshotClock reads TimeNs and TimeSpeed together when the Clock
// implementation supports it (as clock.Virtual does), to avoid a worker
// observing a torn (time, speed) pair; otherwise it reads them
// sequentially.
func snapshotClock(c interface {
	TimeNs() int64
	TimeSpeed() float64
}) (int64, float64) {
	if snap, ok := c.(interface{ Snapshot() (int64, float64) }); ok {
		return snap.Snapshot()
	}
	return c.TimeNs(), c.TimeSpeed()
}

// runEntry runs e's task under slot's registered context, recovering any
// panic through the configured UncaughtExceptionHandler (unless it
// implements FatalError, in which case the worker terminates). It returns
// whether the worker should continue looping.
func (s *Scheduler) runEntry(slot *workerSlot, e *SchedEntry) (continueLoop bool) {
	ctx, cancel := context.WithCancel(context.Background())
	slot.mu.Lock()
	slot.ctx, slot.cancel = ctx, cancel
	slot.mu.Unlock()

	continueLoop = true
	func() {
		defer func() {
			if r := recover(); r != nil {
				if fe, ok := r.(FatalError); ok {
					continueLoop = false
					s.reportUncaught(fe)
					return
				}
				s.reportUncaught(r)
			}
		}()
		e.run()
	}()

	cancel()
	slot.mu.Lock()
	slot.ctx, slot.cancel = nil, nil
	slot.mu.Unlock()

	s.notifyTerminal(TerminalEvent{Entry: e, Reason: completedReason})

	s.mu.Lock()
	s.workingWorkers--
	s.cv.Broadcast()
	s.mu.Unlock()

	return continueLoop
}

// reportUncaught delivers r to the configured UncaughtExceptionHandler.
func (s *Scheduler) reportUncaught(r interface{}) {
	s.opts.uncaughtHandler()(r)
}

// RunRecovered runs f on the calling goroutine, recovering any panic and
// delivering it to the same UncaughtExceptionHandler a worker's panicking
// task is routed through in runEntry. Unlike runEntry it does not special-
// case FatalError: the calling goroutine is not a scheduler worker, so
// there is no worker pool slot to shrink. It exists for callers, such as
// package process, that must finish running a hook synchronously on their
// own goroutine (rather than via a queued submission a worker may never
// pick up, e.g. in a thread-less Scheduler) while still funnelling a panic
// through the Scheduler's single uncaught-exception path.
func (s *Scheduler) RunRecovered(f func()) {
	defer func() {
		if r := recover(); r != nil {
			s.reportUncaught(r)
		}
	}()
	f()
}

// IsWorkerThread reports whether the calling goroutine is currently
// running as one of s's workers.
func (s *Scheduler) IsWorkerThread() bool {
	v, ok := workerRegistry.Load(gid.Current())
	if !ok {
		return false
	}
	return v.(*workerSlot).owner == s
}

// CheckIsWorkerThread panics with ErrConcurrentModification unless the
// calling goroutine is one of s's workers.
func (s *Scheduler) CheckIsWorkerThread() {
	if !s.IsWorkerThread() {
		panic(ErrConcurrentModification)
	}
}

// CheckIsNotWorkerThread panics with ErrIllegalState if the calling
// goroutine is one of s's workers.
func (s *Scheduler) CheckIsNotWorkerThread() {
	if s.IsWorkerThread() {
		panic(ErrIllegalState)
	}
}

// CurrentTaskContext returns the context.Context associated with the task
// currently running on the calling worker goroutine, and true, if any; a
// task that wants to notice InterruptWorkers should select on its Done
// channel. It returns (nil, false) outside of a running task.
func (s *Scheduler) CurrentTaskContext() (context.Context, bool) {
	v, ok := workerRegistry.Load(gid.Current())
	if !ok {
		return nil, false
	}
	slot := v.(*workerSlot)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.owner != s || slot.ctx == nil {
		return nil, false
	}
	return slot.ctx, true
}

// InterruptWorkers delivers an interruption signal to every worker of s
// currently executing a task, by cancelling that task's context. Go has
// no equivalent of interrupting an OS thread mid-instruction, so a task
// that never checks its context's Done channel will run to completion
// regardless; this is the same caveat context.Context carries everywhere
// else in Go. It also broadcasts s's condition variable, so idle workers
// re-evaluate their wait (there being nothing new to do, they simply
// sleep again).
func (s *Scheduler) InterruptWorkers() {
	workerRegistry.Range(func(_, v interface{}) bool {
		slot := v.(*workerSlot)
		slot.mu.Lock()
		if slot.owner == s && slot.cancel != nil {
			slot.cancel()
		}
		slot.mu.Unlock()
		return true
	})
	s.mu.Lock()
	s.cv.Broadcast()
	s.mu.Unlock()
}
