// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "sync/atomic"

// Runnable is a task with no cancellation hook.
type Runnable func()

// Cancellable is the uniform task type submitted to a Scheduler: it
// carries a run action and an on-cancel action. At most one of the two is
// ever invoked, and at most once, for a given submission.
type Cancellable interface {
	// Run executes the task. It is called by a worker thread (or, in
	// thread-less mode, by the thread calling StartAndWorkInCurrentThread)
	// once the entry is popped from its queue.
	Run()

	// OnCancel is called instead of Run when the entry is cancelled
	// before it runs: on submission rejection (reason explains why),
	// or on a bulk cancel of still-pending work (including ShutdownNow's).
	// A drain hands entries back without calling OnCancel.
	OnCancel(reason CancelReason)
}

// RunnableCancellable adapts a plain Runnable into a Cancellable whose
// OnCancel is a no-op, matching spec.md's "plain tasks ... are adapted to
// one that is a no-op".
type RunnableCancellable struct {
	RunFn Runnable
}

func (r RunnableCancellable) Run() {
	if r.RunFn != nil {
		r.RunFn()
	}
}

func (RunnableCancellable) OnCancel(CancelReason) {}

// AsCancellable wraps a bare Runnable for submission where a Cancellable is
// expected.
func AsCancellable(run Runnable) Cancellable {
	return RunnableCancellable{RunFn: run}
}

// Kind distinguishes the two queues an entry may occupy.
type Kind int

const (
	KindASAP Kind = iota
	KindTimed
)

// State is the lifecycle stage of a SchedEntry. Transitions are
// non-reversible: Pending -> Running -> Done, or Pending -> Cancelled.
// Done and Cancelled are terminal.
type State int32

const (
	Pending State = iota
	Running
	Done
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SchedEntry is the envelope the scheduler wraps around every submitted
// Cancellable. Each entry is, at any instant, in exactly one queue, being
// executed by exactly one worker, or in a terminal state: never in two
// places, per spec.md's ownership invariant.
type SchedEntry struct {
	kind          Kind
	theoreticalNs int64 // meaningful only for KindTimed
	seq           int64 // assigned monotonically at acceptance, across both queues

	state atomic.Int32

	task Cancellable
}

func newEntry(kind Kind, theoreticalNs, seq int64, task Cancellable) *SchedEntry {
	e := &SchedEntry{kind: kind, theoreticalNs: theoreticalNs, seq: seq, task: task}
	e.state.Store(int32(Pending))
	return e
}

// Kind returns whether e is an ASAP or a timed entry.
func (e *SchedEntry) Kind() Kind { return e.kind }

// TheoreticalNs returns the scheduled instant for a timed entry. Its
// value is unspecified for an ASAP entry.
func (e *SchedEntry) TheoreticalNs() int64 { return e.theoreticalNs }

// Seq returns e's acceptance sequence number, used to break ties between
// entries scheduled for the same theoretical time.
func (e *SchedEntry) Seq() int64 { return e.seq }

// State returns e's current lifecycle stage.
func (e *SchedEntry) State() State { return State(e.state.Load()) }

// tryTransition moves e from "from" to "to" iff it is still in "from",
// returning whether it succeeded. It is the only way state changes, so
// that exactly one of run/cancel wins a race between a worker popping e
// and a concurrent bulk-cancel/drain/shutdown.
func (e *SchedEntry) tryTransition(from, to State) bool {
	return e.state.CompareAndSwap(int32(from), int32(to))
}

// run executes e's task, transitioning Pending -> Running -> Done.
// The caller must have already removed e from its queue.
func (e *SchedEntry) run() {
	if !e.tryTransition(Pending, Running) {
		return
	}
	defer e.state.Store(int32(Done))
	e.task.Run()
}

// cancel transitions e to Cancelled and invokes its OnCancel, unless e
// has already left the Pending state (e.g. a worker is concurrently
// running it). Returns whether this call performed the cancellation.
func (e *SchedEntry) cancel(reason CancelReason) bool {
	if !e.tryTransition(Pending, Cancelled) {
		return false
	}
	e.task.OnCancel(reason)
	return true
}
