// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"time"

	"v.io/x/sched/clock"
)

// UncaughtExceptionHandler receives panics recovered from a task's Run,
// OnCancel, or a process hook, together with the recovered value.
// DefaultUncaughtExceptionHandler logs it; a worker continues looping
// afterward unless the recovered value is a FatalError.
type UncaughtExceptionHandler func(recovered interface{})

// Options configures a Scheduler. Clock (required) and
// UncaughtExceptionHandler (optional; nil selects the default) are set in
// code, but the remaining, scalar fields are tagged for registration with
// cmd/flagvar.RegisterFlagsInStruct (or its pflag-backed wrapper in
// cmd/pflagvar), so a binary can expose them as command-line flags without
// hand-writing flag.Var boilerplate.
type Options struct {
	// Clock is the time source theoretical times are interpreted
	// against. Required; NewScheduler rejects a nil Clock.
	Clock clock.Clock

	// ThreadName prefixes the name given to worker goroutines, for
	// logging and diagnostics.
	ThreadName string `cmdline:"thread-name,,prefix for worker thread identifiers"`

	// Daemon indicates worker goroutines should not be waited on by the
	// process's own shutdown sequence. It is informational in a
	// goroutine-based implementation: neither NewScheduler nor the
	// workers act on it; it is only carried in Options for callers that
	// manage their own process lifecycle.
	Daemon bool `cmdline:"daemon,true,detach worker threads from process lifetime"`

	// NbrOfThreads is the worker pool size. 0 selects thread-less mode:
	// no background goroutines are started, and
	// StartAndWorkInCurrentThread must be called to make progress.
	NbrOfThreads int `cmdline:"nbr-of-threads,4,number of worker threads; 0 selects thread-less mode"`

	// AsapQueueCapacity bounds the ASAP queue; capacityUnbounded (-1)
	// means unbounded.
	AsapQueueCapacity int `cmdline:"asap-queue-capacity,-1,ASAP queue capacity; -1 means unbounded"`

	// TimedQueueCapacity bounds the timed queue; capacityUnbounded (-1)
	// means unbounded.
	TimedQueueCapacity int `cmdline:"timed-queue-capacity,-1,timed queue capacity; -1 means unbounded"`

	// MaxSystemWaitTimeNs upper-bounds any single worker sleep between
	// re-evaluations of its wait condition, in nanoseconds.
	MaxSystemWaitTimeNs int64 `cmdline:"max-system-wait-time-ns,1000000000,upper bound on a worker sleep between re-evaluations"`

	// UncaughtExceptionHandler receives panics escaping user tasks and
	// process hooks. DefaultUncaughtExceptionHandler is used if nil.
	UncaughtExceptionHandler UncaughtExceptionHandler
}

// DefaultOptions returns the documented defaults, with clock required to be
// filled in by the caller before use.
func DefaultOptions(c clock.Clock) Options {
	return Options{
		Clock:               c,
		ThreadName:          "",
		Daemon:              true,
		NbrOfThreads:        4,
		AsapQueueCapacity:   capacityUnbounded,
		TimedQueueCapacity:  capacityUnbounded,
		MaxSystemWaitTimeNs: int64(time.Second),
	}
}

func (o Options) maxSystemWait() time.Duration {
	if o.MaxSystemWaitTimeNs <= 0 {
		return time.Second
	}
	return time.Duration(o.MaxSystemWaitTimeNs)
}

func (o Options) uncaughtHandler() UncaughtExceptionHandler {
	if o.UncaughtExceptionHandler != nil {
		return o.UncaughtExceptionHandler
	}
	return DefaultUncaughtExceptionHandler
}
