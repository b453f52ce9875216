// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "errors"

// Synchronous errors, returned directly to the caller of a constructor or
// submission entry point.
var (
	// ErrInvalidArgument is returned (wrapped with detail via
	// fmt.Errorf("%w: ...", ErrInvalidArgument)) for malformed
	// constructor or submission arguments: a nil clock, a queue
	// capacity below capacityUnbounded (-1), a negative thread count, or
	// a NaN delay.
	ErrInvalidArgument = errors.New("sched: invalid argument")

	// ErrConcurrentModification is the panic value used by
	// CheckIsWorkerThread when called from a non-worker goroutine.
	ErrConcurrentModification = errors.New("sched: concurrent modification: not called from a worker thread")

	// ErrIllegalState is the panic value used by CheckIsNotWorkerThread
	// when called from a worker goroutine.
	ErrIllegalState = errors.New("sched: illegal state: called from a worker thread")
)

// CancelReason explains why a submitted entry's OnCancel was invoked
// instead of its Run.
type CancelReason int

const (
	// RejectShutdown means the scheduler had already been shut down.
	RejectShutdown CancelReason = iota
	// RejectNotAccepting means the scheduler was not accepting new work.
	RejectNotAccepting
	// RejectQueueFull means the target queue was at capacity.
	RejectQueueFull
	// RejectDrained means the entry was pulled out of its queue by a
	// bulk cancel (including ShutdownNow's) or by CancelEntry, while
	// still pending. A drain does not call OnCancel at all.
	RejectDrained
)

func (r CancelReason) String() string {
	switch r {
	case RejectShutdown:
		return "shutdown"
	case RejectNotAccepting:
		return "not-accepting"
	case RejectQueueFull:
		return "queue-full"
	case RejectDrained:
		return "drained"
	default:
		return "unknown"
	}
}
