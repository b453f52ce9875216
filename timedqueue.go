// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "container/heap"

// timedQueue is a priority collection of pending timed entries, ordered
// by (theoretical time ascending, sequence number ascending), backed by
// container/heap over a slice.
type timedQueue struct {
	h        timedHeap
	capacity int // capacityUnbounded, or a non-negative limit
}

func newTimedQueue(capacity int) *timedQueue {
	return &timedQueue{capacity: capacity}
}

func (q *timedQueue) size() int { return len(q.h) }

// tryPush inserts e, unless the queue is at capacity.
func (q *timedQueue) tryPush(e *SchedEntry) bool {
	if q.capacity != capacityUnbounded && len(q.h) >= q.capacity {
		return false
	}
	heap.Push(&q.h, e)
	return true
}

// peekMin returns the entry with the smallest (theoreticalNs, seq) key
// without removing it, or (nil, false) if the queue is empty.
func (q *timedQueue) peekMin() (*SchedEntry, bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return q.h[0], true
}

// popMin removes and returns the entry with the smallest key.
func (q *timedQueue) popMin() (*SchedEntry, bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*SchedEntry), true
}

// popNextReady returns the minimum entry if its theoretical time is due
// (<= nowNs); otherwise it returns (nil, nextDeadline, false) so the
// caller can compute a sleep duration until nextDeadline.
func (q *timedQueue) popNextReady(nowNs int64) (e *SchedEntry, nextDeadline int64, ready bool) {
	min, ok := q.peekMin()
	if !ok {
		return nil, 0, false
	}
	if min.theoreticalNs <= nowNs {
		e, _ = q.popMin()
		return e, 0, true
	}
	return nil, min.theoreticalNs, false
}

// drainInto removes every pending entry in priority order and appends it
// to out, returning the extended slice.
func (q *timedQueue) drainInto(out []*SchedEntry) []*SchedEntry {
	for {
		e, ok := q.popMin()
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

// removeFirstMatching removes and returns the highest-priority entry for
// which pred returns true.
func (q *timedQueue) removeFirstMatching(pred func(*SchedEntry) bool) (*SchedEntry, bool) {
	best := -1
	for i, e := range q.h {
		if pred(e) && (best < 0 || q.h.Less(i, best)) {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}
	return heap.Remove(&q.h, best).(*SchedEntry), true
}

// timedHeap implements container/heap.Interface over *SchedEntry, keyed
// by (theoreticalNs, seq).
type timedHeap []*SchedEntry

func (h timedHeap) Len() int { return len(h) }

func (h timedHeap) Less(i, j int) bool {
	if h[i].theoreticalNs != h[j].theoreticalNs {
		return h[i].theoreticalNs < h[j].theoreticalNs
	}
	return h[i].seq < h[j].seq
}

func (h timedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timedHeap) Push(x interface{}) {
	*h = append(*h, x.(*SchedEntry))
}

func (h *timedHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
