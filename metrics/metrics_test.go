// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"

	"v.io/x/sched"
)

func TestGaugesExtractStatsFields(t *testing.T) {
	stats := sched.Stats{
		NbrOfPendingAsapSchedules:  1,
		NbrOfPendingTimedSchedules: 2,
		NbrOfIdleWorkers:           3,
		NbrOfWorkingWorkers:        4,
		NbrOfRunningWorkers:        5,
	}
	want := map[string]int64{
		"sched-pending-asap":    1,
		"sched-pending-timed":   2,
		"sched-workers-idle":    3,
		"sched-workers-working": 4,
		"sched-workers-running": 5,
	}
	if len(gauges) != len(want) {
		t.Fatalf("len(gauges) = %d, want %d", len(gauges), len(want))
	}
	seen := make(map[string]bool)
	for _, g := range gauges {
		seen[g.name] = true
		if got, ok := want[g.name]; !ok {
			t.Errorf("unexpected gauge %q", g.name)
		} else if got2 := g.get(stats); got2 != got {
			t.Errorf("gauge %q extracted %d, want %d", g.name, got2, got)
		}
	}
	for name := range want {
		if !seen[name] {
			t.Errorf("missing gauge %q", name)
		}
	}
}

func TestInt64Ptr(t *testing.T) {
	p := int64Ptr(42)
	if p == nil || *p != 42 {
		t.Errorf("int64Ptr(42) = %v, want pointer to 42", p)
	}
}
