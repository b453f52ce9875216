// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics periodically exports a Scheduler's Stats as custom
// Google Cloud Monitoring gauge metrics, authenticating via the same
// oauth2/google machinery gcm.Authenticate already wraps.
package metrics

import (
	"context"
	"fmt"
	"time"

	cloudmonitoring "google.golang.org/api/monitoring/v3"

	"v.io/x/sched"
	"v.io/x/sched/gcm"
	"v.io/x/sched/vlog"
)

// gauges lists the sched.Stats fields reported each tick, paired with
// their gcm.GetMetric short names and an accessor.
var gauges = []struct {
	name string
	get  func(sched.Stats) int64
}{
	{"sched-pending-asap", func(s sched.Stats) int64 { return int64(s.NbrOfPendingAsapSchedules) }},
	{"sched-pending-timed", func(s sched.Stats) int64 { return int64(s.NbrOfPendingTimedSchedules) }},
	{"sched-workers-idle", func(s sched.Stats) int64 { return int64(s.NbrOfIdleWorkers) }},
	{"sched-workers-working", func(s sched.Stats) int64 { return int64(s.NbrOfWorkingWorkers) }},
	{"sched-workers-running", func(s sched.Stats) int64 { return int64(s.NbrOfRunningWorkers) }},
}

// Reporter periodically pushes a Scheduler's Stats to Cloud Monitoring as
// custom metric time series.
type Reporter struct {
	svc        *cloudmonitoring.Service
	project    string
	instance   string
	sched      *sched.Scheduler
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewReporter authenticates against Cloud Monitoring (using the JSON key
// file at keyFilePath, or application default credentials if empty) and
// returns a Reporter ready to export s's stats under the GCP project
// project, labelled with the given instance name.
func NewReporter(keyFilePath, project, instance string, s *sched.Scheduler) (*Reporter, error) {
	svc, err := gcm.Authenticate(keyFilePath)
	if err != nil {
		return nil, fmt.Errorf("metrics: failed authenticating: %v", err)
	}
	return &Reporter{
		svc:      svc,
		project:  project,
		instance: instance,
		sched:    s,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start launches a background goroutine that exports s.Stats() every
// interval, until Stop is called.
func (r *Reporter) Start(interval time.Duration) {
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				if err := r.reportOnce(); err != nil {
					vlog.Errorf("metrics: export failed: %v", err)
				}
			}
		}
	}()
}

// Stop signals the background goroutine to exit and waits for it to do
// so.
func (r *Reporter) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reporter) reportOnce() error {
	stats := r.sched.Stats()
	now := time.Now().UTC().Format(time.RFC3339)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, g := range gauges {
		md, err := gcm.GetMetric(g.name, r.project)
		if err != nil {
			return err
		}
		ts := &cloudmonitoring.TimeSeries{
			Metric: &cloudmonitoring.Metric{
				Type:   md.Type,
				Labels: map[string]string{"instance": r.instance, "metric_name": g.name},
			},
			Resource: &cloudmonitoring.MonitoredResource{Type: "global"},
			Points: []*cloudmonitoring.Point{{
				Interval: &cloudmonitoring.TimeInterval{EndTime: now},
				Value:    &cloudmonitoring.TypedValue{Int64Value: int64Ptr(g.get(stats))},
			}},
		}
		req := &cloudmonitoring.CreateTimeSeriesRequest{TimeSeries: []*cloudmonitoring.TimeSeries{ts}}
		call := r.svc.Projects.TimeSeries.Create(fmt.Sprintf("projects/%s", r.project), req)
		if _, err := call.Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed writing %s: %v", g.name, err)
		}
	}
	return nil
}

func int64Ptr(v int64) *int64 { return &v }
