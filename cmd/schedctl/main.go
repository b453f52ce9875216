// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command schedctl runs a sched.Scheduler as a standalone process: it drives
// a synthetic workload against the scheduler, optionally recording terminal
// events to a MySQL audit log and exporting queue/worker gauges to Cloud
// Monitoring, and logs via vlog throughout.
package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/pflag"
	"v.io/x/sched"
	"v.io/x/sched/audit"
	"v.io/x/sched/clock"
	"v.io/x/sched/cmd/pflagvar"
	"v.io/x/sched/cmdline2"
	"v.io/x/sched/metrics"
	"v.io/x/sched/timing"
	"v.io/x/sched/vlog"
)

var opts = sched.DefaultOptions(clock.Real())

var (
	flagWorkloadSize int
	flagSQLConfig    string
	flagGCMProject   string
	flagGCMInstance  string
	flagGCMKeyFile   string
	flagGCMInterval  time.Duration
)

func init() {
	// opts's fields are bound through the POSIX-style pflag.FlagSet
	// cmd/pflagvar targets, then each resulting flag.Value is copied onto
	// cmdRun's stdlib FlagSet, which is what cmdline2 actually parses.
	pfs := pflag.NewFlagSet("schedctl run", pflag.ContinueOnError)
	if err := pflagvar.RegisterFlagsInStruct(pfs, "cmdline", &opts, nil, nil); err != nil {
		panic(err)
	}
	pfs.VisitAll(func(f *pflag.Flag) {
		cmdRun.Flags.Var(f.Value, f.Name, f.Usage)
	})
	cmdRun.Flags.IntVar(&flagWorkloadSize, "workload-size", 16, "number of synthetic tasks to submit")
	cmdRun.Flags.StringVar(&flagSQLConfig, "audit-sql-config", "", "path to a dbutil SqlConfig JSON file; empty disables audit logging")
	cmdRun.Flags.StringVar(&flagGCMProject, "gcm-project", "", "GCP project to export metrics to; empty disables metrics export")
	cmdRun.Flags.StringVar(&flagGCMInstance, "gcm-instance", "", "instance label for exported metrics; defaults to Options.ThreadName")
	cmdRun.Flags.StringVar(&flagGCMKeyFile, "gcm-key-file", "", "JSON key file for Cloud Monitoring auth; empty uses application default credentials")
	cmdRun.Flags.DurationVar(&flagGCMInterval, "gcm-interval", 10*time.Second, "interval between metrics exports")
}

var cmdRun = &cmdline2.Command{
	Name:  "run",
	Short: "Run a scheduler against a synthetic workload",
	Long: `
Run starts a scheduler configured from the given flags, submits a synthetic
workload of ASAP and timed tasks, waits for them all to complete, and reports
the final queue and worker statistics.
`,
	Runner: cmdline2.RunnerFunc(runRun),
}

var cmdRoot = &cmdline2.Command{
	Name:     "schedctl",
	Short:    "Drives a sched.Scheduler from the command line",
	Long:     "Command schedctl runs a sched.Scheduler as a standalone process.",
	Children: []*cmdline2.Command{cmdRun},
}

func main() {
	cmdline2.Main(cmdRoot)
}

func runRun(env *cmdline2.Env, args []string) error {
	timer := timing.NewFullTimer("run")

	if opts.ThreadName == "" {
		opts.ThreadName = "schedctl"
	}
	timer.Push("setup")
	s, err := sched.NewScheduler(opts)
	if err != nil {
		timer.Finish()
		return env.UsageErrorf("failed creating scheduler: %v", err)
	}
	defer s.Shutdown()

	var observers []func(sched.TerminalEvent)
	if flagSQLConfig != "" {
		logger, err := audit.Open(flagSQLConfig)
		if err != nil {
			timer.Finish()
			return fmt.Errorf("schedctl: failed opening audit log: %v", err)
		}
		defer logger.Close()
		observers = append(observers, logger.Observe)
		vlog.Infof("schedctl: recording terminal events to %s", flagSQLConfig)
	}
	done := make(chan struct{}, flagWorkloadSize)
	observers = append(observers, func(ev sched.TerminalEvent) { done <- struct{}{} })
	s.SetTerminalObserver(func(ev sched.TerminalEvent) {
		for _, o := range observers {
			o(ev)
		}
	})

	if flagGCMProject != "" {
		instance := flagGCMInstance
		if instance == "" {
			instance = opts.ThreadName
		}
		reporter, err := metrics.NewReporter(flagGCMKeyFile, flagGCMProject, instance, s)
		if err != nil {
			timer.Finish()
			return fmt.Errorf("schedctl: failed creating metrics reporter: %v", err)
		}
		reporter.Start(flagGCMInterval)
		defer reporter.Stop()
		vlog.Infof("schedctl: exporting metrics to project %s every %s", flagGCMProject, flagGCMInterval)
	}
	timer.Pop() // setup

	timer.Push("workload")
	submitWorkload(s, flagWorkloadSize)
	for i := 0; i < flagWorkloadSize; i++ {
		<-done
	}
	timer.Pop() // workload
	timer.Finish()

	stats := s.Stats()
	fmt.Fprintf(env.Stdout, "completed %d tasks: pending-asap=%d pending-timed=%d idle=%d working=%d running=%d\n",
		flagWorkloadSize, stats.NbrOfPendingAsapSchedules, stats.NbrOfPendingTimedSchedules,
		stats.NbrOfIdleWorkers, stats.NbrOfWorkingWorkers, stats.NbrOfRunningWorkers)
	return (timing.IntervalPrinter{}).Print(env.Stdout, timer.Root())
}

// submitWorkload submits n tasks, split between immediate ASAP work and
// timed work scattered up to a second into the future.
func submitWorkload(s *sched.Scheduler, n int) {
	for i := 0; i < n; i++ {
		i := i
		if i%2 == 0 {
			s.Execute(sched.AsCancellable(func() {
				vlog.Infof("schedctl: asap task %d ran", i)
			}))
			continue
		}
		delayNs := int64(rand.Intn(1e9))
		s.ExecuteAfterNs(sched.AsCancellable(func() {
			vlog.Infof("schedctl: timed task %d ran", i)
		}), delayNs)
	}
}
