// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package audit records a Scheduler's terminal events (a task completed,
// or was cancelled) to a MySQL-backed append-only log. It deliberately
// persists only terminal outcomes, never pending work: a process restart
// always starts from an empty scheduler, and the audit log is strictly a
// historical record for operators, not a recovery mechanism.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"v.io/x/sched"
	"v.io/x/sched/dbutil"
	"v.io/x/sched/vlog"
)

// createTableSQL creates the audit table if absent. kind and state mirror
// sched.Kind/sched.State; reason mirrors sched.CancelReason, with -1
// meaning the entry ran to completion rather than being cancelled.
const createTableSQL = `CREATE TABLE IF NOT EXISTS sched_audit_log (
	id             BIGINT NOT NULL AUTO_INCREMENT,
	seq            BIGINT NOT NULL,
	kind           TINYINT NOT NULL,
	state          TINYINT NOT NULL,
	reason         TINYINT NOT NULL,
	theoretical_ns BIGINT NOT NULL,
	recorded_at    DATETIME NOT NULL,
	PRIMARY KEY (id),
	KEY idx_seq (seq)
) ` + dbutil.SqlCreateTableSuffix

const insertSQL = `INSERT INTO sched_audit_log
	(seq, kind, state, reason, theoretical_ns, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?)`

// Logger appends terminal events to the configured database. The zero
// value is not usable; construct one with Open.
type Logger struct {
	db *sql.DB
}

// Open connects to the MySQL instance described by the JSON configuration
// at sqlConfigFile (see dbutil.SqlConfigFileDescription) and ensures the
// audit table exists.
func Open(sqlConfigFile string) (*Logger, error) {
	db, err := dbutil.NewSqlDBConnFromFile(sqlConfigFile, "READ-COMMITTED")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: failed creating table: %v", err)
	}
	return &Logger{db: db}, nil
}

// Close releases the underlying database connection.
func (l *Logger) Close() error {
	return l.db.Close()
}

// reasonCompleted is the sentinel audit.Observe records for a
// TerminalEvent whose Entry ran to completion rather than being
// cancelled.
const reasonCompleted = -1

// auditReason returns the value recorded in the audit table's reason
// column for ev: reasonCompleted for an entry that ran to completion, or
// ev.Reason for one that was cancelled.
func auditReason(ev sched.TerminalEvent) int {
	if ev.Entry.State() == sched.Cancelled {
		return int(ev.Reason)
	}
	return reasonCompleted
}

// Observe is a sched.Scheduler terminal observer. Register it with
// (*sched.Scheduler).SetTerminalObserver to record every entry that
// reaches Done or Cancelled. A write failure is logged, not returned:
// an observer called from inside the scheduler's worker pool must not
// block progress on the audit database being reachable.
func (l *Logger) Observe(ev sched.TerminalEvent) {
	reason := auditReason(ev)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := l.db.ExecContext(ctx, insertSQL,
		ev.Entry.Seq(), int(ev.Entry.Kind()), int(ev.Entry.State()), reason,
		ev.Entry.TheoreticalNs(), time.Now().UTC())
	if err != nil {
		vlog.Errorf("audit: failed recording entry %d: %v", ev.Entry.Seq(), err)
	}
}
