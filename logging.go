// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "v.io/x/sched/vlog"

// DefaultUncaughtExceptionHandler logs recovered at Error level. Go has no
// analogue of a platform uncaught-exception handler to forward to once a
// worker's own recover has already caught the panic, so logging is the
// worker's last word on it; the worker itself then either loops for more
// work or terminates, depending on whether recovered is a FatalError.
func DefaultUncaughtExceptionHandler(recovered interface{}) {
	vlog.Errorf("sched: uncaught exception in task: %v", recovered)
}
