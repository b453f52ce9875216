// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clock

import "time"

// Real returns a Clock backed by the process's wall-clock time, running at
// speed 1. It is not listenable: its time never jumps and its speed never
// changes, so there is nothing to notify.
func Real() Clock {
	return realClock{epoch: time.Now()}
}

type realClock struct {
	epoch time.Time
}

func (c realClock) TimeNs() int64 {
	return int64(time.Since(c.epoch))
}

func (realClock) TimeSpeed() float64 {
	return 1
}
