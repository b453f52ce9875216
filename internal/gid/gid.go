// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gid extracts the runtime goroutine id of the calling goroutine.
// Go has no supported API for this; none of the retrieved example
// dependencies provide one either (the one candidate, goroutineid, had no
// source in the retrieval pack), so this parses the header line of
// runtime.Stack's output, a long-standing if inelegant idiom. It is only
// used for the scheduler's infrequent isWorkerThread-style checks, never
// on a hot path.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current returns the calling goroutine's runtime id.
func Current() int64 {
	buf := make([]byte, 64)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, len(buf)*2)
	}
	// Stack traces begin with "goroutine 123 [running]:".
	const prefix = "goroutine "
	buf = bytes.TrimPrefix(buf, []byte(prefix))
	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return -1
	}
	id, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
