// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmdline2

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"v.io/x/sched/textutil"
)

// Env represents the environment for command parsing and running. NewEnv
// returns a default environment based on the operating system; tests
// typically construct one by hand for finer control over Stdin/Stdout/Vars.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Vars   map[string]string // environment variables

	// Usage, if set, prints usage information for the leaf command to w.
	// Main and Parse set this to the usage of whichever command was parsed.
	Usage func(w io.Writer)
}

// NewEnv returns a new Env based on the operating system's stdio and
// environment variables.
func NewEnv() *Env {
	return &Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Vars:   envToMap(os.Environ()),
	}
}

func envToMap(environ []string) map[string]string {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			vars[kv[:i]] = kv[i+1:]
		}
	}
	return vars
}

// UsageErrorf prints the error message represented by the printf-style format
// and args to e.Stderr, followed by e.Usage, and returns ErrUsage.
func (e *Env) UsageErrorf(format string, args ...interface{}) error {
	return usageErrorf(e.Stderr, e.Usage, format, args...)
}

func usageErrorf(w io.Writer, usage func(io.Writer), format string, args ...interface{}) error {
	fmt.Fprint(w, "ERROR: ")
	fmt.Fprintf(w, format, args...)
	fmt.Fprint(w, "\n\n")
	if usage != nil {
		usage(w)
	} else {
		fmt.Fprint(w, "usage error\n")
	}
	return ErrUsage
}

// defaultWidth is used when the terminal width can't be determined.
const defaultWidth = 80

func (e *Env) width() int {
	if width, err := strconv.Atoi(e.Vars["CMDLINE_WIDTH"]); err == nil && width != 0 {
		return width
	}
	if _, width, err := textutil.TerminalSize(); err == nil && width != 0 {
		return width
	}
	return defaultWidth
}

func (e *Env) style() style {
	s := styleCompact
	s.Set(e.Vars["CMDLINE_STYLE"])
	return s
}

// style describes the formatting style for usage descriptions.
type style int

const (
	styleCompact style = iota // default style, good for compact cmdline output
	styleFull                 // similar to compact but shows global flags
	styleGoDoc                // style good for godoc processing
	styleShort                // style good for displaying help of binary subcommands
)

func (s *style) String() string {
	switch *s {
	case styleCompact:
		return "compact"
	case styleFull:
		return "full"
	case styleGoDoc:
		return "godoc"
	case styleShort:
		return "short"
	default:
		panic(fmt.Errorf("unhandled style %d", *s))
	}
}

// Set implements the flag.Value interface method.
func (s *style) Set(value string) error {
	switch value {
	case "", "compact":
		*s = styleCompact
	case "full":
		*s = styleFull
	case "godoc":
		*s = styleGoDoc
	case "short":
		*s = styleShort
	default:
		return fmt.Errorf("unknown style %q", value)
	}
	return nil
}
