// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package textutil

import (
	"bytes"
	"testing"
)

func TestLineWriterWrapsAtWidth(t *testing.T) {
	var buf bytes.Buffer
	w := NewUTF8LineWriter(&buf, 10)
	w.Write([]byte("the quick brown fox"))
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	want := "the quick\nbrown fox\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLineWriterHardBreakOnNewline(t *testing.T) {
	var buf bytes.Buffer
	w := NewUTF8LineWriter(&buf, 80)
	w.Write([]byte("line one\nline two"))
	w.Flush()
	want := "line one\nline two\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLineWriterNegativeWidthDisablesWrapping(t *testing.T) {
	var buf bytes.Buffer
	w := NewUTF8LineWriter(&buf, -1)
	long := "a very long line that would wrap at any finite width at all"
	w.Write([]byte(long))
	w.Flush()
	want := long + "\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLineWriterIndents(t *testing.T) {
	var buf bytes.Buffer
	w := NewUTF8LineWriter(&buf, 20)
	w.SetIndents("> ", "  ")
	w.Write([]byte("one two three four five"))
	w.Flush()
	want := "> one two three four\n  five\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLineWriterCollapsesWhitespaceRuns(t *testing.T) {
	var buf bytes.Buffer
	w := NewUTF8LineWriter(&buf, 80)
	w.Write([]byte("a   b\t\tc"))
	w.Flush()
	want := "a b c\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLineWriterWidth(t *testing.T) {
	w := NewUTF8LineWriter(&bytes.Buffer{}, 42)
	if got := w.Width(); got != 42 {
		t.Errorf("Width() = %d, want 42", got)
	}
}

func TestLineWriterFlushResetsParagraphIndent(t *testing.T) {
	var buf bytes.Buffer
	w := NewUTF8LineWriter(&buf, 80)
	w.SetIndents("first: ", "rest: ")
	w.Write([]byte("hello"))
	w.Flush()
	w.Write([]byte("world"))
	w.Flush()
	want := "first: hello\nfirst: world\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
