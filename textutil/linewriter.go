package textutil

import (
	"io"
	"unicode"
)

// LineWriter is an io.Writer that word-wraps written text to a target width
// in runes, via Write, and flushes the wrapped output to an underlying
// io.Writer via Flush.  Besides wrapping, it supports a pair of indents: the
// first indent is prepended to the first wrapped line since the last Flush,
// and the rest indent is prepended to every line after that.
//
// Runs of whitespace in the written text are collapsed to a single space when
// wrapping, except that an explicit newline forces a line break.  A LineWriter
// is not safe for concurrent use.
type LineWriter struct {
	out    io.Writer
	width  int
	first  string
	rest   string
	dec    UTF8ChunkDecoder
	buf    byteRuneBuffer
	pend   []rune // pending word, not yet known to fit on the current line
	line   []rune // runes accumulated for the line currently being built
	atLine bool   // true once any rune has been placed on the current line
	wrote  bool   // true once any line has been written since the last Flush
	err    error
}

// NewUTF8LineWriter returns a LineWriter that wraps UTF-8 encoded text written
// to it, flushing to out.  A negative width disables wrapping; lines are only
// broken on explicit newlines in the written text.
func NewUTF8LineWriter(out io.Writer, width int) *LineWriter {
	w := &LineWriter{out: out, width: width}
	w.buf.enc = UTF8Encoder{}
	return w
}

// Width returns the configured wrap width.
func (w *LineWriter) Width() int {
	return w.width
}

// SetIndents sets the indent prepended to the first wrapped line (first) and
// to every subsequent line (rest), taking effect starting with the next line.
// SetIndents with no arguments clears both indents.
func (w *LineWriter) SetIndents(indents ...string) {
	w.first, w.rest = "", ""
	if len(indents) > 0 {
		w.first = indents[0]
	}
	if len(indents) > 1 {
		w.rest = indents[1]
	}
}

// Write implements io.Writer, buffering and wrapping text for a later Flush.
func (w *LineWriter) Write(data []byte) (int, error) {
	stream := w.dec.Decode(data)
	for r := stream.Next(); r != EOF; r = stream.Next() {
		w.writeRune(r)
	}
	return stream.BytePos(), w.err
}

func (w *LineWriter) writeRune(r rune) {
	if r == '\n' {
		w.emitPending()
		w.endLine()
		return
	}
	if unicode.IsSpace(r) {
		w.emitPending()
		return
	}
	w.pend = append(w.pend, r)
}

// emitPending places the accumulated pending word onto the current line,
// wrapping to a new line first if it wouldn't fit within width.
func (w *LineWriter) emitPending() {
	if len(w.pend) == 0 {
		return
	}
	extra := 0
	if w.atLine {
		extra = 1 // a separating space before the pending word
	}
	if w.width >= 0 && w.atLine && len(w.currentIndent())+len(w.line)+extra+len(w.pend) > w.width {
		w.endLine()
		extra = 0
	}
	if extra > 0 {
		w.line = append(w.line, ' ')
	}
	w.line = append(w.line, w.pend...)
	w.pend = w.pend[:0]
	w.atLine = true
}

func (w *LineWriter) currentIndent() string {
	if w.wrote {
		return w.rest
	}
	return w.first
}

// endLine flushes the current line (with its indent) to out and starts a new
// one, carrying over the rest indent for any following lines.
func (w *LineWriter) endLine() {
	indent := w.currentIndent()
	if w.err == nil {
		if _, err := io.WriteString(w.out, indent); err != nil {
			w.err = err
		}
	}
	if w.err == nil {
		w.buf.Reset()
		w.buf.WriteString(string(w.line))
		w.buf.WriteRune('\n')
		if _, err := w.out.Write(w.buf.Bytes()); err != nil {
			w.err = err
		}
	}
	w.wrote = true
	w.line = w.line[:0]
	w.atLine = false
}

// Flush wraps and writes any buffered text to the underlying writer, then
// resets the line state (but not the configured indents or width) for the
// next batch of Writes.
func (w *LineWriter) Flush() error {
	w.emitPending()
	if w.atLine {
		w.endLine()
	}
	w.wrote = false
	return w.err
}
