package textutil

import (
	"os"

	"golang.org/x/term"
)

// TerminalSize returns the row and column size of the controlling terminal of
// the current process, if stdout is one. Returns an error if stdout isn't a
// terminal, or the size can't be determined.
func TerminalSize() (row, col int, err error) {
	col, row, err = term.GetSize(int(os.Stdout.Fd()))
	return row, col, err
}
