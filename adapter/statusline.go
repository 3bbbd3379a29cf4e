package adapter

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// StatusSink writes interactive status lines ("Loading page elements...")
// only when the underlying writer is a terminal; otherwise they are
// swallowed so captured logs stay machine-parseable.
type StatusSink struct {
	w           io.Writer
	interactive bool
}

// NewStatusSink wraps w, probing it for terminal-ness.
func NewStatusSink(w io.Writer) *StatusSink {
	interactive := false
	if f, ok := w.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &StatusSink{w: w, interactive: interactive}
}

// Interactive reports whether status lines will be rendered.
func (s *StatusSink) Interactive() bool {
	return s != nil && s.interactive
}

// Line emits one status line when interactive.
func (s *StatusSink) Line(format string, args ...any) {
	if !s.Interactive() {
		return
	}
	fmt.Fprintf(s.w, format+"\n", args...)
}
