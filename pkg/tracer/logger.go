package tracer

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// StreamLogger is the --verbose Logger: one line per syscall entry/exit,
// written to Out. When Out is a terminal it dims each line so trace output
// doesn't compete visually with the traced command's own stdout/stderr.
type StreamLogger struct {
	Out io.Writer
	dim bool
}

// NewStreamLogger builds a Logger writing to out. TTY detection uses
// go-isatty against out's fd when out is an *os.File; anything else (a
// plain file, a buffer in tests) gets undecorated output.
func NewStreamLogger(out io.Writer) *StreamLogger {
	dim := false
	if f, ok := out.(*os.File); ok {
		dim = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &StreamLogger{Out: out, dim: dim}
}

const (
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"
)

func (l *StreamLogger) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if l.dim {
		fmt.Fprintf(l.Out, "%s%s%s\n", ansiDim, line, ansiReset)
		return
	}
	fmt.Fprintln(l.Out, line)
}
