// Package console renders log lines received from the peer core.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Sink receives one log line annotated with its origin core and level.
type Sink interface {
	Log(origin, level, text string)
}

var (
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Printer writes "[origin/LEVEL] text" lines, coloured by level.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// New returns a Printer on w; nil selects stdout.
func New(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w}
}

func (p *Printer) Log(origin, level, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tag := fmt.Sprintf("[%s/%s]", origin, level)
	switch level {
	case "ERROR":
		red.Fprint(p.w, tag)
	case "WARN":
		yellow.Fprint(p.w, tag)
	case "DEBUG":
		faint.Fprint(p.w, tag)
	default:
		cyan.Fprint(p.w, tag)
	}
	fmt.Fprintf(p.w, " %s\n", text)
}

// Func adapts a function to Sink.
type Func func(origin, level, text string)

func (f Func) Log(origin, level, text string) { f(origin, level, text) }
