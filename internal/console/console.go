// Package console is the terminal stand-in for the search page: a
// line-oriented form for the query fields and a results area that is
// redrawn in full on every update.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const separator = "────────────────────────────────────────"

// ColorEnabled decides whether to emit ANSI colour for mode
// "always", "never" or "auto" (colour only on a terminal).
func ColorEnabled(mode string, f *os.File) bool {
	switch strings.ToLower(mode) {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Terminal writes the results area and the status line to out. It is safe
// for concurrent use.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	status *color.Color
	last   string
}

func NewTerminal(out io.Writer, useColor bool) *Terminal {
	st := color.New(color.FgYellow)
	if useColor {
		st.EnableColor()
	} else {
		st.DisableColor()
	}
	return &Terminal{out: out, status: st}
}

func (t *Terminal) ShowResults(content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = content
	fmt.Fprintf(t.out, "%s\n%s\n", separator, strings.TrimRight(content, "\n"))
}

func (t *Terminal) ShowStatus(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.status.Sprint("! "+msg))
}

// Results returns what the results area currently shows.
func (t *Terminal) Results() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
