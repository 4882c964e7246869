package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/JaimeStill/warden/internal/verification"
	"github.com/JaimeStill/warden/pkg/progress"
)

const barWidth = 30

// progressPrinter renders processing snapshots. On a terminal it redraws a
// single line; elsewhere it prints one line per status change.
type progressPrinter struct {
	w        io.Writer
	name     string
	terminal bool
	last     verification.Status
	drawn    bool
}

func newProgressPrinter(w io.Writer, name string) *progressPrinter {
	return &progressPrinter{w: w, name: name, terminal: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *progressPrinter) update(snap verification.Snapshot) {
	if !p.terminal {
		if snap.Status != p.last {
			fmt.Fprintf(p.w, "%s: %s\n", p.name, snap.Status)
		}
		p.last = snap.Status
		return
	}

	if snap.Status != verification.StatusProcessing || snap.Progress == nil {
		p.last = snap.Status
		return
	}

	fmt.Fprintf(p.w, "\r\033[K%s", progressLine(p.name, *snap.Progress))
	p.drawn = true
	p.last = snap.Status
}

// finish terminates the redrawn line so later output starts clean.
func (p *progressPrinter) finish() {
	if p.terminal && p.drawn {
		fmt.Fprint(p.w, "\r\033[K")
	}
}

func progressLine(name string, st progress.State) string {
	filled := int(st.Percent / 100 * barWidth)
	filled = max(0, min(barWidth, filled))

	line := fmt.Sprintf("%s [%s%s] %3.0f%%",
		name,
		strings.Repeat("#", filled),
		strings.Repeat(".", barWidth-filled),
		st.Percent,
	)
	if st.ETASeconds != nil {
		line += fmt.Sprintf("  ~%ds left", *st.ETASeconds)
	}
	return line
}
