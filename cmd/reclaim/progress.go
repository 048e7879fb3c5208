package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/lyallcooper/reclaim/internal/report"
	"github.com/lyallcooper/reclaim/internal/types"
)

// progressInterval is how often the status line is redrawn
const progressInterval = 200 * time.Millisecond

// progressPrinter redraws a single status line on a terminal
type progressPrinter struct {
	w       io.Writer
	enabled bool

	mu   sync.Mutex
	last types.ScanProgress
	seen bool

	done    chan struct{}
	stopped chan struct{}
}

func newProgressPrinter(w io.Writer, enabled bool) *progressPrinter {
	return &progressPrinter{
		w:       w,
		enabled: enabled,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Update records the latest progress signal
func (p *progressPrinter) Update(sp types.ScanProgress) {
	p.mu.Lock()
	p.last = sp
	p.seen = true
	p.mu.Unlock()
}

// Start begins periodically redrawing the status line.
func (p *progressPrinter) Start() {
	if !p.enabled {
		close(p.stopped)
		return
	}
	go func() {
		defer close(p.stopped)
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.print()
			case <-p.done:
				// Leave the terminal clean for the report
				fmt.Fprint(p.w, "\r\033[K")
				return
			}
		}
	}()
}

// Stop ends the display and clears the line
func (p *progressPrinter) Stop() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	<-p.stopped
}

func (p *progressPrinter) print() {
	p.mu.Lock()
	sp, seen := p.last, p.seen
	p.mu.Unlock()
	if !seen {
		return
	}
	fmt.Fprintf(p.w, "\r\033[K%s", report.ProgressLine(sp, time.Now()))
}
