package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"vidsub/internal/logging"
	"vidsub/internal/workflow"
)

// progressPrinter renders step progress. Terminals get a single rewritten
// line; other writers get one line per 10% bucket or step change.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	tty     bool
	sampler *logging.ProgressSampler
	width   int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{
		w:       w,
		tty:     shouldColorize(w),
		sampler: logging.NewProgressSampler(10),
	}
}

func (p *progressPrinter) Update(step workflow.Step, percent float64, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := formatProgress(step, percent, detail)
	if !p.tty {
		if p.sampler.Allow(step.String(), percent) {
			fmt.Fprintln(p.w, line)
		}
		return
	}
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	p.width = len(line)
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
}

// Done ends the rewritten line.
func (p *progressPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.width > 0 {
		fmt.Fprintln(p.w)
		p.width = 0
	}
}

func formatProgress(step workflow.Step, percent float64, detail string) string {
	line := fmt.Sprintf("[%s] %3.0f%%", step, clampPercent(percent))
	if detail = strings.TrimSpace(detail); detail != "" {
		line += " " + detail
	}
	return line
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
