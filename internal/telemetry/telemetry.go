// Package telemetry adapts the teacher's ANSI footer/debug idiom
// (src/debug/debug.go) to pipeline/step progress instead of token counts:
// a pinned terminal footer showing the current step and a rolling preview
// of its streamed output, plus a "-d"-gated verbose line tracer.
package telemetry

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Telemetry renders a live footer and, when Enabled, verbose tracing.
// The zero value is disabled and every method is then a no-op, so a
// nil-safe *Telemetry can be wired everywhere regardless of the "-d" flag.
type Telemetry struct {
	Enabled bool

	mu sync.Mutex

	currentStep string
	attempt     int
	stepsDone   int
	stepsTotal  int

	recentLines [3]string
	lineCount   int

	footerReserved bool
}

func (t *Telemetry) termHeight() int {
	_, h, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil || h < 10 {
		return 40
	}
	return h
}

func (t *Telemetry) ensureFooterSpace() {
	if t.footerReserved {
		return
	}
	t.footerReserved = true
	fmt.Fprint(os.Stderr, "\n\n\n\n")
}

func (t *Telemetry) drawFooter(statusLine string) {
	t.ensureFooterSpace()
	h := t.termHeight()
	row := h - 3

	fmt.Fprint(os.Stderr, "\0337")
	for i := 0; i < 3; i++ {
		idx := t.lineCount - 3 + i
		line := ""
		if idx >= 0 {
			line = t.recentLines[idx%3]
		}
		fmt.Fprintf(os.Stderr, "\033[%d;1H\033[2K\033[2m  %s\033[0m", row+i, truncate(line, 76))
	}
	fmt.Fprintf(os.Stderr, "\033[%d;1H\033[2K%s", row+3, statusLine)
	fmt.Fprint(os.Stderr, "\0338")
}

func (t *Telemetry) clearFooter() {
	if !t.footerReserved {
		return
	}
	h := t.termHeight()
	row := h - 3
	for i := 0; i < 4; i++ {
		fmt.Fprintf(os.Stderr, "\033[%d;1H\033[2K", row+i)
	}
	t.footerReserved = false
}

// Cleanup clears the footer. Call from main on exit.
func (t *Telemetry) Cleanup() {
	if t == nil || !t.Enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearFooter()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// StreamText feeds a step's streaming text delta into the preview ring
// buffer, the same shape as the teacher's StreamText.
func (t *Telemetry) StreamText(text string) {
	if t == nil || !t.Enabled {
		return
	}
	parts := strings.Split(text, "\n")
	t.mu.Lock()
	for i, part := range parts {
		if i == 0 && t.lineCount > 0 {
			t.recentLines[(t.lineCount-1)%3] += part
		} else {
			t.recentLines[t.lineCount%3] = part
			t.lineCount++
		}
	}
	t.redrawLocked()
	t.mu.Unlock()
}

// StepStarted records which step is currently running and redraws.
func (t *Telemetry) StepStarted(stepID string, attempt, stepsDone, stepsTotal int) {
	if t == nil || !t.Enabled {
		return
	}
	t.mu.Lock()
	t.currentStep = stepID
	t.attempt = attempt
	t.stepsDone = stepsDone
	t.stepsTotal = stepsTotal
	t.recentLines = [3]string{}
	t.lineCount = 0
	t.redrawLocked()
	t.mu.Unlock()
}

func (t *Telemetry) redrawLocked() {
	line := fmt.Sprintf("[pipectl] step %-20s attempt %-3d | %d/%d complete", t.currentStep, t.attempt, t.stepsDone, t.stepsTotal)
	t.drawFooter(line)
}

// Warnf implements agent.Logger, so *Telemetry can be wired directly into
// agent.Driver.Logger.
func (t *Telemetry) Warnf(format string, args ...any) {
	if t == nil || !t.Enabled {
		return
	}
	t.mu.Lock()
	fmt.Fprintf(os.Stderr, "[warn] "+format+"\n", args...)
	t.mu.Unlock()
}

// Log writes a verbose trace line, a no-op unless Enabled.
func (t *Telemetry) Log(format string, args ...any) {
	if t == nil || !t.Enabled {
		return
	}
	t.mu.Lock()
	fmt.Fprintf(os.Stderr, "[debug] "+format+"\n", args...)
	t.mu.Unlock()
}

// LogPrompt dumps a step's effective prompt inside a boxed banner, the
// same layout as the teacher's LogPrompt.
func (t *Telemetry) LogPrompt(stepID string, attempt int, prompt string) {
	if t == nil || !t.Enabled {
		return
	}
	var b strings.Builder
	sep := strings.Repeat("─", 60)
	fmt.Fprintf(&b, "[debug] ┌%s\n", sep)
	fmt.Fprintf(&b, "[debug] │ STEP %s attempt %d\n", stepID, attempt)
	fmt.Fprintf(&b, "[debug] ├%s\n", sep)
	for _, line := range strings.Split(prompt, "\n") {
		fmt.Fprintf(&b, "[debug] │ %s\n", line)
	}
	fmt.Fprintf(&b, "[debug] └%s\n", sep)

	t.mu.Lock()
	fmt.Fprint(os.Stderr, b.String())
	t.mu.Unlock()
}
