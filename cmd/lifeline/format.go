package main

import (
	"io"
	"os"

	"github.com/zulandar/lifeline/internal/models"
	"golang.org/x/term"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// painter colours terminal output. It is a no-op when the writer is not a
// terminal or NO_COLOR is set.
type painter struct {
	on bool
}

func newPainter(w io.Writer) painter {
	if os.Getenv("NO_COLOR") != "" {
		return painter{}
	}
	f, ok := w.(*os.File)
	return painter{on: ok && term.IsTerminal(int(f.Fd()))}
}

func (p painter) paint(color, s string) string {
	if !p.on {
		return s
	}
	return color + s + ansiReset
}

// status colours an event status by severity.
func (p painter) status(s models.EventStatus) string {
	switch s {
	case models.StatusSent:
		return p.paint(ansiGreen, string(s))
	case models.StatusPartiallySent:
		return p.paint(ansiYellow, string(s))
	case models.StatusFailed:
		return p.paint(ansiRed, string(s))
	case models.StatusActive:
		return p.paint(ansiCyan, string(s))
	}
	return string(s)
}

// outcome colours a dispatch outcome status.
func (p painter) outcome(s models.OutcomeStatus) string {
	switch s {
	case models.OutcomeSent:
		return p.paint(ansiGreen, string(s))
	case models.OutcomeFailed:
		return p.paint(ansiRed, string(s))
	}
	return p.paint(ansiYellow, string(s))
}

// usable renders a channel usability flag.
func (p painter) usable(ok bool) string {
	if ok {
		return p.paint(ansiGreen, "usable")
	}
	return p.paint(ansiRed, "disabled")
}

// outcomeDetail returns the message, error, or skip reason of o.
func outcomeDetail(o models.DispatchOutcome) string {
	switch o.Status {
	case models.OutcomeSent:
		return o.ProviderMessageID
	case models.OutcomeFailed:
		return o.ErrorDetail
	}
	return o.SkipReason
}
