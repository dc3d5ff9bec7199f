// Package cli renders recognition output and implements the offline subcommands.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/lexiqai/vocab-recognizer/internal/constraint"
	"github.com/lexiqai/vocab-recognizer/internal/session"
)

// Printer renders hypotheses for a terminal. Partials overwrite the current
// line; finals and their matches get lines of their own.
type Printer struct {
	w         io.Writer
	inPartial bool
}

// NewPrinter writes to w
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Banner announces the session
func (p *Printer) Banner(mode constraint.Mode, terms int) {
	fmt.Fprintf(p.w, "=== listening (%s mode), %d vocabulary terms ===\n", mode, terms)
	fmt.Fprintln(p.w, "speak now, Ctrl+C stops")
	fmt.Fprintln(p.w, strings.Repeat("-", 60))
}

// Hypothesis prints one hypothesis
func (p *Printer) Hypothesis(h session.Hypothesis) error {
	var err error
	switch h.Kind {
	case session.KindPartial:
		_, err = fmt.Fprintf(p.w, "\r[partial] %s", h.Text)
		p.inPartial = true
	case session.KindFinal:
		p.endPartial()
		_, err = fmt.Fprintf(p.w, "[final] %s\n", h.Text)
		if err == nil && len(h.MatchedTerms) > 0 {
			_, err = fmt.Fprintf(p.w, "[matched] %s\n", strings.Join(h.MatchedTerms, ", "))
		}
	}
	return err
}

func (p *Printer) endPartial() {
	if p.inPartial {
		fmt.Fprintln(p.w)
		p.inPartial = false
	}
}

// Stopped ends the output
func (p *Printer) Stopped() {
	p.endPartial()
	fmt.Fprintln(p.w, "recognition stopped")
}

func printMatch(w io.Writer, text string, matched []string) {
	fmt.Fprintf(w, "text: %s\n", text)
	if len(matched) == 0 {
		fmt.Fprintln(w, "no vocabulary terms matched")
		return
	}
	fmt.Fprintf(w, "matched: %s\n", strings.Join(matched, ", "))
}
