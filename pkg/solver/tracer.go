package solver

import (
	"fmt"
	"io"
)

// SearchPosition is a snapshot of the search at one backtrack point:
// the variables assumed so far and the conflicts that forced the
// backtrack.
type SearchPosition interface {
	Variables() []Variable
	Conflicts() []AppliedConstraint
}

// A Tracer observes the search. Trace is called once per backtrack.
type Tracer interface {
	Trace(p SearchPosition)
}

// DefaultTracer ignores every position.
type DefaultTracer struct{}

func (DefaultTracer) Trace(_ SearchPosition) {
}

// LoggingTracer writes each position to Writer, one line per assumed
// variable and per conflict.
type LoggingTracer struct {
	Writer io.Writer
}

func (t LoggingTracer) Trace(p SearchPosition) {
	fmt.Fprintln(t.Writer, "--- backtrack")
	for _, v := range p.Variables() {
		fmt.Fprintf(t.Writer, "assumed: %s\n", v.Identifier())
	}
	for _, c := range p.Conflicts() {
		fmt.Fprintf(t.Writer, "conflict: %s\n", c)
	}
}
