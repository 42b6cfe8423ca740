package compile

import (
	"context"
	"time"

	"github.com/solvo-project/solvo/pkg/model"
)

// instrumented decorates a solver with an observation callback so
// callers can record metrics without this package importing them.
type instrumented struct {
	delegate Interface
	observe  func(kind, status string, took time.Duration)
}

// Instrumented wraps delegate, reporting every solve's kind, outcome
// status ("error" on failure), and duration to observe.
func Instrumented(delegate Interface, observe func(kind, status string, took time.Duration)) Interface {
	return &instrumented{delegate: delegate, observe: observe}
}

func (i *instrumented) Solve(ctx context.Context, doc *model.Document) (*Result, error) {
	start := time.Now()
	result, err := i.delegate.Solve(ctx, doc)
	status := "error"
	if err == nil {
		status = string(result.Status)
	}
	i.observe(doc.Kind, status, time.Since(start))
	return result, err
}
