// Package compile lowers model documents into solver inputs, runs the
// appropriate solver, and assembles results.
package compile

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solvo-project/solvo/pkg/lp"
	"github.com/solvo-project/solvo/pkg/model"
	"github.com/solvo-project/solvo/pkg/policy"
	"github.com/solvo-project/solvo/pkg/solver"
	"github.com/solvo-project/solvo/pkg/version"
)

// Interface is the solving surface the CLI and server consume.
type Interface interface {
	Solve(ctx context.Context, doc *model.Document) (*Result, error)
}

// Compiler turns documents into results. The zero value works;
// Logger, Tracer, and Provider refine it.
type Compiler struct {
	Logger   logrus.FieldLogger
	Tracer   solver.Tracer
	Provider policy.EvaluatorProvider
}

var _ Interface = (*Compiler)(nil)

// New returns a Compiler logging through logger.
func New(logger logrus.FieldLogger) *Compiler {
	return &Compiler{
		Logger:   logger,
		Provider: policy.NewCelEvaluatorProvider(),
	}
}

func (c *Compiler) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c *Compiler) provider() policy.EvaluatorProvider {
	if c.Provider != nil {
		return c.Provider
	}
	return policy.NewCelEvaluatorProvider()
}

// Solve validates, compiles, and solves the document. Infeasible and
// unbounded outcomes are reported in the result, not as errors.
func (c *Compiler) Solve(ctx context.Context, doc *model.Document) (*Result, error) {
	start := time.Now()
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	result := &Result{
		Name:    doc.Metadata.Name,
		Kind:    doc.Kind,
		Version: version.SolvoVersion,
	}
	var err error
	if result.Fingerprint, err = Fingerprint(doc); err != nil {
		return nil, err
	}

	switch {
	case doc.Selection != nil:
		err = c.solveSelection(ctx, doc.Selection, result)
	default:
		err = c.solveProgram(ctx, doc.Program, result)
	}
	if err != nil {
		return nil, err
	}
	result.Duration = model.Duration{Duration: time.Since(start)}
	return result, nil
}

// Check validates and compiles the document without solving it.
func (c *Compiler) Check(doc *model.Document) error {
	return c.Inspect(io.Discard, doc)
}

// Inspect writes the compiled form of the document: selection
// variables with their constraints, or program columns and rows.
func (c *Compiler) Inspect(w io.Writer, doc *model.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	switch {
	case doc.Selection != nil:
		flat, err := model.FlattenSelection(doc.Selection)
		if err != nil {
			return err
		}
		sel, err := CompileSelection(flat, c.provider(), c.logger())
		if err != nil {
			return err
		}
		for _, v := range sel.Variables {
			fmt.Fprintf(w, "%s\n", v.Identifier())
			for _, constraint := range v.Constraints() {
				fmt.Fprintf(w, "  %s\n", constraint.String(v.Identifier()))
			}
		}
	default:
		flat, err := model.FlattenProgram(doc.Program)
		if err != nil {
			return err
		}
		prog, err := CompileProgram(flat, c.logger())
		if err != nil {
			return err
		}
		sense := model.SenseMinimize
		if prog.Maximize {
			sense = model.SenseMaximize
		}
		fmt.Fprintf(w, "objective: %s %s\n", sense, prog.Objective.String())
		fmt.Fprintln(w, "variables:")
		for _, name := range prog.Columns {
			lower, upper, _ := prog.Problem.Bounds(name)
			fmt.Fprintf(w, "  %s in [%s, %s]\n", name, model.FormatPoint(lower), model.FormatPoint(upper))
		}
		fmt.Fprintln(w, "constraints:")
		for _, row := range prog.Rows {
			fmt.Fprintf(w, "  %s: %s\n", row.Name, row.Relation.String())
		}
	}
	return nil
}

func (c *Compiler) solveSelection(ctx context.Context, spec *model.SelectionSpec, result *Result) error {
	flat, err := model.FlattenSelection(spec)
	if err != nil {
		return err
	}
	sel, err := CompileSelection(flat, c.provider(), c.logger())
	if err != nil {
		return err
	}
	result.Stats = sel.Stats()

	tracer := c.Tracer
	if tracer == nil && flat.Options.TraceEnabled() {
		tracer = solver.LoggingTracer{Writer: os.Stderr}
	}
	opts := []solver.Option{solver.WithInput(sel.Variables)}
	if tracer != nil {
		opts = append(opts, solver.WithTracer(tracer))
	}
	s, err := solver.New(opts...)
	if err != nil {
		return err
	}

	if timeout := flat.Options.EffectiveTimeout(0); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	selected, err := s.Solve(ctx)
	var unsat solver.NotSatisfiable
	switch {
	case errors.As(err, &unsat):
		result.Status = StatusInfeasible
		result.Conflicts = make([]string, 0, len(unsat))
		for _, applied := range unsat {
			result.Conflicts = append(result.Conflicts, applied.String())
		}
		return nil
	case err != nil:
		return err
	}

	result.Status = StatusOptimal
	result.Selected = sel.SelectedIDs(selected)
	return nil
}

func (c *Compiler) solveProgram(ctx context.Context, spec *model.ProgramSpec, result *Result) error {
	flat, err := model.FlattenProgram(spec)
	if err != nil {
		return err
	}
	prog, err := CompileProgram(flat, c.logger())
	if err != nil {
		return err
	}
	result.Stats = prog.Stats()

	if timeout := flat.Options.EffectiveTimeout(0); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		solution *lp.Solution
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		solution, err := prog.Problem.Solve(prog.Tolerance)
		done <- outcome{solution, err}
	}()

	var solution *lp.Solution
	select {
	case <-ctx.Done():
		return ctx.Err()
	case o := <-done:
		switch {
		case errors.Is(o.err, lp.ErrInfeasible):
			result.Status = StatusInfeasible
			return nil
		case errors.Is(o.err, lp.ErrUnbounded):
			result.Status = StatusUnbounded
			return nil
		case o.err != nil:
			return o.err
		}
		solution = o.solution
	}

	result.Status = StatusOptimal
	objective := solution.Objective + prog.ObjConstant
	result.Objective = &objective
	result.Values = solution.Values
	result.Binding, result.Suffixes = prog.report(solution.Values)
	return nil
}
