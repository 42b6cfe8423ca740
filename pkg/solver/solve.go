package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-air/gini"
	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/z"
)

// Incomplete is returned when the context ends before the search has
// either produced a solution or proven that none exists.
var Incomplete = errors.New("cancelled before a solution could be found")

// NotSatisfiable is an error composed of a minimal set of applied
// constraints that is sufficient to make a solution impossible.
type NotSatisfiable []AppliedConstraint

func (e NotSatisfiable) Error() string {
	const msg = "constraints not satisfiable"
	if len(e) == 0 {
		return msg
	}
	rendered := make([]string, len(e))
	for i, a := range e {
		rendered[i] = a.String()
	}
	return fmt.Sprintf("%s: %s", msg, strings.Join(rendered, ", "))
}

// Solver finds a selection of its input variables that satisfies
// every constraint, anchored on the mandatory ones and grown as
// little as possible beyond them.
type Solver interface {
	Solve(context.Context) ([]Variable, error)
}

// Outcome codes shared with gini's Solve and Test.
const (
	satisfiable   = 1
	unsatisfiable = -1
	unknown       = 0
)

type solver struct {
	sat    inter.S
	lits   *litMapping
	tracer Tracer
	scratch []z.Lit
}

// Solve returns the variables selected for inclusion. When the
// constraints cannot all hold it returns NotSatisfiable; when ctx
// ends first it returns Incomplete.
func (s *solver) Solve(ctx context.Context) (result []Variable, err error) {
	defer func() {
		// A recorded lookup miss means some constraint named a
		// variable that was never provided, so whatever came out
		// of the solve cannot be trusted.
		if lerr := s.lits.Error(); lerr != nil {
			result = nil
			err = lerr
		}
	}()

	s.lits.AddConstraints(s.sat)
	anchors := s.anchorLits()
	s.lits.AssumeConstraints(s.sat)
	s.sat.Assume(anchors...)

	// The baseline test scope keeps the anchor assumptions alive
	// across the searches below.
	var picked map[z.Lit]struct{}
	outcome, _ := s.sat.Test(nil)
	if outcome != satisfiable && outcome != unsatisfiable {
		h := search{s: s.sat, lits: s.lits, tracer: s.tracer}
		outcome, anchors, picked = h.Do(ctx, anchors)
	}

	switch outcome {
	case satisfiable:
		return s.minimize(anchors, picked)
	case unsatisfiable:
		return nil, NotSatisfiable(s.lits.Conflicts(s.sat))
	}
	return nil, Incomplete
}

// anchorLits gathers the literals of every mandatory variable, the
// assumptions each solve starts from.
func (s *solver) anchorLits() []z.Lit {
	ids := s.lits.MandatoryIdentifiers()
	anchors := make([]z.Lit, len(ids))
	for i, id := range ids {
		anchors[i] = s.lits.LitOf(id)
	}
	return anchors
}

// minimize shrinks the model found by the search. Assumed variables
// stay in, variables false in the model are pinned out, and the
// smallest cardinality bound over the remainder that stays
// satisfiable picks the final model.
func (s *solver) minimize(assumed []z.Lit, picked map[z.Lit]struct{}) ([]Variable, error) {
	s.scratch = s.lits.Lits(s.scratch)
	var extras, excluded []z.Lit
	for _, m := range s.scratch {
		if _, ok := picked[m]; ok {
			continue
		}
		if !s.sat.Value(m) {
			excluded = append(excluded, m.Not())
			continue
		}
		extras = append(extras, m)
	}

	// The sorting network adds clauses, so the baseline test scope
	// has to come off before it is built.
	s.sat.Untest()
	cards := s.lits.CardinalityConstrainer(s.sat, extras)
	s.sat.Assume(assumed...)
	s.sat.Assume(excluded...)
	s.lits.AssumeConstraints(s.sat)
	_, s.scratch = s.sat.Test(s.scratch)
	for w := 0; w <= cards.N(); w++ {
		s.sat.Assume(cards.Leq(w))
		if s.sat.Solve() == satisfiable {
			return s.lits.Variables(s.sat), nil
		}
	}
	return nil, errors.New("model lost during cardinality minimization")
}

// New returns a Solver configured by the given options.
func New(options ...Option) (Solver, error) {
	s := solver{sat: gini.New()}
	for _, apply := range options {
		if err := apply(&s); err != nil {
			return nil, err
		}
	}
	if s.lits == nil {
		lits, err := newLitMapping(nil)
		if err != nil {
			return nil, err
		}
		s.lits = lits
	}
	if s.tracer == nil {
		s.tracer = DefaultTracer{}
	}
	return &s, nil
}

// Option configures a Solver under construction.
type Option func(s *solver) error

// WithInput sets the variables to solve over. Duplicate identifiers
// are rejected with DuplicateIdentifier.
func WithInput(input []Variable) Option {
	return func(s *solver) error {
		lits, err := newLitMapping(input)
		if err != nil {
			return err
		}
		s.lits = lits
		return nil
	}
}

// WithTracer arranges for t to observe every backtrack of the search.
func WithTracer(t Tracer) Option {
	return func(s *solver) error {
		s.tracer = t
		return nil
	}
}
