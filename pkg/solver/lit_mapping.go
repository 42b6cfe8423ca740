package solver

import (
	"fmt"
	"strings"

	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
)

// DuplicateIdentifier reports two input variables sharing an
// identifier.
type DuplicateIdentifier Identifier

func (e DuplicateIdentifier) Error() string {
	return fmt.Sprintf("duplicate identifier %q in input", Identifier(e))
}

// zeroVariable and zeroConstraint stand in for failed lookups so the
// accessors below always return usable values. The miss itself is
// recorded and surfaces through Error.
type zeroVariable struct{}

var _ Variable = zeroVariable{}

func (zeroVariable) Identifier() Identifier {
	return ""
}

func (zeroVariable) Constraints() []Constraint {
	return nil
}

type zeroConstraint struct{}

var _ Constraint = zeroConstraint{}

func (zeroConstraint) String(subject Identifier) string {
	return ""
}

func (zeroConstraint) apply(cir *logic.C, lits *litMapping, subject Identifier) z.Lit {
	return z.LitNull
}

func (zeroConstraint) order() []Identifier {
	return nil
}

// litMapping translates between the Variables and Constraints of one
// Solve call and the literals of the underlying SAT formula.
type litMapping struct {
	inorder []Variable
	byLit   map[z.Lit]Variable
	byID    map[Identifier]z.Lit
	applied map[z.Lit]AppliedConstraint
	c       *logic.C
	errs    []error
}

// newLitMapping assigns one literal per input variable, applies every
// constraint to the circuit, and indexes the results in both
// directions.
func newLitMapping(variables []Variable) (*litMapping, error) {
	lm := litMapping{
		inorder: variables,
		byLit:   make(map[z.Lit]Variable, len(variables)),
		byID:    make(map[Identifier]z.Lit, len(variables)),
		applied: make(map[z.Lit]AppliedConstraint),
		c:       logic.NewCCap(len(variables)),
	}

	for _, v := range variables {
		m := lm.c.Lit()
		if _, ok := lm.byID[v.Identifier()]; ok {
			return nil, DuplicateIdentifier(v.Identifier())
		}
		lm.byID[v.Identifier()] = m
		lm.byLit[m] = v
	}

	for _, v := range variables {
		for _, cons := range v.Constraints() {
			m := cons.apply(lm.c, &lm, v.Identifier())
			if m == z.LitNull {
				// No SAT representation.
				continue
			}
			lm.applied[m] = AppliedConstraint{
				Variable:   v,
				Constraint: cons,
			}
		}
	}

	return &lm, nil
}

// LitOf returns the positive literal of the identified variable.
func (lm *litMapping) LitOf(id Identifier) z.Lit {
	if m, ok := lm.byID[id]; ok {
		return m
	}
	lm.errs = append(lm.errs, fmt.Errorf("variable %q referenced but not provided", id))
	return z.LitNull
}

// VariableOf returns the variable behind a literal.
func (lm *litMapping) VariableOf(m z.Lit) Variable {
	if v, ok := lm.byLit[m]; ok {
		return v
	}
	lm.errs = append(lm.errs, fmt.Errorf("no variable corresponding to %s", m))
	return zeroVariable{}
}

// ConstraintOf returns the constraint application behind a literal.
func (lm *litMapping) ConstraintOf(m z.Lit) AppliedConstraint {
	if a, ok := lm.applied[m]; ok {
		return a
	}
	lm.errs = append(lm.errs, fmt.Errorf("no constraint corresponding to %s", m))
	return AppliedConstraint{Variable: zeroVariable{}, Constraint: zeroConstraint{}}
}

// Error aggregates every inconsistency recorded over the mapping's
// lifetime. A non-nil result indicates a bug in a constraint
// implementation rather than an unsatisfiable input.
func (lm *litMapping) Error() error {
	if len(lm.errs) == 0 {
		return nil
	}
	msgs := make([]string, len(lm.errs))
	for i, err := range lm.errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("%d errors encountered: %s", len(msgs), strings.Join(msgs, ", "))
}

// AddConstraints teaches the accumulated circuit to g as CNF.
func (lm *litMapping) AddConstraints(g inter.S) {
	lm.c.ToCnf(g)
}

// AssumeConstraints assumes the literal of every applied constraint.
func (lm *litMapping) AssumeConstraints(s inter.S) {
	for m := range lm.applied {
		s.Assume(m)
	}
}

// CardinalityConstrainer builds a sorting network over ms and teaches
// each of its threshold outputs to g. Must be called outside any test
// scope; gini panics when clauses are added inside one.
func (lm *litMapping) CardinalityConstrainer(g inter.Adder, ms []z.Lit) *logic.CardSort {
	base := lm.c.Len()
	cs := lm.c.CardSort(ms)
	seen := make([]int8, base, lm.c.Len())
	for i := range seen {
		seen[i] = 1
	}
	for w := 0; w <= cs.N(); w++ {
		seen, _ = lm.c.CnfSince(g, seen, cs.Leq(w))
	}
	return cs
}

// MandatoryIdentifiers returns the identifiers of every variable
// carrying a Mandatory constraint, in input order.
func (lm *litMapping) MandatoryIdentifiers() []Identifier {
	var ids []Identifier
	for _, v := range lm.inorder {
		for _, cons := range v.Constraints() {
			if _, ok := cons.(mustInclude); ok {
				ids = append(ids, v.Identifier())
				break
			}
		}
	}
	return ids
}

// Variables returns the variables the solver assigned true, in input
// order.
func (lm *litMapping) Variables(g inter.S) []Variable {
	var chosen []Variable
	for _, v := range lm.inorder {
		if g.Value(lm.LitOf(v.Identifier())) {
			chosen = append(chosen, v)
		}
	}
	return chosen
}

// Lits fills dst with the literal of every input variable, reusing
// its backing array when it is large enough.
func (lm *litMapping) Lits(dst []z.Lit) []z.Lit {
	if cap(dst) < len(lm.inorder) {
		dst = make([]z.Lit, 0, len(lm.inorder))
	}
	dst = dst[:0]
	for _, v := range lm.inorder {
		dst = append(dst, lm.LitOf(v.Identifier()))
	}
	return dst
}

// Conflicts maps the solver's explanation of a failure back to the
// applied constraints behind it.
func (lm *litMapping) Conflicts(g inter.Assumable) []AppliedConstraint {
	reasons := g.Why(nil)
	as := make([]AppliedConstraint, 0, len(reasons))
	for _, m := range reasons {
		if a, ok := lm.applied[m]; ok {
			as = append(as, a)
		}
	}
	return as
}
