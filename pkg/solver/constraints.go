package solver

import (
	"fmt"
	"strings"

	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
)

// A Constraint narrows the solutions a Variable may appear in. apply
// contributes the constraint's clause to the circuit, and order lists
// candidate Identifiers from most to least preferred, when the
// constraint expresses a preference.
type Constraint interface {
	String(subject Identifier) string
	apply(cir *logic.C, lits *litMapping, subject Identifier) z.Lit
	order() []Identifier
}

// AppliedConstraint pairs a Constraint with the Variable it binds.
type AppliedConstraint struct {
	Variable   Variable
	Constraint Constraint
}

func (a AppliedConstraint) String() string {
	return a.Constraint.String(a.Variable.Identifier())
}

func joinIDs(ids []Identifier) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}

type mustInclude struct{}

func (mustInclude) String(subject Identifier) string {
	return fmt.Sprintf("%s is mandatory", subject)
}

func (mustInclude) apply(_ *logic.C, lits *litMapping, subject Identifier) z.Lit {
	return lits.LitOf(subject)
}

func (mustInclude) order() []Identifier {
	return nil
}

// Mandatory returns a Constraint satisfied only by solutions that
// include the subject Variable.
func Mandatory() Constraint {
	return mustInclude{}
}

type mustExclude struct{}

func (mustExclude) String(subject Identifier) string {
	return fmt.Sprintf("%s is prohibited", subject)
}

func (mustExclude) apply(_ *logic.C, lits *litMapping, subject Identifier) z.Lit {
	return lits.LitOf(subject).Not()
}

func (mustExclude) order() []Identifier {
	return nil
}

// Prohibited returns a Constraint satisfied only by solutions that
// leave the subject Variable out. Leaving the Variable out of the
// input entirely has the same effect, but applying Prohibited keeps
// it available for conflict reporting.
func Prohibited() Constraint {
	return mustExclude{}
}

type anyOf []Identifier

func (c anyOf) String(subject Identifier) string {
	if len(c) == 0 {
		return fmt.Sprintf("%s has a dependency without any candidates to satisfy it", subject)
	}
	return fmt.Sprintf("%s requires at least one of %s", subject, joinIDs(c))
}

func (c anyOf) apply(cir *logic.C, lits *litMapping, subject Identifier) z.Lit {
	clause := lits.LitOf(subject).Not()
	for _, id := range c {
		clause = cir.Or(clause, lits.LitOf(id))
	}
	return clause
}

func (c anyOf) order() []Identifier {
	return c
}

// Dependency returns a Constraint under which the subject Variable
// can appear only together with at least one of the named candidates.
// Earlier candidates are preferred over later ones during the search.
func Dependency(ids ...Identifier) Constraint {
	return anyOf(ids)
}

type excludes Identifier

func (c excludes) String(subject Identifier) string {
	return fmt.Sprintf("%s conflicts with %s", subject, c)
}

func (c excludes) apply(cir *logic.C, lits *litMapping, subject Identifier) z.Lit {
	return cir.Or(lits.LitOf(subject).Not(), lits.LitOf(Identifier(c)).Not())
}

func (c excludes) order() []Identifier {
	return nil
}

// Conflict returns a Constraint forbidding solutions that contain
// both the subject Variable and the named one.
func Conflict(id Identifier) Constraint {
	return excludes(id)
}

type atMostN struct {
	n   int
	ids []Identifier
}

func (c atMostN) String(subject Identifier) string {
	return fmt.Sprintf("%s permits at most %d of %s", subject, c.n, joinIDs(c.ids))
}

func (c atMostN) apply(cir *logic.C, lits *litMapping, subject Identifier) z.Lit {
	ms := make([]z.Lit, len(c.ids))
	for i, id := range c.ids {
		ms[i] = lits.LitOf(id)
	}
	return cir.CardSort(ms).Leq(c.n)
}

func (c atMostN) order() []Identifier {
	return nil
}

// AtMost returns a Constraint forbidding solutions that contain more
// than n of the named Variables.
func AtMost(n int, ids ...Identifier) Constraint {
	return atMostN{n: n, ids: ids}
}
