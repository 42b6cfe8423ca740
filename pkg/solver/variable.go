// Package solver finds boolean variable assignments that satisfy a
// set of declarative constraints, preferring solutions that include
// earlier-listed candidates and as few extra variables as possible.
package solver

// Identifier distinguishes one Variable from every other in the input
// of a single Solve call.
type Identifier string

func (id Identifier) String() string {
	return string(id)
}

// IdentifierFromString converts s into an Identifier.
func IdentifierFromString(s string) Identifier {
	return Identifier(s)
}

// Variable is the unit of both problems and solutions: a named entity
// with the constraints that govern its inclusion.
type Variable interface {
	Identifier() Identifier
	Constraints() []Constraint
}
