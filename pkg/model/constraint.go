package model

import (
	"fmt"
	"math"
	"strings"
)

// Instantiate returns a copy of the definition specialized to one
// forEach member: "$i" is replaced in the expression and in term
// references, and the member is appended to the constraint name.
func (c *ConstraintDef) Instantiate(member string) *ConstraintDef {
	out := *c
	out.Name = InstanceName(c.Name, member)
	out.Expr = strings.ReplaceAll(c.Expr, "$i", member)
	if c.Body != nil {
		body := *c.Body
		body.Terms = make([]Term, len(c.Body.Terms))
		for i, t := range c.Body.Terms {
			t.Variable = strings.ReplaceAll(t.Variable, "$i", member)
			body.Terms[i] = t
		}
		out.Body = &body
	}
	return &out
}

// BuildRelation produces the relation a constraint definition
// describes, either by parsing its expression or by assembling its
// structured body and bounds.
func BuildRelation(def *ConstraintDef) (*Relation, error) {
	switch {
	case def.Expr != "" && def.Body != nil:
		return nil, fmt.Errorf("constraint %q declares both expr and body", def.Name)
	case def.Expr != "":
		if def.Lower != nil || def.Upper != nil || def.Equals != nil {
			return nil, fmt.Errorf("constraint %q mixes expr with explicit bounds", def.Name)
		}
		return ParseRelation(def.Expr)
	case def.Body != nil:
		return bodyRelation(def)
	}
	return nil, fmt.Errorf("constraint %q declares neither expr nor body", def.Name)
}

func bodyRelation(def *ConstraintDef) (*Relation, error) {
	var body LinearForm
	for _, t := range def.Body.Terms {
		body.add(t.Variable, t.Coefficient)
	}
	body.prune()

	r := &Relation{Body: body, Lower: math.Inf(-1), Upper: math.Inf(1)}
	if def.Equals != nil {
		if def.Lower != nil || def.Upper != nil {
			return nil, fmt.Errorf("constraint %q declares equals alongside lower or upper", def.Name)
		}
		v := *def.Equals - def.Body.Constant
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, fmt.Errorf("constraint %q has a non-finite equality bound", def.Name)
		}
		r.Lower, r.Upper, r.Equality = v, v, true
		return r, nil
	}

	// Infinite explicit bounds mean the same as absent ones. A
	// relation left unbounded on both sides is accepted and inert.
	if def.Lower != nil && !math.IsInf(*def.Lower, -1) {
		r.Lower = *def.Lower - def.Body.Constant
	}
	if def.Upper != nil && !math.IsInf(*def.Upper, 1) {
		r.Upper = *def.Upper - def.Body.Constant
	}
	if r.Lower > r.Upper {
		return nil, fmt.Errorf("constraint %q has lower bound %v above upper bound %v", def.Name, r.Lower, r.Upper)
	}
	return r, nil
}

// Resolve rewrites every variable reference in the form through
// resolve, which maps a base name to its qualified form. Instance
// indexes are preserved.
func (f *LinearForm) Resolve(resolve func(string) (string, bool)) error {
	if len(f.Coefficients) == 0 {
		return nil
	}
	out := make(map[string]float64, len(f.Coefficients))
	for name, coeff := range f.Coefficients {
		base, index := SplitInstance(name)
		qualified, ok := resolve(base)
		if !ok {
			return fmt.Errorf("unknown variable %q", base)
		}
		out[InstanceName(qualified, index)] += coeff
	}
	f.Coefficients = out
	return nil
}

// SplitInstance splits an instance name like "x[0.5]" into its base
// name and index. Names without an index return an empty index.
func SplitInstance(name string) (base, index string) {
	i := strings.IndexByte(name, '[')
	if i < 0 || !strings.HasSuffix(name, "]") {
		return name, ""
	}
	return name[:i], name[i+1 : len(name)-1]
}

// InstanceName joins a base name and an index into an instance name.
func InstanceName(base, index string) string {
	if index == "" {
		return base
	}
	return base + "[" + index + "]"
}
