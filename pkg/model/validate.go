package model

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New()

// Validate checks the document's structure, field values, and cross
// references without compiling or solving it.
func (d *Document) Validate() error {
	if d.Metadata.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	switch {
	case d.Selection != nil:
		return validateSelection(d.Selection)
	case d.Program != nil:
		return validateProgram(d.Program)
	}
	return fmt.Errorf("document has no spec")
}

func validateSelection(spec *SelectionSpec) error {
	if err := validate.Struct(spec); err != nil {
		return errors.Wrap(err, "invalid spec")
	}
	flat, err := FlattenSelection(spec)
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	for i := range flat.Policies {
		if seen[flat.Policies[i].Name] {
			return fmt.Errorf("duplicate policy %q", flat.Policies[i].Name)
		}
		seen[flat.Policies[i].Name] = true
	}
	return validateSuffixes(flat.Suffixes)
}

func validateProgram(spec *ProgramSpec) error {
	if err := validate.Struct(spec); err != nil {
		return errors.Wrap(err, "invalid spec")
	}
	flat, err := FlattenProgram(spec)
	if err != nil {
		return err
	}

	sets := map[string]bool{}
	for i := range flat.Sets {
		name := flat.Sets[i].Name
		if sets[name] {
			return fmt.Errorf("duplicate set %q", name)
		}
		sets[name] = true
	}

	if flat.Transform != nil && flat.Horizon == nil {
		return fmt.Errorf("transform declared without a horizon")
	}
	if h := flat.Horizon; h != nil {
		if flat.Transform == nil {
			return fmt.Errorf("transform is required when a horizon is declared")
		}
		if sets[h.Name] {
			return fmt.Errorf("horizon %q collides with a set name", h.Name)
		}
		if h.End <= h.Start {
			return fmt.Errorf("horizon %q must end after it starts", h.Name)
		}
		for _, p := range h.Points {
			if p < h.Start || p > h.End {
				return fmt.Errorf("horizon point %v lies outside [%v, %v]", p, h.Start, h.End)
			}
		}
	}

	defs := make(map[string]*VariableDef, len(flat.Variables))
	for i := range flat.Variables {
		defs[flat.Variables[i].Name] = &flat.Variables[i]
	}
	for i := range flat.Variables {
		v := &flat.Variables[i]
		switch {
		case v.Index != "" && v.Horizon != "":
			return fmt.Errorf("variable %q declares both index and horizon", v.Name)
		case v.Index != "" && !sets[v.Index]:
			return fmt.Errorf("variable %q is indexed by unknown set %q", v.Name, v.Index)
		case v.Horizon != "" && (flat.Horizon == nil || flat.Horizon.Name != v.Horizon):
			return fmt.Errorf("variable %q references unknown horizon %q", v.Name, v.Horizon)
		}
		if v.DerivativeOf != "" {
			if v.Index != "" || v.Horizon != "" {
				return fmt.Errorf("derivative variable %q cannot declare index or horizon", v.Name)
			}
			if flat.Horizon == nil {
				return fmt.Errorf("variable %q declares a derivative but no horizon is declared", v.Name)
			}
		} else if v.Order != 0 {
			return fmt.Errorf("variable %q declares order without derivativeOf", v.Name)
		}
		if v.Lower != nil && v.Upper != nil && *v.Lower > *v.Upper {
			return fmt.Errorf("variable %q has lower bound %v above upper bound %v", v.Name, *v.Lower, *v.Upper)
		}
		if v.Initial != nil && v.Horizon == "" && v.DerivativeOf == "" {
			return fmt.Errorf("variable %q sets initial but is not a horizon variable", v.Name)
		}
	}

	// Derivative chains must bottom out at a trajectory variable
	// within two total orders.
	for i := range flat.Variables {
		v := &flat.Variables[i]
		if v.DerivativeOf == "" {
			continue
		}
		order := v.DerivativeOrder()
		walked := map[string]bool{v.Name: true}
		target := defs[v.DerivativeOf]
		for target != nil && target.DerivativeOf != "" {
			if walked[target.Name] {
				return fmt.Errorf("derivative cycle through %q", target.Name)
			}
			walked[target.Name] = true
			order += target.DerivativeOrder()
			target = defs[target.DerivativeOf]
		}
		if target == nil {
			return fmt.Errorf("variable %q is the derivative of unknown variable %q", v.Name, v.DerivativeOf)
		}
		if target.Horizon == "" {
			return fmt.Errorf("variable %q must derive a horizon variable, but %q is not one", v.Name, target.Name)
		}
		if order > 2 {
			return fmt.Errorf("variable %q has derivative order %d, only orders 1 and 2 are supported", v.Name, order)
		}
	}

	for i := range flat.Constraints {
		c := &flat.Constraints[i]
		switch {
		case c.Expr != "" && c.Body != nil:
			return fmt.Errorf("constraint %q declares both expr and body", c.Name)
		case c.Expr == "" && c.Body == nil:
			return fmt.Errorf("constraint %q declares neither expr nor body", c.Name)
		case c.Expr != "" && (c.Lower != nil || c.Upper != nil || c.Equals != nil):
			return fmt.Errorf("constraint %q mixes expr with explicit bounds", c.Name)
		case c.Equals != nil && (c.Lower != nil || c.Upper != nil):
			return fmt.Errorf("constraint %q declares equals alongside lower or upper", c.Name)
		}
		if c.ForEach != "" && !sets[c.ForEach] && (flat.Horizon == nil || flat.Horizon.Name != c.ForEach) {
			return fmt.Errorf("constraint %q iterates unknown set %q", c.Name, c.ForEach)
		}
		if c.ForEach == "" && usesPlaceholder(c) {
			return fmt.Errorf("constraint %q uses $i without forEach", c.Name)
		}
	}

	if obj := flat.Objective; obj != nil {
		if obj.Expr == "" && obj.Integral == "" {
			return fmt.Errorf("objective declares neither expr nor integral")
		}
		if obj.Integral != "" {
			name, ok := flat.ResolveName(obj.Integral, "")
			if !ok {
				return fmt.Errorf("objective integral references unknown variable %q", obj.Integral)
			}
			def := defs[name]
			if def.Horizon == "" && def.DerivativeOf == "" {
				return fmt.Errorf("objective integral variable %q is not a horizon variable", name)
			}
		}
	}
	return validateSuffixes(flat.Suffixes)
}

func validateSuffixes(suffixes []Suffix) error {
	seen := map[string]bool{}
	for i := range suffixes {
		if seen[suffixes[i].Name] {
			return fmt.Errorf("duplicate suffix %q", suffixes[i].Name)
		}
		seen[suffixes[i].Name] = true
	}
	return nil
}

func usesPlaceholder(c *ConstraintDef) bool {
	if strings.Contains(c.Expr, "$i") {
		return true
	}
	if c.Body != nil {
		for _, t := range c.Body.Terms {
			if strings.Contains(t.Variable, "$i") {
				return true
			}
		}
	}
	return false
}
