package model

import (
	"fmt"
	"strings"
)

// FlatSelection is a selection problem with its blocks folded away.
// Every component carries its qualified name and every reference is
// resolved to a qualified item ID.
type FlatSelection struct {
	Options  *Options
	Items    []Item
	Groups   []Group
	Policies []Policy
	Suffixes []Suffix
}

// FlatProgram is a linear program with its blocks folded away.
// Constraints keep the scope they were declared in so expression
// identifiers can resolve against the enclosing block first.
type FlatProgram struct {
	Options     *Options
	Sets        []Set
	Horizon     *Horizon
	Variables   []VariableDef
	Constraints []ConstraintDef
	Objective   *Objective
	Transform   *Transform
	Suffixes    []Suffix

	names map[string]bool
}

// ResolveName resolves a variable reference appearing at the given
// block scope, trying the innermost enclosing scope first and falling
// outward to the root.
func (p *FlatProgram) ResolveName(ref, scope string) (string, bool) {
	return resolveRef(ref, scope, p.names)
}

// Declares reports whether name is a declared variable.
func (p *FlatProgram) Declares(name string) bool {
	return p.names[name]
}

// FlattenSelection folds the spec's blocks depth-first into a single
// flat problem. Inactive blocks contribute nothing. The input spec is
// not modified.
func FlattenSelection(spec *SelectionSpec) (*FlatSelection, error) {
	flat := &FlatSelection{
		Options:  spec.Options,
		Policies: spec.Policies,
		Suffixes: spec.Suffixes,
	}

	known := map[string]bool{}
	knownGroups := map[string]bool{}
	knownBlocks := map[string]bool{}
	var itemScopes, groupScopes []string

	var walk func(scope string, s *SelectionSpec) error
	walk = func(scope string, s *SelectionSpec) error {
		if scope != "" {
			switch {
			case s.Options != nil:
				return fmt.Errorf("block %q: options may only be declared at the top level", scope)
			case len(s.Policies) > 0:
				return fmt.Errorf("block %q: policies may only be declared at the top level", scope)
			case len(s.Suffixes) > 0:
				return fmt.Errorf("block %q: suffixes may only be declared at the top level", scope)
			}
		}
		for _, item := range s.Items {
			item.ID = qualify(scope, item.ID)
			if known[item.ID] {
				return fmt.Errorf("duplicate item %q", item.ID)
			}
			known[item.ID] = true
			flat.Items = append(flat.Items, item)
			itemScopes = append(itemScopes, scope)
		}
		for _, group := range s.Groups {
			group.ID = qualify(scope, group.ID)
			if knownGroups[group.ID] {
				return fmt.Errorf("duplicate group %q", group.ID)
			}
			knownGroups[group.ID] = true
			flat.Groups = append(flat.Groups, group)
			groupScopes = append(groupScopes, scope)
		}
		for i := range s.Blocks {
			b := &s.Blocks[i]
			child := qualify(scope, b.Name)
			if knownBlocks[child] {
				return fmt.Errorf("duplicate block %q", child)
			}
			knownBlocks[child] = true
			if !b.Enabled() {
				continue
			}
			if b.Spec == nil {
				return fmt.Errorf("block %q has no spec", child)
			}
			if err := walk(child, b.Spec); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("", spec); err != nil {
		return nil, err
	}

	// Resolve references now that every item is known. Slices are
	// copied so the caller's spec stays untouched.
	for idx := range flat.Items {
		item, scope := &flat.Items[idx], itemScopes[idx]
		if len(item.Requires) > 0 {
			requires := make([]Requirement, len(item.Requires))
			for i, req := range item.Requires {
				anyOf := make([]string, len(req.AnyOf))
				for j, ref := range req.AnyOf {
					resolved, ok := resolveRef(ref, scope, known)
					if !ok {
						return nil, fmt.Errorf("item %q requires unknown item %q", item.ID, ref)
					}
					anyOf[j] = resolved
				}
				requires[i] = Requirement{AnyOf: anyOf}
			}
			item.Requires = requires
		}
		if len(item.Conflicts) > 0 {
			conflicts := make([]string, len(item.Conflicts))
			for i, ref := range item.Conflicts {
				resolved, ok := resolveRef(ref, scope, known)
				if !ok {
					return nil, fmt.Errorf("item %q conflicts with unknown item %q", item.ID, ref)
				}
				conflicts[i] = resolved
			}
			item.Conflicts = conflicts
		}
	}
	for idx := range flat.Groups {
		group, scope := &flat.Groups[idx], groupScopes[idx]
		members := make([]string, len(group.Members))
		for i, ref := range group.Members {
			resolved, ok := resolveRef(ref, scope, known)
			if !ok {
				return nil, fmt.Errorf("group %q includes unknown item %q", group.ID, ref)
			}
			members[i] = resolved
		}
		group.Members = members
	}
	return flat, nil
}

// FlattenProgram folds the spec's blocks depth-first into a single
// flat program. Inactive blocks contribute nothing. The input spec is
// not modified.
func FlattenProgram(spec *ProgramSpec) (*FlatProgram, error) {
	flat := &FlatProgram{
		Options:   spec.Options,
		Sets:      spec.Sets,
		Horizon:   spec.Horizon,
		Objective: spec.Objective,
		Transform: spec.Transform,
		Suffixes:  spec.Suffixes,
		names:     map[string]bool{},
	}

	knownConstraints := map[string]bool{}
	knownBlocks := map[string]bool{}
	var varScopes []string

	var walk func(scope string, s *ProgramSpec) error
	walk = func(scope string, s *ProgramSpec) error {
		if scope != "" {
			switch {
			case s.Options != nil:
				return fmt.Errorf("block %q: options may only be declared at the top level", scope)
			case len(s.Sets) > 0:
				return fmt.Errorf("block %q: sets may only be declared at the top level", scope)
			case s.Horizon != nil:
				return fmt.Errorf("block %q: the horizon may only be declared at the top level", scope)
			case s.Objective != nil:
				return fmt.Errorf("block %q: the objective may only be declared at the top level", scope)
			case s.Transform != nil:
				return fmt.Errorf("block %q: the transform may only be declared at the top level", scope)
			case len(s.Suffixes) > 0:
				return fmt.Errorf("block %q: suffixes may only be declared at the top level", scope)
			}
		}
		for _, v := range s.Variables {
			v.Name = qualify(scope, v.Name)
			if flat.names[v.Name] {
				return fmt.Errorf("duplicate variable %q", v.Name)
			}
			flat.names[v.Name] = true
			flat.Variables = append(flat.Variables, v)
			varScopes = append(varScopes, scope)
		}
		for _, c := range s.Constraints {
			c.Name = qualify(scope, c.Name)
			c.Scope = scope
			if knownConstraints[c.Name] {
				return fmt.Errorf("duplicate constraint %q", c.Name)
			}
			knownConstraints[c.Name] = true
			flat.Constraints = append(flat.Constraints, c)
		}
		for i := range s.Blocks {
			b := &s.Blocks[i]
			child := qualify(scope, b.Name)
			if knownBlocks[child] {
				return fmt.Errorf("duplicate block %q", child)
			}
			knownBlocks[child] = true
			if !b.Enabled() {
				continue
			}
			if b.Spec == nil {
				return fmt.Errorf("block %q has no spec", child)
			}
			if err := walk(child, b.Spec); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("", spec); err != nil {
		return nil, err
	}

	// Derivative references can point at variables declared later or
	// in enclosing blocks, so resolve them after the walk.
	for i := range flat.Variables {
		v := &flat.Variables[i]
		if v.DerivativeOf == "" {
			continue
		}
		resolved, ok := resolveRef(v.DerivativeOf, varScopes[i], flat.names)
		if !ok {
			return nil, fmt.Errorf("variable %q is the derivative of unknown variable %q", v.Name, v.DerivativeOf)
		}
		v.DerivativeOf = resolved
	}
	return flat, nil
}

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

// resolveRef resolves ref against the known names, trying the
// innermost enclosing scope first and falling outward to the root.
func resolveRef(ref, scope string, known map[string]bool) (string, bool) {
	for {
		if candidate := qualify(scope, ref); known[candidate] {
			return candidate, true
		}
		if scope == "" {
			return "", false
		}
		if i := strings.LastIndexByte(scope, '.'); i >= 0 {
			scope = scope[:i]
		} else {
			scope = ""
		}
	}
}
