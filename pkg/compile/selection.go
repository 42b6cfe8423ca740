package compile

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solvo-project/solvo/pkg/model"
	"github.com/solvo-project/solvo/pkg/policy"
	"github.com/solvo-project/solvo/pkg/solver"
)

// GroupPrefix namespaces the synthetic variables that carry group
// cardinality constraints away from item identifiers.
const GroupPrefix = "group:"

// Selection is a compiled selection problem: one solver variable per
// item plus a synthetic variable per constrained group.
type Selection struct {
	Variables []solver.Variable

	items     []model.Item
	synthetic map[solver.Identifier]bool
}

type selectionVariable struct {
	id          solver.Identifier
	constraints []solver.Constraint
}

func (v *selectionVariable) Identifier() solver.Identifier {
	return v.id
}

func (v *selectionVariable) Constraints() []solver.Constraint {
	return v.constraints
}

// CompileSelection lowers a flattened selection problem into solver
// variables. Policies are compiled and evaluated here: an item a
// policy rejects is kept but prohibited, so infeasibility
// explanations can still name it.
func CompileSelection(flat *model.FlatSelection, provider policy.EvaluatorProvider, logger logrus.FieldLogger) (*Selection, error) {
	policies, err := policy.Compile(provider, flat.Policies)
	if err != nil {
		return nil, err
	}

	var priorities map[string]float64
	for i := range flat.Suffixes {
		s := &flat.Suffixes[i]
		if s.Exported() {
			logger.Warnf("suffix %q: export direction is ignored for selection problems", s.Name)
		}
		if s.Name == model.SuffixPriority && s.Imported() {
			priorities = s.Values
		}
	}

	weights := make(map[string]float64, len(flat.Items))
	for i := range flat.Items {
		weights[flat.Items[i].ID] = float64(flat.Items[i].Weight)
	}

	sel := &Selection{
		items:     flat.Items,
		synthetic: map[solver.Identifier]bool{},
	}
	for i := range flat.Items {
		item := &flat.Items[i]
		prohibited := item.Prohibited
		for _, p := range policies {
			ok, err := p.Admits(*item)
			if err != nil {
				return nil, errors.Wrapf(err, "policy %q: item %q", p.Name, item.ID)
			}
			if !ok {
				logger.Infof("policy %q prohibits item %q", p.Name, item.ID)
				prohibited = true
			}
		}

		var constraints []solver.Constraint
		if item.Mandatory {
			constraints = append(constraints, solver.Mandatory())
		}
		if prohibited {
			constraints = append(constraints, solver.Prohibited())
		}
		for _, req := range item.Requires {
			constraints = append(constraints, solver.Dependency(orderCandidates(req.AnyOf, priorities, weights)...))
		}
		for _, conflict := range item.Conflicts {
			constraints = append(constraints, solver.Conflict(solver.IdentifierFromString(conflict)))
		}
		sel.Variables = append(sel.Variables, &selectionVariable{
			id:          solver.IdentifierFromString(item.ID),
			constraints: constraints,
		})
	}

	for i := range flat.Groups {
		g := &flat.Groups[i]
		if g.Inert() {
			continue
		}
		members := make([]solver.Identifier, len(g.Members))
		for j, m := range g.Members {
			members[j] = solver.IdentifierFromString(m)
		}
		id := solver.IdentifierFromString(GroupPrefix + g.ID)
		sel.synthetic[id] = true
		sel.Variables = append(sel.Variables, &selectionVariable{
			id:          id,
			constraints: []solver.Constraint{solver.AtMost(g.Limit(), members...)},
		})
	}
	return sel, nil
}

// orderCandidates sorts anyOf candidates by priority then weight,
// both descending, keeping the listed order for ties.
func orderCandidates(anyOf []string, priorities, weights map[string]float64) []solver.Identifier {
	ordered := make([]string, len(anyOf))
	copy(ordered, anyOf)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := priorities[ordered[i]], priorities[ordered[j]]
		if pi != pj {
			return pi > pj
		}
		return weights[ordered[i]] > weights[ordered[j]]
	})
	ids := make([]solver.Identifier, len(ordered))
	for i, id := range ordered {
		ids[i] = solver.IdentifierFromString(id)
	}
	return ids
}

// SelectedIDs filters synthetic group variables out of a solver
// result and returns the item ids in declaration order.
func (s *Selection) SelectedIDs(selected []solver.Variable) []string {
	order := make(map[string]int, len(s.items))
	for i := range s.items {
		order[s.items[i].ID] = i
	}
	ids := make([]string, 0, len(selected))
	for _, v := range selected {
		if s.synthetic[v.Identifier()] {
			continue
		}
		ids = append(ids, string(v.Identifier()))
	}
	sort.Slice(ids, func(i, j int) bool {
		return order[ids[i]] < order[ids[j]]
	})
	return ids
}

// Stats reports the compiled problem size.
func (s *Selection) Stats() Stats {
	constraints := 0
	for _, v := range s.Variables {
		constraints += len(v.Constraints())
	}
	return Stats{Variables: len(s.Variables), Constraints: constraints}
}
