package compile

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solvo-project/solvo/pkg/lp"
	"github.com/solvo-project/solvo/pkg/model"
	"github.com/solvo-project/solvo/pkg/transform"
)

// Program is a compiled linear program, keeping the row relations so
// slacks and binding constraints can be reported after a solve.
type Program struct {
	Problem     *lp.Problem
	Columns     []string
	Rows        []Row
	Objective   model.LinearForm
	Maximize    bool
	ObjConstant float64
	Tolerance   float64

	// Grid is nil for programs without a horizon.
	Grid *transform.Discretization
}

// Row pairs a constraint instance with its resolved relation.
type Row struct {
	Name     string
	Relation model.Relation
}

// CompileProgram lowers a flattened program into an lp.Problem:
// variables expand into per-member and per-point instances,
// constraints into rows, and the transform's difference equations are
// appended when a horizon is present.
func CompileProgram(flat *model.FlatProgram, logger logrus.FieldLogger) (*Program, error) {
	prog := &Program{
		Problem:   lp.NewProblem(),
		Tolerance: flat.Options.EffectiveTolerance(),
	}

	var equations []transform.Equation
	if flat.Horizon != nil {
		grid, err := transform.New(flat, logger)
		if err != nil {
			return nil, err
		}
		if equations, err = grid.Apply(flat.Variables); err != nil {
			return nil, err
		}
		prog.Grid = grid
	}

	sets := make(map[string][]string, len(flat.Sets))
	for i := range flat.Sets {
		sets[flat.Sets[i].Name] = flat.Sets[i].Members
	}

	for i := range flat.Variables {
		def := &flat.Variables[i]
		for _, member := range instanceMembers(def, sets, prog.Grid) {
			name := model.InstanceName(def.Name, member)
			if err := prog.Problem.AddVariable(name, bound(def.Lower, -1), bound(def.Upper, 1)); err != nil {
				return nil, err
			}
			prog.Columns = append(prog.Columns, name)
		}
	}

	for i := range flat.Constraints {
		def := &flat.Constraints[i]
		instances, err := constraintInstances(def, sets, prog.Grid)
		if err != nil {
			return nil, err
		}
		for _, inst := range instances {
			rel, err := model.BuildRelation(inst)
			if err != nil {
				return nil, err
			}
			if err := rel.Body.Resolve(func(base string) (string, bool) {
				return flat.ResolveName(base, def.Scope)
			}); err != nil {
				return nil, errors.Wrapf(err, "constraint %q", inst.Name)
			}
			if err := prog.addRow(inst.Name, rel); err != nil {
				return nil, err
			}
		}
	}

	for i := range equations {
		if err := prog.addRow(equations[i].Name, &equations[i].Relation); err != nil {
			return nil, err
		}
	}

	if err := prog.setObjective(flat); err != nil {
		return nil, err
	}
	return prog, nil
}

func instanceMembers(def *model.VariableDef, sets map[string][]string, grid *transform.Discretization) []string {
	switch {
	case def.Index != "":
		return sets[def.Index]
	case def.Trajectory():
		return grid.Labels
	default:
		return []string{""}
	}
}

func constraintInstances(def *model.ConstraintDef, sets map[string][]string, grid *transform.Discretization) ([]*model.ConstraintDef, error) {
	if def.ForEach == "" {
		return []*model.ConstraintDef{def}, nil
	}
	var members []string
	switch {
	case sets[def.ForEach] != nil:
		members = sets[def.ForEach]
	case grid != nil && grid.Horizon.Name == def.ForEach:
		members = grid.Labels
	default:
		return nil, fmt.Errorf("constraint %q iterates unknown set %q", def.Name, def.ForEach)
	}
	instances := make([]*model.ConstraintDef, 0, len(members))
	for _, member := range members {
		instances = append(instances, def.Instantiate(member))
	}
	return instances, nil
}

func (p *Program) addRow(name string, rel *model.Relation) error {
	if err := p.Problem.AddRow(name, rel.Body.Coefficients, rel.Lower, rel.Upper); err != nil {
		return err
	}
	p.Rows = append(p.Rows, Row{Name: name, Relation: *rel})
	return nil
}

func (p *Program) setObjective(flat *model.FlatProgram) error {
	obj := flat.Objective
	if obj == nil {
		return nil
	}
	form := model.LinearForm{}
	if obj.Expr != "" {
		parsed, err := model.ParseLinearExpr(obj.Expr)
		if err != nil {
			return errors.Wrap(err, "objective")
		}
		if err := parsed.Resolve(func(base string) (string, bool) {
			return flat.ResolveName(base, "")
		}); err != nil {
			return errors.Wrap(err, "objective")
		}
		form = *parsed
	}
	if obj.Integral != "" {
		name, ok := flat.ResolveName(obj.Integral, "")
		if !ok {
			return fmt.Errorf("objective integral references unknown variable %q", obj.Integral)
		}
		if form.Coefficients == nil {
			form.Coefficients = map[string]float64{}
		}
		for i, w := range p.Grid.TrapezoidWeights() {
			form.Coefficients[model.InstanceName(name, p.Grid.Labels[i])] += w
		}
	}
	p.Objective = form
	p.Maximize = obj.Maximize()
	p.ObjConstant = form.Constant
	if err := p.Problem.SetObjective(form.Coefficients, p.Maximize); err != nil {
		return errors.Wrap(err, "objective")
	}
	return nil
}

// report computes per-row slacks against a solution: the names of
// binding rows, and the exported lslack/uslack suffixes. Unbounded
// sides are omitted from the suffix values.
func (p *Program) report(values map[string]float64) ([]string, []model.Suffix) {
	var binding []string
	lslack := map[string]float64{}
	uslack := map[string]float64{}
	for _, row := range p.Rows {
		body := row.Relation.Body.Value(values)
		if ls := row.Relation.LSlack(body); !math.IsInf(ls, 1) {
			lslack[row.Name] = ls
		}
		if us := row.Relation.USlack(body); !math.IsInf(us, 1) {
			uslack[row.Name] = us
		}
		if row.Relation.Slack(body) <= model.DefaultTolerance {
			binding = append(binding, row.Name)
		}
	}
	suffixes := make([]model.Suffix, 0, 2)
	if len(lslack) > 0 {
		suffixes = append(suffixes, model.Suffix{Name: "lslack", Direction: model.SuffixExport, Values: lslack})
	}
	if len(uslack) > 0 {
		suffixes = append(suffixes, model.Suffix{Name: "uslack", Direction: model.SuffixExport, Values: uslack})
	}
	return binding, suffixes
}

// Stats reports the compiled problem size.
func (p *Program) Stats() Stats {
	s := Stats{Variables: len(p.Columns), Constraints: len(p.Rows)}
	if p.Grid != nil {
		s.Points = len(p.Grid.Points)
	}
	return s
}

func bound(v *float64, sign int) float64 {
	if v == nil {
		return math.Inf(sign)
	}
	return *v
}
