package compile

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvo-project/solvo/pkg/model"
)

func floatPtr(v float64) *float64 { return &v }

func compileProgram(t *testing.T, spec *model.ProgramSpec) *Program {
	t.Helper()
	flat, err := model.FlattenProgram(spec)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	prog, err := CompileProgram(flat, logger)
	require.NoError(t, err)
	return prog
}

func TestCompileProgram(t *testing.T) {
	prog := compileProgram(t, &model.ProgramSpec{
		Sets: []model.Set{{Name: "plant", Members: []string{"p1", "p2"}}},
		Variables: []model.VariableDef{
			{Name: "x", Index: "plant", Lower: floatPtr(0)},
			{Name: "cap", Lower: floatPtr(0), Upper: floatPtr(100)},
		},
		Constraints: []model.ConstraintDef{
			{Name: "limit", ForEach: "plant", Expr: "x[$i] <= 40"},
			{
				Name: "demand",
				Body: &model.LinearExpr{Terms: []model.Term{
					{Coefficient: 1, Variable: "x[p1]"},
					{Coefficient: 1, Variable: "x[p2]"},
				}},
				Lower: floatPtr(50),
			},
		},
		Objective: &model.Objective{Sense: model.SenseMinimize, Expr: "2 x[p1] + 3 x[p2]"},
	})

	assert.Equal(t, []string{"x[p1]", "x[p2]", "cap"}, prog.Columns)

	lower, upper, ok := prog.Problem.Bounds("x[p1]")
	require.True(t, ok)
	assert.Equal(t, 0.0, lower)
	assert.True(t, math.IsInf(upper, 1))

	require.Len(t, prog.Rows, 3)
	assert.Equal(t, "limit[p1]", prog.Rows[0].Name)
	assert.Equal(t, "limit[p2]", prog.Rows[1].Name)
	assert.Equal(t, "demand", prog.Rows[2].Name)
	assert.Equal(t, 40.0, prog.Rows[0].Relation.Upper)
	assert.Equal(t, 50.0, prog.Rows[2].Relation.Lower)

	assert.False(t, prog.Maximize)
	assert.Empty(t, cmp.Diff(map[string]float64{"x[p1]": 2, "x[p2]": 3}, prog.Objective.Coefficients))

	stats := prog.Stats()
	assert.Equal(t, 3, stats.Variables)
	assert.Equal(t, 3, stats.Constraints)
	assert.Zero(t, stats.Points)
}

func TestCompileProgramBlockScopes(t *testing.T) {
	active := true
	prog := compileProgram(t, &model.ProgramSpec{
		Variables: []model.VariableDef{{Name: "shared"}},
		Blocks: []model.ProgramBlock{
			{
				Name:   "east",
				Active: &active,
				Spec: &model.ProgramSpec{
					Variables: []model.VariableDef{{Name: "y", Lower: floatPtr(0)}},
					Constraints: []model.ConstraintDef{
						{Name: "cap", Expr: "y + shared <= 10"},
					},
				},
			},
		},
	})

	assert.Equal(t, []string{"shared", "east.y"}, prog.Columns)
	require.Len(t, prog.Rows, 1)
	assert.Equal(t, "east.cap", prog.Rows[0].Name)
	assert.Empty(t, cmp.Diff(map[string]float64{"east.y": 1, "shared": 1}, prog.Rows[0].Relation.Body.Coefficients))
}

func TestCompileProgramHorizon(t *testing.T) {
	prog := compileProgram(t, &model.ProgramSpec{
		Horizon: &model.Horizon{Name: "t", Start: 0, End: 10},
		Variables: []model.VariableDef{
			{Name: "v", Horizon: "t", Initial: floatPtr(10)},
			{Name: "dv", DerivativeOf: "v"},
		},
		Constraints: []model.ConstraintDef{
			{Name: "rate", ForEach: "t", Expr: "dv[$i] == -1"},
		},
		Objective: &model.Objective{Integral: "v"},
		Transform: &model.Transform{Scheme: "backward", NFE: 10},
	})

	require.NotNil(t, prog.Grid)
	assert.Len(t, prog.Columns, 22)
	assert.Contains(t, prog.Columns, "v[0]")
	assert.Contains(t, prog.Columns, "dv[10]")

	// 11 rate instances, 10 difference equations, 1 initial pin
	assert.Len(t, prog.Rows, 22)

	assert.InDelta(t, 0.5, prog.Objective.Coefficients["v[0]"], 1e-12)
	assert.InDelta(t, 1.0, prog.Objective.Coefficients["v[5]"], 1e-12)
	assert.InDelta(t, 0.5, prog.Objective.Coefficients["v[10]"], 1e-12)

	stats := prog.Stats()
	assert.Equal(t, 11, stats.Points)
}

func TestCompileProgramErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("unknown variable in expression", func(t *testing.T) {
		flat, err := model.FlattenProgram(&model.ProgramSpec{
			Variables:   []model.VariableDef{{Name: "x"}},
			Constraints: []model.ConstraintDef{{Name: "c1", Expr: "ghost <= 3"}},
		})
		require.NoError(t, err)

		_, err = CompileProgram(flat, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `constraint "c1"`)
		assert.Contains(t, err.Error(), `unknown variable "ghost"`)
	})

	t.Run("duplicate set member", func(t *testing.T) {
		flat, err := model.FlattenProgram(&model.ProgramSpec{
			Sets:      []model.Set{{Name: "m", Members: []string{"a", "a"}}},
			Variables: []model.VariableDef{{Name: "x", Index: "m"}},
		})
		require.NoError(t, err)

		_, err = CompileProgram(flat, logger)
		require.EqualError(t, err, `duplicate variable "x[a]"`)
	})

	t.Run("unknown forEach target", func(t *testing.T) {
		flat, err := model.FlattenProgram(&model.ProgramSpec{
			Variables:   []model.VariableDef{{Name: "x"}},
			Constraints: []model.ConstraintDef{{Name: "c1", ForEach: "nowhere", Expr: "x <= 1"}},
		})
		require.NoError(t, err)

		_, err = CompileProgram(flat, logger)
		require.EqualError(t, err, `constraint "c1" iterates unknown set "nowhere"`)
	})
}
