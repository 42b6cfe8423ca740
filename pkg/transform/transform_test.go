package transform

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvo-project/solvo/pkg/model"
)

func flatProgram(h model.Horizon, tr model.Transform) *model.FlatProgram {
	return &model.FlatProgram{Horizon: &h, Transform: &tr}
}

func byName(equations []Equation) map[string]model.Relation {
	out := make(map[string]model.Relation, len(equations))
	for _, eq := range equations {
		out[eq.Name] = eq.Relation
	}
	return out
}

func TestParseScheme(t *testing.T) {
	for _, tt := range []struct {
		description string
		name        string
		expected    Scheme
		err         string
	}{
		{
			description: "empty defaults to backward",
			name:        "",
			expected:    SchemeBackward,
		},
		{
			description: "case insensitive",
			name:        "BACKWARD",
			expected:    SchemeBackward,
		},
		{
			description: "central",
			name:        "Central",
			expected:    SchemeCentral,
		},
		{
			description: "forward",
			name:        "forward",
			expected:    SchemeForward,
		},
		{
			description: "unknown scheme lists the valid ones",
			name:        "upwind",
			err:         `unknown scheme "upwind", expected backward, central, or forward`,
		},
	} {
		t.Run(tt.description, func(t *testing.T) {
			scheme, err := ParseScheme(tt.name)
			if tt.err != "" {
				require.EqualError(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, scheme)
		})
	}
}

func TestGrid(t *testing.T) {
	t.Run("merges explicit points into the uniform grid", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		d, err := New(flatProgram(
			model.Horizon{Name: "t", Start: 0, End: 10, Points: []float64{3, 4}},
			model.Transform{NFE: 5},
		), logger)
		require.NoError(t, err)

		assert.Equal(t, []float64{0, 2, 3, 4, 6, 8, 10}, d.Points)
		assert.Equal(t, []string{"0", "2", "3", "4", "6", "8", "10"}, d.Labels)
		assert.Nil(t, hook.LastEntry())
	})

	t.Run("warns when explicit points outnumber the elements", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		d, err := New(flatProgram(
			model.Horizon{Name: "t", Start: 0, End: 10, Points: []float64{1, 2, 3}},
			model.Transform{NFE: 2},
		), logger)
		require.NoError(t, err)

		assert.Equal(t, []float64{0, 1, 2, 3, 5, 10}, d.Points)
		require.NotNil(t, hook.LastEntry())
		assert.Contains(t, hook.LastEntry().Message, "more than nfe=2")
	})

	t.Run("defaults to ten elements", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		d, err := New(flatProgram(
			model.Horizon{Name: "t", Start: 0, End: 1},
			model.Transform{},
		), logger)
		require.NoError(t, err)
		assert.Len(t, d.Points, 11)
	})

	t.Run("requires a horizon", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		_, err := New(&model.FlatProgram{}, logger)
		require.EqualError(t, err, "program has no horizon to discretize")
	})
}

func TestFirstOrderEquations(t *testing.T) {
	grid := func(scheme string) *Discretization {
		logger, _ := test.NewNullLogger()
		d, err := New(flatProgram(
			model.Horizon{Name: "t", Start: 0, End: 4},
			model.Transform{Scheme: scheme, NFE: 4},
		), logger)
		require.NoError(t, err)
		return d
	}
	dv := []model.VariableDef{
		{Name: "v", Horizon: "t"},
		{Name: "dv", DerivativeOf: "v"},
	}

	t.Run("backward skips the first point", func(t *testing.T) {
		equations, err := grid("backward").Apply(dv)
		require.NoError(t, err)
		require.Len(t, equations, 4)

		rel, ok := byName(equations)["dv_disc_eq[1]"]
		require.True(t, ok)
		assert.True(t, rel.Equality)
		assert.Empty(t, cmp.Diff(map[string]float64{
			"dv[1]": 1,
			"v[1]":  -1,
			"v[0]":  1,
		}, rel.Body.Coefficients))
	})

	t.Run("forward skips the last point", func(t *testing.T) {
		equations, err := grid("forward").Apply(dv)
		require.NoError(t, err)
		require.Len(t, equations, 4)

		rel, ok := byName(equations)["dv_disc_eq[0]"]
		require.True(t, ok)
		assert.Empty(t, cmp.Diff(map[string]float64{
			"dv[0]": 1,
			"v[1]":  -1,
			"v[0]":  1,
		}, rel.Body.Coefficients))

		_, ok = byName(equations)["dv_disc_eq[4]"]
		assert.False(t, ok)
	})

	t.Run("central covers interior points only", func(t *testing.T) {
		equations, err := grid("central").Apply(dv)
		require.NoError(t, err)
		require.Len(t, equations, 3)

		rel, ok := byName(equations)["dv_disc_eq[1]"]
		require.True(t, ok)
		assert.Empty(t, cmp.Diff(map[string]float64{
			"dv[1]": 1,
			"v[2]":  -0.5,
			"v[0]":  0.5,
		}, rel.Body.Coefficients))
	})

	t.Run("chained derivatives link stage by stage", func(t *testing.T) {
		equations, err := grid("backward").Apply([]model.VariableDef{
			{Name: "v", Horizon: "t"},
			{Name: "dv", DerivativeOf: "v"},
			{Name: "ddv", DerivativeOf: "dv"},
		})
		require.NoError(t, err)
		require.Len(t, equations, 8)

		rel, ok := byName(equations)["ddv_disc_eq[2]"]
		require.True(t, ok)
		assert.Empty(t, cmp.Diff(map[string]float64{
			"ddv[2]": 1,
			"dv[2]":  -1,
			"dv[1]":  1,
		}, rel.Body.Coefficients))
	})
}

func TestSecondOrderEquations(t *testing.T) {
	vars := []model.VariableDef{
		{Name: "v", Horizon: "t"},
		{Name: "acc", DerivativeOf: "v", Order: 2},
	}

	t.Run("central on a uniform grid", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		d, err := New(flatProgram(
			model.Horizon{Name: "t", Start: 0, End: 4},
			model.Transform{Scheme: "central", NFE: 4},
		), logger)
		require.NoError(t, err)

		equations, err := d.Apply(vars)
		require.NoError(t, err)
		require.Len(t, equations, 3)

		rel, ok := byName(equations)["acc_disc_eq[2]"]
		require.True(t, ok)
		assert.Empty(t, cmp.Diff(map[string]float64{
			"acc[2]": 1,
			"v[1]":   -1,
			"v[2]":   2,
			"v[3]":   -1,
		}, rel.Body.Coefficients))
	})

	t.Run("backward on a nonuniform grid", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		d, err := New(flatProgram(
			model.Horizon{Name: "t", Start: 0, End: 3, Points: []float64{1}},
			model.Transform{NFE: 1},
		), logger)
		require.NoError(t, err)
		require.Equal(t, []float64{0, 1, 3}, d.Points)

		equations, err := d.Apply(vars)
		require.NoError(t, err)
		require.Len(t, equations, 1)

		rel := equations[0].Relation
		assert.Equal(t, "acc_disc_eq[3]", equations[0].Name)
		assert.InDelta(t, 1, rel.Body.Coefficients["acc[3]"], 1e-12)
		assert.InDelta(t, -2.0/3.0, rel.Body.Coefficients["v[0]"], 1e-12)
		assert.InDelta(t, 1, rel.Body.Coefficients["v[1]"], 1e-12)
		assert.InDelta(t, -1.0/3.0, rel.Body.Coefficients["v[3]"], 1e-12)
	})
}

func TestInitialPins(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d, err := New(flatProgram(
		model.Horizon{Name: "t", Start: 0, End: 2},
		model.Transform{NFE: 2},
	), logger)
	require.NoError(t, err)

	initial := 5.0
	equations, err := d.Apply([]model.VariableDef{
		{Name: "v", Horizon: "t", Initial: &initial},
		{Name: "scalar"},
	})
	require.NoError(t, err)
	require.Len(t, equations, 1)

	assert.Equal(t, "v_initial", equations[0].Name)
	rel := equations[0].Relation
	assert.True(t, rel.Equality)
	assert.Equal(t, 5.0, rel.Lower)
	assert.Equal(t, 5.0, rel.Upper)
	assert.Empty(t, cmp.Diff(map[string]float64{"v[0]": 1}, rel.Body.Coefficients))
}

func TestApplyTwice(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d, err := New(flatProgram(
		model.Horizon{Name: "t", Start: 0, End: 1},
		model.Transform{NFE: 1},
	), logger)
	require.NoError(t, err)

	_, err = d.Apply(nil)
	require.NoError(t, err)
	_, err = d.Apply(nil)
	require.EqualError(t, err, "scheme already applied")
}

func TestTooFewPoints(t *testing.T) {
	vars := []model.VariableDef{
		{Name: "v", Horizon: "t"},
		{Name: "dv", DerivativeOf: "v"},
	}

	for _, tt := range []struct {
		description string
		transform   model.Transform
		vars        []model.VariableDef
		err         string
	}{
		{
			description: "central needs an interior point",
			transform:   model.Transform{Scheme: "central", NFE: 1},
			vars:        vars,
			err:         `variable "dv": 2 points are too few for a central order-1 difference`,
		},
		{
			description: "second order needs three points",
			transform:   model.Transform{NFE: 1},
			vars: []model.VariableDef{
				{Name: "v", Horizon: "t"},
				{Name: "acc", DerivativeOf: "v", Order: 2},
			},
			err: `variable "acc": 2 points are too few for a backward order-2 difference`,
		},
	} {
		t.Run(tt.description, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			d, err := New(flatProgram(model.Horizon{Name: "t", Start: 0, End: 1}, tt.transform), logger)
			require.NoError(t, err)

			_, err = d.Apply(tt.vars)
			require.EqualError(t, err, tt.err)
		})
	}
}

func TestTrapezoidWeights(t *testing.T) {
	t.Run("uniform grid", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		d, err := New(flatProgram(
			model.Horizon{Name: "t", Start: 0, End: 4},
			model.Transform{NFE: 4},
		), logger)
		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 1, 1, 1, 0.5}, d.TrapezoidWeights())
	})

	t.Run("nonuniform grid", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		d, err := New(flatProgram(
			model.Horizon{Name: "t", Start: 0, End: 3, Points: []float64{1}},
			model.Transform{NFE: 1},
		), logger)
		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 1.5, 1}, d.TrapezoidWeights())
	})
}
