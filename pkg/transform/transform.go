// Package transform discretizes a program horizon into finite points
// and generates the difference equations that tie derivative
// trajectories to the variables they derive.
package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solvo-project/solvo/pkg/model"
)

// Scheme is a finite difference scheme.
type Scheme string

const (
	SchemeBackward Scheme = "backward"
	SchemeCentral  Scheme = "central"
	SchemeForward  Scheme = "forward"
)

// DefaultNFE is the number of finite elements used when the transform
// does not request one.
const DefaultNFE = 10

// ParseScheme resolves a scheme name case-insensitively. The empty
// string selects the backward scheme.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(strings.ToLower(name)) {
	case "", SchemeBackward:
		return SchemeBackward, nil
	case SchemeCentral:
		return SchemeCentral, nil
	case SchemeForward:
		return SchemeForward, nil
	}
	return "", fmt.Errorf("unknown scheme %q, expected backward, central, or forward", name)
}

// Equation is one generated constraint row.
type Equation struct {
	Name     string
	Relation model.Relation
}

// Discretization is the point grid for one horizon. Apply may be
// called once; the grid itself can be reused for integral weights and
// instance naming.
type Discretization struct {
	Scheme  Scheme
	Horizon model.Horizon

	// Points is the sorted merged grid, Labels the per-point
	// instance labels used to name expanded variables.
	Points []float64
	Labels []string

	applied bool
}

// New builds the grid for the program's horizon: nfe evenly spaced
// finite elements merged with the horizon's explicit points. When the
// explicit points outnumber the requested elements the union is kept
// and a warning is logged.
func New(flat *model.FlatProgram, logger logrus.FieldLogger) (*Discretization, error) {
	if flat.Horizon == nil {
		return nil, errors.New("program has no horizon to discretize")
	}
	if flat.Transform == nil {
		return nil, fmt.Errorf("horizon %q has no transform", flat.Horizon.Name)
	}

	scheme, err := ParseScheme(flat.Transform.Scheme)
	if err != nil {
		return nil, err
	}

	nfe := flat.Transform.NFE
	if nfe == 0 {
		nfe = DefaultNFE
	}

	h := *flat.Horizon
	span := h.End - h.Start
	points := make([]float64, 0, nfe+1+len(h.Points))
	for k := 0; k <= nfe; k++ {
		points = append(points, h.Start+span*float64(k)/float64(nfe))
	}
	points = append(points, h.Points...)
	sort.Float64s(points)

	// collapse grid points that coincide with explicit ones up to
	// rounding noise, so no interval degenerates
	eps := span * 1e-9
	merged := make([]float64, 0, len(points))
	for _, p := range points {
		if len(merged) > 0 && p-merged[len(merged)-1] <= eps {
			continue
		}
		merged = append(merged, p)
	}

	if len(h.Points) > nfe {
		logger.Warnf("horizon %q declares %d explicit points, more than nfe=%d; keeping all of them", h.Name, len(h.Points), nfe)
	}

	labels := make([]string, len(merged))
	for i, p := range merged {
		labels[i] = model.FormatPoint(p)
	}

	return &Discretization{
		Scheme:  scheme,
		Horizon: h,
		Points:  merged,
		Labels:  labels,
	}, nil
}

// Apply generates the difference equations for every derivative
// variable and an equality pinning the first point of every
// trajectory that declares an initial value. Applying a second time
// is an error.
func (d *Discretization) Apply(variables []model.VariableDef) ([]Equation, error) {
	if d.applied {
		return nil, errors.New("scheme already applied")
	}
	d.applied = true

	var equations []Equation
	for i := range variables {
		v := &variables[i]
		if v.DerivativeOf != "" {
			links, err := d.links(v)
			if err != nil {
				return nil, errors.Wrapf(err, "variable %q", v.Name)
			}
			equations = append(equations, links...)
		}
		if v.Initial != nil && v.Trajectory() {
			equations = append(equations, d.pin(v))
		}
	}
	return equations, nil
}

// links builds one equation per point where the scheme's stencil
// fits. End points outside the stencil get no equation.
func (d *Discretization) links(v *model.VariableDef) ([]Equation, error) {
	n := len(d.Points)
	order := v.DerivativeOrder()

	lo, hi := d.stencilRange(order, n)
	if lo > hi {
		return nil, fmt.Errorf("%d points are too few for a %s order-%d difference", n, d.Scheme, order)
	}

	equations := make([]Equation, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		body := model.LinearForm{Coefficients: map[string]float64{
			model.InstanceName(v.Name, d.Labels[i]): 1,
		}}
		for at, coef := range d.stencil(order, i) {
			body.Coefficients[model.InstanceName(v.DerivativeOf, d.Labels[at])] -= coef
		}
		equations = append(equations, Equation{
			Name: model.InstanceName(v.Name+"_disc_eq", d.Labels[i]),
			Relation: model.Relation{
				Body:     body,
				Equality: true,
			},
		})
	}
	return equations, nil
}

// stencilRange returns the inclusive point index range the scheme can
// form a stencil around.
func (d *Discretization) stencilRange(order, n int) (int, int) {
	switch d.Scheme {
	case SchemeForward:
		return 0, n - 1 - order
	case SchemeCentral:
		return 1, n - 2
	default:
		return order, n - 1
	}
}

// stencil returns the parent-variable coefficients approximating the
// derivative at point i. First order uses a two-point difference
// quotient; second order differentiates the quadratic through three
// neighboring points, which stays exact on nonuniform grids.
func (d *Discretization) stencil(order, i int) map[int]float64 {
	p := d.Points
	if order == 1 {
		var a, b int
		switch d.Scheme {
		case SchemeForward:
			a, b = i, i+1
		case SchemeCentral:
			a, b = i-1, i+1
		default:
			a, b = i-1, i
		}
		h := p[b] - p[a]
		return map[int]float64{a: -1 / h, b: 1 / h}
	}

	var a, b, c int
	switch d.Scheme {
	case SchemeForward:
		a, b, c = i, i+1, i+2
	case SchemeCentral:
		a, b, c = i-1, i, i+1
	default:
		a, b, c = i-2, i-1, i
	}
	g1, g2 := p[b]-p[a], p[c]-p[b]
	return map[int]float64{
		a: 2 / (g1 * (g1 + g2)),
		b: -2 / (g1 * g2),
		c: 2 / (g2 * (g1 + g2)),
	}
}

func (d *Discretization) pin(v *model.VariableDef) Equation {
	return Equation{
		Name: v.Name + "_initial",
		Relation: model.Relation{
			Body: model.LinearForm{Coefficients: map[string]float64{
				model.InstanceName(v.Name, d.Labels[0]): 1,
			}},
			Lower:    *v.Initial,
			Upper:    *v.Initial,
			Equality: true,
		},
	}
}

// TrapezoidWeights returns the quadrature weight of each grid point,
// so that sum(w[i]*v[i]) approximates the integral of v over the
// horizon.
func (d *Discretization) TrapezoidWeights() []float64 {
	weights := make([]float64, len(d.Points))
	for i := range weights {
		if i > 0 {
			weights[i] += (d.Points[i] - d.Points[i-1]) / 2
		}
		if i < len(d.Points)-1 {
			weights[i] += (d.Points[i+1] - d.Points[i]) / 2
		}
	}
	return weights
}
