// Package lp solves linear programs with bounded variables and ranged
// rows by reducing them to standard form for gonum's simplex solver.
package lp

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	gonumlp "gonum.org/v1/gonum/optimize/convex/lp"
)

var (
	ErrInfeasible = errors.New("problem is infeasible")
	ErrUnbounded  = errors.New("problem is unbounded")
)

// Problem is a linear program under construction. Variables carry
// bounds that may be infinite on either side; rows carry a lower and
// an upper bound, equal for equality rows and infinite when absent.
type Problem struct {
	names     []string
	index     map[string]int
	lower     []float64
	upper     []float64
	objective []float64
	maximize  bool
	rows      []row
}

type row struct {
	name  string
	coefs map[int]float64
	lower float64
	upper float64
}

func NewProblem() *Problem {
	return &Problem{index: map[string]int{}}
}

// AddVariable declares a variable with the given bounds. Use
// math.Inf for an absent bound.
func (p *Problem) AddVariable(name string, lower, upper float64) error {
	if _, ok := p.index[name]; ok {
		return fmt.Errorf("duplicate variable %q", name)
	}
	if lower > upper {
		return fmt.Errorf("variable %q has lower bound %v above upper bound %v", name, lower, upper)
	}
	p.index[name] = len(p.names)
	p.names = append(p.names, name)
	p.lower = append(p.lower, lower)
	p.upper = append(p.upper, upper)
	p.objective = append(p.objective, 0)
	return nil
}

// AddRow adds a constraint row over previously declared variables.
func (p *Problem) AddRow(name string, coefs map[string]float64, lower, upper float64) error {
	r := row{name: name, coefs: make(map[int]float64, len(coefs)), lower: lower, upper: upper}
	for v, c := range coefs {
		j, ok := p.index[v]
		if !ok {
			return fmt.Errorf("row %q references unknown variable %q", name, v)
		}
		if c != 0 {
			r.coefs[j] = c
		}
	}
	p.rows = append(p.rows, r)
	return nil
}

// Bounds returns a declared variable's bounds.
func (p *Problem) Bounds(name string) (lower, upper float64, ok bool) {
	j, ok := p.index[name]
	if !ok {
		return 0, 0, false
	}
	return p.lower[j], p.upper[j], true
}

// SetObjective sets the objective coefficients and sense. Variables
// absent from coefs keep coefficient zero.
func (p *Problem) SetObjective(coefs map[string]float64, maximize bool) error {
	for v, c := range coefs {
		j, ok := p.index[v]
		if !ok {
			return fmt.Errorf("objective references unknown variable %q", v)
		}
		p.objective[j] = c
	}
	p.maximize = maximize
	return nil
}

// Solution is an optimal assignment.
type Solution struct {
	Objective float64
	Values    map[string]float64
}

const feasTol = 1e-9

// Solve converts the problem to standard form and runs the simplex
// method. tol is passed through as the simplex pivot tolerance; zero
// selects the solver default. Returns ErrInfeasible or ErrUnbounded
// for the corresponding outcomes.
func (p *Problem) Solve(tol float64) (*Solution, error) {
	n := len(p.names)

	// sense-adjusted objective, so everything below minimizes
	minObj := make([]float64, n)
	sense := 1.0
	if p.maximize {
		sense = -1
	}
	for j, c := range p.objective {
		minObj[j] = sense * c
	}

	// fixed variables are substituted into the rows instead of
	// becoming columns
	values := make(map[string]float64, n)
	fixed := make(map[int]float64)
	for j := range p.names {
		if p.lower[j] == p.upper[j] {
			fixed[j] = p.lower[j]
			values[p.names[j]] = p.lower[j]
		}
	}

	type genRow struct {
		coefs map[int]float64
		lower float64
		upper float64
	}
	genRows := make([]genRow, 0, len(p.rows))
	active := make(map[int]bool, n)
	for _, r := range p.rows {
		g := genRow{coefs: make(map[int]float64, len(r.coefs)), lower: r.lower, upper: r.upper}
		for j, c := range r.coefs {
			if v, ok := fixed[j]; ok {
				g.lower -= c * v
				g.upper -= c * v
				continue
			}
			g.coefs[j] = c
		}
		if len(g.coefs) == 0 {
			// constant row: feasible iff zero lies in range
			if g.lower > feasTol || g.upper < -feasTol {
				return nil, ErrInfeasible
			}
			continue
		}
		if math.IsInf(g.lower, -1) && math.IsInf(g.upper, 1) {
			continue
		}
		for j := range g.coefs {
			active[j] = true
		}
		genRows = append(genRows, g)
	}

	// variables outside every row sit at whichever bound the
	// objective prefers; an infinite preferred bound means the
	// problem is unbounded
	for j := range p.names {
		if active[j] {
			continue
		}
		if _, ok := fixed[j]; ok {
			continue
		}
		v, err := p.detachedValue(j, minObj[j])
		if err != nil {
			return nil, err
		}
		values[p.names[j]] = v
	}

	// standard-form columns: shift finite lower bounds to zero,
	// mirror upper-only variables, split free variables
	type column struct {
		variable int
		sign     float64
		shift    float64
	}
	var columns []column
	colsOf := make(map[int][]int, len(active))
	for j := range p.names {
		if !active[j] {
			continue
		}
		l, u := p.lower[j], p.upper[j]
		switch {
		case math.IsInf(l, -1) && math.IsInf(u, 1):
			colsOf[j] = []int{len(columns), len(columns) + 1}
			columns = append(columns, column{j, 1, 0}, column{j, -1, 0})
		case math.IsInf(l, -1):
			colsOf[j] = []int{len(columns)}
			columns = append(columns, column{j, -1, u})
		default:
			colsOf[j] = []int{len(columns)}
			columns = append(columns, column{j, 1, l})
		}
	}

	type stdRow struct {
		coefs map[int]float64
		rhs   float64
	}
	var stdRows []stdRow
	slack := func(coefs map[int]float64, rhs, sign float64) stdRow {
		s := len(columns)
		columns = append(columns, column{variable: -1})
		coefs[s] = sign
		return stdRow{coefs: coefs, rhs: rhs}
	}

	for _, g := range genRows {
		coefs := make(map[int]float64, len(g.coefs)+1)
		shiftSum := 0.0
		for j, c := range g.coefs {
			for _, ci := range colsOf[j] {
				coefs[ci] += c * columns[ci].sign
			}
			shiftSum += c * columns[colsOf[j][0]].shift
		}
		lower, upper := g.lower-shiftSum, g.upper-shiftSum
		switch {
		case lower == upper:
			stdRows = append(stdRows, stdRow{coefs: coefs, rhs: lower})
		default:
			if !math.IsInf(lower, -1) {
				lo := make(map[int]float64, len(coefs)+1)
				for k, v := range coefs {
					lo[k] = v
				}
				stdRows = append(stdRows, slack(lo, lower, -1))
			}
			if !math.IsInf(upper, 1) {
				stdRows = append(stdRows, slack(coefs, upper, 1))
			}
		}
	}

	// doubly bounded variables need a row capping the shifted column
	for j := range p.names {
		if !active[j] {
			continue
		}
		if math.IsInf(p.lower[j], -1) || math.IsInf(p.upper[j], 1) {
			continue
		}
		coefs := map[int]float64{colsOf[j][0]: 1}
		stdRows = append(stdRows, slack(coefs, p.upper[j]-p.lower[j], 1))
	}

	objConst := 0.0
	for j, c := range minObj {
		if v, ok := values[p.names[j]]; ok {
			objConst += c * v
		}
	}

	if len(stdRows) == 0 {
		return &Solution{Objective: sense * objConst, Values: values}, nil
	}

	c := make([]float64, len(columns))
	objShift := 0.0
	for j := range p.names {
		if !active[j] || minObj[j] == 0 {
			continue
		}
		for _, ci := range colsOf[j] {
			c[ci] += minObj[j] * columns[ci].sign
		}
		objShift += minObj[j] * columns[colsOf[j][0]].shift
	}

	a := mat.NewDense(len(stdRows), len(columns), nil)
	b := make([]float64, len(stdRows))
	for i, r := range stdRows {
		for ci, v := range r.coefs {
			a.Set(i, ci, v)
		}
		b[i] = r.rhs
	}

	optF, optX, err := gonumlp.Simplex(c, a, b, tol, nil)
	switch {
	case errors.Is(err, gonumlp.ErrInfeasible):
		return nil, ErrInfeasible
	case errors.Is(err, gonumlp.ErrUnbounded):
		return nil, ErrUnbounded
	case err != nil:
		return nil, errors.Wrap(err, "simplex")
	}

	for j := range p.names {
		if !active[j] {
			continue
		}
		v := 0.0
		for _, ci := range colsOf[j] {
			v += columns[ci].sign*optX[ci] + columns[ci].shift
		}
		values[p.names[j]] = v
	}

	return &Solution{
		Objective: sense * (optF + objShift + objConst),
		Values:    values,
	}, nil
}

// detachedValue places a variable that no row touches at the bound
// the objective drives it toward.
func (p *Problem) detachedValue(j int, minCoef float64) (float64, error) {
	l, u := p.lower[j], p.upper[j]
	switch {
	case minCoef > 0:
		if math.IsInf(l, -1) {
			return 0, ErrUnbounded
		}
		return l, nil
	case minCoef < 0:
		if math.IsInf(u, 1) {
			return 0, ErrUnbounded
		}
		return u, nil
	case !math.IsInf(l, -1):
		return l, nil
	case math.IsInf(u, 1):
		return 0, nil
	default:
		return u, nil
	}
}
