package model

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// LinearForm is a linear combination of named variable instances plus
// a constant offset.
type LinearForm struct {
	Coefficients map[string]float64
	Constant     float64
}

func (f *LinearForm) add(name string, coeff float64) {
	if f.Coefficients == nil {
		f.Coefficients = map[string]float64{}
	}
	f.Coefficients[name] += coeff
}

func (f *LinearForm) scale(factor float64) {
	f.Constant *= factor
	for name := range f.Coefficients {
		f.Coefficients[name] *= factor
	}
}

// prune drops terms whose coefficients cancelled to zero.
func (f *LinearForm) prune() {
	for name, coeff := range f.Coefficients {
		if coeff == 0 {
			delete(f.Coefficients, name)
		}
	}
}

// Names returns the referenced variable instances in sorted order.
func (f *LinearForm) Names() []string {
	names := make([]string, 0, len(f.Coefficients))
	for name := range f.Coefficients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Value evaluates the form against a variable assignment. Instances
// absent from the assignment contribute zero.
func (f *LinearForm) Value(assignment map[string]float64) float64 {
	v := f.Constant
	for name, coeff := range f.Coefficients {
		v += coeff * assignment[name]
	}
	return v
}

// Relation is a linear body restricted to lie between two bounds. An
// unbounded side is represented by the corresponding infinity.
type Relation struct {
	Body     LinearForm
	Lower    float64
	Upper    float64
	Equality bool
}

// LSlack returns the distance from the lower bound to the body value,
// +Inf when the relation has no lower bound.
func (r *Relation) LSlack(body float64) float64 {
	return body - r.Lower
}

// USlack returns the distance from the body value to the upper bound,
// +Inf when the relation has no upper bound.
func (r *Relation) USlack(body float64) float64 {
	return r.Upper - body
}

// Slack returns the smaller of the two slacks.
func (r *Relation) Slack(body float64) float64 {
	return math.Min(r.LSlack(body), r.USlack(body))
}

// Bounded reports whether the relation has at least one finite bound.
// Unbounded relations are trivially satisfied and compile to nothing.
func (r *Relation) Bounded() bool {
	return !math.IsInf(r.Lower, -1) || !math.IsInf(r.Upper, 1)
}

// String renders the form with terms in sorted instance order.
func (f *LinearForm) String() string {
	names := f.Names()
	if len(names) == 0 {
		return FormatPoint(f.Constant)
	}
	var b strings.Builder
	for i, name := range names {
		coeff := f.Coefficients[name]
		switch {
		case i == 0 && coeff < 0:
			b.WriteString("-")
		case i > 0 && coeff < 0:
			b.WriteString(" - ")
		case i > 0:
			b.WriteString(" + ")
		}
		if a := math.Abs(coeff); a != 1 {
			b.WriteString(FormatPoint(a))
			b.WriteString(" ")
		}
		b.WriteString(name)
	}
	if f.Constant != 0 {
		if f.Constant < 0 {
			b.WriteString(" - ")
		} else {
			b.WriteString(" + ")
		}
		b.WriteString(FormatPoint(math.Abs(f.Constant)))
	}
	return b.String()
}

// String renders the relation in the compact constraint syntax.
func (r *Relation) String() string {
	body := r.Body.String()
	switch {
	case r.Equality:
		return body + " == " + FormatPoint(r.Lower)
	case !math.IsInf(r.Lower, -1) && !math.IsInf(r.Upper, 1):
		return FormatPoint(r.Lower) + " <= " + body + " <= " + FormatPoint(r.Upper)
	case !math.IsInf(r.Lower, -1):
		return body + " >= " + FormatPoint(r.Lower)
	case !math.IsInf(r.Upper, 1):
		return body + " <= " + FormatPoint(r.Upper)
	default:
		return body + " unbounded"
	}
}

// FormatPoint renders a horizon point the way it appears in variable
// instance names, e.g. "inv[0.5]".
func FormatPoint(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var exprEnv = func() *cel.Env {
	env, err := cel.NewEnv()
	if err != nil {
		panic(err)
	}
	return env
}()

func parseExprAST(src string) (*exprpb.Expr, error) {
	ast, issues := exprEnv.Parse(normalizeExpr(src))
	if err := issues.Err(); err != nil {
		return nil, err
	}
	return ast.Expr(), nil
}

// normalizeExpr inserts an explicit multiplication between a numeric
// literal and an immediately following identifier, so terms written
// "3 x" or "2.5x" parse the same as "3 * x".
func normalizeExpr(src string) string {
	var out strings.Builder
	out.Grow(len(src) + 8)
	afterNumber := false
	for i := 0; i < len(src); {
		ch := src[i]
		switch {
		case ch >= '0' && ch <= '9':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				i++
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				j := i + 1
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				if j < len(src) && src[j] >= '0' && src[j] <= '9' {
					for j < len(src) && src[j] >= '0' && src[j] <= '9' {
						j++
					}
					i = j
				}
			}
			out.WriteString(src[start:i])
			afterNumber = true
		case ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z':
			if afterNumber {
				out.WriteString(" * ")
			}
			start := i
			for i < len(src) && identChar(src[i]) {
				i++
			}
			out.WriteString(src[start:i])
			afterNumber = false
		case ch == ' ' || ch == '\t':
			out.WriteByte(ch)
			i++
		default:
			out.WriteByte(ch)
			i++
			afterNumber = false
		}
	}
	return out.String()
}

func identChar(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9'
}

// ParseLinearExpr parses src as a linear arithmetic expression and
// returns its linear form.
func ParseLinearExpr(src string) (*LinearForm, error) {
	e, err := parseExprAST(src)
	if err != nil {
		return nil, err
	}
	f, err := exprWalker{}.linear(e)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %s", src, err)
	}
	f.prune()
	return &f, nil
}

// ParseRelation parses src as a comparison between linear expressions
// and normalizes it into a body between bounds. Chained comparisons
// like "0 <= x + y <= 10" become ranged relations and require
// constant outer bounds.
func ParseRelation(src string) (*Relation, error) {
	e, err := parseExprAST(src)
	if err != nil {
		return nil, err
	}
	r, err := exprWalker{}.relation(e)
	if err != nil {
		return nil, fmt.Errorf("invalid constraint %q: %s", src, err)
	}
	return r, nil
}

// exprWalker extracts linear structure from parsed expression trees.
type exprWalker struct{}

func (w exprWalker) linear(e *exprpb.Expr) (LinearForm, error) {
	switch k := e.GetExprKind().(type) {
	case *exprpb.Expr_ConstExpr:
		v, err := numericConstant(k.ConstExpr)
		if err != nil {
			return LinearForm{}, err
		}
		return LinearForm{Constant: v}, nil
	case *exprpb.Expr_IdentExpr, *exprpb.Expr_SelectExpr:
		name, err := w.name(e)
		if err != nil {
			return LinearForm{}, err
		}
		var f LinearForm
		f.add(name, 1)
		return f, nil
	case *exprpb.Expr_CallExpr:
		if k.CallExpr.GetFunction() == operators.Index {
			name, err := w.name(e)
			if err != nil {
				return LinearForm{}, err
			}
			var f LinearForm
			f.add(name, 1)
			return f, nil
		}
		return w.call(k.CallExpr)
	}
	return LinearForm{}, fmt.Errorf("unsupported expression element")
}

func (w exprWalker) call(c *exprpb.CallExpr) (LinearForm, error) {
	args := c.GetArgs()
	switch c.GetFunction() {
	case operators.Add, operators.Subtract:
		left, err := w.linear(args[0])
		if err != nil {
			return LinearForm{}, err
		}
		right, err := w.linear(args[1])
		if err != nil {
			return LinearForm{}, err
		}
		sign := 1.0
		if c.GetFunction() == operators.Subtract {
			sign = -1
		}
		left.Constant += sign * right.Constant
		for name, coeff := range right.Coefficients {
			left.add(name, sign*coeff)
		}
		return left, nil
	case operators.Negate:
		f, err := w.linear(args[0])
		if err != nil {
			return LinearForm{}, err
		}
		f.scale(-1)
		return f, nil
	case operators.Multiply:
		left, err := w.linear(args[0])
		if err != nil {
			return LinearForm{}, err
		}
		right, err := w.linear(args[1])
		if err != nil {
			return LinearForm{}, err
		}
		if len(left.Coefficients) > 0 && len(right.Coefficients) > 0 {
			return LinearForm{}, fmt.Errorf("product of two variable expressions is not linear")
		}
		if len(left.Coefficients) == 0 {
			right.scale(left.Constant)
			return right, nil
		}
		left.scale(right.Constant)
		return left, nil
	case operators.Divide:
		left, err := w.linear(args[0])
		if err != nil {
			return LinearForm{}, err
		}
		right, err := w.linear(args[1])
		if err != nil {
			return LinearForm{}, err
		}
		if len(right.Coefficients) > 0 {
			return LinearForm{}, fmt.Errorf("division by a variable expression is not linear")
		}
		if right.Constant == 0 {
			return LinearForm{}, fmt.Errorf("division by zero")
		}
		left.scale(1 / right.Constant)
		return left, nil
	case operators.Less, operators.Greater:
		return LinearForm{}, errStrictInequality
	case operators.NotEquals:
		return LinearForm{}, errNotEquals
	case operators.LessEquals, operators.GreaterEquals, operators.Equals:
		return LinearForm{}, fmt.Errorf("unexpected comparison inside an arithmetic expression")
	}
	return LinearForm{}, fmt.Errorf("unsupported operator %q", c.GetFunction())
}

func (w exprWalker) name(e *exprpb.Expr) (string, error) {
	switch k := e.GetExprKind().(type) {
	case *exprpb.Expr_IdentExpr:
		return k.IdentExpr.GetName(), nil
	case *exprpb.Expr_SelectExpr:
		base, err := w.name(k.SelectExpr.GetOperand())
		if err != nil {
			return "", err
		}
		return base + "." + k.SelectExpr.GetField(), nil
	case *exprpb.Expr_CallExpr:
		c := k.CallExpr
		if c.GetFunction() != operators.Index || len(c.GetArgs()) != 2 {
			break
		}
		base, err := w.name(c.GetArgs()[0])
		if err != nil {
			return "", err
		}
		index, err := w.index(c.GetArgs()[1])
		if err != nil {
			return "", err
		}
		return base + "[" + index + "]", nil
	}
	return "", fmt.Errorf("expression element cannot be used as a variable reference")
}

// index renders the index argument of a subscript. Bare identifiers
// stand for their own names, so "x[p1]" references the member p1.
func (w exprWalker) index(e *exprpb.Expr) (string, error) {
	switch k := e.GetExprKind().(type) {
	case *exprpb.Expr_IdentExpr:
		return k.IdentExpr.GetName(), nil
	case *exprpb.Expr_ConstExpr:
		switch c := k.ConstExpr.GetConstantKind().(type) {
		case *exprpb.Constant_StringValue:
			return c.StringValue, nil
		case *exprpb.Constant_Int64Value:
			return strconv.FormatInt(c.Int64Value, 10), nil
		case *exprpb.Constant_DoubleValue:
			return FormatPoint(c.DoubleValue), nil
		}
	}
	return "", fmt.Errorf("unsupported index expression")
}

var (
	errStrictInequality = fmt.Errorf("strict inequalities are not supported, use <= or >=")
	errNotEquals        = fmt.Errorf("\"!=\" is not a constraint operator")
)

func (w exprWalker) relation(e *exprpb.Expr) (*Relation, error) {
	call := relopCall(e)
	if call == nil {
		if k, ok := e.GetExprKind().(*exprpb.Expr_CallExpr); ok {
			switch k.CallExpr.GetFunction() {
			case operators.Less, operators.Greater:
				return nil, errStrictInequality
			case operators.NotEquals:
				return nil, errNotEquals
			}
		}
		return nil, fmt.Errorf("no comparison operator found")
	}
	args := call.GetArgs()
	if inner := relopCall(args[0]); inner != nil {
		return w.ranged(inner, call)
	}
	if relopCall(args[1]) != nil {
		return nil, fmt.Errorf("comparison chains must associate from the left")
	}

	left, err := w.linear(args[0])
	if err != nil {
		return nil, err
	}
	right, err := w.linear(args[1])
	if err != nil {
		return nil, err
	}

	// Move every variable term to the left and every constant to the
	// right.
	for name, coeff := range right.Coefficients {
		left.add(name, -coeff)
	}
	bound := right.Constant - left.Constant
	body := LinearForm{Coefficients: left.Coefficients}
	body.prune()

	r := &Relation{Body: body, Lower: math.Inf(-1), Upper: math.Inf(1)}
	switch call.GetFunction() {
	case operators.LessEquals:
		r.Upper = bound
	case operators.GreaterEquals:
		r.Lower = bound
	case operators.Equals:
		if math.IsInf(bound, 0) || math.IsNaN(bound) {
			return nil, fmt.Errorf("equality constraint has a non-finite bound")
		}
		r.Lower = bound
		r.Upper = bound
		r.Equality = true
	}
	return r, nil
}

func (w exprWalker) ranged(inner, outer *exprpb.CallExpr) (*Relation, error) {
	if outer.GetFunction() == operators.Equals || inner.GetFunction() == operators.Equals {
		return nil, fmt.Errorf("equality comparisons cannot be chained")
	}
	if outer.GetFunction() != inner.GetFunction() {
		return nil, fmt.Errorf("chained comparisons must use a single direction")
	}

	first, err := w.linear(inner.GetArgs()[0])
	if err != nil {
		return nil, err
	}
	body, err := w.linear(inner.GetArgs()[1])
	if err != nil {
		return nil, err
	}
	second, err := w.linear(outer.GetArgs()[1])
	if err != nil {
		return nil, err
	}
	if len(first.Coefficients) > 0 || len(second.Coefficients) > 0 {
		return nil, fmt.Errorf("ranged constraint bounds must be constant")
	}

	lower, upper := first.Constant, second.Constant
	if outer.GetFunction() == operators.GreaterEquals {
		lower, upper = upper, lower
	}
	lower -= body.Constant
	upper -= body.Constant
	if lower > upper {
		return nil, fmt.Errorf("lower bound %v exceeds upper bound %v", lower, upper)
	}

	vars := LinearForm{Coefficients: body.Coefficients}
	vars.prune()
	return &Relation{Body: vars, Lower: lower, Upper: upper}, nil
}

func relopCall(e *exprpb.Expr) *exprpb.CallExpr {
	k, ok := e.GetExprKind().(*exprpb.Expr_CallExpr)
	if !ok {
		return nil
	}
	switch k.CallExpr.GetFunction() {
	case operators.LessEquals, operators.GreaterEquals, operators.Equals:
		return k.CallExpr
	}
	return nil
}

func numericConstant(c *exprpb.Constant) (float64, error) {
	switch k := c.GetConstantKind().(type) {
	case *exprpb.Constant_Int64Value:
		return float64(k.Int64Value), nil
	case *exprpb.Constant_Uint64Value:
		return float64(k.Uint64Value), nil
	case *exprpb.Constant_DoubleValue:
		return k.DoubleValue, nil
	}
	return 0, fmt.Errorf("non-numeric constant")
}
