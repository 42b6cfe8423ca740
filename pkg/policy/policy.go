// Package policy compiles and evaluates CEL rules against item properties.
package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/interpreter/functions"
	"github.com/pkg/errors"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/blang/semver/v4"

	"github.com/solvo-project/solvo/pkg/model"
)

// PropertiesKey is the name of the variable each rule is evaluated against.
// It is bound to the item's property list, one map per property with "type"
// and "value" keys.
const PropertiesKey = "properties"

type Evaluator interface {
	Evaluate(input map[string]interface{}) (bool, error)
}

// EvaluatorProvider is the seam the compiler goes through to turn rule
// strings into evaluators.
type EvaluatorProvider interface {
	Evaluator(rule string) (Evaluator, error)
}

// propertiesType is the declared CEL type of PropertiesKey: a list of
// string-keyed maps with untyped values.
var propertiesType = decls.NewListType(decls.NewMapType(decls.String, decls.Any))

func NewCelEvaluatorProvider() *celProvider {
	env, err := cel.NewEnv(
		cel.Declarations(decls.NewVar(PropertiesKey, propertiesType)),
		cel.Lib(semverLib{}),
	)
	if err != nil {
		// The declarations are static, so a construction error is a
		// programming error.
		panic(err)
	}
	return &celProvider{env: env}
}

type celProvider struct {
	env *cel.Env
}

func (p *celProvider) Evaluator(rule string) (Evaluator, error) {
	ast, issues := p.env.Compile(rule)
	if err := issues.Err(); err != nil {
		return nil, err
	}
	if ast.ResultType() != decls.Bool {
		return nil, fmt.Errorf("rules must have type Bool")
	}
	prog, err := p.env.Program(ast)
	if err != nil {
		return nil, err
	}
	return celProgram{prog: prog}, nil
}

type celProgram struct {
	prog cel.Program
}

func (ce celProgram) Evaluate(input map[string]interface{}) (bool, error) {
	out, _, err := ce.prog.Eval(input)
	if err != nil {
		return false, err
	}
	// the compile step already rejected rules that are not Bool
	if b, ok := out.Value().(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("rule evaluated to %T, not bool", out.Value())
}

// semverLib registers semver_compare(a, b), which parses both arguments
// tolerantly and returns the blang/semver Compare result as an int.
type semverLib struct{}

var semverCompareDecl = decls.NewFunction("semver_compare",
	decls.NewOverload("semver_compare", []*exprpb.Type{decls.Any, decls.Any}, decls.Int))

func (semverLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{cel.Declarations(semverCompareDecl)}
}

func (semverLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{cel.Functions(&functions.Overload{
		Operator: "semver_compare",
		Binary:   semverCompare,
	})}
}

func semverCompare(lhs, rhs ref.Val) ref.Val {
	l, err := semver.ParseTolerant(fmt.Sprint(lhs.Value()))
	if err != nil {
		return types.ValOrErr(lhs, "%v is not a semantic version", lhs.Value())
	}
	r, err := semver.ParseTolerant(fmt.Sprint(rhs.Value()))
	if err != nil {
		return types.ValOrErr(rhs, "%v is not a semantic version", rhs.Value())
	}
	return types.Int(l.Compare(r))
}

// Compiled is a policy whose rule has been compiled and typechecked.
type Compiled struct {
	Name string
	eval Evaluator
}

// Compile compiles every policy rule up front so a bad rule fails the whole
// document rather than one item at a time. Errors carry the policy name.
func Compile(provider EvaluatorProvider, policies []model.Policy) ([]Compiled, error) {
	compiled := make([]Compiled, 0, len(policies))
	for _, p := range policies {
		ev, err := provider.Evaluator(p.Rule)
		if err != nil {
			return nil, errors.Wrapf(err, "policy %q", p.Name)
		}
		compiled = append(compiled, Compiled{Name: p.Name, eval: ev})
	}
	return compiled, nil
}

// Admits reports whether the item satisfies the policy.
func (c Compiled) Admits(item model.Item) (bool, error) {
	return c.eval.Evaluate(map[string]interface{}{
		PropertiesKey: item.PropertyMaps(),
	})
}
