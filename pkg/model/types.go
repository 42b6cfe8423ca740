package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/blang/semver/v4"
)

const (
	// APIGroup is the manifest group solvo owns.
	APIGroup = "solvo.dev"

	// GroupVersion is the apiVersion accepted in document envelopes.
	GroupVersion = APIGroup + "/v1alpha1"

	// KindSelectionProblem identifies documents describing a discrete
	// selection problem over a universe of items.
	KindSelectionProblem = "SelectionProblem"

	// KindLinearProgram identifies documents describing a continuous
	// linear program, optionally with a discretized time horizon.
	KindLinearProgram = "LinearProgram"
)

// UnsupportedKindError is returned when a document names a kind this
// toolkit does not implement.
type UnsupportedKindError struct {
	Kind string
}

func (e *UnsupportedKindError) Error() string {
	if e.Kind == "" {
		return "document is missing kind"
	}
	return fmt.Sprintf("unsupported kind %q, expected %q or %q", e.Kind, KindSelectionProblem, KindLinearProgram)
}

// UnsupportedVersionError is returned when a document's apiVersion is
// not the supported one. RequiresNewer is set when the version parses
// as a later release of the same group.
type UnsupportedVersionError struct {
	APIVersion    string
	RequiresNewer bool
}

func (e *UnsupportedVersionError) Error() string {
	if e.RequiresNewer {
		return fmt.Sprintf("document apiVersion %q is newer than supported %q", e.APIVersion, GroupVersion)
	}
	return fmt.Sprintf("unsupported apiVersion %q, expected %q", e.APIVersion, GroupVersion)
}

func checkAPIVersion(v string) error {
	if v == GroupVersion {
		return nil
	}
	err := &UnsupportedVersionError{APIVersion: v}
	group, version, found := strings.Cut(v, "/")
	if !found || group != APIGroup {
		return err
	}
	got, gotErr := parseAPIRelease(version)
	want, wantErr := parseAPIRelease(strings.TrimPrefix(GroupVersion, APIGroup+"/"))
	if gotErr == nil && wantErr == nil && got.GT(want) {
		err.RequiresNewer = true
	}
	return err
}

// parseAPIRelease reads the numeric core of a version like "v1alpha1".
func parseAPIRelease(v string) (semver.Version, error) {
	v = strings.TrimPrefix(v, "v")
	i := 0
	for i < len(v) && v[i] >= '0' && v[i] <= '9' {
		i++
	}
	if i == 0 {
		return semver.Version{}, fmt.Errorf("no release digits in %q", v)
	}
	return semver.ParseTolerant(v[:i])
}

// ObjectMeta carries identifying metadata for a document.
type ObjectMeta struct {
	Name   string            `json:"name,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

type envelope struct {
	APIVersion string          `json:"apiVersion"`
	Kind       string          `json:"kind"`
	Metadata   ObjectMeta      `json:"metadata,omitempty"`
	Spec       json.RawMessage `json:"spec,omitempty"`
}

// Document is a parsed model document. Exactly one of Selection and
// Program is non-nil, according to the document's kind.
type Document struct {
	APIVersion string
	Kind       string
	Metadata   ObjectMeta
	Selection  *SelectionSpec
	Program    *ProgramSpec
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if err := checkAPIVersion(env.APIVersion); err != nil {
		return err
	}

	d.APIVersion = env.APIVersion
	d.Kind = env.Kind
	d.Metadata = env.Metadata
	d.Selection = nil
	d.Program = nil

	switch env.Kind {
	case KindSelectionProblem:
		d.Selection = &SelectionSpec{}
		if len(env.Spec) > 0 {
			return json.Unmarshal(env.Spec, d.Selection)
		}
	case KindLinearProgram:
		d.Program = &ProgramSpec{}
		if len(env.Spec) > 0 {
			return json.Unmarshal(env.Spec, d.Program)
		}
	default:
		return &UnsupportedKindError{Kind: env.Kind}
	}
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	env := envelope{
		APIVersion: d.APIVersion,
		Kind:       d.Kind,
		Metadata:   d.Metadata,
	}

	var spec interface{}
	switch {
	case d.Selection != nil:
		spec = d.Selection
	case d.Program != nil:
		spec = d.Program
	}
	if spec != nil {
		raw, err := json.Marshal(spec)
		if err != nil {
			return nil, err
		}
		env.Spec = raw
	}
	return json.Marshal(env)
}

// Duration wraps time.Duration so documents can carry values like
// "30s" or "1m" instead of raw nanosecond counts.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Options tune how a document is solved. They may be set in the
// document itself and overridden per invocation.
type Options struct {
	Timeout   *Duration `json:"timeout,omitempty" mapstructure:"timeout"`
	Tolerance float64   `json:"tolerance,omitempty" mapstructure:"tolerance" validate:"omitempty,gte=0"`
	Trace     bool      `json:"trace,omitempty" mapstructure:"trace"`
}

// DefaultTolerance is the comparison tolerance applied when a
// document does not specify one.
const DefaultTolerance = 1e-9

// EffectiveTolerance returns the configured tolerance, or
// DefaultTolerance when unset.
func (o *Options) EffectiveTolerance() float64 {
	if o == nil || o.Tolerance == 0 {
		return DefaultTolerance
	}
	return o.Tolerance
}

// SelectionSpec describes a discrete selection problem: a universe of
// items with requirement, conflict, and cardinality relationships
// between them.
type SelectionSpec struct {
	Options  *Options         `json:"options,omitempty"`
	Policies []Policy         `json:"policies,omitempty" validate:"dive"`
	Items    []Item           `json:"items,omitempty" validate:"dive"`
	Groups   []Group          `json:"groups,omitempty" validate:"dive"`
	Suffixes []Suffix         `json:"suffixes,omitempty" validate:"dive"`
	Blocks   []SelectionBlock `json:"blocks,omitempty" validate:"dive"`
}

// Item is a single selectable unit.
type Item struct {
	ID         string        `json:"id" validate:"required"`
	Mandatory  bool          `json:"mandatory,omitempty"`
	Prohibited bool          `json:"prohibited,omitempty"`
	Weight     int           `json:"weight,omitempty"`
	Requires   []Requirement `json:"requires,omitempty" validate:"dive"`
	Conflicts  []string      `json:"conflicts,omitempty" validate:"dive,required"`
	Properties []Property    `json:"properties,omitempty" validate:"dive"`
}

// Property is one typed annotation on an item, visible to policy
// expressions.
type Property struct {
	Type  string      `json:"type" validate:"required"`
	Value interface{} `json:"value"`
}

// PropertyMaps renders the item's properties in the shape policy
// expressions see: a list of maps with "type" and "value" keys.
func (i *Item) PropertyMaps() []map[string]interface{} {
	out := make([]map[string]interface{}, len(i.Properties))
	for j, p := range i.Properties {
		out[j] = map[string]interface{}{"type": p.Type, "value": p.Value}
	}
	return out
}

// Requirement names the candidates that can satisfy one requirement
// of an item. Candidates listed earlier are preferred; priority and
// weight reorder them.
type Requirement struct {
	AnyOf []string `json:"anyOf" validate:"min=1,dive,required"`
}

// Group restricts how many of its members may be selected together.
// An absent atMost defaults to one.
type Group struct {
	ID      string   `json:"id" validate:"required"`
	AtMost  *int     `json:"atMost,omitempty" validate:"omitempty,gte=0"`
	Members []string `json:"members" validate:"min=1,dive,required"`
}

// Limit returns the group's cardinality bound.
func (g *Group) Limit() int {
	if g.AtMost == nil {
		return 1
	}
	return *g.AtMost
}

// Inert reports whether the bound cannot exclude any combination of
// members.
func (g *Group) Inert() bool {
	return g.Limit() >= len(g.Members)
}

// Policy is a CEL eligibility rule evaluated against every item's
// properties. Items whose properties fail the rule are treated as
// prohibited rather than removed, so infeasibility explanations can
// still name them.
type Policy struct {
	Name string `json:"name" validate:"required"`
	Rule string `json:"rule" validate:"required"`
}

// Suffix attaches named numeric annotations to components, keyed by
// component name. Import-direction suffixes carry values into the
// solve; export-direction suffixes are produced by it.
type Suffix struct {
	Name      string             `json:"name" validate:"required"`
	Direction string             `json:"direction,omitempty" validate:"omitempty,oneof=import export importExport"`
	Values    map[string]float64 `json:"values,omitempty"`
}

const (
	SuffixImport       = "import"
	SuffixExport       = "export"
	SuffixImportExport = "importExport"

	// SuffixPriority is the import suffix consulted when ordering
	// requirement candidates.
	SuffixPriority = "priority"
)

// Imported reports whether the suffix's values feed into the solve.
func (s *Suffix) Imported() bool {
	return s.Direction == SuffixImport || s.Direction == SuffixImportExport
}

// Exported reports whether the suffix expects values from the solve.
func (s *Suffix) Exported() bool {
	return s.Direction == SuffixExport || s.Direction == SuffixImportExport
}

// SelectionBlock is a named sub-problem carrying the same spec schema
// as its parent. Component names inside a block are qualified with
// the block name on flattening, and inactive blocks are dropped along
// with their contents.
type SelectionBlock struct {
	Name   string         `json:"name" validate:"required"`
	Active *bool          `json:"active,omitempty"`
	Spec   *SelectionSpec `json:"spec" validate:"required"`
}

// Enabled reports whether the block participates in the flattened
// problem. Blocks are active unless explicitly deactivated.
func (b *SelectionBlock) Enabled() bool {
	return b.Active == nil || *b.Active
}

// ProgramSpec describes a linear program over named continuous
// variables, optionally indexed by sets or by a continuous horizon
// that a transform discretizes into finite points.
type ProgramSpec struct {
	Options     *Options        `json:"options,omitempty"`
	Sets        []Set           `json:"sets,omitempty" validate:"dive"`
	Horizon     *Horizon        `json:"horizon,omitempty"`
	Variables   []VariableDef   `json:"variables,omitempty" validate:"dive"`
	Constraints []ConstraintDef `json:"constraints,omitempty" validate:"dive"`
	Objective   *Objective      `json:"objective,omitempty"`
	Transform   *Transform      `json:"transform,omitempty"`
	Suffixes    []Suffix        `json:"suffixes,omitempty" validate:"dive"`
	Blocks      []ProgramBlock  `json:"blocks,omitempty" validate:"dive"`
}

// Set is a finite index set.
type Set struct {
	Name    string   `json:"name" validate:"required"`
	Members []string `json:"members" validate:"min=1,dive,required"`
}

// Horizon is a bounded continuous domain. Points lists interior
// points that must survive discretization in addition to the
// endpoints.
type Horizon struct {
	Name   string    `json:"name" validate:"required"`
	Start  float64   `json:"start"`
	End    float64   `json:"end"`
	Points []float64 `json:"points,omitempty"`
}

// VariableDef declares a variable: scalar, indexed over a set, or a
// trajectory over the horizon. A variable with DerivativeOf set
// represents a derivative of the named trajectory variable and is
// constrained by the transform's difference equations.
type VariableDef struct {
	Name         string   `json:"name" validate:"required"`
	Index        string   `json:"index,omitempty"`
	Horizon      string   `json:"horizon,omitempty"`
	DerivativeOf string   `json:"derivativeOf,omitempty"`
	Order        int      `json:"order,omitempty" validate:"omitempty,oneof=1 2"`
	Initial      *float64 `json:"initial,omitempty"`
	Lower        *float64 `json:"lower,omitempty"`
	Upper        *float64 `json:"upper,omitempty"`
}

// DerivativeOrder returns the declared derivative order, defaulting
// to one.
func (v *VariableDef) DerivativeOrder() int {
	if v.Order == 0 {
		return 1
	}
	return v.Order
}

// Trajectory reports whether the variable expands to one instance per
// horizon point. Derivative variables range over the same horizon as
// the variable they derive.
func (v *VariableDef) Trajectory() bool {
	return v.Horizon != "" || v.DerivativeOf != ""
}

// ConstraintDef declares a constraint either as an expression string
// with comparison operators, or as a structured body with explicit
// bounds. ForEach replicates the constraint over the members of a set
// or the points of the horizon, substituting "$i" in the expression
// and in term references.
type ConstraintDef struct {
	Name    string      `json:"name" validate:"required"`
	ForEach string      `json:"forEach,omitempty"`
	Expr    string      `json:"expr,omitempty"`
	Body    *LinearExpr `json:"body,omitempty"`
	Lower   *float64    `json:"lower,omitempty"`
	Upper   *float64    `json:"upper,omitempty"`
	Equals  *float64    `json:"equals,omitempty"`

	// Scope records the qualified block path the constraint was
	// declared in, so identifiers in Expr resolve against the
	// enclosing block first.
	Scope string `json:"-"`
}

// LinearExpr is the structured form of a linear combination.
type LinearExpr struct {
	Terms    []Term  `json:"terms,omitempty" validate:"dive"`
	Constant float64 `json:"constant,omitempty"`
}

// Term is one coefficient-variable pair of a structured expression.
type Term struct {
	Coefficient float64 `json:"coef"`
	Variable    string  `json:"var" validate:"required"`
}

// Objective declares the optimization goal as a linear expression,
// the trapezoid-approximated integral of a trajectory variable over
// the horizon, or the sum of both.
type Objective struct {
	Sense    string `json:"sense,omitempty" validate:"omitempty,oneof=minimize maximize"`
	Expr     string `json:"expr,omitempty"`
	Integral string `json:"integral,omitempty"`
}

const (
	SenseMinimize = "minimize"
	SenseMaximize = "maximize"
)

// Maximize reports whether the objective should be maximized.
func (o *Objective) Maximize() bool {
	return o != nil && o.Sense == SenseMaximize
}

// Transform selects the finite difference scheme used to discretize
// the horizon and derivative variables.
type Transform struct {
	Scheme string `json:"scheme,omitempty"`
	NFE    int    `json:"nfe,omitempty" validate:"omitempty,gte=1"`
}

// ProgramBlock is a named sub-program, flattened the same way as
// SelectionBlock.
type ProgramBlock struct {
	Name   string       `json:"name" validate:"required"`
	Active *bool        `json:"active,omitempty"`
	Spec   *ProgramSpec `json:"spec" validate:"required"`
}

// Enabled reports whether the block participates in the flattened
// program.
func (b *ProgramBlock) Enabled() bool {
	return b.Active == nil || *b.Active
}
