package compile

import (
	"fmt"

	"github.com/mitchellh/hashstructure"
	"github.com/pkg/errors"

	"github.com/solvo-project/solvo/pkg/model"
)

// Status is the outcome classification of a solve.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
)

// Stats summarizes the compiled problem size.
type Stats struct {
	Variables   int `json:"variables"`
	Constraints int `json:"constraints"`
	Points      int `json:"points,omitempty"`
}

// Result is the outcome of one solve. Selection problems fill
// Selected (or Conflicts when infeasible); linear programs fill
// Objective, Values, Binding, and the exported slack suffixes.
type Result struct {
	Name        string             `json:"name"`
	Kind        string             `json:"kind"`
	Status      Status             `json:"status"`
	Objective   *float64           `json:"objective,omitempty"`
	Selected    []string           `json:"selected,omitempty"`
	Conflicts   []string           `json:"conflicts,omitempty"`
	Values      map[string]float64 `json:"values,omitempty"`
	Binding     []string           `json:"binding,omitempty"`
	Suffixes    []model.Suffix     `json:"suffixes,omitempty"`
	Stats       Stats              `json:"stats"`
	Duration    model.Duration     `json:"duration"`
	Fingerprint string             `json:"fingerprint"`
	Version     string             `json:"version,omitempty"`
}

// Feasible reports whether the solve found an optimum.
func (r *Result) Feasible() bool {
	return r.Status == StatusOptimal
}

// Fingerprint hashes a document so identical models can be recognized
// across runs and cached.
func Fingerprint(doc *model.Document) (string, error) {
	h, err := hashstructure.Hash(doc, nil)
	if err != nil {
		return "", errors.Wrap(err, "fingerprint")
	}
	return fmt.Sprintf("%016x", h), nil
}
