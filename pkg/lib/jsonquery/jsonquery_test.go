package jsonquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	type doc struct {
		Name   string   `json:"name"`
		Values []int    `json:"values"`
		Tags   []string `json:"tags,omitempty"`
	}

	type tc struct {
		Name     string
		Query    string
		Document interface{}
		Expected []interface{}
		Invalid  bool
	}

	for _, tt := range []tc{
		{
			Name:     "identity",
			Query:    ".",
			Document: map[string]interface{}{"a": 1.0},
			Expected: []interface{}{map[string]interface{}{"a": 1.0}},
		},
		{
			Name:     "field access on struct",
			Query:    ".name",
			Document: doc{Name: "x", Values: []int{1}},
			Expected: []interface{}{"x"},
		},
		{
			Name:     "iteration produces multiple results",
			Query:    ".values[]",
			Document: doc{Name: "x", Values: []int{1, 2, 3}},
			Expected: []interface{}{1.0, 2.0, 3.0},
		},
		{
			Name:     "missing field yields null",
			Query:    ".missing",
			Document: map[string]interface{}{"a": 1.0},
			Expected: []interface{}{nil},
		},
		{
			Name:     "selection",
			Query:    `.values[] | select(. > 1)`,
			Document: doc{Values: []int{1, 2, 3}},
			Expected: []interface{}{2.0, 3.0},
		},
		{
			Name:    "parse error",
			Query:   ".[qq",
			Invalid: true,
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			results, err := Run(tt.Query, tt.Document)
			if tt.Invalid {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.Expected, results)
		})
	}
}
