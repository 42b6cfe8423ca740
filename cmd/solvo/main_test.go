package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ghodss/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvo-project/solvo/internal/exit"
	"github.com/solvo-project/solvo/pkg/compile"
	"github.com/solvo-project/solvo/pkg/store"
)

const stackDoc = `
apiVersion: solvo.dev/v1alpha1
kind: SelectionProblem
metadata:
  name: stack
spec:
  items:
    - id: web
      mandatory: true
      requires:
        - anyOf: [db]
    - id: db
`

const dietDoc = `
apiVersion: solvo.dev/v1alpha1
kind: LinearProgram
metadata:
  name: diet
spec:
  variables:
    - name: x
      lower: 0
      upper: 4
    - name: y
      lower: 0
  constraints:
    - name: cap
      expr: "x + y <= 8"
  objective:
    sense: minimize
    expr: "x + y"
`

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSolveCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stack.yaml", stackDoc)

	out, _, err := execute(t, "solve", path)
	require.NoError(t, err)

	var result compile.Result
	require.NoError(t, yaml.Unmarshal([]byte(out), &result))
	assert.Equal(t, compile.StatusOptimal, result.Status)
	assert.Equal(t, []string{"web", "db"}, result.Selected)
}

func TestSolveCommandJSONFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stack.json", stackDoc)

	out, _, err := execute(t, "solve", path, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "optimal"`)
}

func TestSolveCommandQuery(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stack.yaml", stackDoc)

	out, _, err := execute(t, "solve", path, "--query", ".status")
	require.NoError(t, err)
	assert.Equal(t, "optimal\n", out)
}

func TestSolveCommandPatchAndExitCode(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stack.yaml", stackDoc)
	patch := writeFile(t, dir, "forbid.yaml", `
spec:
  items:
    - id: web
      mandatory: true
      prohibited: true
`)

	out, _, err := execute(t, "solve", path, "--patch", patch)
	var code exit.Error
	require.ErrorAs(t, err, &code)
	assert.Equal(t, 3, code.Code())
	assert.Contains(t, out, "infeasible")
}

func TestSolveCommandOutputFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "diet.yaml", dietDoc)
	outPath := filepath.Join(dir, "result.yaml")

	out, _, err := execute(t, "solve", path, "--output", outPath)
	require.NoError(t, err)
	assert.Empty(t, out)

	written, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), "status: optimal")
}

func TestSolveCommandStore(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stack.yaml", stackDoc)
	dbPath := filepath.Join(dir, "runs.db")

	_, _, err := execute(t, "solve", path, "--store", dbPath)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.List(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "stack", runs[0].Name)
}

func TestSolveCommandScenarios(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stack.yaml", stackDoc)
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.Mkdir(scenarios, 0o755))
	writeFile(t, scenarios, "forbid.yaml", `
spec:
  items:
    - id: web
      mandatory: true
      prohibited: true
`)

	out, _, err := execute(t, "solve", path, "--scenarios", scenarios)
	var code exit.Error
	require.ErrorAs(t, err, &code)
	assert.Equal(t, 3, code.Code())

	var results map[string]*compile.Result
	require.NoError(t, yaml.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, compile.StatusOptimal, results["base"].Status)
	assert.Equal(t, compile.StatusInfeasible, results["forbid.yaml"].Status)
}

func TestSolveCommandRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stack.txt", stackDoc)

	_, _, err := execute(t, "solve", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file extension")
}

func TestSolveCommandRejectsUnknownFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stack.yaml", stackDoc)

	_, _, err := execute(t, "solve", path, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported format "xml"`)
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "diet.yaml", dietDoc)

	out, _, err := execute(t, "check", path)
	require.NoError(t, err)
	assert.Equal(t, "diet: ok\n", out)

	broken := writeFile(t, dir, "broken.yaml", `
apiVersion: solvo.dev/v1alpha1
kind: LinearProgram
metadata:
  name: broken
spec:
  variables:
    - name: x
  constraints:
    - name: c1
      expr: "ghost <= 1"
`)
	_, _, err = execute(t, "check", broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown variable "ghost"`)
}

func TestInspectCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "diet.yaml", dietDoc)

	out, _, err := execute(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "objective: minimize x + y")
	assert.Contains(t, out, "x in [0, 4]")
	assert.Contains(t, out, "cap: x + y <= 8")
}

func TestRunsCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stack.yaml", stackDoc)
	dbPath := filepath.Join(dir, "runs.db")

	_, _, err := execute(t, "solve", path, "--store", dbPath)
	require.NoError(t, err)

	out, _, err := execute(t, "runs", "--store", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "stack")
	assert.Contains(t, out, "optimal")
}

func TestRunsCommandRequiresStore(t *testing.T) {
	_, _, err := execute(t, "runs")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "solvo version")
}

func TestRootVersionFlag(t *testing.T) {
	out, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "solvo version")
}

func TestRootHelp(t *testing.T) {
	out, _, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "solve")
	assert.Contains(t, out, "serve")
	assert.Contains(t, out, "watch")
}
