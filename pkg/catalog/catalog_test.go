package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvo-project/solvo/pkg/model"
)

const alphaDoc = `
apiVersion: solvo.dev/v1alpha1
kind: SelectionProblem
metadata:
  name: alpha
spec:
  items:
    - id: web
`

const betaDoc = `{
  "apiVersion": "solvo.dev/v1alpha1",
  "kind": "LinearProgram",
  "metadata": {"name": "beta"},
  "spec": {"variables": [{"name": "x"}]}
}`

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCatalogLoads(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", alphaDoc)
	write(t, dir, "b.json", betaDoc)
	write(t, dir, "notes.txt", "not a model")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	logger, _ := test.NewNullLogger()
	c, err := New(dir, logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, c.Names())
	assert.Equal(t, 2, c.Len())

	m, ok := c.ByName("alpha")
	require.True(t, ok)
	assert.Equal(t, model.KindSelectionProblem, m.Doc.Kind)
	assert.NotEmpty(t, m.Raw)
	assert.Equal(t, filepath.Join(dir, "a.yaml"), m.Path)

	_, ok = c.ByName("missing")
	assert.False(t, ok)
}

func TestCatalogSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", alphaDoc)
	write(t, dir, "garbage.yaml", "{{{ not yaml")
	write(t, dir, "unnamed.yaml", `
apiVersion: solvo.dev/v1alpha1
kind: SelectionProblem
spec:
  items:
    - id: web
`)

	logger, hook := test.NewNullLogger()
	c, err := New(dir, logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha"}, c.Names())

	var warnings []string
	for _, entry := range hook.Entries {
		if entry.Level == logrus.WarnLevel {
			warnings = append(warnings, entry.Message)
		}
	}
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "malformed")
	assert.Contains(t, warnings[1], "invalid")
}

func TestCatalogDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", alphaDoc)
	write(t, dir, "other.yml", alphaDoc)

	logger, _ := test.NewNullLogger()
	_, err := New(dir, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate model "alpha"`)
	assert.Contains(t, err.Error(), "a.yaml")
	assert.Contains(t, err.Error(), "other.yml")
}

func TestCatalogReload(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", alphaDoc)

	logger, _ := test.NewNullLogger()
	c, err := New(dir, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, c.Names())

	loaded := c.ReloadedAt()
	assert.False(t, loaded.IsZero())

	write(t, dir, "b.json", betaDoc)
	require.NoError(t, c.Reload())
	assert.Equal(t, []string{"alpha", "beta"}, c.Names())
	assert.False(t, c.ReloadedAt().Before(loaded))
}

func TestCatalogMissingDirectory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := New(filepath.Join(t.TempDir(), "absent"), logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to read catalog directory")
}
