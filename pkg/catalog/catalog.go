// Package catalog serves named model documents loaded from a
// directory.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	sharedtime "github.com/solvo-project/solvo/pkg/lib/time"
	"github.com/solvo-project/solvo/pkg/model"
)

// Model pairs a parsed document with the raw bytes it was loaded
// from, so merge patches can be applied to the original text.
type Model struct {
	Path string
	Raw  []byte
	Doc  *model.Document
}

// Catalog holds a read-only snapshot of models keyed by their
// metadata names. Reload swaps the snapshot atomically.
type Catalog struct {
	dir    string
	logger logrus.FieldLogger

	mu       sync.RWMutex
	models   map[string]*Model
	reloaded sharedtime.SharedTime
}

// New loads the catalog from dir.
func New(dir string, logger logrus.FieldLogger) (*Catalog, error) {
	c := &Catalog{dir: dir, logger: logger}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the directory, non-recursively, and swaps the
// snapshot. Files that fail to parse or validate are logged and
// skipped. Two files declaring the same model name are an error.
func (c *Catalog) Reload() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return errors.Wrapf(err, "unable to read catalog directory %s", c.dir)
	}

	models := map[string]*Model{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			c.logger.WithError(err).Warnf("skipping unreadable catalog file %s", path)
			continue
		}
		doc, err := model.Decode(raw)
		if err != nil {
			c.logger.WithError(err).Warnf("skipping malformed catalog file %s", path)
			continue
		}
		if err := doc.Validate(); err != nil {
			c.logger.WithError(err).Warnf("skipping invalid catalog file %s", path)
			continue
		}
		name := doc.Metadata.Name
		if prior, ok := models[name]; ok {
			return fmt.Errorf("duplicate model %q in %s and %s", name, prior.Path, path)
		}
		models[name] = &Model{Path: path, Raw: raw, Doc: doc}
	}

	c.mu.Lock()
	c.models = models
	c.mu.Unlock()
	c.reloaded.Set(time.Now())
	c.logger.Infof("catalog loaded %d models from %s", len(models), c.dir)
	return nil
}

// ReloadedAt reports when the snapshot was last swapped.
func (c *Catalog) ReloadedAt() time.Time {
	return c.reloaded.Time()
}

// ByName returns the named model.
func (c *Catalog) ByName(name string) (*Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[name]
	return m, ok
}

// Names lists the loaded model names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.models))
	for name := range c.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the snapshot size.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}
