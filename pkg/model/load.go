package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

// Load reads and parses a document from a JSON or YAML file. The file
// extension must be .json, .yaml, or .yml.
func Load(path string) (*Document, error) {
	data, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", path)
	}
	return doc, nil
}

// LoadRaw reads a document file without parsing it, enforcing the
// same extension rules as Load.
func LoadRaw(path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("unsupported file extension %q, expected .json, .yaml, or .yml", filepath.Ext(path))
	}
	return os.ReadFile(path)
}

// Decode parses a document from raw JSON or YAML bytes.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Encode renders a document as YAML, or as indented JSON when
// asJSON is true.
func Encode(doc *Document, asJSON bool) ([]byte, error) {
	if asJSON {
		return json.MarshalIndent(doc, "", "  ")
	}
	return yaml.Marshal(doc)
}
