package model

import (
	jsonpatch "github.com/evanphx/json-patch"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

// MergeRaw applies an RFC 7386 merge patch to serialized document
// bytes and returns the merged JSON. Both the document and the patch
// may be JSON or YAML.
func MergeRaw(doc, patch []byte) ([]byte, error) {
	docJSON, err := yaml.YAMLToJSON(doc)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert document to JSON")
	}
	patchJSON, err := yaml.YAMLToJSON(patch)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert patch to JSON")
	}
	merged, err := jsonpatch.MergePatch(docJSON, patchJSON)
	if err != nil {
		return nil, errors.Wrap(err, "unable to apply patch")
	}
	return merged, nil
}

// ApplyMergePatch applies an RFC 7386 merge patch to a serialized
// document and parses the result.
func ApplyMergePatch(doc, patch []byte) (*Document, error) {
	merged, err := MergeRaw(doc, patch)
	if err != nil {
		return nil, err
	}
	return Decode(merged)
}
