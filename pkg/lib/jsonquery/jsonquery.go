package jsonquery

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// Run compiles the provided jq expression and applies it to a
// document. The document may be any JSON-marshalable value; it is
// normalized through a marshal round trip so that struct inputs
// behave the same as decoded maps.
func Run(query string, document interface{}) ([]interface{}, error) {
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %s", query, err)
	}

	normalized, err := normalize(document)
	if err != nil {
		return nil, err
	}

	var results []interface{}
	iter := q.Run(normalized)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("query %q: %s", query, err)
		}
		results = append(results, v)
	}
	return results, nil
}

func normalize(document interface{}) (interface{}, error) {
	raw, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("document is not JSON-marshalable: %s", err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
