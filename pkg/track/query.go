package track

import (
	"fmt"
	"os"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"gopkg.in/yaml.v3"
)

// Query evaluates a JSONPath expression against a track document, for
// example $.actors[*].splines[?(@.pursuit.shortcut == true)].name
func Query(data []byte, expr string) ([]any, error) {
	path, err := jp.ParseString(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", expr, err)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return path.Get(doc), nil
}

// QueryFile runs Query on the file at path.
func QueryFile(path, expr string) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Query(data, expr)
}

// QueryJSON is Query with the results rendered as JSON, one per entry.
func QueryJSON(data []byte, expr string) ([]string, error) {
	res, err := Query(data, expr)
	if err != nil {
		return nil, err
	}
	ret := make([]string, len(res))
	for i, r := range res {
		ret[i] = ToJSON(r)
	}
	return ret, nil
}

// ToJSON renders a query result with sorted keys.
func ToJSON(v any) string {
	return oj.JSON(v, &oj.Options{Sort: true})
}
