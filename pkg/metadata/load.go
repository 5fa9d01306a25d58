package metadata

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and validates the description stored at path. Filesystem
// failures are returned wrapped; every other failure is a *ValidationError.
//
//nolint:gosec // G304: the path is supplied by the user on purpose
func Load(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Model{}, fmt.Errorf("metadata: read %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse validates a YAML or JSON description. source names the document in
// error messages and may be empty.
func Parse(data []byte, source string) (Model, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Model{}, newValidationError(source, Issue{Message: "document is empty"})
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Model{}, newValidationError(source, Issue{Message: fmt.Sprintf("invalid YAML: %v", err)})
	}

	var shapeIssues []Issue
	doc := normalize(raw, nil, &shapeIssues)
	if len(shapeIssues) > 0 {
		return Model{}, newValidationError(source, shapeIssues...)
	}

	issues := structuralIssues(doc)
	obj, ok := doc.(map[string]any)
	if !ok {
		if len(issues) == 0 {
			issues = append(issues, Issue{Message: "document must be a mapping"})
		}
		return Model{}, newValidationError(source, issues...)
	}

	b := &builder{}
	model := b.model(obj)
	issues = append(issues, b.issues...)
	if len(issues) > 0 {
		return Model{}, newValidationError(source, issues...)
	}
	return model, nil
}

// normalize turns a decoded YAML tree into the shapes encoding/json
// produces (map[string]any, []any, float64, string, bool, nil) so both the
// schema and the typed pass see one representation. Values JSON cannot hold
// are reported with their path and left out.
func normalize(raw any, path []string, issues *[]Issue) any {
	switch typed := raw.(type) {
	case nil, string, bool:
		return typed
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[key] = normalize(value, child(path, key), issues)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			name, ok := key.(string)
			if !ok {
				*issues = append(*issues, newIssue(child(path, fmt.Sprint(key)), "mapping key %v must be a string", key))
				continue
			}
			out[name] = normalize(value, child(path, name), issues)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, value := range typed {
			out[i] = normalize(value, child(path, strconv.Itoa(i)), issues)
		}
		return out
	case int:
		return exactNumber(int64(typed), path, issues)
	case int64:
		return exactNumber(typed, path, issues)
	case uint64:
		if typed > maxExactInteger {
			*issues = append(*issues, newIssue(path, "integer %d is too large to be represented exactly", typed))
			return nil
		}
		return float64(typed)
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			*issues = append(*issues, newIssue(path, "must be a finite number"))
			return nil
		}
		return typed
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	default:
		*issues = append(*issues, newIssue(path, "unsupported value of type %T", raw))
		return nil
	}
}

func exactNumber(n int64, path []string, issues *[]Issue) any {
	if n > maxExactInteger || n < -maxExactInteger {
		*issues = append(*issues, newIssue(path, "integer %d is too large to be represented exactly", n))
		return nil
	}
	return float64(n)
}
