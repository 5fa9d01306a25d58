package metadata

import (
	"math"
	"strconv"
)

// builder converts a structurally checked document into a Model, recording
// the typed violations the schema cannot express. Values of the wrong JSON
// type are skipped because the structural pass has already reported them.
type builder struct {
	issues []Issue
}

func (b *builder) addf(path []string, format string, args ...any) {
	b.issues = append(b.issues, newIssue(path, format, args...))
}

func (b *builder) model(doc map[string]any) Model {
	out := Model{
		Inputs:  make(map[string]Input),
		Outputs: make(map[string]Output),
	}
	out.Name, _ = doc["name"].(string)
	out.Description, _ = doc["description"].(string)

	if raw, ok := doc["inputs"].(map[string]any); ok {
		for key, value := range raw {
			entry, ok := value.(map[string]any)
			if !ok {
				continue
			}
			out.Inputs[key] = b.input([]string{"inputs", key}, entry)
		}
	}
	if raw, ok := doc["outputs"].(map[string]any); ok {
		for key, value := range raw {
			entry, ok := value.(map[string]any)
			if !ok {
				continue
			}
			out.Outputs[key] = b.output([]string{"outputs", key}, entry)
		}
	}

	checkUniqueNames(b, "inputs", out.Inputs, func(in Input) string { return in.Name })
	checkUniqueNames(b, "outputs", out.Outputs, func(o Output) string { return o.Name })
	return out
}

func (b *builder) input(path []string, raw map[string]any) Input {
	in := Input{}
	in.Name, _ = raw["name"].(string)
	if typ, ok := raw["type"].(string); ok {
		in.Type = IOType(typ)
	}
	in.Shape = b.shape(child(path, "shape"), raw["shape"])
	in.Min = floatField(raw, "min")
	in.Max = floatField(raw, "max")
	in.Step = floatField(raw, "step")
	in.Default = b.defaultValue(child(path, "default"), raw["default"], in.Type)

	if in.Min != nil && in.Max != nil && *in.Min > *in.Max {
		b.addf(child(path, "min"), "must not exceed max (%g > %g)", *in.Min, *in.Max)
	}
	if in.Step != nil && *in.Step <= 0 {
		b.addf(child(path, "step"), "must be positive")
	}
	if in.Default != nil && in.Default.Kind() == KindNumber {
		value := in.Default.Number()
		if in.Min != nil && value < *in.Min {
			b.addf(child(path, "default"), "must not be below min (%g < %g)", value, *in.Min)
		}
		if in.Max != nil && value > *in.Max {
			b.addf(child(path, "default"), "must not be above max (%g > %g)", value, *in.Max)
		}
	}
	return in
}

func (b *builder) output(path []string, raw map[string]any) Output {
	out := Output{}
	out.Name, _ = raw["name"].(string)
	if typ, ok := raw["type"].(string); ok {
		out.Type = IOType(typ)
	}
	out.Shape = b.shape(child(path, "shape"), raw["shape"])
	return out
}

func (b *builder) shape(path []string, raw any) Shape {
	entries, ok := raw.([]any)
	if !ok {
		return nil
	}
	shape := make(Shape, 0, len(entries))
	for idx, entry := range entries {
		if n, isNumber := entry.(float64); isNumber && n > maxExactInteger {
			b.addf(child(path, strconv.Itoa(idx)), "must not exceed %d", int64(maxExactInteger))
			continue
		}
		dim, ok := dimensionFrom(entry)
		if !ok {
			b.addf(child(path, strconv.Itoa(idx)), `must be a positive integer, null or "unknown"`)
			continue
		}
		shape = append(shape, dim)
	}
	return shape
}

func (b *builder) defaultValue(path []string, raw any, typ IOType) *Value {
	var value Value
	switch typed := raw.(type) {
	case nil:
		return nil
	case float64:
		value = NumberValue(typed)
	case string:
		value = TextValue(typed)
	default:
		b.addf(path, "must be a number or a string")
		return nil
	}

	switch {
	case !typ.Valid():
		// The type itself is already reported.
	case typ.Numeric() && value.Kind() != KindNumber:
		b.addf(path, "must be a number for %s inputs", typ)
	case !typ.Numeric() && value.Kind() != KindText:
		b.addf(path, "must be a string for %s inputs", typ)
	}
	return &value
}

// checkUniqueNames flags tensor names shared by two entries of a section.
// Keys are visited in lexical order so the first key keeps the name.
func checkUniqueNames[V any](b *builder, section string, entries map[string]V, nameOf func(V) string) {
	seen := make(map[string]string, len(entries))
	for _, key := range sortedKeys(entries) {
		name := nameOf(entries[key])
		if name == "" {
			continue
		}
		if first, exists := seen[name]; exists {
			b.addf([]string{section, key, "name"}, "duplicates the name of %s.%s", section, first)
			continue
		}
		seen[name] = key
	}
}

func floatField(raw map[string]any, key string) *float64 {
	value, ok := raw[key].(float64)
	if !ok {
		return nil
	}
	return &value
}

func dimensionFrom(raw any) (Dimension, bool) {
	switch typed := raw.(type) {
	case nil:
		return UnknownDimension, true
	case string:
		if typed == "unknown" {
			return UnknownDimension, true
		}
	case float64:
		if typed >= 1 && typed == math.Trunc(typed) && typed <= maxExactInteger {
			return Dimension(typed), true
		}
	case int:
		if typed >= 1 && int64(typed) <= maxExactInteger {
			return Dimension(typed), true
		}
	case int64:
		if typed >= 1 && typed <= maxExactInteger {
			return Dimension(typed), true
		}
	}
	return UnknownDimension, false
}

// maxExactInteger is the largest integer every float64 below it represents
// exactly; documents are read through float64.
const maxExactInteger = 1 << 53
