package metadata

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IOType enumerates the value kinds a model input or output may carry.
type IOType string

const (
	// TypeFloat32 marks numeric tensors.
	TypeFloat32 IOType = "float32"
	// TypeString marks text tensors.
	TypeString IOType = "string"
)

// Valid reports whether t is one of the recognised kinds.
func (t IOType) Valid() bool {
	switch t {
	case TypeFloat32, TypeString:
		return true
	default:
		return false
	}
}

// Numeric reports whether t holds numbers.
func (t IOType) Numeric() bool {
	return t == TypeFloat32
}

// Dimension is the size of one tensor axis. The zero value is an unknown
// (dynamic) axis; known axes are always positive.
type Dimension int64

// UnknownDimension marks a dynamic axis.
const UnknownDimension Dimension = 0

// Known reports whether the axis has a fixed size.
func (d Dimension) Known() bool {
	return d > 0
}

func (d Dimension) String() string {
	if !d.Known() {
		return "?"
	}
	return strconv.FormatInt(int64(d), 10)
}

// MarshalJSON encodes unknown axes as null.
func (d Dimension) MarshalJSON() ([]byte, error) {
	if !d.Known() {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, int64(d), 10), nil
}

// UnmarshalJSON accepts a positive integer, null or the string "unknown".
func (d *Dimension) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	dim, ok := dimensionFrom(raw)
	if !ok {
		return fmt.Errorf("metadata: invalid dimension %s", strings.TrimSpace(string(data)))
	}
	*d = dim
	return nil
}

// MarshalYAML encodes unknown axes as null.
func (d Dimension) MarshalYAML() (any, error) {
	if !d.Known() {
		return nil, nil
	}
	return int64(d), nil
}

// Shape is an ordered list of axis sizes.
type Shape []Dimension

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		parts[i] = dim.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ValueKind tags the payload of a Value.
type ValueKind uint8

const (
	// KindNumber marks numeric values.
	KindNumber ValueKind = iota + 1
	// KindText marks text values.
	KindText
)

// Value is an input default: either a number or a text value.
type Value struct {
	kind ValueKind
	num  float64
	text string
}

// NumberValue wraps a numeric default.
func NumberValue(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// TextValue wraps a text default.
func TextValue(s string) Value {
	return Value{kind: KindText, text: s}
}

// Kind returns the payload kind.
func (v Value) Kind() ValueKind { return v.kind }

// Number returns the numeric payload; zero for text values.
func (v Value) Number() float64 { return v.num }

// Text returns the text payload; empty for numeric values.
func (v Value) Text() string { return v.text }

// Equal reports whether both values carry the same kind and payload.
func (v Value) Equal(other Value) bool {
	return v.kind == other.kind && v.num == other.num && v.text == other.text
}

func (v Value) String() string {
	if v.kind == KindNumber {
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	}
	return v.text
}

// MarshalJSON encodes the payload as a JSON number or string.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON accepts a JSON number or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch typed := raw.(type) {
	case float64:
		*v = NumberValue(typed)
	case string:
		*v = TextValue(typed)
	default:
		return fmt.Errorf("metadata: default must be a number or a string, got %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// MarshalYAML encodes the payload as a YAML scalar.
func (v Value) MarshalYAML() (any, error) {
	if v.kind == KindNumber {
		return v.num, nil
	}
	return v.text, nil
}

// Input describes one model input as the page should present it.
type Input struct {
	Name    string   `json:"name" yaml:"name"`
	Type    IOType   `json:"type" yaml:"type"`
	Shape   Shape    `json:"shape" yaml:"shape"`
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Step    *float64 `json:"step,omitempty" yaml:"step,omitempty"`
	Default *Value   `json:"default,omitempty" yaml:"default,omitempty"`
}

// Output describes one model output.
type Output struct {
	Name  string `json:"name" yaml:"name"`
	Type  IOType `json:"type" yaml:"type"`
	Shape Shape  `json:"shape" yaml:"shape"`
}

// Model is the validated description of a model. Values are only produced by
// Parse and Load and are treated as immutable afterwards.
type Model struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Inputs      map[string]Input  `json:"inputs" yaml:"inputs"`
	Outputs     map[string]Output `json:"outputs" yaml:"outputs"`
}

// InputKeys returns the input keys in lexical order.
func (m Model) InputKeys() []string {
	return sortedKeys(m.Inputs)
}

// OutputKeys returns the output keys in lexical order.
func (m Model) OutputKeys() []string {
	return sortedKeys(m.Outputs)
}

// JSON serialises the model. The encoding escapes <, > and & so the result
// can be embedded inside an HTML script element as-is.
func (m Model) JSON() (string, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("metadata: encode json: %w", err)
	}
	return string(payload), nil
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
