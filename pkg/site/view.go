package site

import (
	"fmt"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"

	"github.com/datalpia/modelship/pkg/metadata"
)

var (
	descriptionPolicyOnce sync.Once
	descriptionPolicy     *bluemonday.Policy
)

// sanitizeDescription keeps the formatting markup of user-generated content
// and drops everything else (scripts, event handlers, styles).
func sanitizeDescription(description string) string {
	if strings.TrimSpace(description) == "" {
		return ""
	}
	descriptionPolicyOnce.Do(func() {
		descriptionPolicy = bluemonday.UGCPolicy()
	})
	return strings.TrimSpace(descriptionPolicy.Sanitize(description))
}

// field is the display form of one input or output.
type field struct {
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	Type       metadata.IOType `json:"type"`
	Shape      metadata.Shape  `json:"shape"`
	Text       bool            `json:"text"`
	HasMin     bool            `json:"has_min"`
	Min        *float64        `json:"min,omitempty"`
	HasMax     bool            `json:"has_max"`
	Max        *float64        `json:"max,omitempty"`
	HasStep    bool            `json:"has_step"`
	Step       *float64        `json:"step,omitempty"`
	HasDefault bool            `json:"has_default"`
	Default    *metadata.Value `json:"default,omitempty"`
}

func inputFields(model metadata.Model) []field {
	keys := model.InputKeys()
	out := make([]field, 0, len(keys))
	for _, key := range keys {
		in := model.Inputs[key]
		f := field{
			Key:        key,
			Name:       in.Name,
			Type:       in.Type,
			Shape:      in.Shape,
			Text:       !in.Type.Numeric(),
			HasDefault: in.Default != nil,
			Default:    in.Default,
		}
		// Bounds only apply to numeric inputs.
		if in.Type.Numeric() {
			f.HasMin, f.Min = in.Min != nil, in.Min
			f.HasMax, f.Max = in.Max != nil, in.Max
			f.HasStep, f.Step = in.Step != nil, in.Step
		}
		out = append(out, f)
	}
	return out
}

func outputFields(model metadata.Model) []field {
	keys := model.OutputKeys()
	out := make([]field, 0, len(keys))
	for _, key := range keys {
		o := model.Outputs[key]
		out = append(out, field{Key: key, Name: o.Name, Type: o.Type, Shape: o.Shape})
	}
	return out
}

// filterShape renders a shape list as [1, ?, 3]. The view data reaches the
// template as decoded JSON, so axes are float64 and unknown axes are nil.
func filterShape(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	items, _ := in.Interface().([]any)
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case nil:
			parts = append(parts, "?")
		case float64:
			parts = append(parts, metadata.Dimension(v).String())
		case int:
			parts = append(parts, metadata.Dimension(v).String())
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return pongo2.AsValue("[" + strings.Join(parts, ", ") + "]"), nil
}
