package scaffold

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/datalpia/modelship/pkg/metadata"
)

// Refine walks the user through the draft: display name, description and,
// for every input, the bounds and default shown in the page form. The draft
// itself is not modified.
func Refine(ctx context.Context, driver PromptDriver, draft metadata.Model) (metadata.Model, error) {
	if driver == nil {
		return metadata.Model{}, errors.New("scaffold: prompt driver is required")
	}
	out := draft
	out.Inputs = make(map[string]metadata.Input, len(draft.Inputs))
	for key, in := range draft.Inputs {
		out.Inputs[key] = in
	}

	name, err := driver.Input(ctx, InputConfig{
		Message:   "Display name",
		Default:   draft.Name,
		Validator: requireText,
	})
	if err != nil {
		return metadata.Model{}, err
	}
	out.Name = strings.TrimSpace(name)

	description, err := driver.TextArea(ctx, TextAreaConfig{
		Message: "Description",
		Default: draft.Description,
		Help:    "Shown under the title. Basic HTML formatting is kept.",
	})
	if err != nil {
		return metadata.Model{}, err
	}
	out.Description = strings.TrimSpace(description)

	for _, key := range draft.InputKeys() {
		in, err := refineInput(ctx, driver, key, out.Inputs[key])
		if err != nil {
			return metadata.Model{}, err
		}
		out.Inputs[key] = in
	}
	return out, nil
}

func refineInput(ctx context.Context, driver PromptDriver, key string, in metadata.Input) (metadata.Input, error) {
	if err := driver.Info(ctx, fmt.Sprintf("Input %s (%s %s)", key, in.Type, in.Shape)); err != nil {
		return in, err
	}

	if !in.Type.Numeric() {
		text, err := driver.Input(ctx, InputConfig{Message: "Default value (empty for none)"})
		if err != nil {
			return in, err
		}
		if text = strings.TrimSpace(text); text != "" {
			value := metadata.TextValue(text)
			in.Default = &value
		}
		return in, nil
	}

	bounded, err := driver.Confirm(ctx, ConfirmConfig{Message: "Restrict the accepted range?"})
	if err != nil {
		return in, err
	}
	if bounded {
		if in.Min, err = askNumber(ctx, driver, "minimum", nil); err != nil {
			return in, err
		}
		if in.Max, err = askNumber(ctx, driver, "maximum", in.Min); err != nil {
			return in, err
		}
		if in.Step, err = askNumber(ctx, driver, "step", nil); err != nil {
			return in, err
		}
		if in.Step != nil && *in.Step <= 0 {
			return in, fmt.Errorf("scaffold: input %s: step must be positive", key)
		}
	}

	def, err := askNumber(ctx, driver, "default value", nil)
	if err != nil {
		return in, err
	}
	if def != nil {
		if (in.Min != nil && *def < *in.Min) || (in.Max != nil && *def > *in.Max) {
			return in, fmt.Errorf("scaffold: input %s: default %g is out of range", key, *def)
		}
		value := metadata.NumberValue(*def)
		in.Default = &value
	}
	return in, nil
}

// askNumber reads an optional number. When floor is set, smaller answers are
// rejected.
func askNumber(ctx context.Context, driver PromptDriver, label string, floor *float64) (*float64, error) {
	answer, err := driver.Input(ctx, InputConfig{
		Message: strings.ToUpper(label[:1]) + label[1:] + " (empty for none)",
		Validator: func(text string) error {
			f, ok, err := parseOptionalNumber(text)
			if err != nil || !ok || floor == nil {
				return err
			}
			if f < *floor {
				return fmt.Errorf("must not be below %g", *floor)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	f, ok, err := parseOptionalNumber(answer)
	if err != nil {
		return nil, fmt.Errorf("scaffold: %s: %w", label, err)
	}
	if !ok {
		return nil, nil
	}
	if floor != nil && f < *floor {
		return nil, fmt.Errorf("scaffold: %s: must not be below %g", label, *floor)
	}
	return &f, nil
}

func parseOptionalNumber(text string) (float64, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%q is not a number", text)
	}
	return f, true, nil
}

func requireText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("a value is required")
	}
	return nil
}
