package imagen

import (
	"fmt"
	"slices"

	"github.com/go-viper/mapstructure/v2"
)

// Property describes a single option field.
type Property struct {
	Type    string   `json:"type"`
	Default any      `json:"default"`
	Enum    []string `json:"enum,omitempty"`
}

// Schema describes the options object accepted by a generate or edit tool.
//
// It doubles as the source of defaults when decoding an incoming payload.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// ObjectSchema returns a schema with the object type preset.
func ObjectSchema(properties map[string]Property, required ...string) Schema {
	if required == nil {
		required = []string{}
	}
	return Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// DecodeOptions validates payload against the schema and decodes the result
// into out, a pointer to an options struct with json field tags.
//
// Declared defaults are applied first, then overridden by the payload.
func DecodeOptions(s Schema, payload map[string]any, out any) error {
	merged := make(map[string]any, len(s.Properties))
	for name, prop := range s.Properties {
		if prop.Default != nil {
			merged[name] = prop.Default
		}
	}
	for name, value := range payload {
		if _, known := s.Properties[name]; !known {
			return fmt.Errorf("unknown option %q", name)
		}
		merged[name] = value
	}

	for _, name := range s.Required {
		if _, ok := merged[name]; !ok {
			return fmt.Errorf("missing required option %q", name)
		}
	}

	for name, prop := range s.Properties {
		if len(prop.Enum) == 0 {
			continue
		}
		value, ok := merged[name]
		if !ok {
			continue
		}
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("option %q must be a string, got %T", name, value)
		}
		if !slices.Contains(prop.Enum, str) {
			return fmt.Errorf("option %q must be one of %v, got %q", name, prop.Enum, str)
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("building options decoder: %v", err)
	}
	if err := dec.Decode(merged); err != nil {
		return fmt.Errorf("decoding options: %w", err)
	}
	return nil
}
