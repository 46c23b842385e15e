package generation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrShapeMismatch is returned when a parsed object lacks a required key or
// a required array is missing or empty.
var ErrShapeMismatch = errors.New("object does not match expected shape")

// ExpectedShape lists the top-level requirements of a generated object.
// Nested element shapes are not checked.
type ExpectedShape struct {
	RequiredKeys      []string `json:"required_keys" yaml:"required_keys"`
	RequiredArrayKeys []string `json:"required_array_keys" yaml:"required_array_keys"`
}

// Schema renders the shape as a JSON Schema document. Array keys are
// implicitly required.
func (s ExpectedShape) Schema() map[string]interface{} {
	schema := map[string]interface{}{
		"type": "object",
	}

	required := make([]string, 0, len(s.RequiredKeys)+len(s.RequiredArrayKeys))
	seen := make(map[string]bool)
	for _, key := range append(append([]string{}, s.RequiredKeys...), s.RequiredArrayKeys...) {
		if !seen[key] {
			seen[key] = true
			required = append(required, key)
		}
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	if len(s.RequiredArrayKeys) > 0 {
		properties := make(map[string]interface{}, len(s.RequiredArrayKeys))
		for _, key := range s.RequiredArrayKeys {
			properties[key] = map[string]interface{}{
				"type":     "array",
				"minItems": 1,
			}
		}
		schema["properties"] = properties
	}

	return schema
}

// ValidateShape performs the shallow structural check of obj against shape
func ValidateShape(obj map[string]interface{}, shape ExpectedShape) error {
	if obj == nil {
		return fmt.Errorf("%w: object is nil", ErrShapeMismatch)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(shape.Schema()),
		gojsonschema.NewGoLoader(obj),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	reasons := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		reasons = append(reasons, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrShapeMismatch, strings.Join(reasons, "; "))
}
