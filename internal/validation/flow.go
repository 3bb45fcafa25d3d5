package validation

import (
	"errors"

	"github.com/rendis/pyflow/pkg/schema"
)

// FlowValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema over the nested-map export)
// 2. Semantic (names, references, settings, roles, scenario)
// 3. DAG (cycles, connectivity)
type FlowValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewFlowValidator creates a FlowValidator.
func NewFlowValidator() (*FlowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &FlowValidator{jsonSchema: jsv}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit the semantic and DAG stages.
func (fv *FlowValidator) Validate(flow *schema.Flow) *schema.ValidationResult {
	if flow == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "flow is nil")
		return r
	}

	result := validateStructural(fv.jsonSchema, flow)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(flow))

	// Dangling references would make the graph fail to build.
	if result.Valid() {
		result.Merge(validateDAG(flow))
	}
	return result
}

// ValidateFlow returns a VALIDATION_ERROR when the flow has errors.
func (fv *FlowValidator) ValidateFlow(flow *schema.Flow) error {
	return fv.Validate(flow).ToError()
}

// Schema exposes the underlying JSON Schema validator.
func (fv *FlowValidator) Schema() *JSONSchemaValidator {
	return fv.jsonSchema
}

// validateStructural converts the JSON Schema error into issues.
func validateStructural(v *JSONSchemaValidator, flow *schema.Flow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateFlow(flow)
	if err == nil {
		return result
	}

	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := fe.Details["violations"].([]string); ok {
		for _, v := range violations {
			result.AddError("/", schema.ErrCodeValidation, v)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, fe.Message)
	return result
}
