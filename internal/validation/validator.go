package validation

import "github.com/rendis/pyflow/pkg/schema"

// Validator checks assembled flows before they are exported.
type Validator interface {
	Validate(flow *schema.Flow) *schema.ValidationResult
	ValidateFlow(flow *schema.Flow) error
}
