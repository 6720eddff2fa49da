package validation

import (
	"github.com/flowmesh/flowmesh/pkg/schema"
)

// Validator runs the full pre-execution check pipeline over a workflow
// document: JSON Schema first, then semantic analysis. Structural failures
// short-circuit; semantic issues are collected exhaustively.
type Validator struct {
	structural *SchemaValidator
	lookup     HandlerLookup
}

// New creates a Validator. lookup may be nil to skip handler availability
// checks (e.g. when validating a document without a configured registry).
func New(lookup HandlerLookup) (*Validator, error) {
	structural, err := NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &Validator{structural: structural, lookup: lookup}, nil
}

// Validate checks a workflow document and reports every issue found.
func (v *Validator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	if err := v.structural.ValidateDocument(wf); err != nil {
		result := &schema.ValidationResult{}
		var fe *schema.FlowError
		if e, ok := err.(*schema.FlowError); ok {
			fe = e
		}
		if fe != nil {
			if raw, ok := fe.Details["violations"].([]string); ok && len(raw) > 0 {
				for _, violation := range raw {
					result.AddError("", fe.Code, violation)
				}
				return result
			}
			result.AddError("", fe.Code, fe.Message)
			return result
		}
		result.AddError("", schema.ErrCodeValidation, err.Error())
		return result
	}

	return validateSemantic(wf, v.lookup)
}
