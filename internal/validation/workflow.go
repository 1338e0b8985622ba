package validation

import "github.com/rendis/flowbuilder/pkg/schema"

// Options tunes the pipeline for its caller.
type Options struct {
	// RequireIdentity makes a missing workflow name or client id an error.
	// Saving and BPMN generation set it; previews do not.
	RequireIdentity bool
}

// WorkflowValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (identity, ids, endpoints, conditions, node configuration)
// 3. Flow (cycles, reachability, disconnected nodes)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	conditions ConditionChecker
}

// NewWorkflowValidator creates a WorkflowValidator.
// conditions may be nil to skip condition expression checks.
func NewWorkflowValidator(conditions ConditionChecker) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{
		jsonSchema: jsv,
		conditions: conditions,
	}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and flow stages are skipped.
func (wv *WorkflowValidator) Validate(doc *schema.WorkflowDocument, opts Options) *schema.ValidationResult {
	if doc == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow document is nil")
		return r
	}

	// Stage 1: Structural (JSON Schema).
	result := validateStructural(wv.jsonSchema, doc)
	if !result.Valid() {
		return result
	}

	// Stage 2: Semantic.
	result.Merge(validateSemantic(doc, opts, wv.conditions))

	// Stage 3: Flow (skip if semantic errors — graph may be invalid).
	if result.Valid() {
		result.Merge(validateFlow(doc))
	}

	return result
}

// ValidateDocument satisfies the Validator interface with identity required.
func (wv *WorkflowValidator) ValidateDocument(doc *schema.WorkflowDocument) error {
	return wv.Validate(doc, Options{RequireIdentity: true}).ToError()
}

// validateStructural wraps JSONSchemaValidator.ValidateDocument, converting
// its error output into ValidationResult.
func validateStructural(v *JSONSchemaValidator, doc *schema.WorkflowDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDocument(doc)
	if err == nil {
		return result
	}

	flowErr, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if flowErr.Details != nil {
		if violations, ok := flowErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, flowErr.Message)
	return result
}
