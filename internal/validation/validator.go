package validation

import "github.com/rendis/flowbuilder/pkg/schema"

// Validator checks workflow documents before they are saved or turned into BPMN.
type Validator interface {
	ValidateDocument(doc *schema.WorkflowDocument) error
}

// ConditionChecker reports whether a condition expression is well formed.
type ConditionChecker interface {
	CheckCondition(expression string) error
}
