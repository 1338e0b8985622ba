package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/flowbuilder/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const documentSchemaURL = "https://flowbuilder.dev/schemas/workflow-document.json"

// documentSchemaJSON is the JSON Schema for WorkflowDocument.
// Embedded as a constant to avoid filesystem dependencies.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowbuilder.dev/schemas/workflow-document.json",
  "type": "object",
  "required": ["workflowName", "nodes", "edges"],
  "properties": {
    "id": { "type": "string" },
    "clientId": { "type": "string" },
    "companyId": { "type": "string" },
    "workflowName": { "type": "string" },
    "nodes": { "type": "array", "items": { "$ref": "#/$defs/node" } },
    "edges": { "type": "array", "items": { "$ref": "#/$defs/edge" } }
  },
  "additionalProperties": false,
  "$defs": {
    "definition": {
      "type": "object",
      "required": ["key", "name", "type"],
      "properties": {
        "key": { "type": "string" },
        "name": { "type": "string" },
        "type": { "type": "string" }
      }
    },
    "event": {
      "type": "object",
      "properties": {
        "key": { "type": "string" },
        "name": { "type": "string" },
        "eventType": { "type": "string" },
        "eventName": { "type": "string" },
        "timeDuration": { "type": "string" }
      },
      "additionalProperties": false
    },
    "mapping": {
      "type": "object",
      "required": ["id", "productId", "employeeId"],
      "properties": {
        "id": { "type": "integer" },
        "productId": { "type": "string", "minLength": 1 },
        "employeeId": { "type": "string", "minLength": 1 },
        "productName": { "type": "string" },
        "productAmount": { "type": "number" },
        "employeeName": { "type": "string" }
      }
    },
    "node": {
      "type": "object",
      "required": ["id", "type", "position", "data"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "enum": ["task", "gateway", "event"] },
        "position": {
          "type": "object",
          "required": ["x", "y"],
          "properties": { "x": { "type": "number" }, "y": { "type": "number" } }
        },
        "data": {
          "type": "object",
          "required": ["label"],
          "properties": {
            "label": { "type": "string" },
            "task": { "$ref": "#/$defs/definition" },
            "gateway": { "$ref": "#/$defs/definition" },
            "event": { "$ref": "#/$defs/event" },
            "mappings": { "type": "array", "items": { "$ref": "#/$defs/mapping" } }
          },
          "additionalProperties": false
        }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["id", "source", "target", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "source": { "type": "string", "minLength": 1 },
        "target": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "enum": ["default", "condition", "smoothstep"] },
        "condition": {
          "type": "object",
          "required": ["conditionKey", "conditionName", "conditionExpression"],
          "properties": {
            "conditionKey": { "type": "string" },
            "conditionName": { "type": "string" },
            "conditionExpression": { "type": "string" },
            "description": { "type": "string" }
          }
        }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks the structure of workflow documents against
// JSON Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	documentSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the document schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource(documentSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}

	compiled, err := c.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	return &JSONSchemaValidator{documentSchema: compiled}, nil
}

// ValidateDocument validates a document against the document JSON Schema.
func (v *JSONSchemaValidator) ValidateDocument(doc *schema.WorkflowDocument) error {
	if doc == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow document is nil")
	}
	value, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow document").WithCause(err)
	}
	return v.ValidateValue(value)
}

// ValidateRaw validates raw JSON bytes, e.g. a document received from the backend.
func (v *JSONSchemaValidator) ValidateRaw(raw []byte) error {
	value, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeDecode, "workflow document is not valid JSON").WithCause(err)
	}
	return v.ValidateValue(value)
}

// ValidateValue validates an already decoded JSON value.
func (v *JSONSchemaValidator) ValidateValue(value any) error {
	if err := v.documentSchema.Validate(value); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError converts a jsonschema.ValidationError into a FlowError
// listing every leaf violation.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
