package validation

import (
	"fmt"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// Issue codes specific to workflow documents.
const (
	CodeMissingName      = "MISSING_WORKFLOW_NAME"
	CodeMissingOwner     = "MISSING_CLIENT_ID"
	CodeDuplicateID      = "DUPLICATE_ID"
	CodeDanglingEdge     = "DANGLING_EDGE"
	CodeSelfLoop         = "SELF_LOOP"
	CodeMissingCondition = "MISSING_CONDITION"
	CodeInvalidCondition = "INVALID_CONDITION"
	CodeConditionSource  = "CONDITION_NOT_FROM_GATEWAY"
	CodeUnconfiguredNode = "UNCONFIGURED_NODE"
	CodeDuplicateMapping = "DUPLICATE_MAPPING"
	CodeCycle            = "CYCLE"
	CodeUnreachable      = "UNREACHABLE_NODE"
	CodeDisconnected     = "DISCONNECTED_NODE"
	CodeNoStart          = "NO_START_NODE"
	CodeGatewayFanOut    = "GATEWAY_SINGLE_BRANCH"
	CodeEmptyWorkflow    = "EMPTY_WORKFLOW"
)

// validateSemantic checks what JSON Schema cannot express: identity fields
// required for saving, unique ids, edge endpoints, condition wiring and node
// configuration.
func validateSemantic(doc *schema.WorkflowDocument, opts Options, conditions ConditionChecker) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if opts.RequireIdentity {
		if doc.WorkflowName == "" {
			result.AddError("workflowName", CodeMissingName, "workflow name is required")
		}
		if doc.ClientID == "" && doc.CompanyID == "" {
			result.AddError("clientId", CodeMissingOwner, "client id is required")
		}
	}

	kinds := make(map[string]string, len(doc.Nodes))
	for i, n := range doc.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if _, dup := kinds[n.ID]; dup {
			result.AddError(path+".id", CodeDuplicateID, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		kinds[n.ID] = n.Type
		validateNodeConfig(n, path, result)
	}

	edgeIDs := make(map[string]bool, len(doc.Edges))
	for i, e := range doc.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		if edgeIDs[e.ID] {
			result.AddError(path+".id", CodeDuplicateID, fmt.Sprintf("duplicate edge id %q", e.ID))
		}
		edgeIDs[e.ID] = true

		if _, ok := kinds[e.Source]; !ok {
			result.AddError(path+".source", CodeDanglingEdge, fmt.Sprintf("references non-existent node %q", e.Source))
		}
		if _, ok := kinds[e.Target]; !ok {
			result.AddError(path+".target", CodeDanglingEdge, fmt.Sprintf("references non-existent node %q", e.Target))
		}
		if e.Source == e.Target {
			result.AddError(path, CodeSelfLoop, "edge connects a node to itself")
		}

		if e.Type != schema.EdgeTypeCondition {
			continue
		}
		if src, ok := kinds[e.Source]; ok && src != schema.NodeTypeGateway {
			result.AddWarning(path+".type", CodeConditionSource, "conditional edge does not leave a gateway")
		}
		if e.Condition == nil {
			result.AddWarning(path+".condition", CodeMissingCondition, "no condition selected")
			continue
		}
		if conditions != nil {
			if err := conditions.CheckCondition(e.Condition.ConditionExpression); err != nil {
				result.AddWarning(path+".condition.conditionExpression", CodeInvalidCondition, err.Error())
			}
		}
	}
	return result
}

func validateNodeConfig(n schema.NodeDocument, path string, result *schema.ValidationResult) {
	switch n.Type {
	case schema.NodeTypeTask:
		if n.Data.Task == nil {
			result.AddWarning(path+".data.task", CodeUnconfiguredNode, "no task selected")
		}
		seen := make(map[[2]string]bool, len(n.Data.Mappings))
		for j, m := range n.Data.Mappings {
			pair := [2]string{m.ProductID, m.EmployeeID}
			if seen[pair] {
				result.AddWarning(fmt.Sprintf("%s.data.mappings[%d]", path, j), CodeDuplicateMapping,
					fmt.Sprintf("product %s is mapped to employee %s more than once", m.ProductID, m.EmployeeID))
			}
			seen[pair] = true
		}
	case schema.NodeTypeGateway:
		if n.Data.Gateway == nil {
			result.AddWarning(path+".data.gateway", CodeUnconfiguredNode, "no gateway selected")
		}
	case schema.NodeTypeEvent:
		if n.Data.Event == nil || n.Data.Event.Key == "" {
			result.AddWarning(path+".data.event", CodeUnconfiguredNode, "no event selected")
		}
	}
}
