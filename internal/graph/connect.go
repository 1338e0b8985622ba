package graph

import "github.com/rendis/flowbuilder/pkg/schema"

// Classify decides the kind and initial payload of an edge leaving source.
// Edges out of a gateway are conditional and start without a condition.
func Classify(source Node) (EdgeKind, EdgeData) {
	if source.Kind == KindGateway {
		return EdgeConditional, EdgeData{Condition: nil}
	}
	return EdgePlain, EdgeData{}
}

// DocumentType returns the document type name of an edge.
func (e Edge) DocumentType() string {
	if e.Kind == EdgeConditional {
		return schema.EdgeTypeCondition
	}
	if e.Variant != "" {
		return e.Variant
	}
	return schema.EdgeTypeDefault
}
