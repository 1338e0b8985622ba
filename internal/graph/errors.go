package graph

import "errors"

// Sentinel causes carried by the FlowErrors this package returns.
// Match them with errors.Is.
var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrEdgeNotFound      = errors.New("edge not found")
	ErrSelfLoop          = errors.New("edge source and target are the same node")
	ErrUnknownKind       = errors.New("unknown node kind")
	ErrNotConditional    = errors.New("edge is not conditional")
	ErrInvalidGraph      = errors.New("graph violates structural invariants")
	ErrNotAssignmentTask = errors.New("node has no assignment task selected")
	ErrMappingIncomplete = errors.New("mapping requires a product and an employee")
	ErrDuplicateMapping  = errors.New("product is already mapped to this employee")
	ErrMappingNotFound   = errors.New("mapping not found")
	ErrUnknownProduct    = errors.New("product not in catalog")
	ErrUnknownEmployee   = errors.New("employee not in catalog")
)
