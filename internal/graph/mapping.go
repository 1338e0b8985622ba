package graph

import (
	"slices"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// Directory resolves catalog entries referenced by mappings.
type Directory interface {
	Product(id string) (schema.Product, bool)
	Employee(id string) (schema.Employee, bool)
}

// AddMapping appends a product-employee pair to an assignment task node.
// The pair must not already be mapped on that node.
func (g *Graph) AddMapping(nodeID, productID, employeeID string) (schema.Mapping, error) {
	idx, err := g.assignmentNode(nodeID)
	if err != nil {
		return schema.Mapping{}, err
	}
	m, err := g.resolveMapping(nodeID, productID, employeeID)
	if err != nil {
		return schema.Mapping{}, err
	}
	if containsPair(g.nodes[idx].Data.Mappings, productID, employeeID, -1) {
		return schema.Mapping{}, mappingError(nodeID, ErrDuplicateMapping)
	}

	g.record()
	m.ID = g.nextMappingID()
	g.nodes[idx].Data.Mappings = append(g.nodes[idx].Data.Mappings, m)
	g.touch()
	return m, nil
}

// UpdateMapping re-points an existing mapping and recomputes its
// denormalized fields. The new pair must not collide with another mapping.
func (g *Graph) UpdateMapping(nodeID string, mappingID int64, productID, employeeID string) (schema.Mapping, error) {
	idx, err := g.assignmentNode(nodeID)
	if err != nil {
		return schema.Mapping{}, err
	}
	pos := slices.IndexFunc(g.nodes[idx].Data.Mappings, func(m schema.Mapping) bool { return m.ID == mappingID })
	if pos < 0 {
		return schema.Mapping{}, schema.NewErrorf(schema.ErrCodeNotFound, "mapping %d not found", mappingID).
			WithNode(nodeID).WithCause(ErrMappingNotFound)
	}
	m, err := g.resolveMapping(nodeID, productID, employeeID)
	if err != nil {
		return schema.Mapping{}, err
	}
	if containsPair(g.nodes[idx].Data.Mappings, productID, employeeID, pos) {
		return schema.Mapping{}, mappingError(nodeID, ErrDuplicateMapping)
	}

	g.record()
	m.ID = mappingID
	g.nodes[idx].Data.Mappings[pos] = m
	g.touch()
	return m, nil
}

// RemoveMapping deletes a mapping from a node. Returns false when either
// the node or the mapping does not exist.
func (g *Graph) RemoveMapping(nodeID string, mappingID int64) bool {
	idx := g.nodeIndex(nodeID)
	if idx < 0 {
		return false
	}
	pos := slices.IndexFunc(g.nodes[idx].Data.Mappings, func(m schema.Mapping) bool { return m.ID == mappingID })
	if pos < 0 {
		return false
	}
	g.record()
	g.nodes[idx].Data.Mappings = slices.Delete(g.nodes[idx].Data.Mappings, pos, pos+1)
	g.touch()
	return true
}

func (g *Graph) assignmentNode(nodeID string) (int, error) {
	idx := g.nodeIndex(nodeID)
	if idx < 0 {
		return -1, schema.NewError(schema.ErrCodeNotFound, "node not found").WithNode(nodeID).WithCause(ErrNodeNotFound)
	}
	n := g.nodes[idx]
	if n.Kind != KindTask || !hasAssignmentTask(n.Data, g.assignment) {
		return -1, mappingError(nodeID, ErrNotAssignmentTask)
	}
	return idx, nil
}

// resolveMapping builds a mapping with display fields filled from the directory.
func (g *Graph) resolveMapping(nodeID, productID, employeeID string) (schema.Mapping, error) {
	if productID == "" || employeeID == "" {
		return schema.Mapping{}, mappingError(nodeID, ErrMappingIncomplete)
	}
	m := schema.Mapping{ProductID: productID, EmployeeID: employeeID}
	if g.directory == nil {
		return m, nil
	}
	p, ok := g.directory.Product(productID)
	if !ok {
		return schema.Mapping{}, mappingError(nodeID, ErrUnknownProduct)
	}
	e, ok := g.directory.Employee(employeeID)
	if !ok {
		return schema.Mapping{}, mappingError(nodeID, ErrUnknownEmployee)
	}
	m.ProductName = p.Name
	m.ProductAmount = p.Amount
	m.EmployeeName = e.Name
	return m, nil
}

// nextMappingID returns a millisecond timestamp, bumped when needed so ids
// never repeat within the graph.
func (g *Graph) nextMappingID() int64 {
	id := g.now().UnixMilli()
	if id <= g.lastMappingID {
		id = g.lastMappingID + 1
	}
	g.lastMappingID = id
	return id
}

// containsPair reports whether any mapping other than the one at skip
// already pairs productID with employeeID.
func containsPair(mappings []schema.Mapping, productID, employeeID string, skip int) bool {
	for i, m := range mappings {
		if i != skip && m.ProductID == productID && m.EmployeeID == employeeID {
			return true
		}
	}
	return false
}

func mappingError(nodeID string, cause error) *schema.FlowError {
	code := schema.ErrCodeValidation
	if cause == ErrDuplicateMapping {
		code = schema.ErrCodeConflict
	}
	return schema.NewError(code, cause.Error()).WithNode(nodeID).WithCause(cause)
}
