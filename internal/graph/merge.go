package graph

import (
	"slices"
	"strings"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// Opt is a patch field with three states: untouched, cleared, or set.
// The zero value is untouched.
type Opt[T any] struct {
	set bool
	val *T
}

// Set returns an Opt that replaces the field with v.
func Set[T any](v T) Opt[T] {
	return Opt[T]{set: true, val: &v}
}

// Clear returns an Opt that empties the field.
func Clear[T any]() Opt[T] {
	return Opt[T]{set: true}
}

// IsSet reports whether the patch touches the field.
func (o Opt[T]) IsSet() bool { return o.set }

// Value returns the new value, and false when the field is being cleared
// or untouched.
func (o Opt[T]) Value() (T, bool) {
	if o.val == nil {
		var zero T
		return zero, false
	}
	return *o.val, true
}

// EventPatch updates event fields one by one. Nil fields are untouched.
type EventPatch struct {
	Key          *string
	Name         *string
	Type         *string
	EventName    *string
	TimeDuration *string
}

// SelectEvent returns a patch that applies a catalog event selection.
func SelectEvent(def schema.Definition) *EventPatch {
	return &EventPatch{Key: &def.Key, Name: &def.Name, Type: &def.Type}
}

// NodePatch is a partial update of a node's data. Fields that do not apply
// to the node's kind are ignored.
type NodePatch struct {
	Label    *string
	Task     Opt[schema.Definition]
	Gateway  Opt[schema.Definition]
	Event    *EventPatch
	Mappings Opt[[]schema.Mapping]
}

// EdgePatch is a partial update of an edge's data.
type EdgePatch struct {
	Condition Opt[schema.Condition]
}

// AssignmentFunc reports whether a task definition is an assignment task,
// i.e. one that carries product-employee mappings.
type AssignmentFunc func(task schema.Definition) bool

// DefaultAssignmentRule matches tasks whose name or type mentions "assign".
func DefaultAssignmentRule(task schema.Definition) bool {
	return strings.Contains(strings.ToLower(task.Name), "assign") ||
		strings.Contains(strings.ToLower(task.Type), "assign")
}

// MergeNodeData applies p over cur for a node of the given kind and derives
// the label: the selected task's name, else the selected gateway's name,
// else the label after the merge.
func MergeNodeData(kind NodeKind, cur NodeData, p NodePatch, isAssignment AssignmentFunc) NodeData {
	out := cur.Clone()
	if p.Label != nil {
		out.Label = *p.Label
	}

	switch kind {
	case KindTask:
		if p.Task.IsSet() {
			out.Task = optDefinition(p.Task)
		}
		if p.Mappings.IsSet() {
			v, _ := p.Mappings.Value()
			out.Mappings = slices.Clone(v)
		}
	case KindGateway:
		if p.Gateway.IsSet() {
			out.Gateway = optDefinition(p.Gateway)
		}
	case KindEvent:
		if p.Event != nil {
			out.Event = mergeEvent(out.Event, *p.Event)
		}
	}

	switch {
	case out.Task != nil && out.Task.Name != "":
		out.Label = out.Task.Name
	case out.Gateway != nil && out.Gateway.Name != "":
		out.Label = out.Gateway.Name
	}

	if kind == KindTask && !hasAssignmentTask(out, isAssignment) {
		out.Mappings = nil
	}
	return out
}

func hasAssignmentTask(d NodeData, isAssignment AssignmentFunc) bool {
	if d.Task == nil {
		return false
	}
	if isAssignment == nil {
		isAssignment = DefaultAssignmentRule
	}
	return isAssignment(*d.Task)
}

// optDefinition resolves a definition patch. Setting the zero Definition is
// the same as clearing it, so a blank selection never reaches a document.
func optDefinition(o Opt[schema.Definition]) *schema.Definition {
	v, ok := o.Value()
	if !ok || v == (schema.Definition{}) {
		return nil
	}
	return &v
}

func mergeEvent(cur schema.EventData, p EventPatch) schema.EventData {
	assign := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	assign(&cur.Key, p.Key)
	assign(&cur.Name, p.Name)
	assign(&cur.Type, p.Type)
	assign(&cur.EventName, p.EventName)
	assign(&cur.TimeDuration, p.TimeDuration)
	return cur
}
