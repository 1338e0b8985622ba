package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/mitchellh/mapstructure"
	"github.com/rendis/flowbuilder/internal/graph"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// Loaded is the result of decoding a workflow document.
type Loaded struct {
	Meta
	Snapshot graph.Snapshot
	// Cleared is set when the payload was null or empty.
	Cleared bool
	// Warnings lists elements that were dropped or repaired while loading.
	Warnings []string
}

// envelope accepts both the bare {nodes, edges} shape and the
// {clientId|companyId, workflowName, ...} shape.
type envelope struct {
	ID           string           `json:"id"`
	WorkflowID   string           `json:"workflowId"`
	ClientID     string           `json:"clientId"`
	CompanyID    string           `json:"companyId"`
	WorkflowName string           `json:"workflowName"`
	Nodes        []map[string]any `json:"nodes"`
	Edges        []map[string]any `json:"edges"`
}

type rawNode struct {
	ID       string
	Type     string
	Position schema.Position
	Data     rawNodeData
}

type rawNodeData struct {
	Label           *string
	Task            *schema.Definition
	SelectedTask    *schema.Definition `mapstructure:"selectedTask"`
	Gateway         *schema.Definition
	SelectedGateway *schema.Definition `mapstructure:"selectedGateway"`
	Event           rawEvent
	Mappings        []schema.Mapping
}

type rawEvent struct {
	Key          string
	Name         string
	Type         string
	EventType    string `mapstructure:"eventType"`
	EventName    string `mapstructure:"eventName"`
	TimeDuration string `mapstructure:"timeDuration"`
}

type rawEdge struct {
	ID        string
	Source    string
	Target    string
	Type      string
	Condition *schema.Condition
	Data      struct {
		Condition *schema.Condition
	}
}

// FromDocument decodes a JSON workflow document into a graph snapshot.
//
// Loading is permissive: nodes of unknown type or with duplicate ids and
// edges with missing endpoints are dropped and reported in Warnings. The
// allocator is reseeded from every node id present before missing ids are
// filled in, so generated ids never collide with loaded ones.
func FromDocument(data []byte, ids *graph.IDAllocator) (*Loaded, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &Loaded{Cleared: true}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "workflow document is not valid JSON").WithCause(err)
	}

	out := &Loaded{Meta: Meta{
		ID:           firstNonEmpty(env.ID, env.WorkflowID),
		ClientID:     env.ClientID,
		CompanyID:    env.CompanyID,
		WorkflowName: env.WorkflowName,
	}}

	nodes := make([]rawNode, 0, len(env.Nodes))
	present := make([]string, 0, len(env.Nodes))
	for i, m := range env.Nodes {
		var rn rawNode
		if err := decodeLoose(m, &rn); err != nil {
			out.warnf("nodes[%d]: dropped, %v", i, err)
			continue
		}
		nodes = append(nodes, rn)
		if rn.ID != "" {
			present = append(present, rn.ID)
		}
	}
	ids.Reseed(present)

	kept := make(map[string]bool, len(nodes))
	for i, rn := range nodes {
		kind, ok := graph.ParseNodeKind(rn.Type)
		if !ok {
			out.warnf("nodes[%d]: dropped, unknown type %q", i, rn.Type)
			continue
		}
		if rn.ID == "" {
			rn.ID = ids.NextNodeID()
		}
		if kept[rn.ID] {
			out.warnf("nodes[%d]: dropped, duplicate id %s", i, rn.ID)
			continue
		}
		kept[rn.ID] = true
		out.Snapshot.Nodes = append(out.Snapshot.Nodes, graph.Node{
			ID:       rn.ID,
			Kind:     kind,
			Position: rn.Position,
			Data:     nodeData(kind, rn.Data),
		})
	}

	edgeIDs := make(map[string]bool, len(env.Edges))
	for i, m := range env.Edges {
		var re rawEdge
		if err := decodeLoose(m, &re); err != nil {
			out.warnf("edges[%d]: dropped, %v", i, err)
			continue
		}
		if !kept[re.Source] || !kept[re.Target] || re.Source == re.Target {
			out.warnf("edges[%d]: dropped, invalid endpoints %q -> %q", i, re.Source, re.Target)
			continue
		}
		e := edgeFromRaw(re)
		if e.ID == "" || edgeIDs[e.ID] {
			if e.ID != "" {
				out.warnf("edges[%d]: duplicate id %s renamed", i, e.ID)
			}
			e.ID = nextFreeEdgeID(graph.EdgeID(e.Source, e.Target), edgeIDs)
		}
		if e.Kind == graph.EdgePlain && (re.Condition != nil || re.Data.Condition != nil) {
			out.warnf("edges[%d]: condition on a plain edge ignored", i)
		}
		edgeIDs[e.ID] = true
		out.Snapshot.Edges = append(out.Snapshot.Edges, e)
	}
	return out, nil
}

// FromYAML decodes a YAML rendition of a workflow document.
func FromYAML(data []byte, ids *graph.IDAllocator) (*Loaded, error) {
	raw, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "workflow document is not valid YAML").WithCause(err)
	}
	return FromDocument(raw, ids)
}

func nodeData(kind graph.NodeKind, rd rawNodeData) graph.NodeData {
	// An explicit empty label is kept; only a missing one gets the default.
	d := graph.NodeData{Label: kind.DefaultLabel()}
	if rd.Label != nil {
		d.Label = *rd.Label
	}
	switch kind {
	case graph.KindTask:
		d.Task = firstDefinition(rd.Task, rd.SelectedTask)
		d.Mappings = rd.Mappings
	case graph.KindGateway:
		d.Gateway = firstDefinition(rd.Gateway, rd.SelectedGateway)
	case graph.KindEvent:
		d.Event = schema.EventData{
			Key:          rd.Event.Key,
			Name:         rd.Event.Name,
			Type:         firstNonEmpty(rd.Event.EventType, rd.Event.Type),
			EventName:    rd.Event.EventName,
			TimeDuration: rd.Event.TimeDuration,
		}
	}
	return d
}

func edgeFromRaw(re rawEdge) graph.Edge {
	e := graph.Edge{ID: re.ID, Source: re.Source, Target: re.Target, Kind: graph.EdgePlain}
	switch re.Type {
	case schema.EdgeTypeCondition:
		e.Kind = graph.EdgeConditional
		cond := re.Condition
		if cond == nil {
			cond = re.Data.Condition
		}
		e.Data.Condition = cond
	case "", schema.EdgeTypeDefault:
	default:
		e.Variant = re.Type
	}
	return e
}

func nextFreeEdgeID(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for i := 1; ; i++ {
		id := fmt.Sprintf("%s_%d", base, i)
		if !taken[id] {
			return id
		}
	}
}

// decodeLoose decodes a JSON object into a struct, matching field names
// case-insensitively and coercing scalar types (numeric ids become strings).
func decodeLoose(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func firstDefinition(defs ...*schema.Definition) *schema.Definition {
	for _, d := range defs {
		if d != nil && *d != (schema.Definition{}) {
			c := *d
			return &c
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (l *Loaded) warnf(format string, args ...any) {
	l.Warnings = append(l.Warnings, fmt.Sprintf(format, args...))
}
