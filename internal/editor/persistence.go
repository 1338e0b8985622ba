package editor

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/rendis/flowbuilder/internal/client"
	"github.com/rendis/flowbuilder/internal/codec"
	"github.com/rendis/flowbuilder/internal/graph"
	"github.com/rendis/flowbuilder/internal/logging"
	"github.com/rendis/flowbuilder/internal/store"
	"github.com/rendis/flowbuilder/internal/validation"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

const msgIdentityRequired = "Client ID and Workflow Name are required."

// LoadDocument replaces the graph with a decoded workflow document and
// returns the loader warnings. A null or empty payload clears the editor.
func (s *Session) LoadDocument(ctx context.Context, data []byte) ([]string, error) {
	return s.load(ctx, data, "")
}

func (s *Session) load(ctx context.Context, data []byte, fallbackName string) ([]string, error) {
	var warnings []string
	err := s.Do(ctx, func(st *State) error {
		loaded, err := codec.FromDocument(data, st.Graph.Allocator())
		if err != nil {
			return err
		}
		if loaded.Cleared {
			return s.clear(ctx, st)
		}
		name := loaded.WorkflowName
		if name == "" {
			name = fallbackName
		}
		if err := st.Graph.ReplaceAll(loaded.Snapshot, name); err != nil {
			return err
		}
		st.Meta = codec.Meta{
			ID:        loaded.ID,
			ClientID:  loaded.ClientID,
			CompanyID: loaded.CompanyID,
		}
		if st.Meta.ClientID == "" && st.Meta.CompanyID == "" {
			st.Meta.ClientID, st.Meta.CompanyID = s.cfg.ClientID, s.cfg.CompanyID
		}
		warnings = loaded.Warnings
		s.publish(ctx, schema.EventWorkflowLoaded, "", st.Graph.Revision(), map[string]any{
			"workflowName": name,
			"nodes":        len(loaded.Snapshot.Nodes),
			"edges":        len(loaded.Snapshot.Edges),
			"warnings":     loaded.Warnings,
		})
		return nil
	})
	if err == nil && len(warnings) > 0 {
		logging.LogWith(s.ctx(ctx), s.logger).Warn("workflow loaded with repairs", "warnings", warnings)
	}
	return warnings, err
}

// LoadByName fetches a stored workflow from the backend and loads it.
func (s *Session) LoadByName(ctx context.Context, name string) ([]string, error) {
	if s.backend == nil {
		return nil, errNoBackend()
	}
	data, err := s.backend.GetWorkflow(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, data, name)
}

// ListRemote lists the workflows stored in the backend.
func (s *Session) ListRemote(ctx context.Context) ([]schema.WorkflowSummary, error) {
	if s.backend == nil {
		return nil, errNoBackend()
	}
	return s.backend.ListWorkflows(ctx)
}

// Clear empties the editor and forgets the loaded workflow.
func (s *Session) Clear(ctx context.Context) error {
	return s.Do(ctx, func(st *State) error { return s.clear(ctx, st) })
}

func (s *Session) clear(ctx context.Context, st *State) error {
	if err := st.Graph.ReplaceAll(graph.Snapshot{}, ""); err != nil {
		return err
	}
	st.Meta = codec.Meta{ClientID: s.cfg.ClientID, CompanyID: s.cfg.CompanyID}
	s.publish(ctx, schema.EventWorkflowCleared, "", st.Graph.Revision(), nil)
	return nil
}

// SetIdentity overrides the client and company ids stamped on documents.
func (s *Session) SetIdentity(ctx context.Context, clientID, companyID string) error {
	return s.Do(ctx, func(st *State) error {
		st.Meta.ClientID, st.Meta.CompanyID = clientID, companyID
		return nil
	})
}

// outgoing captures the document and revision a network call works on.
func (s *Session) outgoing(ctx context.Context) (*schema.WorkflowDocument, uint64, error) {
	var (
		doc *schema.WorkflowDocument
		rev uint64
	)
	err := s.Do(ctx, func(st *State) error {
		doc = st.Document()
		rev = st.Graph.Revision()
		return nil
	})
	return doc, rev, err
}

// checkOutgoing enforces identity and runs the validator.
func (s *Session) checkOutgoing(doc *schema.WorkflowDocument) error {
	if strings.TrimSpace(doc.WorkflowName) == "" || (doc.ClientID == "" && doc.CompanyID == "") {
		return schema.NewError(schema.ErrCodeValidation, msgIdentityRequired)
	}
	if s.validator == nil {
		return nil
	}
	return s.validator.Validate(doc, validation.Options{RequireIdentity: true}).ToError()
}

// Save creates the workflow in the backend, or updates it when it was loaded
// from or saved to the backend before. The graph is only marked saved if it
// did not change while the request was in flight. On failure nothing in the
// graph changes.
func (s *Session) Save(ctx context.Context) (client.Result, error) {
	if s.backend == nil {
		return client.Result{Message: "Failed to save workflow"}, errNoBackend()
	}
	doc, rev, err := s.outgoing(ctx)
	if err != nil {
		return client.Result{}, err
	}
	ctx = logging.WithWorkflowName(ctx, doc.WorkflowName)
	if err := s.checkOutgoing(doc); err != nil {
		s.publish(ctx, schema.EventSaveFailed, "", rev, map[string]string{"message": err.Error()})
		return client.Result{Message: messageOf(err)}, err
	}

	var res client.Result
	if doc.ID == "" {
		res, err = s.backend.SaveWorkflow(ctx, doc)
	} else {
		res, err = s.backend.UpdateWorkflow(ctx, doc.ID, doc)
	}
	if err != nil {
		logging.LogWith(s.ctx(ctx), s.logger).Error("workflow save failed", "error", err, "status", res.Status)
		s.publish(ctx, schema.EventSaveFailed, "", rev, map[string]any{"message": res.Message, "status": res.Status})
		return res, err
	}

	id := doc.ID
	if id == "" {
		id = responseID(res.Data)
	}
	err = s.Do(ctx, func(st *State) error {
		if st.Meta.ID == "" {
			st.Meta.ID = id
		}
		clean := st.Graph.MarkSaved(rev)
		s.publish(ctx, schema.EventWorkflowSaved, "", st.Graph.Revision(), map[string]any{
			"id": id, "message": res.Message, "clean": clean,
		})
		return nil
	})
	return res, err
}

// DeleteRemote deletes the loaded workflow from the backend. The graph stays
// in the editor and the next Save creates it again.
func (s *Session) DeleteRemote(ctx context.Context) (client.Result, error) {
	if s.backend == nil {
		return client.Result{Message: "Failed to delete workflow"}, errNoBackend()
	}
	doc, _, err := s.outgoing(ctx)
	if err != nil {
		return client.Result{}, err
	}
	if doc.ID == "" {
		return client.Result{Message: "Failed to delete workflow"},
			schema.NewError(schema.ErrCodeValidation, "workflow has not been saved")
	}
	res, err := s.backend.DeleteWorkflow(ctx, doc.ID)
	if err != nil {
		return res, err
	}
	err = s.Do(ctx, func(st *State) error {
		if st.Meta.ID == doc.ID {
			st.Meta.ID = ""
		}
		s.publish(ctx, schema.EventWorkflowDeleted, "", st.Graph.Revision(), map[string]string{"id": doc.ID})
		return nil
	})
	return res, err
}

// GenerateBPMN submits the current document for BPMN generation. The graph
// is not marked saved.
func (s *Session) GenerateBPMN(ctx context.Context) (client.Result, error) {
	if s.backend == nil {
		return client.Result{Message: "Error generating workflow"}, errNoBackend()
	}
	doc, rev, err := s.outgoing(ctx)
	if err != nil {
		return client.Result{}, err
	}
	if err := s.checkOutgoing(doc); err != nil {
		return client.Result{Message: messageOf(err)}, err
	}
	res, err := s.backend.GenerateBPMN(logging.WithWorkflowName(ctx, doc.WorkflowName), doc)
	if err != nil {
		return res, err
	}
	payload := map[string]any{"message": res.Message}
	if json.Valid(res.Data) {
		payload["result"] = json.RawMessage(res.Data)
	}
	s.publish(ctx, schema.EventWorkflowGenerated, "", rev, payload)
	return res, nil
}

// Validate runs the local validation pipeline without requiring identity.
func (s *Session) Validate(ctx context.Context) (*schema.ValidationResult, error) {
	doc, _, err := s.outgoing(ctx)
	if err != nil {
		return nil, err
	}
	if s.validator == nil {
		return &schema.ValidationResult{}, nil
	}
	return s.validator.Validate(doc, validation.Options{}), nil
}

// Export renders the current document as JSON or YAML.
func (s *Session) Export(ctx context.Context, format string) ([]byte, error) {
	doc, _, err := s.outgoing(ctx)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return doc.JSON()
	case FormatYAML, "yml":
		return codec.ToYAML(doc)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported export format %q", format)
	}
}

// --- Drafts ---

// SaveDraft stores the current document locally under name, or under the
// workflow name when name is empty.
func (s *Session) SaveDraft(ctx context.Context, name string) (*store.Draft, error) {
	if s.drafts == nil {
		return nil, errNoDrafts()
	}
	doc, rev, err := s.outgoing(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = doc.WorkflowName
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "failed to encode draft").WithCause(err)
	}
	d := &store.Draft{Name: name, WorkflowID: doc.ID, Document: raw, Revision: rev}
	if err := s.drafts.SaveDraft(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadDraft replaces the graph with a locally stored draft.
func (s *Session) LoadDraft(ctx context.Context, name string) ([]string, error) {
	if s.drafts == nil {
		return nil, errNoDrafts()
	}
	d, err := s.drafts.GetDraft(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, d.Document, d.Name)
}

// ListDrafts lists local drafts whose name starts with prefix.
func (s *Session) ListDrafts(ctx context.Context, prefix string) ([]*store.Draft, error) {
	if s.drafts == nil {
		return nil, errNoDrafts()
	}
	return s.drafts.ListDrafts(ctx, store.DraftFilter{Prefix: prefix})
}

// DeleteDraft removes a local draft.
func (s *Session) DeleteDraft(ctx context.Context, name string) error {
	if s.drafts == nil {
		return errNoDrafts()
	}
	return s.drafts.DeleteDraft(ctx, name)
}

// responseID extracts "id" or "workflowId" from a save response body.
func responseID(data []byte) string {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	for _, key := range []string{"id", "workflowId", "_id"} {
		switch v := body[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func messageOf(err error) string {
	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Message
	}
	return err.Error()
}

func errNoBackend() error {
	return schema.NewError(schema.ErrCodeValidation, "workflow backend is not configured")
}

func errNoDrafts() error {
	return schema.NewError(schema.ErrCodeStore, "draft store is not configured")
}
