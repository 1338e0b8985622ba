// Package editor owns one editing session: the graph, its history and the
// collaborators that load, validate, save and render it.
//
// Every read or write of the graph runs on the session's command loop (Run),
// so the graph itself needs no locking. Network calls run on the caller's
// goroutine between two commands and never block editing.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/flowbuilder/internal/catalog"
	"github.com/rendis/flowbuilder/internal/client"
	"github.com/rendis/flowbuilder/internal/codec"
	"github.com/rendis/flowbuilder/internal/graph"
	"github.com/rendis/flowbuilder/internal/logging"
	"github.com/rendis/flowbuilder/internal/store"
	"github.com/rendis/flowbuilder/internal/streaming"
	"github.com/rendis/flowbuilder/internal/validation"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// ErrSessionClosed is returned by Do once the command loop has stopped.
var ErrSessionClosed = errors.New("editor session is closed")

// Backend is the subset of the workflow API a session calls.
type Backend interface {
	GetWorkflow(ctx context.Context, name string) ([]byte, error)
	ListWorkflows(ctx context.Context) ([]schema.WorkflowSummary, error)
	SaveWorkflow(ctx context.Context, doc *schema.WorkflowDocument) (client.Result, error)
	UpdateWorkflow(ctx context.Context, id string, doc *schema.WorkflowDocument) (client.Result, error)
	DeleteWorkflow(ctx context.Context, id string) (client.Result, error)
	GenerateBPMN(ctx context.Context, doc *schema.WorkflowDocument) (client.Result, error)
}

// DocumentValidator checks a document before it leaves the session.
type DocumentValidator interface {
	Validate(doc *schema.WorkflowDocument, opts validation.Options) *schema.ValidationResult
}

// Drafts is the local draft storage a session uses.
type Drafts interface {
	SaveDraft(ctx context.Context, draft *store.Draft) error
	GetDraft(ctx context.Context, name string) (*store.Draft, error)
	ListDrafts(ctx context.Context, filter store.DraftFilter) ([]*store.Draft, error)
	DeleteDraft(ctx context.Context, name string) error
}

// Config configures a Session.
type Config struct {
	// ClientID is stamped on documents when the loaded workflow has none.
	ClientID string
	// CompanyID is used instead of ClientID when set.
	CompanyID string
	// AssignmentRule identifies assignment tasks. Nil uses the default rule.
	AssignmentRule graph.AssignmentFunc
	// HistoryCapacity overrides the undo depth when positive.
	HistoryCapacity int
}

// Option configures optional collaborators of a Session.
type Option func(*Session)

// WithBackend sets the workflow API.
func WithBackend(b Backend) Option { return func(s *Session) { s.backend = b } }

// WithCatalog sets the catalog service used for mappings and panels.
func WithCatalog(c *catalog.Service) Option { return func(s *Session) { s.catalog = c } }

// WithHub sets the hub editor events are published to.
func WithHub(h streaming.EventHub) Option { return func(s *Session) { s.hub = h } }

// WithDrafts sets the local draft store.
func WithDrafts(d Drafts) Option { return func(s *Session) { s.drafts = d } }

// WithValidator sets the document validator run before save and generate.
func WithValidator(v DocumentValidator) Option { return func(s *Session) { s.validator = v } }

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.logger = l } }

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option { return func(s *Session) { s.id = id } }

// WithClock overrides the time source of events and mapping ids.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// State is the session data a command may read and mutate.
type State struct {
	Graph *graph.Graph
	// Meta holds the envelope of the loaded workflow. WorkflowName is kept
	// in the graph and copied in when a document is built.
	Meta codec.Meta
}

// Document projects the current graph into a workflow document.
func (st *State) Document() *schema.WorkflowDocument {
	meta := st.Meta
	meta.WorkflowName = st.Graph.WorkflowName()
	return codec.ToDocument(st.Graph.Snapshot(), meta)
}

type command struct {
	fn   func(*State) error
	done chan error
}

// Session is one editor. Create with New, start with Run.
type Session struct {
	id        string
	cfg       Config
	backend   Backend
	catalog   *catalog.Service
	hub       streaming.EventHub
	drafts    Drafts
	validator DocumentValidator
	tickets   *catalog.Tickets
	logger    *slog.Logger
	now       func() time.Time

	state   *State
	cmds    chan command
	stopped chan struct{}
}

// New creates a session with an empty graph.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		tickets: catalog.NewTickets(),
		logger:  slog.Default(),
		now:     time.Now,
		cmds:    make(chan command),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	gopts := []graph.Option{graph.WithClock(s.now)}
	if cfg.AssignmentRule != nil {
		gopts = append(gopts, graph.WithAssignmentRule(cfg.AssignmentRule))
	}
	if cfg.HistoryCapacity > 0 {
		gopts = append(gopts, graph.WithHistoryCapacity(cfg.HistoryCapacity))
	}
	if s.catalog != nil {
		gopts = append(gopts, graph.WithDirectory(s.catalog))
	}
	s.state = &State{
		Graph: graph.New(gopts...),
		Meta:  codec.Meta{ClientID: cfg.ClientID, CompanyID: cfg.CompanyID},
	}
	return s
}

// ID returns the session id carried by every event.
func (s *Session) ID() string { return s.id }

// Run executes commands until ctx is cancelled. It must be called once.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.stopped)
	logging.LogWith(s.ctx(ctx), s.logger).Info("editor session started")
	for {
		select {
		case <-ctx.Done():
			logging.LogWith(s.ctx(ctx), s.logger).Info("editor session stopped")
			return nil
		case cmd := <-s.cmds:
			cmd.done <- cmd.fn(s.state)
		}
	}
}

// Do runs fn on the command loop and returns its error. fn must not call Do.
// If ctx ends after fn was handed to the loop, fn still runs.
func (s *Session) Do(ctx context.Context, fn func(*State) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ctx decorates ctx with the session id for correlated logging.
func (s *Session) ctx(ctx context.Context) context.Context {
	return logging.WithSessionID(ctx, s.id)
}

// publish emits an editor event. Must be called from the command loop or
// with a revision captured there.
func (s *Session) publish(ctx context.Context, typ, elementID string, revision uint64, payload any) {
	if s.hub == nil {
		return
	}
	evt := schema.EditorEvent{
		SessionID: s.id,
		Type:      typ,
		ElementID: elementID,
		Revision:  revision,
		Timestamp: s.now(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err == nil {
			evt.Payload = raw
		}
	}
	if err := s.hub.Publish(context.WithoutCancel(ctx), evt); err != nil {
		logging.LogWith(s.ctx(ctx), s.logger).Warn("event publish failed", "type", typ, "error", err)
	}
}
