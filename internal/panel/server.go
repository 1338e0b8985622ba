// Package panel serves the editor session over HTTP: a JSON API for edits
// and persistence, a Server-Sent Events stream of editor events, diagram
// renders, and the credential callback the host application redirects to.
package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/rendis/flowbuilder/internal/catalog"
	"github.com/rendis/flowbuilder/internal/credentials"
	"github.com/rendis/flowbuilder/internal/editor"
	"github.com/rendis/flowbuilder/internal/logging"
	"github.com/rendis/flowbuilder/internal/streaming"
)

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Session *editor.Session
	Catalog *catalog.Service
	Hub     streaming.EventHub
	// Credentials is optional; without it the auth callback answers 503.
	Credentials *credentials.VaultSupplier
	Logger      *slog.Logger
}

// PanelServer serves the editor API.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &PanelServer{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// SSE stream.
	mux.HandleFunc("GET /sse/events", s.handleSSE)

	// Credential callback.
	mux.HandleFunc("GET /auth/callback", s.handleAuthCallback)

	// Graph edits.
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("POST /api/nodes", s.handleAddNode)
	mux.HandleFunc("GET /api/nodes/{id}", s.handleGetNode)
	mux.HandleFunc("PATCH /api/nodes/{id}", s.handleUpdateNode)
	mux.HandleFunc("PATCH /api/nodes/{id}/position", s.handleMoveNode)
	mux.HandleFunc("DELETE /api/nodes/{id}", s.handleRemoveNode)
	mux.HandleFunc("POST /api/nodes/{id}/mappings", s.handleAddMapping)
	mux.HandleFunc("PUT /api/nodes/{id}/mappings/{mapping}", s.handleUpdateMapping)
	mux.HandleFunc("DELETE /api/nodes/{id}/mappings/{mapping}", s.handleRemoveMapping)
	mux.HandleFunc("POST /api/nodes/{id}/panel", s.handleOpenPanel)
	mux.HandleFunc("DELETE /api/nodes/{id}/panel", s.handleClosePanel)
	mux.HandleFunc("POST /api/edges", s.handleConnect)
	mux.HandleFunc("DELETE /api/edges/{id}", s.handleRemoveEdge)
	mux.HandleFunc("PUT /api/edges/{id}/condition", s.handleSetCondition)
	mux.HandleFunc("POST /api/select", s.handleSelect)
	mux.HandleFunc("POST /api/undo", s.handleUndo)
	mux.HandleFunc("PUT /api/workflow/name", s.handleRename)
	mux.HandleFunc("PUT /api/workflow/identity", s.handleSetIdentity)

	// Persistence.
	mux.HandleFunc("GET /api/workflows", s.handleListRemote)
	mux.HandleFunc("POST /api/load", s.handleLoadDocument)
	mux.HandleFunc("POST /api/load/{name}", s.handleLoadByName)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("POST /api/save", s.handleSave)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("DELETE /api/workflow", s.handleDeleteRemote)
	mux.HandleFunc("GET /api/validate", s.handleValidate)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("GET /api/drafts", s.handleListDrafts)
	mux.HandleFunc("PUT /api/drafts/{name}", s.handleSaveDraft)
	mux.HandleFunc("POST /api/drafts/{name}/load", s.handleLoadDraft)
	mux.HandleFunc("DELETE /api/drafts/{name}", s.handleDeleteDraft)

	// Catalog and rendering.
	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("POST /api/catalog/refresh", s.handleRefreshCatalog)
	mux.HandleFunc("GET /api/diagram", s.handleDiagram)

	return s.withRequestID(mux)
}

// withRequestID tags each request's context for correlated logging.
func (s *PanelServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := logging.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *PanelServer) log(r *http.Request) *slog.Logger {
	return logging.LogWith(r.Context(), s.deps.Logger)
}
