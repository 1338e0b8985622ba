package panel

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rendis/flowbuilder/internal/client"
	"github.com/rendis/flowbuilder/internal/credentials"
	"github.com/rendis/flowbuilder/internal/diagram"
	"github.com/rendis/flowbuilder/internal/editor"
	"github.com/rendis/flowbuilder/pkg/schema"
)

const maxDocumentBytes = 8 << 20

// resultBody is the JSON form of a backend call outcome.
type resultBody struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Status  int             `json:"status,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func toResultBody(res client.Result) resultBody {
	out := resultBody{Success: res.Success, Message: res.Message, Status: res.Status}
	if json.Valid(res.Data) {
		out.Data = res.Data
	}
	return out
}

// writeResult answers a backend call. Failures keep the backend's message.
func writeResult(w http.ResponseWriter, res client.Result, err error) {
	if err != nil && res.Message == "" {
		writeFlowError(w, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = statusFor(schema.ErrorCode(err))
	}
	writeJSON(w, status, toResultBody(res))
}

// --- Workflows ---

func (s *PanelServer) handleListRemote(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Session.ListRemote(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleLoadDocument replaces the graph with the posted document.
func (s *PanelServer) handleLoadDocument(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	warnings, err := s.deps.Session.LoadDocument(r.Context(), data)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"warnings": nonNil(warnings)})
}

func (s *PanelServer) handleLoadByName(w http.ResponseWriter, r *http.Request) {
	warnings, err := s.deps.Session.LoadByName(r.Context(), r.PathValue("name"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"warnings": nonNil(warnings)})
}

func (s *PanelServer) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.Clear(r.Context()); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *PanelServer) handleSave(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Session.Save(r.Context())
	writeResult(w, res, err)
}

func (s *PanelServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Session.GenerateBPMN(r.Context())
	writeResult(w, res, err)
}

func (s *PanelServer) handleDeleteRemote(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Session.DeleteRemote(r.Context())
	writeResult(w, res, err)
}

// handleValidate runs the document checks without the identity rule.
func (s *PanelServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Session.Validate(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    res.Valid(),
		"errors":   res.Errors,
		"warnings": res.Warnings,
	})
}

// handleExport downloads the document as JSON (default) or YAML.
func (s *PanelServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	data, err := s.deps.Session.Export(r.Context(), format)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	contentType := "application/json"
	if format == editor.FormatYAML || format == "yml" {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// --- Drafts ---

// handleListDrafts lists local drafts. ?prefix= narrows by name and
// ?limit= caps the count.
func (s *PanelServer) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.deps.Session.ListDrafts(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if limit := queryInt(r, "limit", 0); limit > 0 && len(drafts) > limit {
		drafts = drafts[:limit]
	}
	writeJSON(w, http.StatusOK, drafts)
}

func (s *PanelServer) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Session.SaveDraft(r.Context(), r.PathValue("name"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *PanelServer) handleLoadDraft(w http.ResponseWriter, r *http.Request) {
	warnings, err := s.deps.Session.LoadDraft(r.Context(), r.PathValue("name"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"warnings": nonNil(warnings)})
}

func (s *PanelServer) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.DeleteDraft(r.Context(), r.PathValue("name")); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Catalog ---

func (s *PanelServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Catalog.Snapshot())
}

func (s *PanelServer) handleRefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Catalog.Refresh(r.Context()))
}

// --- Diagram ---

// handleDiagram renders the current graph with validation findings.
// ?format= is mermaid (default), dot, ascii, svg or png.
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := s.deps.Session.Document(ctx)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	findings, err := s.deps.Session.Validate(ctx)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	model, err := diagram.Build(doc, findings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var (
		body        []byte
		contentType = "text/plain; charset=utf-8"
	)
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "mermaid":
		body = []byte(diagram.RenderMermaid(model))
	case "ascii":
		body = []byte(diagram.RenderASCII(model))
	case "dot":
		var src string
		src, err = diagram.RenderDOT(model)
		body = []byte(src)
	case "svg":
		body, err = diagram.RenderSVG(ctx, model)
		contentType = "image/svg+xml"
	case "png":
		body, err = diagram.RenderImage(ctx, model)
		contentType = "image/png"
	default:
		writeError(w, http.StatusBadRequest, "unsupported diagram format "+format)
		return
	}
	if err != nil {
		s.log(r).Error("diagram render failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// --- Auth ---

// handleAuthCallback stores the credentials the host application passes
// in the query string. Missing parts keep their stored value.
func (s *PanelServer) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Credentials == nil {
		writeError(w, http.StatusServiceUnavailable, "credential vault is not configured")
		return
	}
	incoming := credentials.FromQuery(r.URL.Query())
	merged, err := s.deps.Credentials.Save(r.Context(), incoming)
	if err != nil {
		s.log(r).Error("store credentials failed", "error", err)
		writeFlowError(w, err)
		return
	}
	s.log(r).Info("credentials updated", "user_id", merged.UserID, "company_id", merged.CompanyID)
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": merged.Valid(),
		"user_id":       merged.UserID,
		"company_id":    merged.CompanyID,
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
