package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rendis/flowbuilder/internal/editor"
	"github.com/rendis/flowbuilder/internal/graph"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFlowError maps err onto an HTTP status. FlowErrors keep their code
// in the body; graph sentinels are client mistakes.
func writeFlowError(w http.ResponseWriter, err error) {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		writeJSON(w, statusFor(fe.Code), map[string]any{
			"error":   fe.Message,
			"code":    fe.Code,
			"node_id": fe.NodeID,
			"details": fe.Details,
		})
		return
	}
	switch {
	case errors.Is(err, graph.ErrNodeNotFound), errors.Is(err, graph.ErrEdgeNotFound),
		errors.Is(err, graph.ErrMappingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, graph.ErrDuplicateMapping):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, graph.ErrSelfLoop), errors.Is(err, graph.ErrUnknownKind),
		errors.Is(err, graph.ErrNotConditional), errors.Is(err, graph.ErrNotAssignmentTask),
		errors.Is(err, graph.ErrMappingIncomplete), errors.Is(err, graph.ErrUnknownProduct),
		errors.Is(err, graph.ErrUnknownEmployee):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, graph.ErrInvalidGraph):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, editor.ErrSessionClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func statusFor(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeDecode:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeCancelled:
		return http.StatusConflict
	case schema.ErrCodeCycleDetected:
		return http.StatusUnprocessableEntity
	case schema.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case schema.ErrCodeUpstream:
		return http.StatusBadGateway
	case schema.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case schema.ErrCodeCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON request body into v. An empty body leaves v as is.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// queryBool is true for "1", "true" and the like.
func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
