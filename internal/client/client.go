// Package client talks to the workflow backend: the catalog API under /api
// and the workflow API under /workflow-api.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rendis/flowbuilder/internal/credentials"
	"github.com/rendis/flowbuilder/internal/expressions"
	"github.com/rendis/flowbuilder/internal/logging"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// Headers carried by every backend call besides Authorization.
const (
	HeaderUserID    = "X-User-Id"
	HeaderCompanyID = "X-Company-Id"
	HeaderRequestID = "X-Request-Id"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	maxErrorBody           = 512
)

// Config configures the backend client.
type Config struct {
	APIBaseURL      string // e.g. http://localhost:8080/api
	WorkflowBaseURL string // e.g. http://localhost:8080/workflow-api
	Timeout         time.Duration
	MaxResponseBody int64
	Retry           RetryPolicy
	Breaker         BreakerConfig
}

// Result is the outcome of a workflow API call.
type Result struct {
	Success bool   `json:"success"`
	Data    []byte `json:"-"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// Client is an authenticated backend client. Safe for concurrent use.
type Client struct {
	cfg      Config
	creds    credentials.Supplier
	http     *http.Client
	breakers *Breakers
	jq       *expressions.GoJQEngine
	logger   *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client. creds is consulted before every call.
func New(cfg Config, creds credentials.Supplier, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.WorkflowBaseURL = strings.TrimRight(cfg.WorkflowBaseURL, "/")

	c := &Client{
		cfg:      cfg,
		creds:    creds,
		http:     &http.Client{},
		breakers: NewBreakers(cfg.Breaker),
		jq:       expressions.NewGoJQEngine(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breakers exposes the per-endpoint circuit breakers for diagnostics.
func (c *Client) Breakers() *Breakers { return c.breakers }

type request struct {
	endpoint    string // breaker key and log name
	method      string
	url         string
	body        []byte
	contentType string
}

type response struct {
	status      int
	body        []byte
	contentType string
}

// do sends req with credentials, breaker checks and, for GETs, retries.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	if !creds.Valid() {
		return nil, schema.NewErrorf(schema.ErrCodeUnauthenticated,
			"%s: access token, user id and company id are required", req.endpoint)
	}

	attempts := 1
	if req.method == http.MethodGet && c.cfg.Retry.MaxAttempts > 1 {
		attempts = c.cfg.Retry.MaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.cfg.Retry.Backoff(attempt - 1)
			c.logger.WarnContext(ctx, "retrying backend call",
				slog.String("endpoint", req.endpoint),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			if err := waitBackoff(ctx, delay); err != nil {
				return nil, schema.NewError(schema.ErrCodeCancelled, req.endpoint+": cancelled").WithCause(err)
			}
		}
		if err := c.breakers.Allow(req.endpoint); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, req, creds)
		if err == nil {
			c.breakers.Success(req.endpoint)
			return resp, nil
		}
		if isRetryable(err) {
			c.breakers.Failure(req.endpoint)
		} else {
			// The endpoint answered; a 4xx is not an outage.
			c.breakers.Success(req.endpoint)
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, req request, creds credentials.Credentials) (*response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, req.method, req.url, body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s: invalid request", req.endpoint).WithCause(err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	httpReq.Header.Set(HeaderUserID, creds.UserID)
	httpReq.Header.Set(HeaderCompanyID, creds.CompanyID)
	httpReq.Header.Set(HeaderRequestID, requestID)

	logCtx := logging.WithRequestID(ctx, requestID)
	c.logger.DebugContext(logCtx, "backend request",
		slog.String("method", req.method), slog.String("url", req.url))

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, schema.NewError(schema.ErrCodeCancelled, req.endpoint+": cancelled").WithCause(err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, schema.NewErrorf(schema.ErrCodeTimeout, "%s: no response within %s", req.endpoint, c.cfg.Timeout).WithCause(err)
		default:
			return nil, schema.NewErrorf(schema.ErrCodeUpstream, "%s: request failed: %v", req.endpoint, err).WithCause(err)
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "%s: failed to read response body", req.endpoint).WithCause(err)
	}
	c.logger.DebugContext(logCtx, "backend response",
		slog.Int("status", resp.StatusCode),
		slog.String("url", req.url),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	if resp.StatusCode >= 400 {
		return nil, statusError(req.endpoint, resp.StatusCode, data)
	}
	return &response{status: resp.StatusCode, body: data, contentType: resp.Header.Get("Content-Type")}, nil
}

// statusError maps an HTTP error status to a FlowError carrying status,
// status text and a truncated body.
func statusError(endpoint string, status int, body []byte) *schema.FlowError {
	var code string
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = schema.ErrCodeUnauthenticated
	case status == http.StatusNotFound:
		code = schema.ErrCodeNotFound
	case status == http.StatusConflict:
		code = schema.ErrCodeConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		code = schema.ErrCodeValidation
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = schema.ErrCodeTimeout
	default:
		code = schema.ErrCodeUpstream
	}
	text := strings.TrimSpace(string(body))
	text = truncate(text, maxErrorBody)
	msg := fmt.Sprintf("%s: %d %s", endpoint, status, http.StatusText(status))
	if text != "" {
		msg += " - " + text
	}
	return schema.NewError(code, msg).WithDetails(map[string]any{
		"status":      status,
		"status_text": http.StatusText(status),
		"body":        text,
	})
}

// truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// StatusOf returns the HTTP status recorded on a client error, or 0.
func StatusOf(err error) int {
	var flowErr *schema.FlowError
	if !errors.As(err, &flowErr) || flowErr.Details == nil {
		return 0
	}
	status, _ := flowErr.Details["status"].(int)
	return status
}
