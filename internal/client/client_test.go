package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowbuilder/internal/credentials"
	"github.com/rendis/flowbuilder/pkg/schema"
)

var testCreds = credentials.Static{AccessToken: "tok-1", UserID: "u-7", CompanyID: "acme"}

type backend struct {
	*httptest.Server
	hits atomic.Int32
}

func newBackend(t *testing.T, handler http.HandlerFunc) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(b.Close)
	return b
}

func newTestClient(b *backend, mutate ...func(*Config)) *Client {
	cfg := Config{
		APIBaseURL:      b.URL + "/api",
		WorkflowBaseURL: b.URL + "/workflow-api/",
		Retry:           RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Breaker:         BreakerConfig{FailureThreshold: 10, Cooldown: time.Minute},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg, testCreds)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// --- Authentication ---

func TestClient_IncompleteCredentialsShortCircuit(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"conditions":[]}`)
	})
	c := New(Config{APIBaseURL: b.URL + "/api"}, credentials.Static{AccessToken: "t", UserID: "u"})

	_, err := c.Conditions(context.Background())
	assert.Equal(t, schema.ErrCodeUnauthenticated, schema.ErrorCode(err))
	assert.Equal(t, int32(0), b.hits.Load(), "no network traffic")
}

func TestClient_SendsAuthHeaders(t *testing.T) {
	var got http.Header
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeJSON(w, 200, `{"status":"ok"}`)
	})

	res, err := newTestClient(b).Health(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "API is healthy", res.Message)
	assert.Equal(t, "Bearer tok-1", got.Get("Authorization"))
	assert.Equal(t, "u-7", got.Get(HeaderUserID))
	assert.Equal(t, "acme", got.Get(HeaderCompanyID))
	assert.Len(t, got.Get(HeaderRequestID), 36)
}

// --- Catalog ---

func TestClient_Conditions(t *testing.T) {
	tests := []struct {
		label string
		body  string
		want  []schema.Condition
	}{
		{
			label: "envelope",
			body:  `{"conditions":[{"conditionKey":"k1","conditionName":"Approved","conditionExpression":"${approved}"}]}`,
			want:  []schema.Condition{{ConditionKey: "k1", ConditionName: "Approved", ConditionExpression: "${approved}"}},
		},
		{label: "missing key", body: `{"other":1}`, want: []schema.Condition{}},
		{label: "null list", body: `{"conditions":null}`, want: []schema.Condition{}},
		{label: "empty body", body: ``, want: []schema.Condition{}},
		{
			label: "malformed item skipped",
			body:  `{"conditions":[{"conditionKey":5},{"conditionKey":"k2","conditionName":"n","conditionExpression":"e"}]}`,
			want:  []schema.Condition{{ConditionKey: "k2", ConditionName: "n", ConditionExpression: "e"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/getAllConditions", r.URL.Path)
				writeJSON(w, 200, tt.body)
			})
			got, err := newTestClient(b).Conditions(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_NodeDetails(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/getNodeDetails", r.URL.Path)
		writeJSON(w, 200, `{
			"tasks":[{"key":"review","name":"Review","type":"userTask"}],
			"gateways":[{"key":"xor","name":"Decision","type":"exclusiveGateway"}]
		}`)
	})

	got, err := newTestClient(b).NodeDetails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []schema.Definition{{Key: "review", Name: "Review", Type: "userTask"}}, got.Tasks)
	assert.Equal(t, []schema.Definition{{Key: "xor", Name: "Decision", Type: "exclusiveGateway"}}, got.Gateways)
	assert.Equal(t, []schema.Definition{}, got.Events)
}

func TestClient_ProductsAndEmployees(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/getProducts":
			writeJSON(w, 200, `[{"id":"p1","name":"Loan","amount":1200.5}]`)
		case "/api/getEmployees":
			writeJSON(w, 200, `{"employees":[{"id":"e1","name":"Ana"}]}`)
		default:
			http.NotFound(w, r)
		}
	})
	c := newTestClient(b)

	products, err := c.Products(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []schema.Product{{ID: "p1", Name: "Loan", Amount: 1200.5}}, products)

	employees, err := c.Employees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []schema.Employee{{ID: "e1", Name: "Ana"}}, employees)
}

func TestClient_NonJSONCatalog(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	})
	_, err := newTestClient(b).Products(context.Background())
	assert.Equal(t, schema.ErrCodeDecode, schema.ErrorCode(err))
}

// --- Retries and breaker ---

func TestClient_GetRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, `{"error":"warming up"}`)
			return
		}
		writeJSON(w, 200, `[]`)
	})

	_, err := newTestClient(b).Products(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), b.hits.Load())
}

func TestClient_GetGivesUpAfterMaxAttempts(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, ``)
	})

	_, err := newTestClient(b).Products(context.Background())
	assert.Equal(t, schema.ErrCodeUpstream, schema.ErrorCode(err))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Equal(t, int32(3), b.hits.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := newTestClient(b).GetWorkflow(context.Background(), "missing")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
	assert.Equal(t, int32(1), b.hits.Load())
}

func TestClient_PostIsNotRetried(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"error":"db down"}`)
	})

	res, err := newTestClient(b).SaveWorkflow(context.Background(), &schema.WorkflowDocument{WorkflowName: "w"})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to save workflow", res.Message)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, int32(1), b.hits.Load())
}

func TestClient_BreakerOpensPerEndpoint(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			writeJSON(w, 200, `{}`)
			return
		}
		writeJSON(w, http.StatusInternalServerError, ``)
	})
	c := newTestClient(b, func(cfg *Config) {
		cfg.Retry = RetryPolicy{MaxAttempts: 1}
		cfg.Breaker = BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute}
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Products(ctx)
		assert.Equal(t, schema.ErrCodeUpstream, schema.ErrorCode(err))
	}
	_, err := c.Products(ctx)
	assert.Equal(t, schema.ErrCodeCircuitOpen, schema.ErrorCode(err))
	assert.Equal(t, int32(2), b.hits.Load())
	assert.Equal(t, CircuitOpen, c.Breakers().State("getProducts"))

	_, err = c.Health(ctx)
	assert.NoError(t, err, "other endpoints are unaffected")
}

func TestClient_Timeout(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	})
	c := newTestClient(b, func(cfg *Config) {
		cfg.Timeout = 20 * time.Millisecond
		cfg.Retry = RetryPolicy{MaxAttempts: 1}
	})

	_, err := c.Health(context.Background())
	assert.Equal(t, schema.ErrCodeTimeout, schema.ErrorCode(err))
}

func TestClient_CallerCancellation(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `[]`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(b).Products(ctx)
	assert.Equal(t, schema.ErrCodeCancelled, schema.ErrorCode(err))
}

// --- Workflow API ---

func TestClient_WorkflowCRUD(t *testing.T) {
	type seen struct{ method, path, query, body string }
	var last seen
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		last = seen{r.Method, r.URL.Path, r.URL.RawQuery, string(body)}
		writeJSON(w, 200, `{"id":"wf-1"}`)
	})
	c := newTestClient(b)
	ctx := context.Background()
	doc := &schema.WorkflowDocument{WorkflowName: "orders", Nodes: []schema.NodeDocument{}, Edges: []schema.EdgeDocument{}}

	res, err := c.SaveWorkflow(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "Workflow saved successfully!", res.Message)
	assert.JSONEq(t, `{"id":"wf-1"}`, string(res.Data))
	assert.Equal(t, http.MethodPost, last.method)
	assert.Equal(t, "/workflow-api/save", last.path)
	assert.JSONEq(t, `{"workflowName":"orders","nodes":[],"edges":[]}`, last.body)

	_, err = c.UpdateWorkflow(ctx, "wf-1", doc)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, last.method)
	assert.Equal(t, "/workflow-api/update/wf-1", last.path)

	_, err = c.DeleteWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, last.method)
	assert.Equal(t, "/workflow-api/delete/wf-1", last.path)

	_, err = c.ValidateWorkflow(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "/workflow-api/validate", last.path)

	_, err = c.ExportWorkflow(ctx, "wf-1", "")
	require.NoError(t, err)
	assert.Equal(t, "/workflow-api/export/wf-1", last.path)
	assert.Equal(t, "format=json", last.query)

	raw, err := c.GetWorkflow(ctx, "my flow")
	require.NoError(t, err)
	assert.Equal(t, "/workflow-api/json/my flow", last.path)
	assert.JSONEq(t, `{"id":"wf-1"}`, string(raw))
}

func TestClient_WorkflowArgumentChecks(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {})
	c := newTestClient(b)
	ctx := context.Background()

	_, err := c.UpdateWorkflow(ctx, "", &schema.WorkflowDocument{})
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	_, err = c.DeleteWorkflow(ctx, "")
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	_, err = c.SaveWorkflow(ctx, nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	_, err = c.GetWorkflow(ctx, "")
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	assert.Equal(t, int32(0), b.hits.Load())
}

func TestClient_ListWorkflows(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workflow-api/all-workflows", r.URL.Path)
		writeJSON(w, 200, `[{"id":"1","workflowName":"a","extra":true},{"id":"2","workflowName":"b"}]`)
	})

	got, err := newTestClient(b).ListWorkflows(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].WorkflowName)
	assert.Equal(t, "2", got[1].ID)
}

func TestClient_ImportWorkflow(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("workflow")
		require.NoError(t, err)
		defer f.Close()
		content, _ := io.ReadAll(f)
		assert.Equal(t, "flow.json", hdr.Filename)
		assert.Equal(t, `{"workflowName":"x"}`, string(content))
		writeJSON(w, 200, `{"imported":true}`)
	})

	res, err := newTestClient(b).ImportWorkflow(context.Background(), "flow.json", strings.NewReader(`{"workflowName":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "Workflow imported successfully", res.Message)
}

func TestClient_GenerateBPMN(t *testing.T) {
	tests := []struct {
		label       string
		status      int
		contentType string
		body        string
		wantSuccess bool
		wantData    string
		wantMessage string
	}{
		{
			label: "json answer", status: 200, contentType: "application/json", body: `{"bpmn":"<xml/>"}`,
			wantSuccess: true, wantData: `{"bpmn":"<xml/>"}`, wantMessage: "Workflow successfully generated!",
		},
		{
			label: "text answer", status: 200, contentType: "text/plain", body: `generated 3 tasks`,
			wantSuccess: true, wantData: `{"message":"generated 3 tasks"}`, wantMessage: "Workflow successfully generated!",
		},
		{
			label: "server error", status: 500, contentType: "text/plain", body: `template missing`,
			wantMessage: "Error generating workflow: 500 Internal Server Error - template missing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/workflow-api/generateBPMN", r.URL.Path)
				var doc map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			res, err := newTestClient(b).GenerateBPMN(context.Background(), &schema.WorkflowDocument{WorkflowName: "w"})
			assert.Equal(t, tt.wantSuccess, err == nil)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantMessage, res.Message)
			if tt.wantData != "" {
				assert.JSONEq(t, tt.wantData, string(res.Data))
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		label string
		in    string
		n     int
		want  string
	}{
		{label: "short", in: "boom", n: 8, want: "boom"},
		{label: "exact", in: "boom", n: 4, want: "boom"},
		{label: "ascii cut", in: "abcdef", n: 3, want: "abc..."},
		{label: "rune straddles limit", in: "ab€cd", n: 3, want: "ab..."},
		{label: "limit after rune", in: "ab€cd", n: 5, want: "ab€..."},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestStatusError_LongBodyStaysValidUTF8(t *testing.T) {
	body := strings.Repeat("a", maxErrorBody-1) + strings.Repeat("é", 10)

	err := statusError("Error saving workflow", http.StatusInternalServerError, []byte(body))

	text, ok := err.Details["body"].(string)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(text))
	assert.True(t, strings.HasSuffix(text, "..."))
	assert.LessOrEqual(t, len(text), maxErrorBody+len("..."))
	assert.True(t, utf8.ValidString(err.Error()))
}
