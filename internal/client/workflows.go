package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// ListWorkflows fetches the summaries of every stored workflow.
func (c *Client) ListWorkflows(ctx context.Context) ([]schema.WorkflowSummary, error) {
	body, err := c.getJSON(ctx, "all-workflows", c.cfg.WorkflowBaseURL+"/all-workflows")
	if err != nil {
		return nil, err
	}
	return extract[schema.WorkflowSummary](ctx, c, "all-workflows", body, jqWorkflows)
}

// GetWorkflow fetches the stored document of the named workflow as raw JSON.
func (c *Client) GetWorkflow(ctx context.Context, name string) ([]byte, error) {
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow name is required")
	}
	resp, err := c.do(ctx, request{
		endpoint: "json",
		method:   http.MethodGet,
		url:      c.cfg.WorkflowBaseURL + "/json/" + url.PathEscape(name),
	})
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// SaveWorkflow creates a workflow.
func (c *Client) SaveWorkflow(ctx context.Context, doc *schema.WorkflowDocument) (Result, error) {
	body, err := marshalDoc(doc)
	if err != nil {
		return Result{Message: "Failed to save workflow"}, err
	}
	return c.call(ctx, request{
		endpoint:    "save",
		method:      http.MethodPost,
		url:         c.cfg.WorkflowBaseURL + "/save",
		body:        body,
		contentType: "application/json",
	}, "Workflow saved successfully!", "Failed to save workflow")
}

// UpdateWorkflow replaces the stored workflow with the given id.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, doc *schema.WorkflowDocument) (Result, error) {
	if id == "" {
		return Result{Message: "Failed to update workflow"}, schema.NewError(schema.ErrCodeValidation, "workflow id is required")
	}
	body, err := marshalDoc(doc)
	if err != nil {
		return Result{Message: "Failed to update workflow"}, err
	}
	return c.call(ctx, request{
		endpoint:    "update",
		method:      http.MethodPut,
		url:         c.cfg.WorkflowBaseURL + "/update/" + url.PathEscape(id),
		body:        body,
		contentType: "application/json",
	}, "Workflow updated successfully!", "Failed to update workflow")
}

// DeleteWorkflow deletes the stored workflow with the given id.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) (Result, error) {
	if id == "" {
		return Result{Message: "Failed to delete workflow"}, schema.NewError(schema.ErrCodeValidation, "workflow id is required")
	}
	return c.call(ctx, request{
		endpoint: "delete",
		method:   http.MethodDelete,
		url:      c.cfg.WorkflowBaseURL + "/delete/" + url.PathEscape(id),
	}, "Workflow deleted successfully!", "Failed to delete workflow")
}

// ValidateWorkflow asks the backend to validate a document.
func (c *Client) ValidateWorkflow(ctx context.Context, doc *schema.WorkflowDocument) (Result, error) {
	body, err := marshalDoc(doc)
	if err != nil {
		return Result{Message: "Workflow validation failed"}, err
	}
	return c.call(ctx, request{
		endpoint:    "validate",
		method:      http.MethodPost,
		url:         c.cfg.WorkflowBaseURL + "/validate",
		body:        body,
		contentType: "application/json",
	}, "Workflow validation completed", "Workflow validation failed")
}

// ExportWorkflow downloads a stored workflow in format ("json" when empty).
func (c *Client) ExportWorkflow(ctx context.Context, id, format string) (Result, error) {
	if format == "" {
		format = "json"
	}
	q := url.Values{"format": {format}}
	return c.call(ctx, request{
		endpoint: "export",
		method:   http.MethodGet,
		url:      c.cfg.WorkflowBaseURL + "/export/" + url.PathEscape(id) + "?" + q.Encode(),
	}, "Workflow exported successfully", "Failed to export workflow")
}

// ImportWorkflow uploads a workflow file as the multipart field "workflow".
func (c *Client) ImportWorkflow(ctx context.Context, filename string, r io.Reader) (Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("workflow", filename)
	if err == nil {
		_, err = io.Copy(part, r)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		return Result{Message: "Failed to import workflow"},
			schema.NewError(schema.ErrCodeValidation, "failed to build import upload").WithCause(err)
	}
	return c.call(ctx, request{
		endpoint:    "import",
		method:      http.MethodPost,
		url:         c.cfg.WorkflowBaseURL + "/import",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}, "Workflow imported successfully", "Failed to import workflow")
}

// GenerateBPMN submits a document for BPMN generation. The backend may answer
// with JSON or plain text; a text answer becomes {"message": text}. On
// failure the Result message carries status, status text and body.
func (c *Client) GenerateBPMN(ctx context.Context, doc *schema.WorkflowDocument) (Result, error) {
	body, err := marshalDoc(doc)
	if err != nil {
		return Result{Message: "Error generating workflow"}, err
	}
	resp, err := c.do(ctx, request{
		endpoint:    "generateBPMN",
		method:      http.MethodPost,
		url:         c.cfg.WorkflowBaseURL + "/generateBPMN",
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return Result{Message: "Error generating workflow: " + failureText(err), Status: StatusOf(err)}, err
	}

	data := resp.body
	if !json.Valid(data) {
		data, _ = json.Marshal(map[string]string{"message": string(resp.body)})
	}
	return Result{
		Success: true,
		Data:    data,
		Message: "Workflow successfully generated!",
		Status:  resp.status,
	}, nil
}

// call runs req and wraps the outcome in a Result.
func (c *Client) call(ctx context.Context, req request, okMsg, failMsg string) (Result, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return Result{Message: failMsg, Status: StatusOf(err)}, err
	}
	return Result{Success: true, Data: resp.body, Message: okMsg, Status: resp.status}, nil
}

func marshalDoc(doc *schema.WorkflowDocument) ([]byte, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow document is nil")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "failed to encode workflow document").WithCause(err)
	}
	return b, nil
}

// failureText renders "<status> <status text> - <body>" for HTTP failures
// and the error message otherwise.
func failureText(err error) string {
	var flowErr *schema.FlowError
	if !errors.As(err, &flowErr) {
		return err.Error()
	}
	status := StatusOf(err)
	if status == 0 {
		return flowErr.Message
	}
	text := fmt.Sprintf("%d %s", status, http.StatusText(status))
	if body, _ := flowErr.Details["body"].(string); body != "" {
		text += " - " + body
	}
	return text
}
