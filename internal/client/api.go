package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// jq filters that pull catalog lists out of response envelopes. Endpoints
// answer either with a bare array or with an object keyed by list name.
const (
	jqConditions = `.conditions // []`
	jqTasks      = `.tasks // []`
	jqGateways   = `.gateways // []`
	jqEvents     = `.events // []`
	jqProducts   = `if type == "array" then . else (.products // .data // []) end`
	jqEmployees  = `if type == "array" then . else (.employees // .data // []) end`
	jqWorkflows  = `if type == "array" then . else (.workflows // .data // []) end`
)

// Conditions fetches the reusable edge conditions.
func (c *Client) Conditions(ctx context.Context) ([]schema.Condition, error) {
	body, err := c.getJSON(ctx, "getAllConditions", c.cfg.APIBaseURL+"/getAllConditions")
	if err != nil {
		return nil, err
	}
	return extract[schema.Condition](ctx, c, "getAllConditions", body, jqConditions)
}

// NodeDetails fetches the task, gateway and event definitions.
func (c *Client) NodeDetails(ctx context.Context) (schema.NodeCatalog, error) {
	body, err := c.getJSON(ctx, "getNodeDetails", c.cfg.APIBaseURL+"/getNodeDetails")
	if err != nil {
		return schema.NodeCatalog{}, err
	}
	var out schema.NodeCatalog
	if out.Tasks, err = extract[schema.Definition](ctx, c, "getNodeDetails", body, jqTasks); err != nil {
		return schema.NodeCatalog{}, err
	}
	if out.Gateways, err = extract[schema.Definition](ctx, c, "getNodeDetails", body, jqGateways); err != nil {
		return schema.NodeCatalog{}, err
	}
	if out.Events, err = extract[schema.Definition](ctx, c, "getNodeDetails", body, jqEvents); err != nil {
		return schema.NodeCatalog{}, err
	}
	return out, nil
}

// Products fetches the product catalog used by assignment mappings.
func (c *Client) Products(ctx context.Context) ([]schema.Product, error) {
	body, err := c.getJSON(ctx, "getProducts", c.cfg.APIBaseURL+"/getProducts")
	if err != nil {
		return nil, err
	}
	return extract[schema.Product](ctx, c, "getProducts", body, jqProducts)
}

// Employees fetches the employee catalog used by assignment mappings.
func (c *Client) Employees(ctx context.Context) ([]schema.Employee, error) {
	body, err := c.getJSON(ctx, "getEmployees", c.cfg.APIBaseURL+"/getEmployees")
	if err != nil {
		return nil, err
	}
	return extract[schema.Employee](ctx, c, "getEmployees", body, jqEmployees)
}

// Health checks the catalog API.
func (c *Client) Health(ctx context.Context) (Result, error) {
	return c.call(ctx, request{
		endpoint: "health",
		method:   http.MethodGet,
		url:      c.cfg.APIBaseURL + "/health",
	}, "API is healthy", "API health check failed")
}

// getJSON performs a GET and decodes the body into a generic JSON value.
// An empty body decodes to nil.
func (c *Client) getJSON(ctx context.Context, endpoint, url string) (any, error) {
	resp, err := c.do(ctx, request{endpoint: endpoint, method: http.MethodGet, url: url})
	if err != nil {
		return nil, err
	}
	if len(resp.body) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(resp.body, &v); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecode, "%s: response is not JSON", endpoint).WithCause(err)
	}
	return v, nil
}

// extract runs a jq filter over body and decodes each list item into T.
// Items that do not fit T are skipped and logged.
func extract[T any](ctx context.Context, c *Client, endpoint string, body any, filter string) ([]T, error) {
	if body == nil {
		return []T{}, nil
	}
	items, err := c.jq.ExtractList(ctx, filter, body)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			c.logger.WarnContext(ctx, "skipping malformed catalog item",
				"endpoint", endpoint, "index", i, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
