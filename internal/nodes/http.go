package nodes

import (
	"context"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/flowmesh/flowmesh/internal/runtime"
	"github.com/flowmesh/flowmesh/pkg/schema"
)

// HTTPRequestHandler implements the "http.request" library node. All traffic
// goes through the run's controlled HTTP capability.
type HTTPRequestHandler struct{}

// NewHTTPRequestHandler creates the http.request handler.
func NewHTTPRequestHandler() *HTTPRequestHandler {
	return &HTTPRequestHandler{}
}

func (h *HTTPRequestHandler) Name() string { return "http.request" }

func (h *HTTPRequestHandler) Describe() HandlerInfo {
	return HandlerInfo{
		Name:        "http.request",
		Description: "Execute an HTTP request with control over method, url, headers, and body.",
	}
}

func (h *HTTPRequestHandler) Validate(config map[string]any) error {
	rawURL := stringParam(config, "url", "")
	if rawURL == "" {
		return schema.NewError(schema.ErrCodeValidation, "http.request: missing required config 'url'")
	}
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return schema.NewErrorf(schema.ErrCodeValidation, "http.request: invalid url %q", rawURL)
	}
	return nil
}

func (h *HTTPRequestHandler) Execute(ctx context.Context, req Request) (any, error) {
	if err := h.Validate(req.Config); err != nil {
		return nil, err
	}
	if req.Context == nil || req.Context.HTTP == nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "http.request: no HTTP capability in execution context")
	}

	method := strings.ToUpper(stringParam(req.Config, "method", "GET"))
	rawURL := stringParam(req.Config, "url", "")
	headers := headerMap(req.Config["headers"])

	// With no explicit body, mutating methods forward the node input.
	body, hasBody := req.Config["body"]
	if !hasBody {
		body = req.Input
	}

	client := req.Context.HTTP
	var resp *runtime.HTTPResponse
	var err error
	switch method {
	case "GET":
		resp, err = client.Get(ctx, rawURL, headers)
	case "POST":
		resp, err = client.Post(ctx, rawURL, headers, body)
	case "PUT":
		resp, err = client.Put(ctx, rawURL, headers, body)
	case "PATCH":
		resp, err = client.Patch(ctx, rawURL, headers, body)
	case "DELETE":
		resp, err = client.Delete(ctx, rawURL, headers)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "http.request: unsupported method %q", method)
	}
	if err != nil {
		return nil, err
	}

	if req.Logs != nil {
		req.Logs.Append("info", "http.request completed: "+resp.Summary(), map[string]any{
			"method": method,
			"url":    rawURL,
		})
	}

	// Error statuses fail the node unless the workflow opts out with
	// failOnError:false, in which case the response passes through and a
	// downstream node inspects the status itself.
	if resp.Status >= 400 && boolParam(req.Config, "failOnError", true) {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"%s %s returned %d: %s", method, rawURL, resp.Status, previewBody(resp.Body))
	}

	return map[string]any{
		"status":  resp.Status,
		"headers": resp.Headers,
		"body":    resp.Body,
	}, nil
}

// previewBody renders a short diagnostic preview of a response body for the
// node error message, so the normalizer can classify provider text.
func previewBody(body any) string {
	const max = 512
	var s string
	switch v := body.(type) {
	case nil:
		return ""
	case string:
		s = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		s = string(b)
	}
	if len(s) > max {
		s = s[:max]
	}
	return strings.TrimSpace(s)
}

func headerMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
