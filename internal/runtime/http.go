package runtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// HTTPResponse is the decoded result of a capability HTTP call.
// Body holds parsed JSON when the payload is valid JSON, otherwise the raw text.
type HTTPResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// HTTPClient is the controlled outbound network capability. Both library
// handlers and sandboxed code see this interface and nothing lower-level.
type HTTPClient interface {
	Get(ctx context.Context, rawURL string, headers map[string]string) (*HTTPResponse, error)
	Post(ctx context.Context, rawURL string, headers map[string]string, body any) (*HTTPResponse, error)
	Put(ctx context.Context, rawURL string, headers map[string]string, body any) (*HTTPResponse, error)
	Patch(ctx context.Context, rawURL string, headers map[string]string, body any) (*HTTPResponse, error)
	Delete(ctx context.Context, rawURL string, headers map[string]string) (*HTTPResponse, error)
}

// HTTPConfig configures the default HTTP capability.
type HTTPConfig struct {
	MaxResponseBody int64
	Timeout         time.Duration
}

// Client is the default HTTPClient backed by net/http.
type Client struct {
	config HTTPConfig
	http   *http.Client
}

// NewClient creates an HTTP capability with the given limits.
func NewClient(cfg HTTPConfig) *Client {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*HTTPResponse, error) {
	return c.do(ctx, http.MethodGet, rawURL, headers, nil)
}

func (c *Client) Post(ctx context.Context, rawURL string, headers map[string]string, body any) (*HTTPResponse, error) {
	return c.do(ctx, http.MethodPost, rawURL, headers, body)
}

func (c *Client) Put(ctx context.Context, rawURL string, headers map[string]string, body any) (*HTTPResponse, error) {
	return c.do(ctx, http.MethodPut, rawURL, headers, body)
}

func (c *Client) Patch(ctx context.Context, rawURL string, headers map[string]string, body any) (*HTTPResponse, error) {
	return c.do(ctx, http.MethodPatch, rawURL, headers, body)
}

func (c *Client) Delete(ctx context.Context, rawURL string, headers map[string]string) (*HTTPResponse, error) {
	return c.do(ctx, http.MethodDelete, rawURL, headers, nil)
}

func (c *Client) do(ctx context.Context, method, rawURL string, headers map[string]string, body any) (*HTTPResponse, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid url %q", rawURL)
	}

	var bodyReader io.Reader
	contentType := ""
	if body != nil {
		switch v := body.(type) {
		case string:
			bodyReader = strings.NewReader(v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "failed to marshal request body as JSON").WithCause(err)
			}
			bodyReader = strings.NewReader(string(b))
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "failed to create request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s %s failed: %s", method, rawURL, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "failed to read response body").WithCause(err)
	}

	out := &HTTPResponse{
		Status:  resp.StatusCode,
		Headers: flattenHeaders(resp.Header),
	}
	if len(raw) > 0 {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err == nil {
			out.Body = parsed
		} else {
			out.Body = string(raw)
		}
	}

	// Status handling is the caller's policy: handlers and sandboxed code
	// see every response, including 4xx/5xx, and decide what is a failure.
	return out, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

var _ HTTPClient = (*Client)(nil)

// String helper used by handlers that log response summaries.
func (r *HTTPResponse) Summary() string {
	return fmt.Sprintf("status=%d", r.Status)
}
