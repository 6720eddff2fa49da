package nodes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/internal/runtime"
	"github.com/flowmesh/flowmesh/pkg/schema"
)

func httpContext() *runtime.ExecutionContext {
	return &runtime.ExecutionContext{HTTP: runtime.NewClient(runtime.HTTPConfig{})}
}

func TestHTTPRequestHandler_SuccessReturnsParsedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h := NewHTTPRequestHandler()
	logs := runtime.NewLogCollector()
	out, err := h.Execute(context.Background(), Request{
		Config:  map[string]any{"url": srv.URL},
		Context: httpContext(),
		Logs:    logs,
	})
	require.NoError(t, err)

	resp, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 200, resp["status"])
	assert.Equal(t, map[string]any{"ok": true}, resp["body"])

	entries := logs.Entries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "status=200")
}

func TestHTTPRequestHandler_ErrorStatusFailsByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"upstream exploded"}`))
	}))
	defer srv.Close()

	h := NewHTTPRequestHandler()
	_, err := h.Execute(context.Background(), Request{
		Config:  map[string]any{"url": srv.URL},
		Context: httpContext(),
	})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeExecution, fe.Code)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestHTTPRequestHandler_FailOnErrorFalsePassesResponseThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"upstream exploded"}`))
	}))
	defer srv.Close()

	h := NewHTTPRequestHandler()
	out, err := h.Execute(context.Background(), Request{
		Config: map[string]any{
			"url":         srv.URL,
			"failOnError": false,
		},
		Context: httpContext(),
	})
	require.NoError(t, err, "failOnError:false must not turn a 5xx into a node failure")

	resp, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 500, resp["status"])
	assert.Equal(t, map[string]any{"message": "upstream exploded"}, resp["body"])
}
