package nodes

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/flowmesh/flowmesh/internal/runtime"
)

// Handler is a built-in library capability executable as a workflow node.
type Handler interface {
	Name() string
	Describe() HandlerInfo
	Execute(ctx context.Context, req Request) (any, error)
	Validate(config map[string]any) error
}

// Request is the data a handler receives at execution time.
type Request struct {
	// Input is the node's assembled input (trigger payload, a predecessor's
	// output, or the multi-predecessor merge).
	Input any
	// Config is the node's configuration after template resolution.
	Config map[string]any
	// Context carries the run's credentials, HTTP capability, and logger.
	Context *runtime.ExecutionContext
	// Logs collects node-scoped log entries surfaced in the run result.
	Logs *runtime.LogCollector
}

// HandlerInfo is a summary of a registered handler for listing.
type HandlerInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ConfigHint  json.RawMessage `json:"config_hint,omitempty"`
}

// Param helpers shared by all handler files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}
