package runtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// ExecutionContext is the caller-supplied bundle of capabilities for one run.
// Credentials are read-only for the run's lifetime; the engine never persists
// any of this.
type ExecutionContext struct {
	// Credentials maps a provider key (e.g. "slack", "stripe") to its auth
	// material, loaded by the caller before the run starts.
	Credentials map[string]string

	// HTTP is the controlled network capability. Nodes and sandboxed code
	// never get a raw socket; all outbound traffic goes through here.
	HTTP HTTPClient

	// Logger is the host-side sink for engine diagnostics.
	Logger *slog.Logger
}

// Credential looks up auth material for a provider.
func (x *ExecutionContext) Credential(provider string) (string, bool) {
	if x == nil || x.Credentials == nil {
		return "", false
	}
	v, ok := x.Credentials[provider]
	return v, ok
}

// Log returns the configured logger, or a discard-equivalent default.
func (x *ExecutionContext) Log() *slog.Logger {
	if x == nil || x.Logger == nil {
		return slog.Default()
	}
	return x.Logger
}

// LogCollector accumulates structured log entries produced while a single
// node executes. Safe for concurrent use: sandboxed code and library
// handlers may log from helper goroutines.
type LogCollector struct {
	mu      sync.Mutex
	entries []schema.LogEntry
}

// NewLogCollector creates an empty collector.
func NewLogCollector() *LogCollector {
	return &LogCollector{}
}

// Append records a log entry with the current timestamp.
func (c *LogCollector) Append(level, message string, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, schema.LogEntry{
		Level:     level,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// Entries returns a copy of the collected entries in append order.
func (c *LogCollector) Entries() []schema.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
