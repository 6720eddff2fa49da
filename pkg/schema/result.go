package schema

import "time"

// RunStatus represents the terminal state of a workflow run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// NodeStatus represents the outcome of a single node execution.
type NodeStatus string

const (
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusFailed  NodeStatus = "failed"
	NodeStatusSkipped NodeStatus = "skipped"
)

// Severity grades a normalized error for UI/alerting purposes.
// It is advisory only: every error is fatal to the current run.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LogEntry is a structured log record captured during a run.
type LogEntry struct {
	Level     string         `json:"level"` // info | warn | error | debug
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NormalizedError is the structured, provider-agnostic form of a node
// failure. Built only by the normalizer, never hand-constructed elsewhere.
type NormalizedError struct {
	Code     string   `json:"code"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Action   string   `json:"action,omitempty"`
	Provider string   `json:"provider,omitempty"`
	Severity Severity `json:"severity"`
	Raw      string   `json:"raw"` // diagnostics only, never the primary UI message
}

// NodeExecutionResult records one attempted node. Append-only: results are
// never mutated after creation.
type NodeExecutionResult struct {
	NodeID     string           `json:"nodeId"`
	Label      string           `json:"label,omitempty"`
	Status     NodeStatus       `json:"status"`
	Output     any              `json:"output,omitempty"`
	Error      *NormalizedError `json:"error,omitempty"`
	DurationMs int64            `json:"durationMs"`
	Logs       []LogEntry       `json:"logs,omitempty"`
}

// WorkflowExecutionResult is the run-level record returned to the caller.
type WorkflowExecutionResult struct {
	ID             string                `json:"id"`
	Status         RunStatus             `json:"status"`
	StartedAt      time.Time             `json:"startedAt"`
	CompletedAt    time.Time             `json:"completedAt"`
	DurationMs     int64                 `json:"durationMs"`
	NodeResults    []NodeExecutionResult `json:"nodeResults"`
	Error          *NormalizedError      `json:"error,omitempty"` // run-level failure (validation, cycle)
	FinalOutput    any                   `json:"finalOutput,omitempty"`
	Summary        string                `json:"summary"`
	CompletedNodes int                   `json:"completedNodes"`
	TotalNodes     int                   `json:"totalNodes"`
	FailedAtNode   string                `json:"failedAtNode,omitempty"`
}
