package schema

// EventType identifies a run lifecycle event on the live stream.
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventRunCompleted EventType = "run_completed"
	EventRunFailed    EventType = "run_failed"

	EventNodeStarted   EventType = "node_started"
	EventNodeCompleted EventType = "node_completed"
	EventNodeFailed    EventType = "node_failed"

	EventLogEntry EventType = "log_entry"
)

// Terminal reports whether the event ends a run's stream.
func (t EventType) Terminal() bool {
	return t == EventRunCompleted || t == EventRunFailed
}
