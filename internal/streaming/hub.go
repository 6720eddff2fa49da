// Package streaming fans run lifecycle events out to live subscribers. The
// executor publishes one event per run/node transition plus one per node log
// entry; a subscriber follows a run by filtering on its ID until it sees a
// terminal event.
package streaming

import (
	"context"
	"time"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// StreamEvent is one step of a run's live event stream.
type StreamEvent struct {
	RunID     string           `json:"run_id"`
	NodeID    string           `json:"node_id,omitempty"`
	EventType schema.EventType `json:"event_type"`
	Payload   any              `json:"payload,omitempty"`
	// Timestamp is stamped by the hub at publish time when unset.
	Timestamp time.Time `json:"timestamp"`
}

// EventFilter narrows a subscription to one run and/or a set of event types.
// The zero value matches everything.
type EventFilter struct {
	RunID      string             `json:"run_id,omitempty"`
	EventTypes []schema.EventType `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for live run events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
