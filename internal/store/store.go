// Package store persists finished run results and encrypted secret material
// in an embedded libSQL database. Intermediate run state is never written:
// a run exists here only once it has completed or failed.
package store

import (
	"context"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// RunStore is the persistence contract. Implementations must be safe for
// concurrent use.
type RunStore interface {
	// Run history
	SaveRun(ctx context.Context, result *schema.WorkflowExecutionResult) error
	GetRun(ctx context.Context, id string) (*schema.WorkflowExecutionResult, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error)
	DeleteRun(ctx context.Context, id string) error

	// Secrets (vault backing)
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Close() error
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status schema.RunStatus // empty matches all
	Limit  int              // 0 means no limit
}

// RunSummary is the listing view of a stored run, without node detail.
type RunSummary struct {
	ID             string           `json:"id"`
	Status         schema.RunStatus `json:"status"`
	Summary        string           `json:"summary"`
	CompletedNodes int              `json:"completedNodes"`
	TotalNodes     int              `json:"totalNodes"`
	FailedAtNode   string           `json:"failedAtNode,omitempty"`
	DurationMs     int64            `json:"durationMs"`
	StartedAt      string           `json:"startedAt"`
}
