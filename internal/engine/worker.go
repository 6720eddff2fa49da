package engine

import (
	"context"
	"sync"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// nodeOutcome is the record a single node execution produces, collected by
// the executor in both sequential and parallel modes.
type nodeOutcome struct {
	nodeID string
	output any
	err    error // raw dispatch error, pre-normalization
	result schema.NodeExecutionResult
}

// levelTask pairs a node ID with the closure that executes it.
type levelTask struct {
	nodeID string
	run    func(ctx context.Context) nodeOutcome
}

// workerPool executes the tasks of one DAG level with bounded concurrency.
// Outcomes come back in task order regardless of completion order, so
// fail-fast selection and result ordering stay deterministic.
type workerPool struct {
	size int
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = 4
	}
	return &workerPool{size: size}
}

// runLevel runs every task and returns their outcomes indexed by task
// position. All tasks in a level run to completion even if one fails; the
// executor decides afterward whether the run continues.
func (p *workerPool) runLevel(ctx context.Context, tasks []levelTask) []nodeOutcome {
	outcomes := make([]nodeOutcome, len(tasks))

	sem := make(chan struct{}, p.size)
	var wg sync.WaitGroup

	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t levelTask) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = t.run(ctx)
		}(i, t)
	}

	wg.Wait()
	return outcomes
}
