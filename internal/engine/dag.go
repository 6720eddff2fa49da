package engine

import (
	"fmt"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// DAG is the in-memory directed acyclic graph representation of a workflow.
// Built from the submitted node/edge sets, used by the Executor to determine
// execution order.
type DAG struct {
	Nodes  map[string]*schema.Node // node ID → definition
	Preds  map[string][]string     // node ID → predecessors, edge-declaration order
	Succs  map[string][]string     // node ID → successors, edge-declaration order
	Sorted []string                // topological order
	Levels [][]string              // parallel execution levels
}

// BuildDAG validates the node/edge sets, builds adjacency lists, performs
// topological sorting using Kahn's algorithm, detects cycles, and computes
// parallel execution levels. A cycle is detected before anything executes,
// so a cyclic submission has no partial side effects.
func BuildDAG(nodes []schema.Node, edges []schema.Edge) (*DAG, error) {
	if len(nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeEmptyWorkflow, "workflow has no nodes")
	}

	dag := &DAG{
		Nodes: make(map[string]*schema.Node, len(nodes)),
		Preds: make(map[string][]string, len(nodes)),
		Succs: make(map[string][]string, len(nodes)),
	}

	// First pass: register all nodes and check for duplicates.
	for i := range nodes {
		node := &nodes[i]

		if node.ID == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node at index %d has empty ID", i)
		}
		if _, exists := dag.Nodes[node.ID]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node ID: %s", node.ID)
		}

		// Default the kind from the presence of custom code.
		if node.Kind == "" {
			if node.CustomCode != "" {
				node.Kind = schema.NodeKindCustom
			} else {
				node.Kind = schema.NodeKindLibrary
			}
		}
		if node.Kind != schema.NodeKindLibrary && node.Kind != schema.NodeKindCustom {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node %s has unknown kind: %s", node.ID, node.Kind)
		}

		dag.Nodes[node.ID] = node
	}

	// Second pass: build adjacency lists in edge-declaration order. Merge
	// semantics depend on this order, so it is preserved exactly.
	seen := make(map[string]bool, len(edges))
	for i, edge := range edges {
		if edge.Source == "" || edge.Target == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "edge at index %d has empty endpoint", i)
		}
		if _, exists := dag.Nodes[edge.Source]; !exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "edge references non-existent source node: %s", edge.Source)
		}
		if _, exists := dag.Nodes[edge.Target]; !exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "edge references non-existent target node: %s", edge.Target)
		}
		if edge.Source == edge.Target {
			return nil, schema.NewErrorf(schema.ErrCodeCycleDetected, "node %s depends on itself", edge.Source)
		}
		key := edge.Source + "\x00" + edge.Target
		if seen[key] {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate edge: %s -> %s", edge.Source, edge.Target)
		}
		seen[key] = true

		dag.Preds[edge.Target] = append(dag.Preds[edge.Target], edge.Source)
		dag.Succs[edge.Source] = append(dag.Succs[edge.Source], edge.Target)
	}

	// Kahn's algorithm: topological sort + cycle detection.
	inDegree := make(map[string]int, len(dag.Nodes))
	for id := range dag.Nodes {
		inDegree[id] = len(dag.Preds[id])
	}

	queue := make([]string, 0)
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	// Sort roots for deterministic ordering.
	sortStrings(queue)

	sorted := make([]string, 0, len(dag.Nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		dependents := make([]string, len(dag.Succs[node]))
		copy(dependents, dag.Succs[node])
		sortStrings(dependents)

		for _, dep := range dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) != len(dag.Nodes) {
		return nil, schema.NewErrorf(schema.ErrCodeCycleDetected,
			"workflow contains a cycle (%d of %d nodes orderable)", len(sorted), len(dag.Nodes))
	}

	dag.Sorted = sorted
	dag.Levels = computeLevels(dag)

	return dag, nil
}

// computeLevels groups nodes into parallel execution levels. Nodes at the
// same level have all dependencies satisfied by previous levels.
func computeLevels(dag *DAG) [][]string {
	depth := make(map[string]int, len(dag.Nodes))

	for _, id := range dag.Sorted {
		maxDep := -1
		for _, pred := range dag.Preds[id] {
			if depth[pred] > maxDep {
				maxDep = depth[pred]
			}
		}
		depth[id] = maxDep + 1
	}

	maxLevel := 0
	for _, d := range depth {
		if d > maxLevel {
			maxLevel = d
		}
	}

	levels := make([][]string, maxLevel+1)
	for _, id := range dag.Sorted {
		levels[depth[id]] = append(levels[depth[id]], id)
	}

	return levels
}

// Terminals returns the nodes in the executed set that have no outgoing
// edge to another executed node, in topological order.
func (d *DAG) Terminals(executed map[string]bool) []string {
	var out []string
	for _, id := range d.Sorted {
		if !executed[id] {
			continue
		}
		terminal := true
		for _, succ := range d.Succs[id] {
			if executed[succ] {
				terminal = false
				break
			}
		}
		if terminal {
			out = append(out, id)
		}
	}
	return out
}

// sortStrings sorts a slice of strings in-place using insertion sort.
// Used for small slices to keep root ordering deterministic.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		key := s[i]
		j := i - 1
		for j >= 0 && s[j] > key {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = key
	}
}

// describeOrder is a debugging helper used in tests and trace logs.
func describeOrder(sorted []string) string {
	return fmt.Sprintf("%v", sorted)
}
