package engine

import (
	"github.com/flowmesh/flowmesh/pkg/schema"
)

// assembleInput builds a node's input from its predecessors' stored outputs.
//
// Zero predecessors: the node is an entry point and receives the trigger
// payload. One predecessor: its output, verbatim. Multiple predecessors:
// outputs are combined in edge-declaration order: object outputs
// shallow-merge into the accumulator (later predecessors win on key
// conflict) and are additionally stored whole under a synthetic
// "_from_<predecessorId>" key; array outputs concatenate, and any array
// output switches the overall container to an array; scalar outputs appear
// only under their synthetic key.
func assembleInput(dag *DAG, nodeID string, trigger any, outputs map[string]any) (any, error) {
	preds := dag.Preds[nodeID]

	switch len(preds) {
	case 0:
		return trigger, nil
	case 1:
		out, ok := outputs[preds[0]]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeMissingUpstream,
				"node %s has no stored output for predecessor %s", nodeID, preds[0]).
				WithNode(nodeID)
		}
		return out, nil
	}

	objAcc := make(map[string]any)
	var arrAcc []any
	sawArray := false

	for _, pred := range preds {
		out, ok := outputs[pred]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeMissingUpstream,
				"node %s has no stored output for predecessor %s", nodeID, pred).
				WithNode(nodeID)
		}

		switch v := out.(type) {
		case map[string]any:
			for k, val := range v {
				objAcc[k] = val
			}
			objAcc["_from_"+pred] = v
		case []any:
			arrAcc = append(arrAcc, v...)
			sawArray = true
		default:
			objAcc["_from_"+pred] = v
		}
	}

	// Any array predecessor makes the whole input an array. Historical
	// behavior, kept for compatibility with existing workflows.
	if sawArray {
		return arrAcc, nil
	}
	return objAcc, nil
}

// predecessorOutputs snapshots the outputs of a node's predecessors, keyed
// by predecessor ID, for template resolution.
func predecessorOutputs(dag *DAG, nodeID string, outputs map[string]any) map[string]any {
	preds := dag.Preds[nodeID]
	if len(preds) == 0 {
		return nil
	}
	snap := make(map[string]any, len(preds))
	for _, pred := range preds {
		if out, ok := outputs[pred]; ok {
			snap[pred] = out
		}
	}
	return snap
}
