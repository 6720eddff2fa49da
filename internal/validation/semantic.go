package validation

import (
	"fmt"
	"time"

	"github.com/flowmesh/flowmesh/internal/sandbox"
	"github.com/flowmesh/flowmesh/pkg/schema"
)

// HandlerLookup answers whether a library handler name is available.
// Satisfied by nodes.Registry.
type HandlerLookup interface {
	Has(name string) bool
}

// validateSemantic performs the checks JSON Schema cannot express: ID
// uniqueness, edge reference integrity, handler availability, and static
// custom-code scanning.
func validateSemantic(wf *schema.Workflow, lookup HandlerLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(wf.Nodes))
	for i, node := range wf.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)

		if nodeIDs[node.ID] {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %q", node.ID))
			continue
		}
		nodeIDs[node.ID] = true

		validateNodeSemantic(&wf.Nodes[i], path, lookup, result)
	}

	seenEdges := make(map[string]bool, len(wf.Edges))
	for i, edge := range wf.Edges {
		path := fmt.Sprintf("edges[%d]", i)

		if !nodeIDs[edge.Source] {
			result.AddError(path+".source", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", edge.Source))
		}
		if !nodeIDs[edge.Target] {
			result.AddError(path+".target", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", edge.Target))
		}
		if edge.Source == edge.Target {
			result.AddError(path, schema.ErrCodeCycleDetected,
				fmt.Sprintf("node %q depends on itself", edge.Source))
		}

		key := edge.Source + "\x00" + edge.Target
		if seenEdges[key] {
			result.AddWarning(path, schema.ErrCodeValidation,
				fmt.Sprintf("duplicate edge %s -> %s", edge.Source, edge.Target))
		}
		seenEdges[key] = true
	}

	if wf.Timeout != "" {
		if _, err := time.ParseDuration(wf.Timeout); err != nil {
			result.AddError("timeout", schema.ErrCodeValidation,
				fmt.Sprintf("invalid timeout %q", wf.Timeout))
		}
	}

	return result
}

// validateNodeSemantic checks a single node: handler availability for
// library nodes, static code scanning for custom ones.
func validateNodeSemantic(node *schema.Node, path string, lookup HandlerLookup, result *schema.ValidationResult) {
	if node.IsCustom() {
		if node.CustomCode == "" {
			result.AddError(path+".customCode", schema.ErrCodeInvalidCustomCode,
				"custom node has no code")
			return
		}
		for _, violation := range sandbox.ValidateSource(node.CustomCode) {
			result.AddError(path+".customCode", schema.ErrCodeInvalidCustomCode, violation)
		}
		if node.Type != "" {
			result.AddWarning(path+".type", schema.ErrCodeValidation,
				"custom node declares a library type; customCode takes precedence")
		}
		return
	}

	if lookup != nil && !lookup.Has(node.HandlerName()) {
		result.AddError(path+".type", schema.ErrCodeNodeNotFound,
			fmt.Sprintf("no library node registered for %q", node.HandlerName()))
	}
}
