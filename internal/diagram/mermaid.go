// Package diagram renders workflow graphs as Mermaid flowcharts for
// documentation and debugging. Optionally overlays a run result so node
// outcomes show as status colors.
package diagram

import (
	"fmt"
	"strings"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// RenderMermaid renders a workflow as a Mermaid flowchart. result may be nil
// for a plain structural diagram.
func RenderMermaid(wf *schema.Workflow, result *schema.WorkflowExecutionResult) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	statuses := nodeStatuses(result)

	for _, node := range wf.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range wf.Edges {
		b.WriteString(fmt.Sprintf("    %s --> %s\n",
			mermaidSafeID(edge.Source), mermaidSafeID(edge.Target)))
	}

	if len(statuses) > 0 {
		b.WriteString("\n")
		b.WriteString("    classDef success fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
		b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
		b.WriteString("    classDef skipped fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

		for _, node := range wf.Nodes {
			if cls, ok := statuses[node.ID]; ok {
				b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
			}
		}
	}

	return b.String()
}

// nodeStatuses maps node IDs to Mermaid class names from a run result.
// Nodes the run never reached render as skipped.
func nodeStatuses(result *schema.WorkflowExecutionResult) map[string]string {
	if result == nil {
		return nil
	}
	statuses := make(map[string]string, len(result.NodeResults))
	for _, nr := range result.NodeResults {
		switch nr.Status {
		case schema.NodeStatusSuccess:
			statuses[nr.NodeID] = "success"
		case schema.NodeStatusFailed:
			statuses[nr.NodeID] = "failed"
		default:
			statuses[nr.NodeID] = "skipped"
		}
	}
	return statuses
}

// mermaidNodeDef returns a node definition shaped by its kind: custom nodes
// get the subroutine shape, library nodes a plain box.
func mermaidNodeDef(node schema.Node) string {
	id := mermaidSafeID(node.ID)
	label := firstLine(node.DisplayName())

	if node.IsCustom() {
		return fmt.Sprintf("%s[[%q]]", id, label)
	}
	return fmt.Sprintf("%s[%q]", id, label)
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
