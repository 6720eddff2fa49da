package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

func diagramWorkflow() *schema.Workflow {
	return &schema.Workflow{
		Nodes: []schema.Node{
			{ID: "fetch-user", Type: "http.request", Label: "Fetch user"},
			{ID: "score", CustomCode: "return input;"},
		},
		Edges: []schema.Edge{{Source: "fetch-user", Target: "score"}},
	}
}

func TestRenderMermaid_Structural(t *testing.T) {
	out := RenderMermaid(diagramWorkflow(), nil)

	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, `fetch_user["Fetch user"]`)
	assert.Contains(t, out, "fetch_user --> score")
	assert.NotContains(t, out, "classDef")
}

func TestRenderMermaid_CustomNodeShape(t *testing.T) {
	out := RenderMermaid(diagramWorkflow(), nil)
	assert.Contains(t, out, `score[["score"]]`)
}

func TestRenderMermaid_StatusOverlay(t *testing.T) {
	result := &schema.WorkflowExecutionResult{
		NodeResults: []schema.NodeExecutionResult{
			{NodeID: "fetch-user", Status: schema.NodeStatusSuccess},
			{NodeID: "score", Status: schema.NodeStatusFailed},
		},
	}
	out := RenderMermaid(diagramWorkflow(), result)

	assert.Contains(t, out, "classDef success")
	assert.Contains(t, out, "class fetch_user success")
	assert.Contains(t, out, "class score failed")
}
