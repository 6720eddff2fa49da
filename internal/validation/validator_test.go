package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// stubLookup is a HandlerLookup over a fixed name set.
type stubLookup map[string]bool

func (s stubLookup) Has(name string) bool { return s[name] }

func newValidator(t *testing.T, known ...string) *Validator {
	t.Helper()
	lookup := stubLookup{}
	for _, n := range known {
		lookup[n] = true
	}
	v, err := New(lookup)
	require.NoError(t, err)
	return v
}

func validWorkflow() *schema.Workflow {
	return &schema.Workflow{
		Nodes: []schema.Node{
			{ID: "a", Type: "core.log"},
			{ID: "b", Type: "core.log"},
		},
		Edges: []schema.Edge{{Source: "a", Target: "b"}},
	}
}

func TestValidate_ValidWorkflow(t *testing.T) {
	v := newValidator(t, "core.log")
	result := v.Validate(validWorkflow())
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestValidate_EmptyNodeSetFailsStructurally(t *testing.T) {
	v := newValidator(t)
	result := v.Validate(&schema.Workflow{})
	assert.False(t, result.Valid())
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	v := newValidator(t, "core.log")
	wf := validWorkflow()
	wf.Nodes = append(wf.Nodes, schema.Node{ID: "a", Type: "core.log"})
	result := v.Validate(wf)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "duplicate node id")
}

func TestValidate_EdgeReferencesMissingNode(t *testing.T) {
	v := newValidator(t, "core.log")
	wf := validWorkflow()
	wf.Edges = append(wf.Edges, schema.Edge{Source: "b", Target: "ghost"})
	result := v.Validate(wf)
	require.False(t, result.Valid())

	found := false
	for _, issue := range result.Errors {
		if issue.Path == "edges[1].target" {
			found = true
			assert.Contains(t, issue.Message, "ghost")
		}
	}
	assert.True(t, found)
}

func TestValidate_SelfLoopIsCycleError(t *testing.T) {
	v := newValidator(t, "core.log")
	wf := validWorkflow()
	wf.Edges = append(wf.Edges, schema.Edge{Source: "a", Target: "a"})
	result := v.Validate(wf)
	require.False(t, result.Valid())

	found := false
	for _, issue := range result.Errors {
		if issue.Code == schema.ErrCodeCycleDetected {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_DuplicateEdgeIsWarningOnly(t *testing.T) {
	v := newValidator(t, "core.log")
	wf := validWorkflow()
	wf.Edges = append(wf.Edges, schema.Edge{Source: "a", Target: "b"})
	result := v.Validate(wf)
	assert.True(t, result.Valid())
	assert.NotEmpty(t, result.Warnings)
}

func TestValidate_UnregisteredHandler(t *testing.T) {
	v := newValidator(t) // nothing registered
	result := v.Validate(validWorkflow())
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeNodeNotFound, result.Errors[0].Code)
}

func TestValidate_CustomCodeStaticScan(t *testing.T) {
	v := newValidator(t)
	wf := &schema.Workflow{
		Nodes: []schema.Node{{
			ID:         "c",
			CustomCode: "const fs = require('fs'); return 1;",
		}},
	}
	result := v.Validate(wf)
	require.False(t, result.Valid())
	assert.Equal(t, schema.ErrCodeInvalidCustomCode, result.Errors[0].Code)
}

func TestValidate_CustomNodeWithTypeWarns(t *testing.T) {
	v := newValidator(t)
	wf := &schema.Workflow{
		Nodes: []schema.Node{{
			ID:         "c",
			Type:       "core.log",
			CustomCode: "return input;",
		}},
	}
	result := v.Validate(wf)
	assert.True(t, result.Valid())
	assert.NotEmpty(t, result.Warnings)
}

func TestValidate_InvalidTimeout(t *testing.T) {
	v := newValidator(t, "core.log")
	wf := validWorkflow()
	wf.Timeout = "5m"
	assert.True(t, v.Validate(wf).Valid())

	wf.Timeout = "forever"
	assert.False(t, v.Validate(wf).Valid())
}
