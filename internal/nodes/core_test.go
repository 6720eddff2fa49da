package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/internal/runtime"
	"github.com/flowmesh/flowmesh/pkg/schema"
)

func TestFilterHandler_TruthyPassesInputThrough(t *testing.T) {
	h, err := NewFilterHandler()
	require.NoError(t, err)

	input := map[string]any{"score": int64(42)}
	out, err := h.Execute(context.Background(), Request{
		Input:  input,
		Config: map[string]any{"condition": "input.score > 20"},
	})
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestFilterHandler_FalsyYieldsNil(t *testing.T) {
	h, err := NewFilterHandler()
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), Request{
		Input:  map[string]any{"score": int64(3)},
		Config: map[string]any{"condition": "input.score > 20"},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFilterHandler_NonBooleanConditionIsValidationError(t *testing.T) {
	h, err := NewFilterHandler()
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), Request{
		Input:  map[string]any{"score": int64(3)},
		Config: map[string]any{"condition": "input.score"},
	})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestFilterHandler_MissingConditionRejected(t *testing.T) {
	h, err := NewFilterHandler()
	require.NoError(t, err)
	assert.Error(t, h.Validate(map[string]any{}))
}

func TestDelayHandler_PassesInputAfterWait(t *testing.T) {
	h := NewDelayHandler()
	start := time.Now()
	out, err := h.Execute(context.Background(), Request{
		Input:  "payload",
		Config: map[string]any{"duration": "20ms"},
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", out)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDelayHandler_CancelledMidWait(t *testing.T) {
	h := NewDelayHandler()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.Execute(ctx, Request{
		Config: map[string]any{"duration": "10s"},
	})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeCancelled, fe.Code)
}

func TestDelayHandler_InvalidDuration(t *testing.T) {
	h := NewDelayHandler()
	assert.Error(t, h.Validate(map[string]any{"duration": "soon"}))
	assert.Error(t, h.Validate(map[string]any{}))
}

func TestLogHandler_AppendsEntryAndPassesThrough(t *testing.T) {
	h := NewLogHandler()
	logs := runtime.NewLogCollector()

	out, err := h.Execute(context.Background(), Request{
		Input:  map[string]any{"k": "v"},
		Config: map[string]any{"message": "checkpoint", "level": "warn"},
		Logs:   logs,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, out)

	entries := logs.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0].Level)
	assert.Equal(t, "checkpoint", entries[0].Message)
}

func TestJQTransform_ReshapesInput(t *testing.T) {
	h := NewJQTransformHandler()
	out, err := h.Execute(context.Background(), Request{
		Input:  map[string]any{"user": map[string]any{"name": "Ada"}},
		Config: map[string]any{"expression": ".input.user.name"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", out)
}

func TestExprTransform_EvaluatesAgainstInput(t *testing.T) {
	h := NewExprTransformHandler()
	out, err := h.Execute(context.Background(), Request{
		Input:  map[string]any{"n": 20},
		Config: map[string]any{"expression": "input.n * 2 + 2"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 42, out)
}

func TestHTTPRequestHandler_ValidateRejectsBadURLs(t *testing.T) {
	h := NewHTTPRequestHandler()
	assert.Error(t, h.Validate(map[string]any{}))
	assert.Error(t, h.Validate(map[string]any{"url": "ftp://host/file"}))
	assert.Error(t, h.Validate(map[string]any{"url": "not a url"}))
	assert.NoError(t, h.Validate(map[string]any{"url": "https://api.example.com/x"}))
}
