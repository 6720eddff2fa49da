package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

func TestNormalize_OpenAIClassificationIsDeterministic(t *testing.T) {
	hint := &Hint{Provider: "openai-class"}
	first := Normalize("401 Unauthorized: invalid api key", hint)

	require.Equal(t, "OPENAI_UNAUTHORIZED", first.Code)
	assert.Equal(t, "openai", first.Provider)
	assert.Equal(t, schema.SeverityError, first.Severity)

	for i := 0; i < 50; i++ {
		ne := Normalize("401 Unauthorized: invalid api key", hint)
		assert.Equal(t, first.Code, ne.Code)
		assert.Equal(t, first.Title, ne.Title)
		assert.Equal(t, first.Action, ne.Action)
	}
}

func TestNormalize_ProviderDetectedFromText(t *testing.T) {
	ne := Normalize("slack api error: not_in_channel", nil)
	assert.Equal(t, "SLACK_NOT_IN_CHANNEL", ne.Code)
	assert.Equal(t, "slack", ne.Provider)
}

func TestNormalize_FirstMatchingRuleWins(t *testing.T) {
	// Mentions both quota and api key; the quota rule comes first.
	ne := Normalize("openai: you exceeded your current quota, check api key", &Hint{Provider: "openai"})
	assert.Equal(t, "OPENAI_QUOTA_EXCEEDED", ne.Code)
}

func TestNormalize_KnownProviderWithoutRuleKeepsAttribution(t *testing.T) {
	ne := Normalize("stripe returned something nobody has seen before", nil)
	assert.Equal(t, "stripe", ne.Provider)
	assert.NotEmpty(t, ne.Code)
	assert.NotEqual(t, "STRIPE_UNAUTHORIZED", ne.Code)
}

func TestNormalize_GenericStripsBoilerplate(t *testing.T) {
	ne := Normalize("execution failed: error: connection refused by host", &Hint{NodeType: "webhook"})
	assert.Equal(t, "connection refused by host", ne.Message)
	assert.Equal(t, "Network error", ne.Title)
}

func TestNormalize_GenericExtractsEmbeddedJSONMessage(t *testing.T) {
	raw := `request failed with {"errors":[{"message":"project does not exist"}]}`
	ne := Normalize(raw, nil)
	assert.Equal(t, "project does not exist", ne.Message)
	assert.Equal(t, "Resource not found", ne.Title)
	assert.Equal(t, raw, ne.Raw)
}

func TestNormalize_GenericJSONErrorObjectShape(t *testing.T) {
	ne := Normalize(`{"error":{"message":"bad gateway upstream"}}`, nil)
	assert.Equal(t, "bad gateway upstream", ne.Message)
}

func TestNormalize_GenericTitleBuckets(t *testing.T) {
	cases := []struct {
		raw   string
		title string
	}{
		{"403 forbidden for this resource", "Authentication failed"},
		{"entity does not exist", "Resource not found"},
		{"429 too many requests", "Rate limit reached"},
		{"deadline exceeded waiting for reply", "Operation timed out"},
		{"no such host db.internal", "Network error"},
		{"something inexplicable happened", "Execution failed"},
	}
	for _, tc := range cases {
		ne := Normalize(tc.raw, nil)
		assert.Equal(t, tc.title, ne.Title, "raw=%q", tc.raw)
		assert.NotEmpty(t, ne.Action)
	}
}

func TestNormalize_SeverityKeywords(t *testing.T) {
	assert.Equal(t, schema.SeverityWarning, Normalize("warning: disk almost full", nil).Severity)
	assert.Equal(t, schema.SeverityError, Normalize("everything broke", nil).Severity)
}

func TestSynthesizeCode_UsesNodeTypeAndLongestWords(t *testing.T) {
	code := synthesizeCode("http.request", "connection refused by remote host")
	// 3 longest significant words: connection, refused, remote, in original order.
	assert.Equal(t, "HTTPREQUEST_CONNECTION_REFUSED_REMOTE", code)
}

func TestSynthesizeCode_EmptyInputsStillProduceACode(t *testing.T) {
	assert.Equal(t, "NODE_ERROR", synthesizeCode("", ""))
}

func TestSynthesizeCode_Deterministic(t *testing.T) {
	first := synthesizeCode("transform", "the mapping failed because the field was missing entirely")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, synthesizeCode("transform", "the mapping failed because the field was missing entirely"))
	}
}

func TestNormalizeError_StructuredEngineErrorsKeepTheirCode(t *testing.T) {
	err := schema.NewError(schema.ErrCodeSandboxTimeout, "custom code exceeded its execution timeout")
	ne := NormalizeError(err, &Hint{NodeType: "custom"})

	assert.Equal(t, schema.ErrCodeSandboxTimeout, ne.Code)
	assert.Equal(t, "Custom code timed out", ne.Title)
	assert.NotEmpty(t, ne.Action)
}

func TestNormalizeError_ExecutionErrorsGoThroughTextClassifier(t *testing.T) {
	err := schema.NewError(schema.ErrCodeExecution, "POST https://api.openai.com returned 401: invalid api key")
	ne := NormalizeError(err, nil)
	assert.Equal(t, "OPENAI_UNAUTHORIZED", ne.Code)
}

func TestNormalizeError_PlainErrorsClassifyByText(t *testing.T) {
	ne := NormalizeError(errors.New("github says: bad credentials"), nil)
	assert.Equal(t, "GITHUB_UNAUTHORIZED", ne.Code)
}
