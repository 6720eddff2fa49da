// Package normalize turns raw provider failures into the structured,
// user-facing error taxonomy. Classification is pure: the same input always
// yields the same normalized record.
package normalize

import (
	"errors"
	"strings"
	"unicode"

	json "github.com/goccy/go-json"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// Hint carries caller-known metadata about the failing node, used to steer
// provider detection and code synthesis.
type Hint struct {
	NodeName string
	NodeType string
	Provider string
}

// NormalizeError classifies a node failure. Structured engine errors
// (validation, sandbox, dispatch) keep their code and skip text scanning;
// everything else goes through the two-tier text classifier.
func NormalizeError(err error, hint *Hint) *schema.NormalizedError {
	var fe *schema.FlowError
	if errors.As(err, &fe) && fe.Code != schema.ErrCodeExecution {
		return &schema.NormalizedError{
			Code:     fe.Code,
			Title:    engineTitle(fe.Code),
			Message:  fe.Message,
			Action:   engineAction(fe.Code),
			Severity: schema.SeverityError,
			Raw:      err.Error(),
		}
	}
	return Normalize(err.Error(), hint)
}

// Normalize classifies raw error text. Tier 1 applies provider-specific
// matcher tables; tier 2 is the generic fallback.
func Normalize(raw string, hint *Hint) *schema.NormalizedError {
	if hint == nil {
		hint = &Hint{}
	}
	lowered := strings.ToLower(raw)

	if provider := detectProvider(lowered, hint.Provider); provider != "" {
		if r := matchProviderRule(provider, lowered); r != nil {
			return &schema.NormalizedError{
				Code:     r.code,
				Title:    r.title,
				Message:  r.message,
				Action:   r.action,
				Provider: provider,
				Severity: r.severity,
				Raw:      raw,
			}
		}
		// Known provider but no rule hit: generic handling keeps the
		// provider attribution.
		ne := generic(raw, hint)
		ne.Provider = provider
		return ne
	}

	return generic(raw, hint)
}

// generic is the tier-2 fallback classifier.
func generic(raw string, hint *Hint) *schema.NormalizedError {
	cleaned := stripBoilerplate(raw)
	if msg := extractJSONMessage(cleaned); msg != "" {
		cleaned = msg
	}
	lowered := strings.ToLower(cleaned)

	title, action := inferTitleAction(lowered)

	return &schema.NormalizedError{
		Code:     synthesizeCode(hint.NodeType, cleaned),
		Title:    title,
		Message:  cleaned,
		Action:   action,
		Severity: inferSeverity(lowered),
		Raw:      raw,
	}
}

// stripBoilerplate removes leading wrapper prefixes like "execution failed:"
// and "error:" (repeatedly, since wrappers stack).
func stripBoilerplate(s string) string {
	out := strings.TrimSpace(s)
	prefixes := []string{"execution failed:", "error:"}
	for {
		stripped := false
		lowered := strings.ToLower(out)
		for _, p := range prefixes {
			if strings.HasPrefix(lowered, p) {
				out = strings.TrimSpace(out[len(p):])
				stripped = true
				break
			}
		}
		if !stripped {
			return out
		}
	}
}

// extractJSONMessage tries to pull a human message out of an embedded JSON
// error payload. Common shapes: errors[0].message, .message, .error.
func extractJSONMessage(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return ""
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &payload); err != nil {
		return ""
	}

	if errs, ok := payload["errors"].([]any); ok && len(errs) > 0 {
		if first, ok := errs[0].(map[string]any); ok {
			if msg, ok := first["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	if msg, ok := payload["message"].(string); ok && msg != "" {
		return msg
	}
	switch e := payload["error"].(type) {
	case string:
		if e != "" {
			return e
		}
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return ""
}

// inferSeverity grades the message by keyword presence.
func inferSeverity(lowered string) schema.Severity {
	switch {
	case strings.Contains(lowered, "warning"), strings.Contains(lowered, "retry"):
		return schema.SeverityWarning
	case strings.Contains(lowered, "info"), strings.Contains(lowered, "notice"):
		return schema.SeverityInfo
	default:
		return schema.SeverityError
	}
}

// inferTitleAction buckets the message into a title and a suggested action.
func inferTitleAction(lowered string) (string, string) {
	switch {
	case containsAny(lowered, "unauthorized", "forbidden", "invalid api key",
		"invalid token", "credential", "authentication", "401", "403"):
		return "Authentication failed",
			"Reconnect the account used by this step and verify its credentials."
	case containsAny(lowered, "not found", "404", "does not exist"):
		return "Resource not found",
			"Check the IDs and names configured on this step."
	case containsAny(lowered, "rate limit", "too many requests", "429"):
		return "Rate limit reached",
			"Wait a moment and run the workflow again."
	case containsAny(lowered, "timeout", "timed out", "deadline exceeded"):
		return "Operation timed out",
			"Increase the step timeout or check the provider's status."
	case containsAny(lowered, "network", "connection refused", "connection reset",
		"no such host", "dns"):
		return "Network error",
			"Check connectivity to the provider and retry."
	default:
		return "Execution failed",
			"Review the step's logs and configuration, then run the workflow again."
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// codeStopwords are filler words skipped during code synthesis.
var codeStopwords = map[string]bool{
	"the": true, "this": true, "that": true, "with": true, "from": true,
	"your": true, "have": true, "has": true, "was": true, "were": true,
	"been": true, "for": true, "and": true, "not": true, "are": true,
	"you": true, "please": true, "while": true, "when": true, "into": true,
}

// synthesizeCode builds a stable code from the node type plus the 3 longest
// significant words of the cleaned message.
func synthesizeCode(nodeType, message string) string {
	words := significantWords(message)

	// Pick the 3 longest, stable on ties (earlier occurrence wins),
	// then restore original order for readability.
	type indexed struct {
		word string
		pos  int
	}
	picked := make([]indexed, 0, 3)
	for pos, w := range words {
		inserted := false
		for i := range picked {
			if len(w) > len(picked[i].word) {
				picked = append(picked[:i], append([]indexed{{w, pos}}, picked[i:]...)...)
				inserted = true
				break
			}
		}
		if !inserted && len(picked) < 3 {
			picked = append(picked, indexed{w, pos})
		}
		if len(picked) > 3 {
			picked = picked[:3]
		}
	}
	for i := 0; i < len(picked); i++ {
		for j := i + 1; j < len(picked); j++ {
			if picked[j].pos < picked[i].pos {
				picked[i], picked[j] = picked[j], picked[i]
			}
		}
	}

	parts := make([]string, 0, 4)
	if nodeType != "" {
		parts = append(parts, sanitizeCodePart(nodeType))
	} else {
		parts = append(parts, "node")
	}
	for _, p := range picked {
		parts = append(parts, p.word)
	}
	if len(parts) == 1 {
		parts = append(parts, "error")
	}
	return strings.ToUpper(strings.Join(parts, "_"))
}

// significantWords extracts lowercase alphanumeric words longer than 3
// characters, excluding stopwords.
func significantWords(s string) []string {
	var words []string
	var b strings.Builder
	flush := func() {
		w := b.String()
		b.Reset()
		if len(w) > 3 && !codeStopwords[w] {
			words = append(words, w)
		}
	}
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return words
}

func sanitizeCodePart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "node"
	}
	return b.String()
}

// engineTitle maps structured engine codes to user-facing titles.
func engineTitle(code string) string {
	switch code {
	case schema.ErrCodeEmptyWorkflow:
		return "Workflow is empty"
	case schema.ErrCodeCycleDetected:
		return "Workflow contains a cycle"
	case schema.ErrCodeNodeNotFound:
		return "Unknown step type"
	case schema.ErrCodeInvalidCustomCode:
		return "Custom code rejected"
	case schema.ErrCodeSandboxTimeout:
		return "Custom code timed out"
	case schema.ErrCodeSandbox:
		return "Custom code failed"
	case schema.ErrCodeMissingUpstream:
		return "Missing upstream output"
	case schema.ErrCodeTemplate:
		return "Template resolution failed"
	case schema.ErrCodeCancelled:
		return "Run cancelled"
	case schema.ErrCodeValidation:
		return "Invalid workflow"
	default:
		return "Execution failed"
	}
}

// engineAction maps structured engine codes to suggested actions.
func engineAction(code string) string {
	switch code {
	case schema.ErrCodeEmptyWorkflow:
		return "Add at least one step to the workflow."
	case schema.ErrCodeCycleDetected:
		return "Remove the circular connection between steps."
	case schema.ErrCodeNodeNotFound:
		return "Replace the step with one of the available step types."
	case schema.ErrCodeInvalidCustomCode:
		return "Remove the disallowed constructs from the custom code."
	case schema.ErrCodeSandboxTimeout:
		return "Make the custom code finish faster or raise its timeout."
	case schema.ErrCodeSandbox:
		return "Fix the error in the custom code and run again."
	case schema.ErrCodeCancelled:
		return "Run the workflow again."
	default:
		return "Review the workflow configuration and run again."
	}
}
