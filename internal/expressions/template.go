package expressions

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/flowmesh/flowmesh/internal/secrets"
)

// Resolver substitutes {{path}} expressions in node configuration against
// run-time values. It is a pure function over its inputs except for the
// optional secrets vault, which backs the {{secrets.KEY}} namespace.
//
// Resolution order for a dot-separated path:
//  1. "inputData" prefix: the remaining segments are a property-access
//     chain on the assembled input.
//  2. A predecessor node ID prefix (only when the path has more than one
//     segment): the remaining segments resolve against that node's output.
//  3. Otherwise the full path resolves against the assembled input directly.
//
// Paths that cannot be resolved leave the original {{...}} token untouched;
// partial resolution is intentional so later stages may fill values in.
type Resolver struct {
	vault secrets.Vault
}

// NewResolver creates a Resolver. vault may be nil, in which case
// {{secrets.*}} tokens are left unresolved.
func NewResolver(vault secrets.Vault) *Resolver {
	return &Resolver{vault: vault}
}

// Resolve walks a (possibly nested) configuration value and substitutes
// every {{...}} expression found in its string leaves. Non-string leaves
// pass through unchanged.
func (r *Resolver) Resolve(ctx context.Context, value any, input any, predecessors map[string]any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = r.Resolve(ctx, item, input, predecessors)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.Resolve(ctx, item, input, predecessors)
		}
		return out
	case string:
		return r.resolveString(ctx, v, input, predecessors)
	default:
		return value
	}
}

// resolveString substitutes each {{...}} token in s independently.
func (r *Resolver) resolveString(ctx context.Context, s string, input any, predecessors map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], "{{")
		if idx == -1 {
			result.WriteString(s[i:])
			break
		}
		result.WriteString(s[i : i+idx])
		start := i + idx + 2

		end := strings.Index(s[start:], "}}")
		if end == -1 {
			// Unterminated token: emit the rest verbatim.
			result.WriteString(s[i+idx:])
			break
		}
		end += start

		token := s[i+idx : end+2]
		path := strings.TrimSpace(s[start:end])

		val, ok := r.resolvePath(ctx, path, input, predecessors)
		if ok {
			result.WriteString(formatValue(val))
		} else {
			result.WriteString(token)
		}

		i = end + 2
	}

	return result.String()
}

// resolvePath applies the resolution rules to a single dot-separated path.
func (r *Resolver) resolvePath(ctx context.Context, path string, input any, predecessors map[string]any) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")

	if segments[0] == "secrets" && len(segments) > 1 {
		return r.resolveSecret(ctx, strings.Join(segments[1:], "."))
	}

	if segments[0] == "inputData" {
		return traverse(input, segments[1:])
	}

	if predecessors != nil && len(segments) > 1 {
		if output, ok := predecessors[segments[0]]; ok {
			return traverse(output, segments[1:])
		}
	}

	return traverse(input, segments)
}

func (r *Resolver) resolveSecret(ctx context.Context, key string) (any, bool) {
	if r.vault == nil {
		return nil, false
	}
	val, err := r.vault.Resolve(ctx, key)
	if err != nil {
		return nil, false
	}
	return string(val), true
}

// traverse walks a property-access chain into nested maps.
// An empty chain yields the root itself. An explicit null reads as absent,
// so the token is left for a later resolution pass.
func traverse(root any, segments []string) (any, bool) {
	current := root
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, ok := m[seg]
		if !ok {
			return nil, false
		}
		current = val
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// formatValue renders a resolved value for in-place substitution.
// Objects and arrays serialize to JSON text; scalars are stringified.
func formatValue(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// HasTemplate reports whether a string contains any {{...}} token.
func HasTemplate(s string) bool {
	return strings.Contains(s, "{{")
}
