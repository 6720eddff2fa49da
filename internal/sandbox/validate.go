package sandbox

import (
	"fmt"
	"regexp"
)

// denyRule flags a source construct that could escape the sandbox or reach
// disallowed capabilities. This is defense-in-depth over the capability-closed
// runtime, not a security boundary on its own.
type denyRule struct {
	pattern *regexp.Regexp
	reason  string
}

var denyRules = []denyRule{
	{regexp.MustCompile(`\brequire\s*\(`), "module loading via require() is not available"},
	{regexp.MustCompile(`\bimport\s*[('"]`), "dynamic import() is not available"},
	{regexp.MustCompile(`(?m)^\s*import\s`), "ES module imports are not available"},
	{regexp.MustCompile(`\bprocess\b`), "process and environment access is not available"},
	{regexp.MustCompile(`\bchild_process\b`), "spawning processes is not available"},
	{regexp.MustCompile(`\beval\s*\(`), "eval() is disabled"},
	{regexp.MustCompile(`\bnew\s+Function\b`), "dynamic code generation via new Function is disabled"},
	{regexp.MustCompile(`\bFunction\s*\(`), "the Function constructor is disabled"},
	{regexp.MustCompile(`\bglobalThis\b`), "the host global object is not accessible"},
	{regexp.MustCompile(`\bwindow\b`), "the host global object is not accessible"},
	{regexp.MustCompile(`\bXMLHttpRequest\b`), "raw network primitives are not available; use context.http"},
	{regexp.MustCompile(`\bWebSocket\b`), "raw network primitives are not available; use context.http"},
	{regexp.MustCompile(`constructor\s*\[\s*['"]constructor['"]\s*\]`), "constructor chain escape is disabled"},
	{regexp.MustCompile(`\.\s*constructor\s*\.\s*constructor\b`), "constructor chain escape is disabled"},
}

// ValidateSource scans user code for disallowed constructs and returns the
// list of violations, empty when the code passes.
func ValidateSource(code string) []string {
	var violations []string
	for _, r := range denyRules {
		if loc := r.pattern.FindStringIndex(code); loc != nil {
			violations = append(violations,
				fmt.Sprintf("%s (near %q)", r.reason, snippet(code, loc[0])))
		}
	}
	return violations
}

func snippet(code string, at int) string {
	end := at + 24
	if end > len(code) {
		end = len(code)
	}
	return code[at:end]
}
