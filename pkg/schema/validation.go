package schema

// ValidationIssue points at one problem in a submitted workflow document.
type ValidationIssue struct {
	Path    string `json:"path"` // e.g. "nodes[2].config.url"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult aggregates issues found during workflow validation.
// Errors block execution; warnings do not.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether the workflow may execute.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends a blocking issue.
func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Path: path, Code: code, Message: message})
}

// AddWarning appends a non-blocking issue.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Path: path, Code: code, Message: message})
}
