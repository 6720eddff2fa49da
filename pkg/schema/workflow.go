package schema

// Workflow is the JSON-serializable workflow format submitted by callers.
// Nodes plus edges must form a directed acyclic graph.
type Workflow struct {
	Nodes    []Node         `json:"nodes"`
	Edges    []Edge         `json:"edges"`
	Defaults map[string]any `json:"defaults,omitempty"` // merged under every node's config
	Timeout  string         `json:"timeout,omitempty"`  // run-level deadline (e.g. "5m")
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Node is a single step in a workflow graph.
type Node struct {
	ID         string         `json:"id"`
	Kind       NodeKind       `json:"kind,omitempty"`  // library | custom (default: library)
	Type       string         `json:"type,omitempty"`  // library handler name (e.g. "http.request")
	Label      string         `json:"label,omitempty"` // human-readable name for logs and summaries
	Config     map[string]any `json:"config,omitempty"`
	CustomCode string         `json:"customCode,omitempty"` // non-empty code makes the node custom
}

// Edge is a directed dependency: Target consumes Source's output.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// NodeKind enumerates how a node's behavior is defined.
type NodeKind string

const (
	NodeKindLibrary NodeKind = "library"
	NodeKindCustom  NodeKind = "custom"
)

// IsCustom reports whether the node carries user-authored code.
// A non-empty CustomCode always wins over the declared kind.
func (n Node) IsCustom() bool {
	return n.CustomCode != "" || n.Kind == NodeKindCustom
}

// HandlerName returns the library registry key for the node.
// Type takes priority; ID is the fallback for graphs that use
// the handler name directly as the node identity.
func (n Node) HandlerName() string {
	if n.Type != "" {
		return n.Type
	}
	return n.ID
}

// DisplayName returns the label when set, otherwise the ID.
func (n Node) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}
