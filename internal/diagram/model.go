package diagram

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindFilter  NodeKind = "filter"
	NodeKindStep    NodeKind = "step"
	NodeKindEnd     NodeKind = "end"
)

// Format names a renderer.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
	FormatPNG     Format = "png"
)

// DiagramModel is the intermediate representation used by all renderers.
// Nodes are in execution order; a workflow is a single chain.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node is one box in the chain.
type Node struct {
	ID     string
	Label  string
	Detail string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries the recorded state of a step in a run.
type StatusOverlay struct {
	Status     string // from schema.StepStatus
	DurationMs int64
	Error      string
}

// Edge connects two consecutive nodes.
type Edge struct {
	From  string
	To    string
	Label string
}
