package diagram

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindInput        NodeKind = "input"
	NodeKindIntermediate NodeKind = "intermediate"
	NodeKindOutput       NodeKind = "output"
	NodeKindPlaceholder  NodeKind = "placeholder"
	NodeKindRecipe       NodeKind = "recipe"
	NodeKindCode         NodeKind = "code"
)

// IsDataset reports whether the kind denotes a dataset node.
func (k NodeKind) IsDataset() bool {
	return k != NodeKindRecipe && k != NodeKindCode
}

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one dataset or recipe of the flow.
type Node struct {
	ID    string
	Label string
	// Detail is a short second line, e.g. the recipe type or a file path.
	Detail   string
	Kind     NodeKind
	Warnings []string
	Children []*SubGraph // processor steps of prepare recipes
}

// SubGraph holds nested nodes, e.g. the processor chain of a prepare recipe.
type SubGraph struct {
	Label string
	Nodes []*Node
	Edges []Edge
}

// Edge represents data flowing between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}

// Node returns the node with the given ID, or nil.
func (m *DiagramModel) Node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
