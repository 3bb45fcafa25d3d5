package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Datasets are drawn as cylinders and recipes as boxes; prepare recipes
// carry their processor chain in a subgraph.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph LR\n")
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))

		for _, sg := range node.Children {
			b.WriteString(fmt.Sprintf("    subgraph %s[\"%s: %s\"]\n",
				mermaidSafeID(node.ID+"_"+sg.Label), mermaidEscapeLabel(node.Label), sg.Label))
			b.WriteString("        direction TB\n")
			for _, subNode := range sg.Nodes {
				b.WriteString(fmt.Sprintf("        %s\n", mermaidNodeDef(subNode)))
			}
			for _, edge := range sg.Edges {
				b.WriteString(fmt.Sprintf("        %s --> %s\n", mermaidSafeID(edge.From), mermaidSafeID(edge.To)))
			}
			b.WriteString("    end\n")
			b.WriteString(fmt.Sprintf("    %s -.- %s\n",
				mermaidSafeID(node.ID), mermaidSafeID(node.ID+"_"+sg.Label)))
		}
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef input fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef output fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef intermediate fill:#d3d3d3,stroke:#6b6b6b,color:#000\n")
	b.WriteString("    classDef placeholder fill:#e8e8e8,stroke:#888,color:#888,stroke-dasharray:5 5\n")
	b.WriteString("    classDef recipe fill:#fff,stroke:#333,color:#000\n")
	b.WriteString("    classDef code fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef warning stroke:#8b1a1a,stroke-width:3px\n")

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), string(node.Kind)))
		if len(node.Warnings) > 0 {
			b.WriteString(fmt.Sprintf("    class %s warning\n", mermaidSafeID(node.ID)))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(nodeText(node))

	switch node.Kind {
	case NodeKindInput, NodeKindOutput, NodeKindIntermediate, NodeKindPlaceholder:
		return fmt.Sprintf("%s[(\"%s\")]", id, label)
	case NodeKindCode:
		return fmt.Sprintf("%s{{\"%s\"}}", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// nodeText joins label and detail with a Mermaid line break.
func nodeText(node *Node) string {
	if node.Detail == "" {
		return node.Label
	}
	return node.Label + "<br/>" + node.Detail
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "__")
	return r.Replace(id)
}

// mermaidEscapeLabel escapes characters that end a quoted Mermaid label.
func mermaidEscapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}
