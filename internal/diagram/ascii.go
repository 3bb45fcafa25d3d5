package diagram

import (
	"fmt"
	"strings"
)

// kindTag returns a short ASCII indicator for a node kind.
func kindTag(kind NodeKind) string {
	switch kind {
	case NodeKindInput:
		return "[IN]"
	case NodeKindOutput:
		return "[OUT]"
	case NodeKindPlaceholder:
		return "[?]"
	case NodeKindCode:
		return "[CODE]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses a level-based layout with box-drawing characters.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := model.Node(nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	for _, node := range model.Nodes {
		if len(node.Children) > 0 {
			b.WriteString(fmt.Sprintf("\n--- %s ---\n", node.Label))
			for _, sg := range node.Children {
				renderSubGraph(&b, sg)
			}
		}
	}

	var warned []*Node
	for _, node := range model.Nodes {
		if len(node.Warnings) > 0 {
			warned = append(warned, node)
		}
	}
	if len(warned) > 0 {
		b.WriteString("\n--- warnings ---\n")
		for _, node := range warned {
			for _, w := range node.Warnings {
				b.WriteString(fmt.Sprintf("  %s: %s\n", node.Label, w))
			}
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	head := node.Label
	if tag := kindTag(node.Kind); tag != "" {
		head += " " + tag
	}
	if len(node.Warnings) > 0 {
		head += " [!]"
	}
	contentLines := []string{head}
	if node.Detail != "" {
		contentLines = append(contentLines, node.Detail)
	}

	maxLen := 0
	for _, line := range contentLines {
		maxLen = max(maxLen, len(line))
	}
	width := maxLen + 4 // 2 border + 2 padding

	// Datasets get rounded corners, recipes square ones.
	tl, tr, bl, br := "┌", "┐", "└", "┘"
	if node.Kind.IsDataset() {
		tl, tr, bl, br = "╭", "╮", "╰", "╯"
	}

	lines := []string{tl + strings.Repeat("─", width-2) + tr}
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bl+strings.Repeat("─", width-2)+br)

	return asciiBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		maxHeight = max(maxHeight, len(box.lines))
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

// renderSubGraph lists the nodes of a subgraph in order.
func renderSubGraph(b *strings.Builder, sg *SubGraph) {
	b.WriteString(fmt.Sprintf("  [%s]\n", sg.Label))
	for _, node := range sg.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", node.Label))
	}
}
