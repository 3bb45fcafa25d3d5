package diagram

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// ImageFormat selects the graphviz output format.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatSVG ImageFormat = "svg"
	FormatDOT ImageFormat = "dot"
)

// ParseImageFormat maps a format name to an ImageFormat.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch f := ImageFormat(strings.ToLower(s)); f {
	case FormatPNG, FormatSVG, FormatDOT:
		return f, nil
	default:
		return "", fmt.Errorf("diagram: unsupported image format %q", s)
	}
}

// RenderImage renders a DiagramModel with graphviz in the given format.
func RenderImage(ctx context.Context, model *DiagramModel, format ImageFormat) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(dotLabel(node))
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	// Processor chains become dashed clusters linked to their recipe.
	for _, node := range model.Nodes {
		for _, sg := range node.Children {
			sub, subErr := graph.CreateSubGraphByName("cluster_" + node.ID + "_" + sg.Label)
			if subErr != nil {
				continue
			}
			sub.SetLabel(node.Label + " " + sg.Label)
			sub.SetStyle(cgraph.DashedGraphStyle)

			for _, subNode := range sg.Nodes {
				gvSub, nErr := sub.CreateNodeByName(subNode.ID)
				if nErr != nil {
					continue
				}
				gvSub.SetLabel(subNode.Label)
				gvSub.SetShape(cgraph.PlainTextShape)
				gvNodes[subNode.ID] = gvSub
			}
			for _, edge := range sg.Edges {
				if from, to := gvNodes[edge.From], gvNodes[edge.To]; from != nil && to != nil {
					_, _ = graph.CreateEdgeByName("", from, to)
				}
			}
		}
	}

	for _, edge := range model.Edges {
		from, to := gvNodes[edge.From], gvNodes[edge.To]
		if from == nil || to == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", from, to)
		if eErr == nil && edge.Label != "" {
			e.SetLabel(edge.Label)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.Format(format), &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func dotLabel(node *Node) string {
	if node.Detail == "" {
		return node.Label
	}
	return node.Label + "\n" + node.Detail
}

// applyNodeStyle sets graphviz attributes based on node kind.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	if node.Kind.IsDataset() {
		gvNode.SetShape(cgraph.CylinderShape)
	} else {
		gvNode.SetShape(cgraph.BoxShape)
	}

	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch node.Kind {
	case NodeKindInput:
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	case NodeKindOutput:
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case NodeKindIntermediate:
		gvNode.SetFillColor("#d3d3d3")
	case NodeKindPlaceholder:
		gvNode.SetFillColor("#e8e8e8")
		gvNode.SetFontColor("#888888")
		gvNode.SetStyle(cgraph.DashedNodeStyle)
	case NodeKindCode:
		gvNode.SetShape(cgraph.ComponentShape)
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	default:
		gvNode.SetFillColor("white")
	}

	if len(node.Warnings) > 0 {
		gvNode.SetColor("#8b1a1a")
		gvNode.SetPenWidth(2)
	}
}
