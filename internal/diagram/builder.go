package diagram

import (
	"fmt"

	"github.com/rendis/pyflow/internal/graph"
	"github.com/rendis/pyflow/pkg/schema"
)

// Build constructs a DiagramModel from a flow. It uses graph.ParseDAG for
// topology, so nodes come out in topological order and a cyclic flow fails
// with CYCLE_DETECTED. Warning notes are attached to the node they refer to.
func Build(flow *schema.Flow) (*DiagramModel, error) {
	dag, err := graph.ParseDAG(flow)
	if err != nil {
		return nil, fmt.Errorf("diagram: parse DAG: %w", err)
	}

	warnings := make(map[string][]string)
	for _, n := range schema.FilterNotes(flow.Notes, schema.SeverityWarning) {
		if n.Ref != "" {
			warnings[n.Ref] = append(warnings[n.Ref], n.Message)
		}
	}

	nodes := make([]*Node, 0, len(dag.Sorted))
	for _, id := range dag.Sorted {
		ref := dag.Nodes[id]
		var node *Node
		if ref.Kind == graph.NodeDataset {
			node = datasetNode(id, flow.Dataset(ref.Name))
		} else {
			node = recipeNode(id, flow.Recipe(ref.Name))
		}
		node.Warnings = warnings[ref.Name]
		nodes = append(nodes, node)
	}

	return &DiagramModel{
		Title:  titleFromFlow(flow),
		Nodes:  nodes,
		Edges:  buildEdges(dag),
		Levels: dag.Levels,
	}, nil
}

func datasetNode(id string, d *schema.Dataset) *Node {
	node := &Node{ID: id, Label: d.Name, Detail: d.Path}
	switch {
	case d.Placeholder:
		node.Kind = NodeKindPlaceholder
		node.Detail = "placeholder"
	case d.Role == schema.RoleInput:
		node.Kind = NodeKindInput
	case d.Role == schema.RoleOutput:
		node.Kind = NodeKindOutput
	default:
		node.Kind = NodeKindIntermediate
	}
	return node
}

func recipeNode(id string, r *schema.Recipe) *Node {
	node := &Node{ID: id, Label: r.Name, Detail: string(r.Type), Kind: NodeKindRecipe}
	if r.Type == schema.RecipePython {
		node.Kind = NodeKindCode
	}
	if ps, ok := r.Settings.(*schema.PrepareSettings); ok && len(ps.Steps) > 0 {
		node.Children = append(node.Children, stepsSubGraph(id, ps.Steps))
	}
	return node
}

// stepsSubGraph chains the processor steps of a prepare recipe. Sub-node
// IDs are qualified by the recipe ID: recipeID.steps.N.
func stepsSubGraph(parentID string, steps []schema.ProcessorStep) *SubGraph {
	sg := &SubGraph{Label: "steps"}
	prev := ""
	for i, st := range steps {
		id := fmt.Sprintf("%s.steps.%d", parentID, i+1)
		sg.Nodes = append(sg.Nodes, &Node{
			ID:    id,
			Label: fmt.Sprintf("%d. %s", i+1, st.Type),
			Kind:  NodeKindRecipe,
		})
		if prev != "" {
			sg.Edges = append(sg.Edges, Edge{From: prev, To: id})
		}
		prev = id
	}
	return sg
}

// buildEdges lists DAG edges in topological order of their target.
func buildEdges(dag *graph.DAG) []Edge {
	var edges []Edge
	for _, id := range dag.Sorted {
		for _, pred := range dag.Edges[id] {
			edges = append(edges, Edge{From: pred, To: id})
		}
	}
	return edges
}

func titleFromFlow(flow *schema.Flow) string {
	if flow.Name != "" {
		return flow.Name
	}
	return "Flow"
}
