package graph

import (
	"sort"

	"github.com/rendis/pyflow/pkg/schema"
)

// NodeKind distinguishes the two sides of the bipartite flow graph.
type NodeKind string

const (
	NodeDataset NodeKind = "dataset"
	NodeRecipe  NodeKind = "recipe"
)

// NodeRef identifies a dataset or recipe node.
type NodeRef struct {
	Kind NodeKind `json:"kind"`
	Name string   `json:"name"`
}

// ID returns the unique node key, e.g. "recipe:prepare_1".
func (n NodeRef) ID() string {
	return string(n.Kind) + ":" + n.Name
}

// DAG is the derived graph of a Flow. Edges follow data: dataset → recipe
// for inputs, recipe → dataset for outputs.
type DAG struct {
	Nodes   map[string]NodeRef
	Edges   map[string][]string // node ID → predecessors
	Reverse map[string][]string // node ID → successors
	Sorted  []string            // topological order
	Roots   []string            // nodes with no predecessors
	Levels  [][]string          // depth groups

	order map[string]int // declaration order, used as tie-breaker
}

// Build constructs the adjacency of a flow without sorting it. Recipe
// references to datasets absent from the flow are reported as validation
// errors.
func Build(flow *schema.Flow) (*DAG, error) {
	if flow == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "flow is nil")
	}

	total := len(flow.Datasets) + len(flow.Recipes)
	dag := &DAG{
		Nodes:   make(map[string]NodeRef, total),
		Edges:   make(map[string][]string, total),
		Reverse: make(map[string][]string, total),
		order:   make(map[string]int, total),
	}

	for _, d := range flow.Datasets {
		ref := NodeRef{Kind: NodeDataset, Name: d.Name}
		if _, exists := dag.Nodes[ref.ID()]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate dataset name: %s", d.Name)
		}
		dag.add(ref)
	}
	for _, r := range flow.Recipes {
		ref := NodeRef{Kind: NodeRecipe, Name: r.Name}
		if _, exists := dag.Nodes[ref.ID()]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate recipe name: %s", r.Name)
		}
		dag.add(ref)
	}

	for _, r := range flow.Recipes {
		rid := NodeRef{Kind: NodeRecipe, Name: r.Name}.ID()
		for _, in := range r.Inputs {
			did := NodeRef{Kind: NodeDataset, Name: in}.ID()
			if _, ok := dag.Nodes[did]; !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"recipe %s reads unknown dataset %q", r.Name, in).WithRef(r.Name)
			}
			dag.link(did, rid)
		}
		for _, out := range r.Outputs {
			did := NodeRef{Kind: NodeDataset, Name: out}.ID()
			if _, ok := dag.Nodes[did]; !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"recipe %s writes unknown dataset %q", r.Name, out).WithRef(r.Name)
			}
			dag.link(rid, did)
		}
	}
	return dag, nil
}

// ParseDAG builds the graph, sorts it with Kahn's algorithm, and computes
// levels. A cycle yields a CYCLE_DETECTED error.
func ParseDAG(flow *schema.Flow) (*DAG, error) {
	dag, err := Build(flow)
	if err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(dag.Nodes))
	for id := range dag.Nodes {
		inDegree[id] = len(dag.Edges[id])
	}

	queue := make([]string, 0)
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	dag.sortByOrder(queue)
	dag.Roots = append([]string(nil), queue...)

	sorted := make([]string, 0, len(dag.Nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		successors := append([]string(nil), dag.Reverse[node]...)
		dag.sortByOrder(successors)
		var ready []string
		for _, next := range successors {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = append(ready, next)
			}
		}
		queue = append(queue, ready...)
	}

	if len(sorted) != len(dag.Nodes) {
		cycles := findCycles(dag)
		return nil, schema.NewError(schema.ErrCodeCycleDetected, "flow contains a cycle").
			WithDetails(map[string]any{"cycles": cycles})
	}

	dag.Sorted = sorted
	dag.Levels = computeLevels(dag)
	return dag, nil
}

// DetectCycles returns every cycle of the flow as a list of node IDs.
// An acyclic flow yields an empty result.
func DetectCycles(flow *schema.Flow) [][]string {
	dag, err := Build(flow)
	if err != nil {
		return nil
	}
	return findCycles(dag)
}

// TopologicalSort returns every dataset and recipe such that each node
// follows all of its predecessors.
func TopologicalSort(flow *schema.Flow) ([]NodeRef, error) {
	dag, err := ParseDAG(flow)
	if err != nil {
		return nil, err
	}
	out := make([]NodeRef, len(dag.Sorted))
	for i, id := range dag.Sorted {
		out[i] = dag.Nodes[id]
	}
	return out, nil
}

// Levels groups node IDs by topological depth.
func Levels(flow *schema.Flow) ([][]string, error) {
	dag, err := ParseDAG(flow)
	if err != nil {
		return nil, err
	}
	return dag.Levels, nil
}

// Ancestors returns the IDs of every node upstream of id.
func (d *DAG) Ancestors(id string) map[string]bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), d.Edges[id]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, d.Edges[n]...)
	}
	return seen
}

func (d *DAG) add(ref NodeRef) {
	id := ref.ID()
	d.order[id] = len(d.order)
	d.Nodes[id] = ref
}

func (d *DAG) link(from, to string) {
	for _, existing := range d.Edges[to] {
		if existing == from {
			return
		}
	}
	d.Edges[to] = append(d.Edges[to], from)
	d.Reverse[from] = append(d.Reverse[from], to)
}

func (d *DAG) sortByOrder(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return d.order[ids[i]] < d.order[ids[j]] })
}

// computeLevels groups nodes by longest distance from a root.
func computeLevels(dag *DAG) [][]string {
	depth := make(map[string]int, len(dag.Nodes))
	maxLevel := 0
	for _, id := range dag.Sorted {
		maxDep := -1
		for _, pred := range dag.Edges[id] {
			if depth[pred] > maxDep {
				maxDep = depth[pred]
			}
		}
		depth[id] = maxDep + 1
		if depth[id] > maxLevel {
			maxLevel = depth[id]
		}
	}

	if len(dag.Sorted) == 0 {
		return nil
	}
	levels := make([][]string, maxLevel+1)
	for _, id := range dag.Sorted {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	return levels
}

// findCycles runs Tarjan's strongly connected components algorithm and
// reports components that form a cycle.
func findCycles(dag *DAG) [][]string {
	ids := make([]string, 0, len(dag.Nodes))
	for id := range dag.Nodes {
		ids = append(ids, id)
	}
	dag.sortByOrder(ids)

	index := 0
	indices := make(map[string]int, len(ids))
	lowlink := make(map[string]int, len(ids))
	onStack := make(map[string]bool, len(ids))
	var stack []string
	cycles := [][]string{}

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range dag.Reverse[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var component []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		if len(component) > 1 || selfLoop(dag, v) {
			dag.sortByOrder(component)
			cycles = append(cycles, component)
		}
	}

	for _, id := range ids {
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}
	return cycles
}

func selfLoop(dag *DAG, id string) bool {
	for _, next := range dag.Reverse[id] {
		if next == id {
			return true
		}
	}
	return false
}
