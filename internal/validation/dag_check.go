package validation

import (
	"errors"
	"fmt"

	"github.com/rendis/pyflow/internal/graph"
	"github.com/rendis/pyflow/pkg/schema"
)

// validateDAG sorts the flow graph (Kahn's algorithm) and reports cycles
// and datasets no recipe touches.
func validateDAG(flow *schema.Flow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	dag, err := graph.ParseDAG(flow)
	if err != nil {
		var fe *schema.FlowError
		if errors.As(err, &fe) {
			msg := fe.Message
			if cycles, ok := fe.Details["cycles"].([][]string); ok && len(cycles) > 0 {
				msg = fmt.Sprintf("%s: %v", msg, cycles[0])
			}
			result.AddError("recipes", fe.Code, msg)
		} else {
			result.AddError("recipes", schema.ErrCodeValidation, err.Error())
		}
		return result // a cycle makes connectivity analysis meaningless
	}

	for i, d := range flow.Datasets {
		id := graph.NodeRef{Kind: graph.NodeDataset, Name: d.Name}.ID()
		if len(dag.Edges[id]) == 0 && len(dag.Reverse[id]) == 0 {
			result.AddWarning(fmt.Sprintf("datasets[%d]", i), schema.NoteRemovedOrphan,
				fmt.Sprintf("dataset %q is not connected to any recipe", d.Name))
		}
	}
	return result
}
