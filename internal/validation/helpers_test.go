package validation

import (
	"testing"

	"github.com/rendis/pyflow/pkg/schema"
	"github.com/stretchr/testify/require"
)

// sample builds in -> prepare_1 -> clean -> grouping_2 -> totals.
func sample() *schema.Flow {
	f := schema.NewFlow("sales")
	f.Datasets = []*schema.Dataset{
		{Name: "in", Role: schema.RoleInput, Path: "in.csv", Declared: true},
		{Name: "clean", Role: schema.RoleIntermediate},
		{Name: "totals", Role: schema.RoleOutput, Declared: true,
			Schema: []schema.Column{{Name: "region", Type: "string", Nullable: true}}},
	}
	f.Recipes = []*schema.Recipe{
		{
			Name: "prepare_1", Type: schema.RecipePrepare,
			Inputs: []string{"in"}, Outputs: []string{"clean"},
			Settings: &schema.PrepareSettings{Steps: []schema.ProcessorStep{
				{Type: schema.ProcRemoveRowsOnEmpty, Params: map[string]any{"columns": []any{"amount"}}, SourceLine: 3},
			}},
			SourceLines: []int{3},
		},
		{
			Name: "grouping_2", Type: schema.RecipeGrouping,
			Inputs: []string{"clean"}, Outputs: []string{"totals"},
			Settings: &schema.GroupingSettings{
				Keys:         []string{"region"},
				Aggregations: []schema.Aggregation{{Column: "amount", Function: "sum", OutputColumn: "amount"}},
			},
		},
	}
	return f
}

func newValidator(t *testing.T) *FlowValidator {
	t.Helper()
	fv, err := NewFlowValidator()
	require.NoError(t, err)
	return fv
}

func issueCodes(issues []schema.ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}
