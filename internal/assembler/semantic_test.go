package assembler

import (
	"testing"

	"github.com/rendis/pyflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(n int, op string, in []string, out string) schema.DataStep {
	return schema.DataStep{
		StepNumber:    n,
		Operation:     schema.ParseOperation(op),
		InputDatasets: in,
		OutputDataset: out,
	}
}

func TestSemantic_EndToEnd(t *testing.T) {
	read := step(1, "read_data", nil, "df")
	read.Parameters = map[string]any{"path": "in.csv", "format": "csv"}
	drop := step(2, "dropna", []string{"df"}, "df")
	upper := step(3, "string_transform", []string{"df"}, "df")
	upper.Columns = []string{"x"}
	upper.Parameters = map[string]any{"operation": "upper"}
	group := step(4, "group_aggregate", []string{"df"}, "result")
	group.GroupByColumns = []string{"cat"}
	group.Aggregations = []schema.Aggregation{{Column: "x", Function: "count", OutputColumn: "x"}}
	write := step(5, "write_data", []string{"result"}, "")
	write.Parameters = map[string]any{"file_path": "out.csv"}

	flow, err := NewSemantic().Assemble([]schema.DataStep{read, drop, upper, group, write})
	require.NoError(t, err)

	assert.Equal(t, []string{"in", "df", "result"}, datasetNames(flow))
	assert.Equal(t, []string{"prepare_1", "grouping_2"}, recipeNames(flow))
	assert.Len(t, flow.Recipe("prepare_1").Settings.(*schema.PrepareSettings).Steps, 2)
	assert.Equal(t, []string{"cat"}, flow.Recipe("grouping_2").Settings.(*schema.GroupingSettings).Keys)
	assert.Equal(t, "out.csv", flow.Dataset("result").Path)
	assert.Equal(t, schema.RoleOutput, flow.Dataset("result").Role)
}

func TestSemantic_MatchesStaticNaming(t *testing.T) {
	static, err := NewStatic().Assemble(endToEnd())
	require.NoError(t, err)

	read := step(1, "read_data", nil, "df")
	read.Parameters = map[string]any{"path": "in.csv", "format": "csv"}
	drop := step(2, "drop_missing", []string{"df"}, "df")
	upper := step(3, "string_transform", []string{"df"}, "df")
	upper.Columns = []string{"x"}
	group := step(4, "group_aggregate", []string{"df"}, "result")
	group.GroupByColumns = []string{"cat"}
	group.Aggregations = []schema.Aggregation{{Column: "x", Function: "count", OutputColumn: "x"}}
	write := step(5, "write_data", []string{"result"}, "")
	write.Parameters = map[string]any{"path": "out.csv", "format": "csv"}

	semantic, err := NewSemantic().Assemble([]schema.DataStep{read, drop, upper, group, write})
	require.NoError(t, err)
	assert.Equal(t, datasetNames(static), datasetNames(semantic))
	assert.Equal(t, recipeNames(static), recipeNames(semantic))
}

func TestSemantic_OrdersByStepNumber(t *testing.T) {
	read := step(1, "load", nil, "sales")
	read.Parameters = map[string]any{"path": "sales.csv"}
	sorted := step(2, "sort", []string{"sales"}, "sorted")
	sorted.SortColumns = []schema.SortColumn{{Column: "amount", Ascending: false}}

	flow, err := NewSemantic().Assemble([]schema.DataStep{sorted, read})
	require.NoError(t, err)
	require.Len(t, flow.Recipes, 1)
	assert.Equal(t, []string{"sales"}, flow.Recipes[0].Inputs)
	assert.Equal(t, []schema.SortColumn{{Column: "amount", Ascending: false}},
		flow.Recipes[0].Settings.(*schema.SortSettings).Columns)
}

func TestSemantic_MissingInputReadsPreviousOutput(t *testing.T) {
	read := step(1, "read_data", nil, "df")
	read.Parameters = map[string]any{"path": "a.csv"}
	filter := step(2, "filter", nil, "adults")
	filter.FilterConditions = []schema.FilterCondition{{Column: "age", Operator: ">=", Value: 18}}

	flow, err := NewSemantic().Assemble([]schema.DataStep{read, filter})
	require.NoError(t, err)
	require.Len(t, flow.Recipes, 1)
	r := flow.Recipes[0]
	assert.Equal(t, []string{"a"}, r.Inputs)
	st := r.Settings.(*schema.PrepareSettings).Steps[0]
	assert.Equal(t, schema.ProcFilterOnValue, st.Type)
	assert.Equal(t, "and", st.Params[schema.ParamCombinator])
	assert.Empty(t, schema.FilterNotes(flow.Notes, schema.SeverityWarning))
}

func TestSemantic_UnknownOperation(t *testing.T) {
	read := step(1, "read_data", nil, "df")
	read.Parameters = map[string]any{"path": "a.csv"}
	odd := step(2, "explode_lists", []string{"df"}, "df")
	odd.Code = "df = df.explode('tags')"

	flow, err := NewSemantic().Assemble([]schema.DataStep{read, odd})
	require.NoError(t, err)
	require.Len(t, flow.Recipes, 1)
	r := flow.Recipes[0]
	assert.Equal(t, schema.RecipePython, r.Type)
	assert.Equal(t, "df = df.explode('tags')", r.Settings.(*schema.CodeSettings).Code)

	warnings := schema.FilterNotes(flow.Notes, schema.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, schema.NoteUnknownOperation, warnings[0].Code)
	assert.Contains(t, warnings[0].Message, "explode_lists")
}

func TestSemantic_RequiresOpaqueRecipe(t *testing.T) {
	read := step(1, "read_data", nil, "df")
	read.Parameters = map[string]any{"path": "a.csv"}
	custom := step(2, "fill_missing", []string{"df"}, "df")
	custom.RequiresOpaqueRecipe = true
	custom.Code = "df = df.interpolate()"

	flow, err := NewSemantic().Assemble([]schema.DataStep{read, custom})
	require.NoError(t, err)
	require.Len(t, flow.Recipes, 1)
	assert.Equal(t, schema.RecipePython, flow.Recipes[0].Type)
}

func TestSemantic_JoinConditions(t *testing.T) {
	a := step(1, "read_data", nil, "orders")
	a.Parameters = map[string]any{"path": "orders.csv"}
	b := step(2, "read_data", nil, "users")
	b.Parameters = map[string]any{"path": "users.csv"}
	join := step(3, "merge", []string{"orders", "users"}, "enriched")
	join.JoinType = "inner"
	join.JoinConditions = []schema.JoinCondition{{LeftColumn: "user_id", RightColumn: "id"}}

	flow, err := NewSemantic().Assemble([]schema.DataStep{a, b, join})
	require.NoError(t, err)
	r := flow.Recipe("join_1")
	require.NotNil(t, r)
	assert.Equal(t, []string{"orders", "users"}, r.Inputs)
	js := r.Settings.(*schema.JoinSettings)
	assert.Equal(t, "inner", js.JoinType)
	assert.Equal(t, []schema.JoinCondition{{LeftColumn: "user_id", RightColumn: "id"}}, js.Conditions)
	assert.NotNil(t, flow.Dataset("users").Column("id"))
}
