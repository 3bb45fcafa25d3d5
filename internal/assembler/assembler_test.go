package assembler

import (
	"testing"

	"github.com/rendis/pyflow/internal/graph"
	"github.com/rendis/pyflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tr(kind schema.TransformationKind, src, tgt string, params map[string]any) schema.Transformation {
	return schema.Transformation{
		Kind:            kind,
		SourceDataframe: src,
		TargetDataframe: tgt,
		Parameters:      params,
	}
}

func endToEnd() []schema.Transformation {
	return []schema.Transformation{
		tr(schema.KindReadData, "", "df", map[string]any{"path": "in.csv", "format": "csv"}),
		tr(schema.KindDropMissing, "df", "df", nil),
		tr(schema.KindStringTransform, "df", "df", map[string]any{
			"columns": []any{"x"}, "operation": "upper", "accessor": "str",
		}),
		tr(schema.KindGroupAggregate, "df", "result", map[string]any{
			"group_by":     []any{"cat"},
			"aggregations": []any{map[string]any{"column": "x", "function": "count", "output_column": "x"}},
		}),
		tr(schema.KindWriteData, "result", "", map[string]any{"path": "out.csv", "format": "csv"}),
	}
}

func names[T any](items []T, name func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = name(it)
	}
	return out
}

func datasetNames(f *schema.Flow) []string {
	return names(f.Datasets, func(d *schema.Dataset) string { return d.Name })
}

func recipeNames(f *schema.Flow) []string {
	return names(f.Recipes, func(r *schema.Recipe) string { return r.Name })
}

func noteCodes(f *schema.Flow) []string {
	return names(f.Notes, func(n schema.Note) string { return n.Code })
}

func TestStatic_EndToEnd(t *testing.T) {
	flow, err := NewStatic().Assemble(endToEnd())
	require.NoError(t, err)

	assert.Equal(t, []string{"in", "df", "result"}, datasetNames(flow))
	assert.Equal(t, schema.RoleInput, flow.Dataset("in").Role)
	assert.Equal(t, "in.csv", flow.Dataset("in").Path)
	assert.Equal(t, schema.RoleIntermediate, flow.Dataset("df").Role)
	assert.Equal(t, schema.RoleOutput, flow.Dataset("result").Role)
	assert.True(t, flow.Dataset("result").Declared)
	assert.Equal(t, "out.csv", flow.Dataset("result").Path)

	require.Equal(t, []string{"prepare_1", "grouping_2"}, recipeNames(flow))
	prep := flow.Recipe("prepare_1")
	assert.Equal(t, []string{"in"}, prep.Inputs)
	assert.Equal(t, []string{"df"}, prep.Outputs)
	steps := prep.Settings.(*schema.PrepareSettings).Steps
	require.Len(t, steps, 2)
	assert.Equal(t, schema.ProcRemoveRowsOnEmpty, steps[0].Type)
	assert.Equal(t, schema.ProcStringTransformer, steps[1].Type)

	group := flow.Recipe("grouping_2")
	assert.Equal(t, []string{"df"}, group.Inputs)
	assert.Equal(t, []string{"result"}, group.Outputs)
	gs := group.Settings.(*schema.GroupingSettings)
	assert.Equal(t, []string{"cat"}, gs.Keys)
	assert.Equal(t, []schema.Aggregation{{Column: "x", Function: "count", OutputColumn: "x"}}, gs.Aggregations)

	assert.Empty(t, flow.RecipesOfType(schema.RecipePython))
	assert.Empty(t, schema.FilterNotes(flow.Notes, schema.SeverityWarning))

	result := flow.Dataset("result")
	require.NotNil(t, result.Column("cat"))
	require.NotNil(t, result.Column("x"))
	assert.Equal(t, "bigint", result.Column("x").Type)
	assert.Equal(t, "string", flow.Dataset("df").Column("x").Type)
}

func TestStatic_ChainCompleteness(t *testing.T) {
	ts := []schema.Transformation{
		tr(schema.KindDropMissing, "df", "__chain1_1", nil),
		tr(schema.KindFillMissing, "__chain1_1", "__chain1_2", map[string]any{"value": 0, "method": "constant"}),
		tr(schema.KindSort, "__chain1_2", "__chain1_3", map[string]any{
			"sort_columns": []any{map[string]any{"column": "x", "ascending": true}},
		}),
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)

	require.Equal(t, []string{"prepare_1", "sort_2"}, recipeNames(flow))
	steps := flow.Recipe("prepare_1").Settings.(*schema.PrepareSettings).Steps
	require.Len(t, steps, 2)
	assert.Equal(t, schema.ProcRemoveRowsOnEmpty, steps[0].Type)
	assert.Equal(t, schema.ProcFillEmpty, steps[1].Type)

	assert.Equal(t, []string{"df", "df_1", "df_2"}, datasetNames(flow))
	assert.True(t, flow.Dataset("df").Placeholder)
	assert.Equal(t, schema.RoleInput, flow.Dataset("df").Role)
	assert.Equal(t, []string{"df_1"}, flow.Recipe("sort_2").Inputs)
	assert.Equal(t, []schema.SortColumn{{Column: "x", Ascending: true}},
		flow.Recipe("sort_2").Settings.(*schema.SortSettings).Columns)
	assert.Contains(t, noteCodes(flow), schema.NoteDanglingReference)

	for _, ds := range flow.Datasets {
		assert.False(t, schema.IsChainName(ds.Name), ds.Name)
	}
}

func TestStatic_StrictReferences(t *testing.T) {
	ts := []schema.Transformation{tr(schema.KindDropMissing, "df", "df", nil)}
	_, err := NewStatic(WithStrict()).Assemble(ts)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeDanglingReference))
}

func TestStatic_AssignedChainTakesVariableName(t *testing.T) {
	ts := []schema.Transformation{
		tr(schema.KindReadData, "", "raw", map[string]any{"path": "data/events.parquet", "format": "parquet"}),
		tr(schema.KindDropMissing, "raw", "__chain2_1", nil),
		tr(schema.KindFillMissing, "__chain2_1", "clean", map[string]any{"value": 0}),
		tr(schema.KindWriteData, "clean", "", map[string]any{"path": "clean.csv"}),
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)

	assert.Equal(t, []string{"events", "clean"}, datasetNames(flow))
	require.Len(t, flow.Recipes, 1)
	assert.Equal(t, []string{"clean"}, flow.Recipes[0].Outputs)
	assert.Len(t, flow.Recipes[0].Settings.(*schema.PrepareSettings).Steps, 2)
}

func TestStatic_NewVariableOpensPrepare(t *testing.T) {
	ts := []schema.Transformation{
		tr(schema.KindReadData, "", "df", map[string]any{"path": "a.csv"}),
		tr(schema.KindDropMissing, "df", "df", nil),
		tr(schema.KindFillMissing, "df", "df2", map[string]any{"value": 0}),
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)
	assert.Equal(t, []string{"prepare_1", "prepare_2"}, recipeNames(flow))
	assert.Equal(t, []string{"df"}, flow.Recipe("prepare_2").Inputs)
	assert.Equal(t, []string{"df2"}, flow.Recipe("prepare_2").Outputs)
}

func TestStatic_NonPrepareClosesPrepare(t *testing.T) {
	ts := []schema.Transformation{
		tr(schema.KindReadData, "", "df", map[string]any{"path": "a.csv"}),
		tr(schema.KindDropMissing, "df", "df", nil),
		tr(schema.KindSort, "df", "df", map[string]any{
			"sort_columns": []any{map[string]any{"column": "a", "ascending": false}},
		}),
		tr(schema.KindFillMissing, "df", "df", map[string]any{"value": 0}),
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)
	assert.Equal(t, []string{"prepare_1", "sort_2", "prepare_3"}, recipeNames(flow))
	assert.Equal(t, []string{"a", "df", "df_1", "df_2"}, datasetNames(flow))
}

func TestStatic_AliasKeepsSnapshot(t *testing.T) {
	join := tr(schema.KindJoin, "snap", "x", map[string]any{"how": "inner"})
	join.AdditionalSources = []string{"df"}
	ts := []schema.Transformation{
		tr(schema.KindReadData, "", "df", map[string]any{"path": "a.csv"}),
		tr(schema.KindFillMissing, "df", "df", map[string]any{"value": 0}),
		tr(schema.KindAlias, "df", "snap", nil),
		tr(schema.KindDropMissing, "df", "df", nil),
		join,
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)

	assert.Equal(t, []string{"prepare_1", "prepare_2", "join_3"}, recipeNames(flow))
	assert.Len(t, flow.Recipe("prepare_1").Settings.(*schema.PrepareSettings).Steps, 1)
	assert.Equal(t, []string{"df"}, flow.Recipe("prepare_2").Inputs)
	assert.Equal(t, []string{"df", "df_1"}, flow.Recipe("join_3").Inputs)
	assert.NotContains(t, noteCodes(flow), schema.NoteDanglingReference)
}

func TestStatic_AliasOfUnknownVariableIsIgnored(t *testing.T) {
	ts := []schema.Transformation{
		tr(schema.KindAlias, "ghost", "snap", nil),
		tr(schema.KindDropMissing, "snap", "snap", nil),
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)
	assert.Equal(t, []string{"snap", "snap_1"}, datasetNames(flow))
	assert.True(t, flow.Dataset("snap").Placeholder)
}

func TestStatic_JoinUnionSplit(t *testing.T) {
	ts := []schema.Transformation{
		tr(schema.KindReadData, "", "orders", map[string]any{"path": "orders.csv"}),
		tr(schema.KindReadData, "", "customers", map[string]any{"path": "customers.csv"}),
		{
			Kind:              schema.KindJoin,
			SourceDataframe:   "orders",
			TargetDataframe:   "merged",
			AdditionalSources: []string{"customers"},
			Parameters: map[string]any{
				"how": "left",
				"join_conditions": []any{
					map[string]any{"left_column": "customer_id", "right_column": "customer_id"},
				},
			},
		},
		{
			Kind:              schema.KindUnion,
			SourceDataframe:   "orders",
			TargetDataframe:   "both",
			AdditionalSources: []string{"customers"},
		},
		{
			Kind:              schema.KindSplit,
			SourceDataframe:   "merged",
			TargetDataframe:   "train",
			AdditionalTargets: []string{"test"},
			Parameters:        map[string]any{"test_size": 0.2, "random_state": 42},
		},
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)
	require.Equal(t, []string{"join_1", "vstack_2", "split_3"}, recipeNames(flow))

	join := flow.Recipe("join_1")
	assert.Equal(t, []string{"orders", "customers"}, join.Inputs)
	js := join.Settings.(*schema.JoinSettings)
	assert.Equal(t, "left", js.JoinType)
	assert.Equal(t, []schema.JoinCondition{{LeftColumn: "customer_id", RightColumn: "customer_id"}}, js.Conditions)
	assert.NotNil(t, flow.Dataset("customers").Column("customer_id"))

	stack := flow.Recipe("vstack_2")
	assert.Equal(t, []string{"orders", "customers"}, stack.Inputs)
	assert.Equal(t, "union", stack.Settings.(*schema.StackSettings).Mode)

	split := flow.Recipe("split_3")
	assert.Equal(t, []string{"train", "test"}, split.Outputs)
	ss := split.Settings.(*schema.SplitSettings)
	assert.Equal(t, 0.2, ss.Ratio)
	require.NotNil(t, ss.Seed)
	assert.Equal(t, 42, *ss.Seed)
	assert.Equal(t, schema.RoleOutput, flow.Dataset("train").Role)
	assert.Equal(t, schema.RoleOutput, flow.Dataset("test").Role)
}

func TestStatic_OpaqueBecomesCodeRecipe(t *testing.T) {
	ts := []schema.Transformation{
		tr(schema.KindReadData, "", "df", map[string]any{"path": "a.csv"}),
		tr(schema.KindOpaque, "df", "df", map[string]any{
			"raw_source_snippet": "df.apply(lambda r: r * 2, axis=1)",
			"unknown_operation":  "apply",
		}),
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)
	require.Len(t, flow.Recipes, 1)
	r := flow.Recipes[0]
	assert.Equal(t, "python_1", r.Name)
	code := r.Settings.(*schema.CodeSettings)
	assert.Equal(t, "python", code.Language)
	assert.Equal(t, "df.apply(lambda r: r * 2, axis=1)", code.Code)
	assert.Contains(t, noteCodes(flow), schema.NoteOpaqueRecipe)
}

func TestStatic_UnknownKindWarns(t *testing.T) {
	ts := []schema.Transformation{
		tr(schema.KindReadData, "", "df", map[string]any{"path": "a.csv"}),
		tr("explode", "df", "df", nil),
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)
	require.Len(t, flow.Recipes, 1)
	assert.Equal(t, schema.RecipePython, flow.Recipes[0].Type)
	assert.Contains(t, noteCodes(flow), schema.NoteUnknownOperation)
}

func TestStatic_WriteInputUsesSync(t *testing.T) {
	ts := []schema.Transformation{
		tr(schema.KindReadData, "", "df", map[string]any{"path": "raw/a.csv", "format": "csv"}),
		tr(schema.KindWriteData, "df", "", map[string]any{"path": "copy.parquet", "format": "parquet"}),
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)
	require.Len(t, flow.Recipes, 1)
	sync := flow.Recipes[0]
	assert.Equal(t, schema.RecipeSync, sync.Type)
	assert.Equal(t, []string{"a"}, sync.Inputs)
	assert.Equal(t, []string{"copy"}, sync.Outputs)
	out := flow.Dataset("copy")
	assert.Equal(t, schema.RoleOutput, out.Role)
	assert.Equal(t, "parquet", out.Format)
}

func TestStatic_EmptySettingsFlagged(t *testing.T) {
	ts := []schema.Transformation{
		tr(schema.KindReadData, "", "df", map[string]any{"path": "a.csv"}),
		tr(schema.KindSort, "df", "out", nil),
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)
	assert.Contains(t, noteCodes(flow), schema.NoteEmptySettings)
}

func TestStatic_Naming(t *testing.T) {
	flow, err := NewStatic(WithNaming("raw_", "_v1"), WithFlowName("sales")).Assemble(endToEnd())
	require.NoError(t, err)
	assert.Equal(t, "sales", flow.Name)
	assert.Equal(t, []string{"raw_in_v1", "raw_df_v1", "raw_result_v1"}, datasetNames(flow))
}

func TestStatic_FreshStatePerCall(t *testing.T) {
	a := NewStatic()
	first, err := a.Assemble(endToEnd())
	require.NoError(t, err)
	second, err := a.Assemble(endToEnd())
	require.NoError(t, err)
	assert.Equal(t, first.ToMap(), second.ToMap())
}

func TestStatic_DAGInvariant(t *testing.T) {
	ts := []schema.Transformation{
		tr(schema.KindReadData, "", "a", map[string]any{"path": "a.csv"}),
		tr(schema.KindDropMissing, "a", "b", nil),
		tr(schema.KindSort, "b", "c", map[string]any{"sort_columns": []any{map[string]any{"column": "x", "ascending": true}}}),
		tr(schema.KindDistinct, "c", "d", nil),
		tr(schema.KindTopN, "d", "e", map[string]any{"n": 3, "sort_columns": []any{map[string]any{"column": "x", "ascending": false}}}),
	}
	flow, err := NewStatic().Assemble(ts)
	require.NoError(t, err)

	assert.Empty(t, graph.DetectCycles(flow))
	order, err := graph.TopologicalSort(flow)
	require.NoError(t, err)
	assert.Len(t, order, len(flow.Datasets)+len(flow.Recipes))

	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n.ID()] = i
	}
	for _, r := range flow.Recipes {
		rid := graph.NodeRef{Kind: graph.NodeRecipe, Name: r.Name}.ID()
		for _, in := range r.Inputs {
			assert.Less(t, pos[graph.NodeRef{Kind: graph.NodeDataset, Name: in}.ID()], pos[rid])
		}
		for _, out := range r.Outputs {
			assert.Less(t, pos[rid], pos[graph.NodeRef{Kind: graph.NodeDataset, Name: out}.ID()])
		}
	}
}

func TestStatic_RoundTrip(t *testing.T) {
	flow, err := NewStatic().Assemble(endToEnd())
	require.NoError(t, err)

	back, err := schema.FlowFromMap(flow.ToMap())
	require.NoError(t, err)
	require.Len(t, back.Datasets, len(flow.Datasets))
	require.Len(t, back.Recipes, len(flow.Recipes))
	for i, r := range flow.Recipes {
		assert.Equal(t, r.Type, back.Recipes[i].Type)
		assert.Equal(t, schema.SettingsToMap(r.Settings), schema.SettingsToMap(back.Recipes[i].Settings))
	}
	for i, d := range flow.Datasets {
		assert.Equal(t, d.Role, back.Datasets[i].Role)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"sales", "sales"},
		{"sales-2024", "sales_2024"},
		{"my data.v2", "my_data_v2"},
		{"  ", "dataset"},
		{"already_ok_1", "already_ok_1"},
		{"ñandú", "_and_"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}
