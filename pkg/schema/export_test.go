package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleFlow() *Flow {
	seed := 42
	return &Flow{
		ID:   "0b5c7d1e-8f3a-4c2b-9d6e-1a2b3c4d5e6f",
		Name: "sales",
		Datasets: []*Dataset{
			{Name: "in", Role: RoleInput, Path: "in.csv", Format: "csv", Declared: true,
				Schema: []Column{{Name: "x", Type: "string", Nullable: true}, {Name: "cat", Nullable: false}}},
			{Name: "right", Role: RoleInput, Placeholder: true},
			{Name: "df", Role: RoleIntermediate},
			{Name: "result", Role: RoleOutput, Path: "out.csv", Format: "csv", Declared: true},
		},
		Recipes: []*Recipe{
			{Name: "prepare_1", Type: RecipePrepare, Inputs: []string{"in"}, Outputs: []string{"df"},
				SourceLines: []int{2, 3},
				Settings: &PrepareSettings{Steps: []ProcessorStep{
					{Type: ProcRemoveRowsOnEmpty, SourceLine: 2},
					{Type: ProcStringTransformer, SourceLine: 3, Params: PlainParams(map[string]any{
						ParamColumns:    []string{"x"},
						ParamOperation:  "upper",
						ParamConditions: []FilterCondition{{Column: "x", Operator: ">", Value: 1}},
					})},
				}}},
			{Name: "grouping_2", Type: RecipeGrouping, Inputs: []string{"df"}, Outputs: []string{"g"},
				Settings: &GroupingSettings{Keys: []string{"cat"}, Aggregations: []Aggregation{{Column: "x", Function: "count", OutputColumn: "x_count"}}}},
			{Name: "join_3", Type: RecipeJoin, Inputs: []string{"g", "right"}, Outputs: []string{"j"},
				Settings: &JoinSettings{JoinType: "left", Conditions: []JoinCondition{{LeftColumn: "cat", RightColumn: "category"}}}},
			{Name: "vstack_4", Type: RecipeStack, Inputs: []string{"j", "right"}, Outputs: []string{"s"},
				Settings: &StackSettings{Mode: "union", IgnoreIndex: true}},
			{Name: "split_5", Type: RecipeSplit, Inputs: []string{"s"}, Outputs: []string{"train", "test"},
				Settings: &SplitSettings{Mode: "random", Ratio: 0.8, Seed: &seed}},
			{Name: "sort_6", Type: RecipeSort, Inputs: []string{"train"}, Outputs: []string{"sorted"},
				Settings: &SortSettings{Columns: []SortColumn{{Column: "x", Ascending: false}}}},
			{Name: "distinct_7", Type: RecipeDistinct, Inputs: []string{"sorted"}, Outputs: []string{"d"},
				Settings: &DistinctSettings{Columns: []string{"x"}, Keep: "first"}},
			{Name: "topn_8", Type: RecipeTopN, Inputs: []string{"d"}, Outputs: []string{"t"},
				Settings: &TopNSettings{N: 10, OrderBy: []SortColumn{{Column: "x", Ascending: true}}}},
			{Name: "sampling_9", Type: RecipeSample, Inputs: []string{"t"}, Outputs: []string{"smp"},
				Settings: &SampleSettings{Method: "random", Fraction: 0.1, Seed: &seed}},
			{Name: "pivot_10", Type: RecipePivot, Inputs: []string{"smp"}, Outputs: []string{"p"},
				Settings: &PivotSettings{Index: []string{"a"}, Columns: []string{"b"}, Values: []string{"c"}, AggFunc: "sum"}},
			{Name: "window_11", Type: RecipeWindow, Inputs: []string{"p"}, Outputs: []string{"w"},
				Settings: &WindowSettings{PartitionBy: []string{"a"}, Frame: 3, Aggregations: []Aggregation{{Column: "c", Function: "mean"}}}},
			{Name: "sync_12", Type: RecipeSync, Inputs: []string{"w"}, Outputs: []string{"result"},
				Settings: &SyncSettings{}},
			{Name: "python_13", Type: RecipePython, Inputs: []string{"test"}, Outputs: []string{"model_out"},
				Settings: &CodeSettings{Language: "python", Code: "model.fit(X, y)"}},
		},
		Notes:    []Note{Warning(NoteDanglingReference, "right", "placeholder input synthesized")},
		Scenario: &Scenario{Name: "nightly", Cron: "0 2 * * *"},
	}
}

func TestFlowMapRoundTrip(t *testing.T) {
	orig := sampleFlow()

	rebuilt, err := FlowFromMap(orig.ToMap())
	require.NoError(t, err)

	assert.Equal(t, orig.ID, rebuilt.ID)
	assert.Equal(t, orig.Name, rebuilt.Name)
	require.Len(t, rebuilt.Datasets, len(orig.Datasets))
	require.Len(t, rebuilt.Recipes, len(orig.Recipes))
	for i, d := range orig.Datasets {
		assert.Equal(t, d, rebuilt.Datasets[i], "dataset %s", d.Name)
	}
	for i, r := range orig.Recipes {
		got := rebuilt.Recipes[i]
		assert.Equal(t, r.Name, got.Name)
		assert.Equal(t, r.Type, got.Type)
		assert.Equal(t, r.Inputs, got.Inputs)
		assert.Equal(t, r.Outputs, got.Outputs)
		assert.Equal(t, r.SourceLines, got.SourceLines)
		assert.Equal(t, r.Settings, got.Settings, "settings of %s", r.Name)
	}
	assert.Equal(t, orig.Notes, rebuilt.Notes)
	assert.Equal(t, orig.Scenario, rebuilt.Scenario)
}

func TestFlowToMap_OmitsAbsentOptionals(t *testing.T) {
	f := &Flow{
		Datasets: []*Dataset{{Name: "df", Role: RoleIntermediate}},
		Recipes: []*Recipe{{Name: "sort_1", Type: RecipeSort, Inputs: []string{"a"}, Outputs: []string{"df"},
			Settings: &SortSettings{}}},
	}
	m := f.ToMap()
	for _, key := range []string{"id", "name", "notes", "scenario"} {
		_, ok := m[key]
		assert.False(t, ok, "key %s should be absent", key)
	}
	ds := m["datasets"].([]any)[0].(map[string]any)
	for _, key := range []string{"schema", "path", "format", "declared", "placeholder"} {
		_, ok := ds[key]
		assert.False(t, ok, "dataset key %s should be absent", key)
	}
	rm := m["recipes"].([]any)[0].(map[string]any)
	_, ok := rm["source_lines"]
	assert.False(t, ok)
	assert.Equal(t, "sort", rm["type"])
}

func TestFlowJSONRoundTrip(t *testing.T) {
	orig := sampleFlow()
	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Flow
	require.NoError(t, json.Unmarshal(data, &decoded))

	again, err := json.Marshal(&decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
	assert.Equal(t, RoleOutput, decoded.Dataset("result").Role)
	assert.Equal(t, &TopNSettings{N: 10, OrderBy: []SortColumn{{Column: "x", Ascending: true}}},
		decoded.Recipe("topn_8").Settings)
}

func TestFlowYAMLRoundTrip(t *testing.T) {
	orig := sampleFlow()
	data, err := yaml.Marshal(orig)
	require.NoError(t, err)
	assert.Contains(t, string(data), "recipes:")

	var decoded Flow
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Len(t, decoded.Recipes, len(orig.Recipes))
	assert.Equal(t, orig.Recipe("grouping_2").Settings, decoded.Recipe("grouping_2").Settings)
	assert.Equal(t, orig.Recipe("split_5").Settings, decoded.Recipe("split_5").Settings)
}

func TestSettingsFromMap_UnknownType(t *testing.T) {
	_, err := SettingsFromMap("teleport", map[string]any{})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeValidation))
}

func TestFlowClone_IsDeep(t *testing.T) {
	orig := sampleFlow()
	cp := orig.Clone()
	cp.Recipes[0].Settings.(*PrepareSettings).Steps[0].Type = ProcFillEmpty
	cp.Datasets[0].Schema[0].Name = "changed"
	cp.Recipes[1].Inputs[0] = "other"

	assert.Equal(t, ProcRemoveRowsOnEmpty, orig.Recipes[0].Settings.(*PrepareSettings).Steps[0].Type)
	assert.Equal(t, "x", orig.Datasets[0].Schema[0].Name)
	assert.Equal(t, "df", orig.Recipes[1].Inputs[0])
}

func TestFlowLookups(t *testing.T) {
	f := sampleFlow()
	assert.Equal(t, "prepare_1", f.Producer("df").Name)
	assert.Nil(t, f.Producer("in"))
	consumers := f.Consumers("right")
	require.Len(t, consumers, 2)
	assert.Equal(t, "join_3", consumers[0].Name)
	assert.Equal(t, []string{"in", "right"}, f.DatasetsWithRole(RoleInput))
	assert.Len(t, f.RecipesOfType(RecipeSync), 1)

	f.RemoveRecipe("sync_12")
	f.RemoveDataset("right")
	assert.Nil(t, f.Recipe("sync_12"))
	assert.Nil(t, f.Dataset("right"))
}

func TestPlainValue(t *testing.T) {
	assert.Equal(t, []any{"a", "b"}, PlainValue([]string{"a", "b"}))
	assert.Equal(t, map[string]any{"a": "b"}, PlainValue(map[string]string{"a": "b"}))
	assert.Equal(t, 3, PlainValue(int64(3)))
	assert.Equal(t, []any{map[string]any{"column": "x", "operator": "==", "value": "y"}},
		PlainValue([]FilterCondition{{Column: "x", Operator: "==", Value: "y"}}))
	assert.Equal(t, []any{map[string]any{"column": "x", "ascending": true}},
		PlainValue([]SortColumn{{Column: "x", Ascending: true}}))
	assert.Nil(t, PlainParams(nil))
}
