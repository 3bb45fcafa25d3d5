package diagram

import (
	"testing"

	"github.com/rendis/pyflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test flow builders ---

// raw -> prepare_1 -> clean -> grouping_2 -> summary
func linearFlow() *schema.Flow {
	f := schema.NewFlow("sales")
	f.Datasets = []*schema.Dataset{
		{Name: "raw", Role: schema.RoleInput, Path: "data/sales.csv", Format: "csv", Declared: true},
		{Name: "clean", Role: schema.RoleIntermediate},
		{Name: "summary", Role: schema.RoleOutput, Declared: true},
	}
	f.Recipes = []*schema.Recipe{
		{
			Name: "prepare_1", Type: schema.RecipePrepare,
			Inputs: []string{"raw"}, Outputs: []string{"clean"},
			Settings: &schema.PrepareSettings{Steps: []schema.ProcessorStep{
				{Type: schema.ProcRemoveRowsOnEmpty, Params: map[string]any{}},
				{Type: schema.ProcColumnRenamer, Params: map[string]any{}},
			}},
		},
		{
			Name: "grouping_2", Type: schema.RecipeGrouping,
			Inputs: []string{"clean"}, Outputs: []string{"summary"},
			Settings: &schema.GroupingSettings{Keys: []string{"region"}},
		},
	}
	return f
}

// orders + users -> join_1 -> joined -> python_2 -> scored, with users a placeholder.
func joinFlow() *schema.Flow {
	f := schema.NewFlow("")
	f.Datasets = []*schema.Dataset{
		{Name: "orders", Role: schema.RoleInput, Declared: true},
		{Name: "users", Role: schema.RoleInput, Placeholder: true},
		{Name: "joined", Role: schema.RoleIntermediate},
		{Name: "scored", Role: schema.RoleOutput},
	}
	f.Recipes = []*schema.Recipe{
		{
			Name: "join_1", Type: schema.RecipeJoin,
			Inputs: []string{"orders", "users"}, Outputs: []string{"joined"},
			Settings: &schema.JoinSettings{JoinType: "left",
				Conditions: []schema.JoinCondition{{LeftColumn: "uid", RightColumn: "id"}}},
		},
		{
			Name: "python_2", Type: schema.RecipePython,
			Inputs: []string{"joined"}, Outputs: []string{"scored"},
			Settings: &schema.CodeSettings{Language: "python", Code: "df['score'] = model.predict(df)"},
		},
	}
	f.AddNote(schema.Warning(schema.NoteDanglingReference, "users", "users was never loaded"))
	f.AddNote(schema.Info(schema.NoteOpaqueRecipe, "python_2", "kept as code"))
	return f
}

func TestBuild_Linear(t *testing.T) {
	model, err := Build(linearFlow())
	require.NoError(t, err)

	assert.Equal(t, "sales", model.Title)
	require.Len(t, model.Nodes, 5)

	ids := make([]string, 0, len(model.Nodes))
	for _, n := range model.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{
		"dataset:raw", "recipe:prepare_1", "dataset:clean", "recipe:grouping_2", "dataset:summary",
	}, ids)

	raw := model.Node("dataset:raw")
	require.NotNil(t, raw)
	assert.Equal(t, NodeKindInput, raw.Kind)
	assert.Equal(t, "data/sales.csv", raw.Detail)

	assert.Equal(t, NodeKindIntermediate, model.Node("dataset:clean").Kind)
	assert.Equal(t, NodeKindOutput, model.Node("dataset:summary").Kind)

	grouping := model.Node("recipe:grouping_2")
	assert.Equal(t, NodeKindRecipe, grouping.Kind)
	assert.Equal(t, "grouping", grouping.Detail)
	assert.Empty(t, grouping.Children)

	assert.Len(t, model.Edges, 4)
	assert.Equal(t, Edge{From: "dataset:raw", To: "recipe:prepare_1"}, model.Edges[0])
	assert.Equal(t, Edge{From: "recipe:grouping_2", To: "dataset:summary"}, model.Edges[3])

	require.Len(t, model.Levels, 5)
	assert.Equal(t, []string{"dataset:raw"}, model.Levels[0])
}

func TestBuild_PrepareSteps(t *testing.T) {
	model, err := Build(linearFlow())
	require.NoError(t, err)

	prep := model.Node("recipe:prepare_1")
	require.Len(t, prep.Children, 1)
	sg := prep.Children[0]
	assert.Equal(t, "steps", sg.Label)
	require.Len(t, sg.Nodes, 2)
	assert.Equal(t, "recipe:prepare_1.steps.1", sg.Nodes[0].ID)
	assert.Equal(t, "1. RemoveRowsOnEmpty", sg.Nodes[0].Label)
	assert.Equal(t, "2. ColumnRenamer", sg.Nodes[1].Label)
	assert.Equal(t, []Edge{{From: "recipe:prepare_1.steps.1", To: "recipe:prepare_1.steps.2"}}, sg.Edges)
}

func TestBuild_KindsAndWarnings(t *testing.T) {
	model, err := Build(joinFlow())
	require.NoError(t, err)

	assert.Equal(t, "Flow", model.Title)

	users := model.Node("dataset:users")
	assert.Equal(t, NodeKindPlaceholder, users.Kind)
	assert.Equal(t, "placeholder", users.Detail)
	assert.Equal(t, []string{"users was never loaded"}, users.Warnings)

	code := model.Node("recipe:python_2")
	assert.Equal(t, NodeKindCode, code.Kind)
	assert.False(t, code.Kind.IsDataset())
	assert.Empty(t, code.Warnings, "info notes are not warnings")

	assert.Len(t, model.Levels[0], 2)
}

func TestBuild_CycleFails(t *testing.T) {
	f := schema.NewFlow("loop")
	f.Datasets = []*schema.Dataset{
		{Name: "a", Role: schema.RoleIntermediate},
		{Name: "b", Role: schema.RoleIntermediate},
	}
	f.Recipes = []*schema.Recipe{
		{Name: "sort_1", Type: schema.RecipeSort, Inputs: []string{"a"}, Outputs: []string{"b"}, Settings: &schema.SortSettings{}},
		{Name: "sort_2", Type: schema.RecipeSort, Inputs: []string{"b"}, Outputs: []string{"a"}, Settings: &schema.SortSettings{}},
	}

	_, err := Build(f)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeCycleDetected))
}

func TestModelNodeMissing(t *testing.T) {
	model := &DiagramModel{}
	assert.Nil(t, model.Node("dataset:nope"))
}
