package validation

import (
	"testing"

	"github.com/rendis/pyflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemantic_ValidFlow(t *testing.T) {
	result := validateSemantic(sample())
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestSemantic_DuplicateNames(t *testing.T) {
	f := sample()
	f.Datasets = append(f.Datasets, &schema.Dataset{Name: "clean", Role: schema.RoleIntermediate})
	f.Recipes = append(f.Recipes, &schema.Recipe{
		Name: "prepare_1", Type: schema.RecipeSync, Inputs: []string{"in"}, Outputs: []string{"totals"},
		Settings: &schema.SyncSettings{},
	})

	result := validateSemantic(f)
	require.False(t, result.Valid())
	var msgs []string
	for _, e := range result.Errors {
		msgs = append(msgs, e.Message)
	}
	assert.Contains(t, msgs, `duplicate dataset name "clean"`)
	assert.Contains(t, msgs, `duplicate recipe name "prepare_1"`)
	assert.Contains(t, msgs, `dataset "totals" is produced by both grouping_2 and prepare_1`)
}

func TestSemantic_DanglingReference(t *testing.T) {
	f := sample()
	f.Recipes[1].Inputs = []string{"cleaned"}

	result := validateSemantic(f)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeDanglingReference, result.Errors[0].Code)
	assert.Equal(t, "recipes[grouping_2].inputs[0]", result.Errors[0].Path)
}

func TestSemantic_SettingsMismatch(t *testing.T) {
	f := sample()
	f.Recipes[1].Settings = &schema.SortSettings{Columns: []schema.SortColumn{{Column: "region"}}}

	result := validateSemantic(f)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "sort settings on a grouping recipe", result.Errors[0].Message)
}

func TestSemantic_MissingInputsAndOutputs(t *testing.T) {
	f := sample()
	f.Recipes[0].Inputs = nil
	f.Recipes[1].Outputs = nil

	result := validateSemantic(f)
	assert.ElementsMatch(t, []string{"recipe has no inputs", "recipe has no outputs"},
		[]string{result.Errors[0].Message, result.Errors[1].Message})
}

func TestSemantic_RoleMismatchWarns(t *testing.T) {
	f := sample()
	f.Datasets[2].Role = schema.RoleIntermediate

	result := validateSemantic(f)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "datasets[2].role", result.Warnings[0].Path)
}

func TestSemantic_NameCharacters(t *testing.T) {
	f := sample()
	f.Datasets[0].Name = "in-file"
	f.Recipes[0].Inputs = []string{"in-file"}

	result := validateSemantic(f)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "in-file")
}

func TestSemantic_Scenario(t *testing.T) {
	f := sample()
	f.Scenario = &schema.Scenario{Cron: "0 3 * * *"}
	assert.True(t, validateSemantic(f).Valid())

	f.Scenario.Cron = "every night"
	result := validateSemantic(f)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "scenario.cron", result.Errors[0].Path)
}

func TestSemantic_PrepareStepWithoutType(t *testing.T) {
	f := sample()
	ps := f.Recipes[0].Settings.(*schema.PrepareSettings)
	ps.Steps = append(ps.Steps, schema.ProcessorStep{})

	result := validateSemantic(f)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "recipes[prepare_1].settings.steps[1]", result.Errors[0].Path)
}

func TestSemantic_NilSettingsWarns(t *testing.T) {
	f := sample()
	f.Recipes[1].Settings = nil

	result := validateSemantic(f)
	assert.True(t, result.Valid())
	assert.Equal(t, []string{schema.NoteEmptySettings}, issueCodes(result.Warnings))
}
