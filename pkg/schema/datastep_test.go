package schema

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperation(t *testing.T) {
	tests := []struct {
		raw  string
		want OperationType
		kind TransformationKind
	}{
		{"filter", OpFilter, KindFilter},
		{"  Group_Aggregate ", OpGroupAggregate, KindGroupAggregate},
		{"merge", OpJoin, KindJoin},
		{"drop-duplicates", OpDistinct, KindDistinct},
		{"custom_code", OpCustomCode, KindOpaque},
		{"fillna", OpFillMissing, KindFillMissing},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			op := ParseOperation(tt.raw)
			assert.Equal(t, tt.want, op.Type)
			assert.True(t, op.Known())
			assert.Equal(t, tt.kind, op.Kind())
		})
	}
}

func TestParseOperation_UnknownKeepsRaw(t *testing.T) {
	op := ParseOperation("explode_nested_json")
	assert.Equal(t, OpUnknown, op.Type)
	assert.Equal(t, "explode_nested_json", op.Raw)
	assert.False(t, op.Known())
	assert.Equal(t, KindOpaque, op.Kind())
	assert.Equal(t, "explode_nested_json", op.String())
}

func TestDataStep_UnmarshalUnknownOperation(t *testing.T) {
	payload := `[
		{"step_number": 1, "operation": "read_data", "output_dataset": "df"},
		{"step_number": 2, "operation": "teleport_rows", "input_datasets": ["df"], "output_dataset": "df"}
	]`
	var steps []DataStep
	require.NoError(t, json.Unmarshal([]byte(payload), &steps))
	require.Len(t, steps, 2)
	assert.Equal(t, OpReadData, steps[0].Operation.Type)
	assert.Equal(t, OpUnknown, steps[1].Operation.Type)
	assert.Equal(t, "teleport_rows", steps[1].Operation.Raw)

	out, err := json.Marshal(steps[1].Operation)
	require.NoError(t, err)
	assert.Equal(t, `"teleport_rows"`, string(out))
}

func TestAnalysisResult_Empty(t *testing.T) {
	var nilResult *AnalysisResult
	assert.True(t, nilResult.Empty())
	assert.True(t, (&AnalysisResult{}).Empty())
	assert.False(t, (&AnalysisResult{Steps: []DataStep{{StepNumber: 1}}}).Empty())
}

func TestTransformationKind_Classification(t *testing.T) {
	assert.True(t, KindFillMissing.IsPrepare())
	assert.True(t, KindFilter.IsPrepare())
	assert.False(t, KindSort.IsPrepare())
	assert.Equal(t, RecipePrepare, KindStringTransform.DefaultRecipe())
	assert.Equal(t, RecipeGrouping, KindGroupAggregate.DefaultRecipe())
	assert.Equal(t, RecipePython, KindOpaque.DefaultRecipe())
	assert.Equal(t, RecipeType(""), KindReadData.DefaultRecipe())
	assert.True(t, KindWriteData.Known())
	assert.False(t, TransformationKind("bogus").Known())
	assert.Equal(t, ProcFillEmpty, KindFillMissing.DefaultProcessor())
}

func TestTransformation_Lines(t *testing.T) {
	assert.Nil(t, Transformation{}.Lines())
	assert.Equal(t, []int{4}, Transformation{SourceLine: 4}.Lines())
	assert.Equal(t, []int{4, 5, 6}, Transformation{SourceLine: 4, EndLine: 6}.Lines())
	assert.True(t, IsChainName("__chain1_2"))
	assert.False(t, IsChainName("df"))
}

func TestOperations_Sorted(t *testing.T) {
	ops := Operations()
	assert.Len(t, ops, len(operationKinds))
	assert.NotContains(t, ops, OpUnknown)
	assert.True(t, slices.IsSorted(ops))
}
