package static

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rendis/pyflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, src string) ([]schema.Transformation, *Analyzer) {
	t.Helper()
	a := New()
	out, err := a.Analyze(context.Background(), src)
	require.NoError(t, err)
	return out, a
}

func kinds(ts []schema.Transformation) []schema.TransformationKind {
	out := make([]schema.TransformationKind, len(ts))
	for i, t := range ts {
		out[i] = t.Kind
	}
	return out
}

func hasNote(notes []schema.Note, code string) bool {
	for _, n := range notes {
		if n.Code == code {
			return true
		}
	}
	return false
}

func TestAnalyze_EndToEnd(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("in.csv")
df = df.dropna()
df["x"] = df["x"].str.upper()
result = df.groupby("cat").agg({"x": "count"})
result.to_csv("out.csv")
`
	out, _ := analyze(t, src)
	require.Len(t, out, 5)
	assert.Equal(t, []schema.TransformationKind{
		schema.KindReadData,
		schema.KindDropMissing,
		schema.KindStringTransform,
		schema.KindGroupAggregate,
		schema.KindWriteData,
	}, kinds(out))

	read := out[0]
	assert.Empty(t, read.SourceDataframe)
	assert.Equal(t, "df", read.TargetDataframe)
	assert.Equal(t, "in.csv", read.Parameters[schema.ParamPath])
	assert.Equal(t, "csv", read.Parameters[schema.ParamFormat])
	assert.Equal(t, 2, read.SourceLine)

	assert.Equal(t, "df", out[1].SourceDataframe)
	assert.Equal(t, "df", out[1].TargetDataframe)

	upper := out[2]
	assert.Equal(t, "df", upper.SourceDataframe)
	assert.Equal(t, "df", upper.TargetDataframe)
	assert.Equal(t, []any{"x"}, upper.Parameters[schema.ParamColumns])
	assert.Equal(t, "str", upper.Parameters[schema.ParamAccessor])
	assert.NotContains(t, upper.Parameters, schema.ParamOutputColumn)

	agg := out[3]
	assert.Equal(t, "df", agg.SourceDataframe)
	assert.Equal(t, "result", agg.TargetDataframe)
	assert.Equal(t, schema.RecipeGrouping, agg.SuggestedRecipeType)
	assert.Equal(t, []any{"cat"}, agg.Parameters[schema.ParamGroupBy])
	assert.Equal(t, []any{
		map[string]any{"column": "x", "function": "count", "output_column": "x"},
	}, agg.Parameters[schema.ParamAggregations])

	write := out[4]
	assert.Equal(t, "result", write.SourceDataframe)
	assert.Empty(t, write.TargetDataframe)
	assert.Equal(t, "out.csv", write.Parameters[schema.ParamPath])
}

func TestAnalyze_Empty(t *testing.T) {
	out, _ := analyze(t, "")
	assert.NotNil(t, out)
	assert.Empty(t, out)

	out, _ = analyze(t, "# nothing here\nx = 1\nprint(x)\n")
	assert.Empty(t, out)
}

func TestAnalyze_SyntaxError(t *testing.T) {
	_, err := New().Analyze(context.Background(), "df = broken(\n")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeSyntax))
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Analyze(ctx, "import pandas as pd\ndf = pd.read_csv('a.csv')\n")
	require.Error(t, err)
}

func TestAnalyze_ChainIntermediates(t *testing.T) {
	out, _ := analyze(t, `df.dropna().fillna(0).sort_values("x")`)
	require.Len(t, out, 3)
	assert.Equal(t, []schema.TransformationKind{schema.KindDropMissing, schema.KindFillMissing, schema.KindSort}, kinds(out))

	assert.Equal(t, "df", out[0].SourceDataframe)
	assert.Equal(t, "__chain1_1", out[0].TargetDataframe)
	assert.Equal(t, "__chain1_1", out[1].SourceDataframe)
	assert.Equal(t, "__chain1_2", out[1].TargetDataframe)
	assert.Equal(t, "__chain1_2", out[2].SourceDataframe)
	assert.Equal(t, "__chain1_3", out[2].TargetDataframe)
	for _, tr := range out {
		assert.True(t, schema.IsChainName(tr.TargetDataframe))
	}
}

func TestAnalyze_AssignedChainKeepsIntermediates(t *testing.T) {
	src := `import pandas as pd
raw = pd.read_parquet("events.parquet")
clean = raw.dropna().drop_duplicates()
`
	out, _ := analyze(t, src)
	require.Len(t, out, 3)
	assert.Equal(t, "raw", out[1].SourceDataframe)
	assert.True(t, schema.IsChainName(out[1].TargetDataframe))
	assert.Equal(t, out[1].TargetDataframe, out[2].SourceDataframe)
	assert.Equal(t, "clean", out[2].TargetDataframe)
}

func TestAnalyze_FilterAndFlag(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
df["big"] = df["amount"] > 100
high = df[df["amount"] > 100]
`
	out, _ := analyze(t, src)
	require.Len(t, out, 3)

	flag := out[1]
	assert.Equal(t, schema.KindColumnCreate, flag.Kind)
	assert.Equal(t, "df", flag.SourceDataframe)
	assert.Equal(t, "df", flag.TargetDataframe)
	assert.Equal(t, "big", flag.Parameters[schema.ParamOutputColumn])
	assert.Equal(t, "amount > 100", flag.Parameters[schema.ParamExpression])
	assert.Equal(t, schema.ProcFormula, flag.SuggestedProcessorType)

	filter := out[2]
	assert.Equal(t, schema.KindFilter, filter.Kind)
	assert.Equal(t, "df", filter.SourceDataframe)
	assert.Equal(t, "high", filter.TargetDataframe)
	assert.Equal(t, "amount > 100", filter.Parameters[schema.ParamExpression])
	assert.Equal(t, schema.ProcFilterOnValue, filter.SuggestedProcessorType)
	assert.Contains(t, filter.Parameters, schema.ParamConditions)
}

func TestAnalyze_FilterThroughMask(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
mask = (df["a"] > 1) & (df["b"] == "x")
sub = df[mask]
`
	out, _ := analyze(t, src)
	require.Len(t, out, 2)
	assert.Equal(t, schema.KindFilter, out[1].Kind)
	assert.Equal(t, "sub", out[1].TargetDataframe)
	assert.Contains(t, out[1].Parameters[schema.ParamExpression], "a > 1")
	assert.Contains(t, out[1].Parameters[schema.ParamExpression], " and ")
}

func TestAnalyze_Query(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
df = df.query("amount > 100 and region == 'EU'")
`
	out, _ := analyze(t, src)
	require.Len(t, out, 2)
	assert.Equal(t, schema.KindFilter, out[1].Kind)
	assert.Equal(t, "df", out[1].TargetDataframe)
}

func TestAnalyze_ColumnAssignments(t *testing.T) {
	src := `import pandas as pd
import numpy as np
df = pd.read_csv("a.csv")
df["total"] = df["price"] * df["qty"]
df["name_upper"] = df["name"].str.upper()
df["tier"] = np.where(df["amount"] > 100, "high", "low")
df["year"] = df["date"].dt.year
df["score"] += 1
del df["tmp"]
df.columns = ["a", "b"]
`
	out, _ := analyze(t, src)
	require.Len(t, out, 8)
	for _, tr := range out[1:] {
		assert.Equal(t, "df", tr.TargetDataframe, tr.Kind)
	}

	total := out[1]
	assert.Equal(t, schema.KindColumnCreate, total.Kind)
	assert.Equal(t, "total", total.Parameters[schema.ParamOutputColumn])
	assert.Equal(t, "price * qty", total.Parameters[schema.ParamExpression])

	upper := out[2]
	assert.Equal(t, schema.KindStringTransform, upper.Kind)
	assert.Equal(t, []any{"name"}, upper.Parameters[schema.ParamColumns])
	assert.Equal(t, "name_upper", upper.Parameters[schema.ParamOutputColumn])

	tier := out[3]
	assert.Equal(t, schema.KindColumnCreate, tier.Kind)
	assert.Equal(t, "df", tier.SourceDataframe)
	assert.Equal(t, "tier", tier.Parameters[schema.ParamOutputColumn])
	assert.Equal(t, `amount > 100 ? "high" : "low"`, tier.Parameters[schema.ParamExpression])

	year := out[4]
	assert.Equal(t, schema.KindDateExtract, year.Kind)
	assert.Equal(t, "year", year.Parameters[schema.ParamOutputColumn])
	assert.Equal(t, "dt", year.Parameters[schema.ParamAccessor])

	score := out[5]
	assert.Equal(t, schema.KindColumnCreate, score.Kind)
	assert.Equal(t, "score + 1", score.Parameters[schema.ParamExpression])

	drop := out[6]
	assert.Equal(t, schema.KindDropColumns, drop.Kind)
	assert.Equal(t, []any{"tmp"}, drop.Parameters[schema.ParamColumns])

	rename := out[7]
	assert.Equal(t, schema.KindRenameColumns, rename.Kind)
	assert.Equal(t, []any{"a", "b"}, rename.Parameters[schema.ParamValues])
}

func TestAnalyze_ConditionalLocAssignment(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
df.loc[df["age"] < 0, "age"] = 0
`
	out, _ := analyze(t, src)
	require.Len(t, out, 2)
	assert.Equal(t, schema.KindColumnCreate, out[1].Kind)
	assert.Equal(t, "age", out[1].Parameters[schema.ParamOutputColumn])
	assert.Equal(t, "(age < 0) ? 0 : age", out[1].Parameters[schema.ParamExpression])
}

func TestAnalyze_TopN(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
top = df.sort_values("amount", ascending=False).head(10)
`
	out, _ := analyze(t, src)
	require.Len(t, out, 2)
	topN := out[1]
	assert.Equal(t, schema.KindTopN, topN.Kind)
	assert.Equal(t, "top", topN.TargetDataframe)
	assert.Equal(t, 10, topN.Parameters[schema.ParamN])
	assert.Equal(t, []any{map[string]any{"column": "amount", "ascending": false}},
		topN.Parameters[schema.ParamSortColumns])
}

func TestAnalyze_Inspection(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
df.head()
df.info()
print(df.shape)
n = len(df)
`
	out, _ := analyze(t, src)
	assert.Equal(t, []schema.TransformationKind{schema.KindReadData}, kinds(out))
}

func TestAnalyze_JoinAndUnion(t *testing.T) {
	src := `import pandas as pd
orders = pd.read_csv("orders.csv")
customers = pd.read_csv("customers.csv")
merged = orders.merge(customers, on="customer_id", how="left")
both = pd.concat([orders, customers])
`
	out, _ := analyze(t, src)
	require.Len(t, out, 4)

	join := out[2]
	assert.Equal(t, schema.KindJoin, join.Kind)
	assert.Equal(t, "orders", join.SourceDataframe)
	assert.Equal(t, []string{"customers"}, join.AdditionalSources)
	assert.Equal(t, "merged", join.TargetDataframe)
	assert.Equal(t, schema.RecipeJoin, join.SuggestedRecipeType)

	union := out[3]
	assert.Equal(t, schema.KindUnion, union.Kind)
	assert.Equal(t, "orders", union.SourceDataframe)
	assert.Equal(t, []string{"customers"}, union.AdditionalSources)
	assert.Equal(t, "both", union.TargetDataframe)
}

func TestAnalyze_Sklearn(t *testing.T) {
	src := `import pandas as pd
from sklearn.preprocessing import StandardScaler
from sklearn.model_selection import train_test_split
from sklearn.ensemble import RandomForestClassifier
df = pd.read_csv("a.csv")
scaler = StandardScaler()
df[["a", "b"]] = scaler.fit_transform(df[["a", "b"]])
train, test = train_test_split(df, test_size=0.2)
model = RandomForestClassifier(n_estimators=10)
model.fit(X_train, y_train)
preds = model.predict(X_test)
`
	out, _ := analyze(t, src)
	require.Len(t, out, 5)

	scale := out[1]
	assert.Equal(t, schema.KindNormalize, scale.Kind)
	assert.Equal(t, "df", scale.SourceDataframe)
	assert.Equal(t, "df", scale.TargetDataframe)
	assert.Equal(t, "standard", scale.Parameters[schema.ParamMethod])
	assert.Equal(t, []any{"a", "b"}, scale.Parameters[schema.ParamColumns])

	split := out[2]
	assert.Equal(t, schema.KindSplit, split.Kind)
	assert.Equal(t, "df", split.SourceDataframe)
	assert.Equal(t, "train", split.TargetDataframe)
	assert.Equal(t, []string{"test"}, split.AdditionalTargets)
	assert.Equal(t, 0.2, split.Parameters[schema.ParamTestSize])

	fit := out[3]
	assert.Equal(t, schema.KindOpaque, fit.Kind)
	assert.Equal(t, "X_train", fit.SourceDataframe)
	assert.Equal(t, []string{"y_train"}, fit.AdditionalSources)
	assert.Equal(t, "model", fit.TargetDataframe)

	predict := out[4]
	assert.Equal(t, "X_test", predict.SourceDataframe)
	assert.Equal(t, []string{"model"}, predict.AdditionalSources)
	assert.Equal(t, "preds", predict.TargetDataframe)
}

func TestAnalyze_Inplace(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
df.dropna(inplace=True)
`
	out, _ := analyze(t, src)
	require.Len(t, out, 2)
	assert.Equal(t, schema.KindDropMissing, out[1].Kind)
	assert.Equal(t, "df", out[1].SourceDataframe)
	assert.Equal(t, "df", out[1].TargetDataframe)
}

func TestAnalyze_ControlFlow(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
for c in ["a", "b"]:
    df[c] = df[c].fillna(0)
`
	out, a := analyze(t, src)
	require.Len(t, out, 2)
	assert.Equal(t, schema.KindFillMissing, out[1].Kind)
	assert.Equal(t, "df", out[1].TargetDataframe)
	assert.Equal(t, []any{"c"}, out[1].Parameters[schema.ParamColumns])
	assert.True(t, hasNote(a.Notes(), schema.NoteControlFlow))
}

func TestAnalyze_DiscardedCallIsNoted(t *testing.T) {
	src := `import pandas as pd
import matplotlib.pyplot as plt
df = pd.read_csv("a.csv")
plt.plot(df["a"])
`
	out, a := analyze(t, src)
	assert.Len(t, out, 1)
	assert.True(t, hasNote(a.Notes(), schema.NoteIgnoredStatement))
}

func TestAnalyze_Opaque(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
df = df.apply(lambda r: r * 2, axis=1)
df = clean(df)
`
	out, _ := analyze(t, src)
	require.Len(t, out, 3)

	apply := out[1]
	assert.Equal(t, schema.KindOpaque, apply.Kind)
	assert.Equal(t, schema.RecipePython, apply.SuggestedRecipeType)
	assert.Equal(t, "df.apply(lambda r: r * 2, axis=1)", apply.Parameters[schema.ParamRawSnippet])
	assert.Equal(t, "apply", apply.Parameters[schema.ParamUnknownOp])
	assert.Equal(t, "df", apply.TargetDataframe)

	custom := out[2]
	assert.Equal(t, schema.KindOpaque, custom.Kind)
	assert.Equal(t, "df", custom.SourceDataframe)
	assert.Equal(t, "clean", custom.Parameters[schema.ParamUnknownOp])
}

func TestAnalyze_Deterministic(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
df = df[df["x"] > 0].fillna(0)
g = df.groupby(["a", "b"])["x"].sum().reset_index()
g.to_parquet("g.parquet")
`
	a := New()
	first, err := a.Analyze(context.Background(), src)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestAnalyze_SourceOrder(t *testing.T) {
	src := `import pandas as pd
a = pd.read_csv("a.csv")
b = a.dropna()
c = b.fillna(0)
`
	out, _ := analyze(t, src)
	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		assert.Less(t, out[i-1].SourceLine, out[i].SourceLine)
	}
}

func TestAnalyze_AliasSnapshotsFrame(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
df = df.fillna(0)
snap = df
df = df.dropna()
x = snap.merge(df, on="k")
`
	out, _ := analyze(t, src)
	require.Equal(t, []schema.TransformationKind{
		schema.KindReadData,
		schema.KindFillMissing,
		schema.KindAlias,
		schema.KindDropMissing,
		schema.KindJoin,
	}, kinds(out))

	alias := out[2]
	assert.Equal(t, "df", alias.SourceDataframe)
	assert.Equal(t, "snap", alias.TargetDataframe)
	assert.Equal(t, 4, alias.SourceLine)

	join := out[4]
	assert.Equal(t, "snap", join.SourceDataframe)
	assert.Equal(t, []string{"df"}, join.AdditionalSources)
}

func TestAnalyze_SelfAssignmentIsNotAnAlias(t *testing.T) {
	out, _ := analyze(t, "import pandas as pd\ndf = pd.read_csv(\"a.csv\")\ndf = df\n")
	assert.Equal(t, []schema.TransformationKind{schema.KindReadData}, kinds(out))
}

func TestAnalyze_ConditionalExpression(t *testing.T) {
	src := `import pandas as pd
import numpy as np
df = pd.read_csv("a.csv")
df["band"] = np.where(df["amount"] > 10, df["amount"], 0)
`
	out, _ := analyze(t, src)
	require.Len(t, out, 2)
	assert.Equal(t, schema.KindColumnCreate, out[1].Kind)
	assert.Equal(t, "df", out[1].SourceDataframe)
	assert.Equal(t, "amount > 10 ? amount : 0", out[1].Parameters[schema.ParamExpression])
}

// rejectingEngine fails every formula that mentions a column named bad.
type rejectingEngine struct{ checked []string }

func (e *rejectingEngine) Name() string { return "stub" }

func (e *rejectingEngine) Check(formula string) error {
	e.checked = append(e.checked, formula)
	if strings.Contains(formula, "bad") {
		return errors.New("rejected")
	}
	return nil
}

func (e *rejectingEngine) Evaluate(context.Context, string, map[string]any) (any, error) {
	return nil, nil
}

func TestAnalyze_FormulasAreChecked(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
df = df[df["bad"] > 1]
df["total"] = df["price"] * df["qty"]
`
	engine := &rejectingEngine{}
	a := New(WithFormulaEngine(engine))
	out, err := a.Analyze(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, []string{"bad > 1", "price * qty"}, engine.checked)

	filter := out[1]
	assert.Equal(t, schema.ProcFilterOnFormula, filter.SuggestedProcessorType)
	assert.Equal(t, "bad > 1", filter.Parameters[schema.ParamExpression])
	assert.NotContains(t, filter.Parameters, schema.ParamConditions)
	assert.Equal(t, schema.ProcFormula, out[2].SuggestedProcessorType)

	var invalid []schema.Note
	for _, n := range a.Notes() {
		if n.Code == schema.NoteInvalidFormula {
			invalid = append(invalid, n)
		}
	}
	require.Len(t, invalid, 1)
	assert.Equal(t, "line 3", invalid[0].Ref)
	assert.Equal(t, schema.SeverityWarning, invalid[0].Severity)
}

func TestAnalyze_BrokenQueryIsFlagged(t *testing.T) {
	src := `import pandas as pd
df = pd.read_csv("a.csv")
df = df.query("amount >")
`
	out, a := analyze(t, src)
	require.Len(t, out, 2)
	assert.Equal(t, schema.KindFilter, out[1].Kind)
	assert.Equal(t, schema.ProcFilterOnFormula, out[1].SuggestedProcessorType)
	assert.True(t, hasNote(a.Notes(), schema.NoteInvalidFormula))

	_, a = analyze(t, "import pandas as pd\ndf = pd.read_csv(\"a.csv\")\ndf = df.query(\"amount > 1\")\n")
	assert.False(t, hasNote(a.Notes(), schema.NoteInvalidFormula))
}
