package assembler

import (
	"fmt"
	"strings"

	"github.com/rendis/pyflow/pkg/schema"
)

// settingsFor builds the settings variant of rt from the step parameters.
// The parameter map is first rearranged into the export layout so that
// decoding goes through schema.SettingsFromMap.
func settingsFor(rt schema.RecipeType, op operation) schema.RecipeSettings {
	p := op.params
	var m map[string]any
	switch rt {
	case schema.RecipePrepare:
		proc := op.processor
		if proc == "" {
			proc = op.kind.DefaultProcessor()
		}
		return &schema.PrepareSettings{Steps: []schema.ProcessorStep{
			{Type: proc, Params: schema.PlainParams(p), SourceLine: op.line()},
		}}
	case schema.RecipeGrouping:
		m = map[string]any{"keys": p[schema.ParamGroupBy], "aggregations": p[schema.ParamAggregations]}
	case schema.RecipeJoin:
		m = map[string]any{
			"join_type":  orDefault(p[schema.ParamJoinType], "inner"),
			"conditions": p[schema.ParamJoinOn],
		}
	case schema.RecipeStack:
		m = map[string]any{"mode": "union", "ignore_index": p[schema.ParamIgnoreIndex]}
	case schema.RecipeSplit:
		mode := "random"
		if _, ok := p[schema.ParamExpression]; ok {
			mode = "filter"
		}
		m = map[string]any{
			"mode":      mode,
			"ratio":     p[schema.ParamTestSize],
			"condition": p[schema.ParamExpression],
			"seed":      p[schema.ParamSeed],
		}
	case schema.RecipeSort:
		m = map[string]any{"columns": p[schema.ParamSortColumns]}
	case schema.RecipeDistinct:
		cols := p[schema.ParamColumns]
		if cols == nil {
			cols = p[schema.ParamSubset]
		}
		m = map[string]any{"columns": cols, "keep": p[schema.ParamKeep]}
	case schema.RecipeTopN:
		m = map[string]any{"n": p[schema.ParamN], "order_by": p[schema.ParamSortColumns]}
	case schema.RecipeSample:
		m = map[string]any{
			"method":   orDefault(p[schema.ParamMethod], "random"),
			"n":        p[schema.ParamN],
			"fraction": p[schema.ParamFraction],
			"seed":     p[schema.ParamSeed],
		}
	case schema.RecipePivot:
		m = map[string]any{
			"index":   p[schema.ParamIndex],
			"columns": p[schema.ParamColumns],
			"values":  p[schema.ParamValues],
			"aggfunc": p[schema.ParamAggFunc],
		}
	case schema.RecipeWindow:
		m = map[string]any{
			"partition_by": p[schema.ParamGroupBy],
			"order_by":     p[schema.ParamSortColumns],
			"aggregations": p[schema.ParamAggregations],
		}
		if w, ok := p[schema.ParamWindow].(int); ok {
			m["frame"] = w
		}
	case schema.RecipePython:
		m = map[string]any{"language": "python", "code": codeOf(op)}
	default:
		m = map[string]any{}
	}
	s, err := schema.SettingsFromMap(rt, m)
	if err != nil {
		return schema.DefaultSettings(rt)
	}
	return s
}

// codeOf returns the source a code recipe keeps.
func codeOf(op operation) string {
	if code, _ := op.params[schema.ParamRawSnippet].(string); code != "" {
		return code
	}
	if desc, _ := op.params[schema.ParamDescription].(string); desc != "" {
		return "# " + desc
	}
	if op.unknown != "" {
		return fmt.Sprintf("# %s", op.unknown)
	}
	return ""
}

func orDefault(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// stringList reads a parameter holding one name or a list of names.
func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, x := range val {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// columnType maps a pandas or numpy dtype onto a storage type name.
func columnType(dtype string) string {
	d := strings.ToLower(strings.TrimSpace(dtype))
	switch {
	case d == "":
		return ""
	case strings.HasPrefix(d, "int"), strings.HasPrefix(d, "uint"):
		return "bigint"
	case strings.HasPrefix(d, "float"), d == "double", d == "decimal":
		return "double"
	case strings.HasPrefix(d, "bool"):
		return "boolean"
	case strings.HasPrefix(d, "datetime"), d == "date", d == "timestamp":
		return "date"
	case d == "str", d == "string", d == "object", d == "category":
		return "string"
	}
	return d
}

func aggregationType(fn string) string {
	switch fn {
	case "count", "size", "nunique":
		return "bigint"
	case "mean", "std", "var", "median":
		return "double"
	}
	return ""
}
