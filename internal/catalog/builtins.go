package catalog

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rendis/pyflow/internal/expressions"
	"github.com/rendis/pyflow/pkg/schema"
)

func method(on Receiver, name string, kind schema.TransformationKind, extract ExtractFunc) *Pattern {
	return &Pattern{Name: string(on) + "." + name, On: on, Method: name, Kind: kind, Extract: extract}
}

func function(module, name string, kind schema.TransformationKind, extract ExtractFunc) *Pattern {
	return &Pattern{Name: module + "." + name, On: ReceiverModule, Module: module, Method: name, Kind: kind, Extract: extract}
}

func inspect(on Receiver, module string, names ...string) []*Pattern {
	out := make([]*Pattern, 0, len(names))
	for _, n := range names {
		p := &Pattern{On: on, Module: module, Method: n, Inspect: true}
		p.Name = p.Key()
		out = append(out, p)
	}
	return out
}

func alias(on Receiver, names ...string) []*Pattern {
	out := make([]*Pattern, 0, len(names))
	for _, n := range names {
		out = append(out, &Pattern{Name: string(on) + "." + n, On: on, Method: n, Alias: true})
	}
	return out
}

func builtinPatterns() []*Pattern {
	var ps []*Pattern
	ps = append(ps, pandasIO()...)
	ps = append(ps, frameCleaning()...)
	ps = append(ps, frameReshaping()...)
	ps = append(ps, groupedAndWindow()...)
	ps = append(ps, accessors()...)
	ps = append(ps, numpyFunctions()...)
	ps = append(ps, sklearnPatterns()...)
	ps = append(ps, inspect(ReceiverFrame, "",
		"info", "describe", "plot", "hist", "boxplot", "corr", "cov",
		"isnull", "isna", "notnull", "notna", "sum", "mean", "median", "mode",
		"std", "var", "min", "max", "count", "nunique", "unique", "any", "all",
		"memory_usage", "to_string", "to_dict", "to_list", "tolist", "to_numpy",
		"items", "iterrows", "itertuples", "idxmax", "idxmin", "quantile", "skew",
		"kurt", "duplicated", "equals", "first_valid_index", "last_valid_index")...)
	ps = append(ps, inspect(ReceiverModule, ModuleBuiltins, "print", "display", "len", "type", "repr")...)
	ps = append(ps, alias(ReceiverFrame, "copy", "reset_index", "set_index", "infer_objects",
		"convert_dtypes", "to_frame", "squeeze", "reindex")...)
	return ps
}

// --- I/O ---

var readFormats = map[string]string{
	"read_csv":     "csv",
	"read_table":   "csv",
	"read_parquet": "parquet",
	"read_excel":   "excel",
	"read_json":    "json",
	"read_sql":     "sql",
	"read_feather": "feather",
	"read_pickle":  "pickle",
	"read_orc":     "orc",
	"read_xml":     "xml",
}

var writeFormats = map[string]string{
	"to_csv":     "csv",
	"to_parquet": "parquet",
	"to_excel":   "excel",
	"to_json":    "json",
	"to_sql":     "sql",
	"to_feather": "feather",
	"to_pickle":  "pickle",
	"to_orc":     "orc",
	"to_xml":     "xml",
}

func pandasIO() []*Pattern {
	var ps []*Pattern
	for name, format := range readFormats {
		ps = append(ps, function(ModulePandas, name, schema.KindReadData, ioExtract(format,
			"filepath_or_buffer", "path", "io", "sql", "path_or_buf")))
	}
	for name, format := range writeFormats {
		ps = append(ps, method(ReceiverFrame, name, schema.KindWriteData, ioExtract(format,
			"path_or_buf", "path", "excel_writer", "name")))
	}

	framed := &Pattern{
		Name: "pandas.DataFrame(frame)", On: ReceiverModule, Module: ModulePandas, Method: "DataFrame",
		Alias: true, FrameArg: true,
		Match: func(c *Call, _ Shape) bool {
			a, ok := c.Param(0, "data")
			return ok && a.Frame != "" && a.Column == "" && len(a.Columns) == 0
		},
	}
	inline := function(ModulePandas, "DataFrame", schema.KindReadData, func(c *Call, _ Shape) map[string]any {
		return map[string]any{schema.ParamFormat: "inline"}
	})
	return append(ps, framed, inline)
}

func ioExtract(format string, pathNames ...string) ExtractFunc {
	return func(c *Call, _ Shape) map[string]any {
		params := map[string]any{schema.ParamFormat: format}
		if path := c.String(0, pathNames...); path != "" {
			params[schema.ParamPath] = path
		}
		if sep := c.String(-1, "sep", "delimiter"); sep != "" {
			params["sep"] = sep
		}
		if sheet := c.Literal(-1, "sheet_name"); sheet != nil {
			params["sheet_name"] = sheet
		}
		return params
	}
}

// DatasetNameFromPath derives a dataset name from a file path, e.g.
// "data/sales_2024.csv" becomes "sales_2024".
func DatasetNameFromPath(path string) string {
	base := filepath.Base(strings.TrimSpace(path))
	if base == "." || base == "/" || base == "" {
		return ""
	}
	for ext := filepath.Ext(base); ext != ""; ext = filepath.Ext(base) {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// --- cleaning ---

func frameCleaning() []*Pattern {
	fill := func(method string) ExtractFunc {
		return func(c *Call, _ Shape) map[string]any {
			return map[string]any{schema.ParamMethod: method}
		}
	}
	return []*Pattern{
		method(ReceiverFrame, "fillna", schema.KindFillMissing, fillnaExtract),
		method(ReceiverFrame, "ffill", schema.KindFillMissing, fill("ffill")),
		method(ReceiverFrame, "bfill", schema.KindFillMissing, fill("bfill")),
		method(ReceiverFrame, "interpolate", schema.KindFillMissing, fill("interpolate")),
		method(ReceiverFrame, "dropna", schema.KindDropMissing, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{}
			if cols := c.Strings(-1, "subset"); len(cols) > 0 {
				params[schema.ParamColumns] = cols
			}
			if how := c.String(-1, "how"); how != "" {
				params[schema.ParamHow] = how
			}
			if thresh, ok := c.Int(-1, "thresh"); ok {
				params[schema.ParamThreshold] = thresh
			}
			if axis := axisOf(c, 0); axis == 1 {
				params[schema.ParamAxis] = axis
			}
			return params
		}),
		method(ReceiverFrame, "rename", schema.KindRenameColumns, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{}
			if m, ok := c.Literal(0, "columns", "mapper").(map[string]any); ok {
				params[schema.ParamMapping] = m
			} else if a, ok := c.Param(0, "columns", "mapper"); ok {
				params[schema.ParamExpression] = a.Source
			}
			return params
		}),
		{
			Name: "frame.drop(columns)", On: ReceiverFrame, Method: "drop", Kind: schema.KindDropColumns,
			Match: func(c *Call, _ Shape) bool {
				return c.Has("columns") || axisOf(c, 1) == 1
			},
			Extract: func(c *Call, _ Shape) map[string]any {
				return map[string]any{schema.ParamColumns: c.Strings(0, "columns", "labels")}
			},
		},
		method(ReceiverFrame, "filter", schema.KindSelectColumns, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{}
			if items := c.Strings(0, "items"); len(items) > 0 {
				params[schema.ParamColumns] = items
			}
			if like := c.String(-1, "like"); like != "" {
				params[schema.ParamPattern] = like
			}
			if re := c.String(-1, "regex"); re != "" {
				params[schema.ParamPattern] = re
			}
			return params
		}),
		method(ReceiverFrame, "query", schema.KindFilter, queryExtract),
		method(ReceiverFrame, "astype", schema.KindTypeCast, func(c *Call, _ Shape) map[string]any {
			switch v := c.Literal(0, "dtype").(type) {
			case map[string]any:
				return map[string]any{schema.ParamMapping: v, schema.ParamColumns: schema.SortedKeys(v)}
			case string:
				return map[string]any{schema.ParamDType: v}
			}
			return map[string]any{schema.ParamDType: pythonTypeName(c.String(0, "dtype"))}
		}),
		method(ReceiverFrame, "replace", schema.KindFindReplace, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{}
			if m, ok := c.Literal(0, "to_replace").(map[string]any); ok {
				params[schema.ParamMapping] = m
			} else {
				params[schema.ParamPattern] = c.Literal(0, "to_replace")
				params[schema.ParamReplacement] = c.Literal(1, "value")
			}
			if c.Bool(false, -1, "regex") {
				params["regex"] = true
			}
			return params
		}),
		{
			Name: "frame.map(dict)", On: ReceiverFrame, Method: "map", Kind: schema.KindFindReplace,
			Match: func(c *Call, _ Shape) bool {
				_, ok := c.Literal(0, "arg").(map[string]any)
				return ok
			},
			Extract: func(c *Call, _ Shape) map[string]any {
				return map[string]any{schema.ParamMapping: c.Literal(0, "arg")}
			},
		},
		method(ReceiverFrame, "round", schema.KindRound, func(c *Call, _ Shape) map[string]any {
			if m, ok := c.Literal(0, "decimals").(map[string]any); ok {
				return map[string]any{schema.ParamMapping: m, schema.ParamColumns: schema.SortedKeys(m)}
			}
			decimals, _ := c.Int(0, "decimals")
			return map[string]any{schema.ParamDecimals: decimals}
		}),
		method(ReceiverFrame, "clip", schema.KindClip, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{}
			if lo := c.Literal(0, "lower"); lo != nil {
				params[schema.ParamLower] = lo
			}
			if hi := c.Literal(1, "upper"); hi != nil {
				params[schema.ParamUpper] = hi
			}
			return params
		}),
		method(ReceiverFrame, "abs", schema.KindColumnCreate, func(c *Call, s Shape) map[string]any {
			if s.Column == "" {
				return map[string]any{schema.ParamExpression: "abs(x)"}
			}
			return map[string]any{schema.ParamExpression: "abs(" + expressions.RenderColumn(s.Column) + ")"}
		}),
		method(ReceiverFrame, "assign", schema.KindColumnCreate, func(c *Call, _ Shape) map[string]any {
			mapping := map[string]any{}
			for _, k := range c.KwargOrder {
				a := c.Kwargs[k]
				if a.Expr != "" {
					mapping[k] = a.Expr
				} else {
					mapping[k] = a.Source
				}
			}
			params := map[string]any{schema.ParamMapping: mapping}
			if len(c.KwargOrder) > 0 {
				params[schema.ParamOutputColumn] = c.KwargOrder[0]
				params[schema.ParamExpression] = mapping[c.KwargOrder[0]]
			}
			return params
		}),
		method(ReceiverFrame, "drop_duplicates", schema.KindDistinct, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{schema.ParamKeep: "first"}
			if cols := c.Strings(0, "subset"); len(cols) > 0 {
				params[schema.ParamColumns] = cols
			}
			switch keep := c.Literal(1, "keep").(type) {
			case string:
				params[schema.ParamKeep] = keep
			case bool:
				if !keep {
					params[schema.ParamKeep] = "none"
				}
			}
			return params
		}),
	}
}

var statSuffixes = []string{"mean", "median", "mode", "min", "max", "sum"}

func fillnaExtract(c *Call, _ Shape) map[string]any {
	params := map[string]any{}
	if m := c.String(-1, "method"); m != "" {
		params[schema.ParamMethod] = m
		return params
	}
	a, ok := c.Param(0, "value")
	if !ok {
		return params
	}
	if a.Literal {
		if m, isMap := a.Value.(map[string]any); isMap {
			params[schema.ParamMapping] = m
			params[schema.ParamColumns] = schema.SortedKeys(m)
			return params
		}
		params[schema.ParamValue] = a.Value
		params[schema.ParamMethod] = "constant"
		return params
	}
	for _, stat := range statSuffixes {
		if strings.Contains(a.Source, "."+stat+"()") {
			params[schema.ParamMethod] = stat
			params[schema.ParamExpression] = a.Source
			return params
		}
	}
	params[schema.ParamMethod] = "expression"
	params[schema.ParamExpression] = a.Source
	return params
}

func queryExtract(c *Call, _ Shape) map[string]any {
	q := c.String(0, "expr")
	expression := expressions.NormalizeQuery(q)
	params := map[string]any{schema.ParamExpression: expression}
	set, err := expressions.ParseConditions(expression)
	if err == nil && set.Flat {
		params[schema.ParamConditions] = set.Conditions
		params[schema.ParamCombinator] = set.Combinator
	}
	return params
}

func axisOf(c *Call, pos int) int {
	switch v := c.Literal(pos, "axis").(type) {
	case int:
		return v
	case string:
		if v == "columns" {
			return 1
		}
	}
	return 0
}

func pythonTypeName(src string) string {
	src = strings.TrimPrefix(src, "np.")
	src = strings.TrimPrefix(src, "numpy.")
	return src
}

// --- reshaping and combining ---

func frameReshaping() []*Pattern {
	return []*Pattern{
		{Name: "frame.merge", On: ReceiverFrame, Method: "merge", Kind: schema.KindJoin,
			SourceArgs: []int{0}, Extract: joinExtract(1, "inner")},
		{Name: "frame.join", On: ReceiverFrame, Method: "join", Kind: schema.KindJoin,
			SourceArgs: []int{0}, Extract: joinExtract(-1, "left")},
		{Name: "pandas.merge", On: ReceiverModule, Module: ModulePandas, Method: "merge", Kind: schema.KindJoin,
			FrameArg: true, SourceArgs: []int{1}, Extract: joinExtract(2, "inner")},
		{Name: "pandas.concat", On: ReceiverModule, Module: ModulePandas, Method: "concat", Kind: schema.KindUnion,
			FrameArg: true, Extract: stackExtract},
		{Name: "frame.append", On: ReceiverFrame, Method: "append", Kind: schema.KindUnion,
			SourceArgs: []int{0}, Extract: stackExtract},
		method(ReceiverFrame, "sort_values", schema.KindSort, func(c *Call, s Shape) map[string]any {
			cols := c.Strings(0, "by")
			if len(cols) == 0 && s.Column != "" {
				cols = []string{s.Column}
			}
			return map[string]any{schema.ParamSortColumns: sortColumns(c, cols, 1)}
		}),
		method(ReceiverFrame, "sort_index", schema.KindSort, func(c *Call, _ Shape) map[string]any {
			return map[string]any{schema.ParamSortColumns: sortColumns(c, []string{"index"}, 1)}
		}),
		{Name: "frame.head", On: ReceiverFrame, Method: "head", Kind: schema.KindSample,
			InspectAsStatement: true, Extract: rowsExtract("head", 5)},
		{Name: "frame.tail", On: ReceiverFrame, Method: "tail", Kind: schema.KindSample,
			InspectAsStatement: true, Extract: rowsExtract("tail", 5)},
		method(ReceiverFrame, "sample", schema.KindSample, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{schema.ParamMethod: "random"}
			if n, ok := c.Int(0, "n"); ok {
				params[schema.ParamN] = n
			}
			if f, ok := c.Float(1, "frac"); ok {
				params[schema.ParamFraction] = f
			}
			if seed, ok := c.Int(-1, "random_state"); ok {
				params[schema.ParamSeed] = seed
			}
			return params
		}),
		method(ReceiverFrame, "nlargest", schema.KindTopN, topExtract(false)),
		method(ReceiverFrame, "nsmallest", schema.KindTopN, topExtract(true)),
		{Name: "frame.value_counts", On: ReceiverFrame, Method: "value_counts", Kind: schema.KindGroupAggregate,
			InspectAsStatement: true, Extract: func(c *Call, s Shape) map[string]any {
				keys := c.Strings(0, "subset")
				if len(keys) == 0 && s.Column != "" {
					keys = []string{s.Column}
				}
				col := "*"
				if len(keys) > 0 {
					col = keys[0]
				}
				return map[string]any{
					schema.ParamGroupBy: keys,
					schema.ParamColumns: keys,
					schema.ParamAggregations: []schema.Aggregation{
						{Column: col, Function: "count", OutputColumn: "count"},
					},
				}
			}},
		method(ReceiverFrame, "pivot_table", schema.KindPivot, pivotExtract(0, 1, 2, 3)),
		method(ReceiverFrame, "pivot", schema.KindPivot, pivotExtract(2, 0, 1, -1)),
		{Name: "pandas.pivot_table", On: ReceiverModule, Module: ModulePandas, Method: "pivot_table",
			Kind: schema.KindPivot, FrameArg: true, Extract: pivotExtract(1, 2, 3, 4)},
		method(ReceiverFrame, "melt", schema.KindFold, meltExtract(0)),
		{Name: "pandas.melt", On: ReceiverModule, Module: ModulePandas, Method: "melt",
			Kind: schema.KindFold, FrameArg: true, Extract: meltExtract(1)},
		{Name: "pandas.get_dummies", On: ReceiverModule, Module: ModulePandas, Method: "get_dummies",
			Kind: schema.KindEncode, FrameArg: true, Extract: func(c *Call, _ Shape) map[string]any {
				params := map[string]any{schema.ParamMethod: "one_hot"}
				if cols := c.Strings(-1, "columns"); len(cols) > 0 {
					params[schema.ParamColumns] = cols
				} else if a, ok := c.Param(0, "data"); ok && a.Column != "" {
					params[schema.ParamColumns] = []string{a.Column}
				}
				if p := c.Literal(1, "prefix"); p != nil {
					params[schema.ParamPrefix] = p
				}
				if c.Bool(false, -1, "drop_first") {
					params["drop_first"] = true
				}
				return params
			}},
		function(ModulePandas, "to_datetime", schema.KindDateParse, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{}
			if cols := c.Strings(0, "arg"); len(cols) > 0 {
				params[schema.ParamColumns] = cols
			}
			if f := c.String(-1, "format"); f != "" {
				params[schema.ParamDateFormat] = f
			}
			if e := c.String(-1, "errors"); e != "" {
				params["errors"] = e
			}
			return params
		}),
		function(ModulePandas, "to_numeric", schema.KindTypeCast, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{schema.ParamDType: "numeric"}
			if cols := c.Strings(0, "arg"); len(cols) > 0 {
				params[schema.ParamColumns] = cols
			}
			return params
		}),
		function(ModulePandas, "cut", schema.KindBinning, binExtract("fixed", "bins")),
		function(ModulePandas, "qcut", schema.KindBinning, binExtract("quantile", "q")),
	}
}

func joinExtract(howPos int, defaultHow string) ExtractFunc {
	return func(c *Call, _ Shape) map[string]any {
		how := c.String(howPos, "how")
		if how == "" {
			how = defaultHow
		}
		var conds []schema.JoinCondition
		if on := c.Strings(-1, "on"); len(on) > 0 {
			for _, k := range on {
				conds = append(conds, schema.JoinCondition{LeftColumn: k, RightColumn: k})
			}
		} else {
			left, right := c.Strings(-1, "left_on"), c.Strings(-1, "right_on")
			for i := 0; i < len(left) && i < len(right); i++ {
				conds = append(conds, schema.JoinCondition{LeftColumn: left[i], RightColumn: right[i]})
			}
		}
		params := map[string]any{schema.ParamJoinType: how}
		if len(conds) > 0 {
			params[schema.ParamJoinOn] = conds
		}
		if sfx := c.Literal(-1, "suffixes"); sfx != nil {
			params["suffixes"] = sfx
		}
		return params
	}
}

func stackExtract(c *Call, _ Shape) map[string]any {
	params := map[string]any{schema.ParamIgnoreIndex: c.Bool(false, -1, "ignore_index")}
	if axis := axisOf(c, -1); axis != 0 {
		params[schema.ParamAxis] = axis
	}
	return params
}

func sortColumns(c *Call, cols []string, ascPos int) []schema.SortColumn {
	out := make([]schema.SortColumn, 0, len(cols))
	asc := c.Literal(ascPos, "ascending")
	for i, col := range cols {
		sc := schema.SortColumn{Column: col, Ascending: true}
		switch v := asc.(type) {
		case bool:
			sc.Ascending = v
		case []any:
			if i < len(v) {
				if b, ok := v[i].(bool); ok {
					sc.Ascending = b
				}
			}
		}
		out = append(out, sc)
	}
	return out
}

func rowsExtract(method string, def int) ExtractFunc {
	return func(c *Call, _ Shape) map[string]any {
		n, ok := c.Int(0, "n")
		if !ok {
			n = def
		}
		return map[string]any{schema.ParamMethod: method, schema.ParamN: n}
	}
}

func topExtract(ascending bool) ExtractFunc {
	return func(c *Call, s Shape) map[string]any {
		n, ok := c.Int(0, "n")
		if !ok {
			n = 5
		}
		cols := c.Strings(1, "columns")
		if len(cols) == 0 && s.Column != "" {
			cols = []string{s.Column}
		}
		order := make([]schema.SortColumn, 0, len(cols))
		for _, col := range cols {
			order = append(order, schema.SortColumn{Column: col, Ascending: ascending})
		}
		return map[string]any{schema.ParamN: n, schema.ParamSortColumns: order}
	}
}

func pivotExtract(valuesPos, indexPos, columnsPos, aggPos int) ExtractFunc {
	return func(c *Call, _ Shape) map[string]any {
		params := map[string]any{
			schema.ParamIndex:   c.Strings(indexPos, "index"),
			schema.ParamColumns: c.Strings(columnsPos, "columns"),
			schema.ParamValues:  c.Strings(valuesPos, "values"),
		}
		agg := "mean"
		if aggPos >= 0 {
			if a := c.String(aggPos, "aggfunc"); a != "" {
				agg = aggName(a)
			}
		} else {
			agg = ""
		}
		if agg != "" {
			params[schema.ParamAggFunc] = agg
		}
		return params
	}
}

func meltExtract(offset int) ExtractFunc {
	return func(c *Call, _ Shape) map[string]any {
		params := map[string]any{
			schema.ParamIDVars:    c.Strings(offset, "id_vars"),
			schema.ParamValueVars: c.Strings(offset+1, "value_vars"),
		}
		if v := c.String(-1, "var_name"); v != "" {
			params["var_name"] = v
		}
		if v := c.String(-1, "value_name"); v != "" {
			params["value_name"] = v
		}
		return params
	}
}

func binExtract(method, binsName string) ExtractFunc {
	return func(c *Call, _ Shape) map[string]any {
		params := map[string]any{schema.ParamMethod: method}
		if cols := c.Strings(0, "x"); len(cols) > 0 {
			params[schema.ParamColumns] = cols
		}
		if bins := c.Literal(1, binsName); bins != nil {
			params[schema.ParamBins] = bins
		}
		if labels := c.Literal(-1, "labels"); labels != nil {
			params[schema.ParamLabels] = labels
		}
		return params
	}
}

// --- grouping and windows ---

var groupReductions = []string{
	"sum", "mean", "count", "min", "max", "median", "std", "var",
	"first", "last", "nunique", "size", "prod",
}

var windowFunctions = []string{
	"cumsum", "cumcount", "cummax", "cummin", "cumprod",
	"rank", "shift", "diff", "pct_change",
}

var rollingFunctions = []string{"mean", "sum", "min", "max", "std", "var", "count", "median"}

func groupedAndWindow() []*Pattern {
	ps := []*Pattern{
		{Name: "frame.groupby", On: ReceiverFrame, Method: "groupby", Yields: ReceiverGrouped,
			Extract: func(c *Call, _ Shape) map[string]any {
				return map[string]any{schema.ParamGroupBy: c.Strings(0, "by")}
			}},
		{Name: "frame.rolling", On: ReceiverFrame, Method: "rolling", Yields: ReceiverRolling,
			Extract: func(c *Call, _ Shape) map[string]any {
				w, ok := c.Int(0, "window")
				if !ok {
					return map[string]any{schema.ParamWindow: c.String(0, "window")}
				}
				return map[string]any{schema.ParamWindow: w}
			}},
		{Name: "frame.expanding", On: ReceiverFrame, Method: "expanding", Yields: ReceiverRolling,
			Extract: func(c *Call, _ Shape) map[string]any {
				return map[string]any{schema.ParamWindow: "expanding"}
			}},
		{Name: "frame.ewm", On: ReceiverFrame, Method: "ewm", Yields: ReceiverRolling,
			Extract: func(c *Call, _ Shape) map[string]any {
				return map[string]any{schema.ParamWindow: "ewm"}
			}},
		{Name: "grouped.rolling", On: ReceiverGrouped, Method: "rolling", Yields: ReceiverRolling,
			Extract: func(c *Call, _ Shape) map[string]any {
				w, _ := c.Int(0, "window")
				return map[string]any{schema.ParamWindow: w}
			}},
		method(ReceiverGrouped, "agg", schema.KindGroupAggregate, aggExtract),
		method(ReceiverGrouped, "aggregate", schema.KindGroupAggregate, aggExtract),
		method(ReceiverGrouped, "transform", schema.KindWindow, func(c *Call, s Shape) map[string]any {
			return map[string]any{schema.ParamAggregations: reduce(s, aggName(c.String(0, "func")), false)}
		}),
	}
	for _, fn := range groupReductions {
		name := fn
		ps = append(ps, method(ReceiverGrouped, name, schema.KindGroupAggregate, func(c *Call, s Shape) map[string]any {
			if name == "size" {
				return map[string]any{schema.ParamAggregations: []schema.Aggregation{
					{Column: "*", Function: "count", OutputColumn: "size"},
				}}
			}
			return map[string]any{schema.ParamAggregations: reduce(s, name, true)}
		}))
	}
	for _, fn := range windowFunctions {
		name := fn
		extract := func(c *Call, s Shape) map[string]any {
			return map[string]any{schema.ParamAggregations: reduce(s, name, false)}
		}
		ps = append(ps, method(ReceiverGrouped, name, schema.KindWindow, extract))
		ps = append(ps, method(ReceiverFrame, name, schema.KindWindow, extract))
	}
	for _, fn := range rollingFunctions {
		name := fn
		ps = append(ps, method(ReceiverRolling, name, schema.KindWindow, func(c *Call, s Shape) map[string]any {
			return map[string]any{schema.ParamAggregations: reduce(s, name, false)}
		}))
	}
	return ps
}

// reduce applies one function to the receiver's selected columns, or to
// every column when none is selected.
func reduce(s Shape, fn string, keepName bool) []schema.Aggregation {
	cols := selected(s)
	if len(cols) == 0 {
		return []schema.Aggregation{{Column: "*", Function: fn}}
	}
	out := make([]schema.Aggregation, 0, len(cols))
	for _, col := range cols {
		a := schema.Aggregation{Column: col, Function: fn}
		if keepName {
			a.OutputColumn = col
		} else {
			a.OutputColumn = col + "_" + fn
		}
		out = append(out, a)
	}
	return out
}

func selected(s Shape) []string {
	if s.Column != "" {
		return []string{s.Column}
	}
	return s.Columns
}

func aggExtract(c *Call, s Shape) map[string]any {
	var aggs []schema.Aggregation

	// Named aggregation: agg(total=("amount", "sum")).
	for _, k := range c.KwargOrder {
		pair, ok := c.Kwargs[k].Value.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		col, _ := pair[0].(string)
		fn, _ := pair[1].(string)
		aggs = append(aggs, schema.Aggregation{Column: col, Function: aggName(fn), OutputColumn: k})
	}
	if len(aggs) > 0 {
		return map[string]any{schema.ParamAggregations: aggs}
	}

	a, ok := c.Param(0, "func", "arg")
	if !ok {
		return map[string]any{}
	}
	if !a.Literal {
		return map[string]any{schema.ParamAggregations: reduce(s, aggName(a.Source), true)}
	}
	switch v := a.Value.(type) {
	case string:
		aggs = reduce(s, aggName(v), true)
	case []any:
		for _, f := range v {
			fn, _ := f.(string)
			for _, col := range orAll(selected(s)) {
				aggs = append(aggs, schema.Aggregation{Column: col, Function: aggName(fn), OutputColumn: col + "_" + aggName(fn)})
			}
		}
	case map[string]any:
		for _, col := range schema.SortedKeys(v) {
			switch fns := v[col].(type) {
			case string:
				aggs = append(aggs, schema.Aggregation{Column: col, Function: aggName(fns), OutputColumn: col})
			case []any:
				for _, f := range fns {
					fn, _ := f.(string)
					aggs = append(aggs, schema.Aggregation{Column: col, Function: aggName(fn), OutputColumn: col + "_" + aggName(fn)})
				}
			}
		}
	}
	return map[string]any{schema.ParamAggregations: aggs}
}

func orAll(cols []string) []string {
	if len(cols) == 0 {
		return []string{"*"}
	}
	return cols
}

// aggName strips module prefixes from function references such as np.sum.
func aggName(fn string) string {
	fn = strings.TrimSpace(fn)
	if i := strings.LastIndex(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	return fn
}

// --- accessors ---

var stringTransforms = []string{
	"lower", "upper", "strip", "lstrip", "rstrip", "title", "capitalize",
	"swapcase", "casefold", "zfill", "pad", "center", "ljust", "rjust",
	"slice", "split", "extract", "normalize", "cat", "get", "len",
}

var dateComponents = []string{
	"year", "month", "day", "hour", "minute", "second", "weekday",
	"dayofweek", "day_of_week", "dayofyear", "day_of_year", "quarter",
	"week", "date", "time", "day_name", "month_name", "is_month_end",
	"is_month_start",
}

func accessors() []*Pattern {
	var ps []*Pattern
	for _, fn := range stringTransforms {
		name := fn
		ps = append(ps, method(ReceiverStr, name, schema.KindStringTransform, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{schema.ParamOperation: name}
			if len(c.Args) > 0 {
				args := make([]any, 0, len(c.Args))
				for _, a := range c.Args {
					args = append(args, argValue(a))
				}
				params["args"] = args
			}
			return params
		}))
	}
	ps = append(ps, method(ReceiverStr, "replace", schema.KindFindReplace, func(c *Call, _ Shape) map[string]any {
		params := map[string]any{
			schema.ParamPattern:     c.String(0, "pat"),
			schema.ParamReplacement: c.String(1, "repl"),
		}
		if c.Bool(false, -1, "regex") {
			params["regex"] = true
		}
		return params
	}))
	for op, fn := range map[string]string{"contains": "contains", "startswith": "startsWith", "endswith": "endsWith", "match": "matches"} {
		exprOp := fn
		ps = append(ps, method(ReceiverStr, op, schema.KindColumnCreate, func(c *Call, s Shape) map[string]any {
			return map[string]any{
				schema.ParamExpression: fmt.Sprintf("%s %s %s",
					expressions.RenderColumn(s.Column), exprOp, expressions.RenderValue(c.Literal(0, "pat"))),
			}
		}))
	}
	for _, comp := range dateComponents {
		name := comp
		ps = append(ps, method(ReceiverDt, name, schema.KindDateExtract, func(c *Call, _ Shape) map[string]any {
			return map[string]any{schema.ParamComponent: name}
		}))
	}
	ps = append(ps, method(ReceiverDt, "strftime", schema.KindDateExtract, func(c *Call, _ Shape) map[string]any {
		return map[string]any{schema.ParamComponent: "format", schema.ParamDateFormat: c.String(0, "date_format")}
	}))
	for _, fn := range []string{"floor", "ceil", "round", "normalize", "to_period"} {
		name := fn
		ps = append(ps, method(ReceiverDt, name, schema.KindDateExtract, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{schema.ParamComponent: name}
			if freq := c.String(0, "freq"); freq != "" {
				params["freq"] = freq
			}
			return params
		}))
	}
	ps = append(ps, method(ReceiverDt, "tz_localize", schema.KindDateParse, func(c *Call, _ Shape) map[string]any {
		return map[string]any{"timezone": c.String(0, "tz")}
	}))
	ps = append(ps, method(ReceiverDt, "tz_convert", schema.KindDateParse, func(c *Call, _ Shape) map[string]any {
		return map[string]any{"timezone": c.String(0, "tz")}
	}))
	return ps
}

// --- numpy ---

var numpyFormulas = []string{"log", "log1p", "log10", "log2", "sqrt", "exp", "abs", "floor", "ceil", "sign"}

func numpyFunctions() []*Pattern {
	ps := []*Pattern{
		function(ModuleNumpy, "where", schema.KindColumnCreate, func(c *Call, _ Shape) map[string]any {
			cond, _ := c.Param(0, "condition")
			a, _ := c.Param(1, "x")
			b, _ := c.Param(2, "y")
			if cond.Expr != "" && exprOf(a) != "" && exprOf(b) != "" {
				return map[string]any{schema.ParamExpression: fmt.Sprintf("%s ? %s : %s", cond.Expr, exprOf(a), exprOf(b))}
			}
			return map[string]any{schema.ParamExpression: c.Callee + "(" + joinSources(c) + ")"}
		}),
		function(ModuleNumpy, "select", schema.KindColumnCreate, func(c *Call, _ Shape) map[string]any {
			return map[string]any{schema.ParamExpression: c.Callee + "(" + joinSources(c) + ")"}
		}),
		function(ModuleNumpy, "round", schema.KindRound, func(c *Call, _ Shape) map[string]any {
			decimals, _ := c.Int(1, "decimals")
			params := map[string]any{schema.ParamDecimals: decimals}
			if cols := c.Strings(0, "a"); len(cols) > 0 {
				params[schema.ParamColumns] = cols
			}
			return params
		}),
		function(ModuleNumpy, "clip", schema.KindClip, func(c *Call, _ Shape) map[string]any {
			params := map[string]any{}
			if lo := c.Literal(1, "a_min"); lo != nil {
				params[schema.ParamLower] = lo
			}
			if hi := c.Literal(2, "a_max"); hi != nil {
				params[schema.ParamUpper] = hi
			}
			if cols := c.Strings(0, "a"); len(cols) > 0 {
				params[schema.ParamColumns] = cols
			}
			return params
		}),
	}
	for _, fn := range numpyFormulas {
		name := fn
		ps = append(ps, function(ModuleNumpy, name, schema.KindColumnCreate, func(c *Call, _ Shape) map[string]any {
			a, _ := c.Param(0, "x")
			return map[string]any{schema.ParamExpression: name + "(" + exprOf(a) + ")"}
		}))
	}
	return ps
}

func exprOf(a Arg) string {
	if a.Expr != "" {
		return a.Expr
	}
	if a.Literal {
		return expressions.RenderValue(a.Value)
	}
	if a.Column != "" {
		return expressions.RenderColumn(a.Column)
	}
	return a.Source
}

func joinSources(c *Call) string {
	parts := make([]string, 0, len(c.Args)+len(c.KwargOrder))
	for _, a := range c.Args {
		parts = append(parts, a.Source)
	}
	for _, k := range c.KwargOrder {
		parts = append(parts, k+"="+c.Kwargs[k].Source)
	}
	return strings.Join(parts, ", ")
}

// --- scikit-learn ---

// Estimator families.
const (
	FamilyScaler  = "scaler"
	FamilyEncoder = "encoder"
	FamilyImputer = "imputer"
	FamilyModel   = "model"
)

var estimatorFamilies = map[string]string{
	"StandardScaler": FamilyScaler,
	"MinMaxScaler":   FamilyScaler,
	"RobustScaler":   FamilyScaler,
	"MaxAbsScaler":   FamilyScaler,
	"Normalizer":     FamilyScaler,
	"LabelEncoder":   FamilyEncoder,
	"OneHotEncoder":  FamilyEncoder,
	"OrdinalEncoder": FamilyEncoder,
	"SimpleImputer":  FamilyImputer,
	"KNNImputer":     FamilyImputer,
}

var scalerMethods = map[string]string{
	"StandardScaler": "standard",
	"MinMaxScaler":   "minmax",
	"RobustScaler":   "robust",
	"MaxAbsScaler":   "maxabs",
	"Normalizer":     "unit",
}

var encoderMethods = map[string]string{
	"LabelEncoder":   "label",
	"OneHotEncoder":  "one_hot",
	"OrdinalEncoder": "ordinal",
}

// EstimatorFamily classifies a scikit-learn class name. Unknown classes are
// treated as models.
func EstimatorFamily(class string) string {
	if f, ok := estimatorFamilies[class]; ok {
		return f
	}
	return FamilyModel
}

var sklearnModels = []string{
	"LinearRegression", "LogisticRegression", "Ridge", "Lasso", "ElasticNet",
	"RandomForestClassifier", "RandomForestRegressor", "GradientBoostingClassifier",
	"GradientBoostingRegressor", "DecisionTreeClassifier", "DecisionTreeRegressor",
	"KMeans", "DBSCAN", "SVC", "SVR", "KNeighborsClassifier", "KNeighborsRegressor",
	"PCA", "XGBClassifier", "XGBRegressor",
}

func sklearnPatterns() []*Pattern {
	ps := []*Pattern{
		{Name: "sklearn.train_test_split", On: ReceiverModule, Module: ModuleSklearn, Method: "train_test_split",
			Kind: schema.KindSplit, FrameArg: true, Extract: func(c *Call, _ Shape) map[string]any {
				params := map[string]any{schema.ParamTestSize: 0.25}
				if ts, ok := c.Float(-1, "test_size"); ok {
					params[schema.ParamTestSize] = ts
				} else if tr, ok := c.Float(-1, "train_size"); ok {
					params[schema.ParamTestSize] = 1 - tr
				}
				if seed, ok := c.Int(-1, "random_state"); ok {
					params[schema.ParamSeed] = seed
				}
				if strat := c.Strings(-1, "stratify"); len(strat) > 0 {
					params["stratify"] = strat
				}
				return params
			}},
	}

	constructor := func(class string) *Pattern {
		return &Pattern{Name: "sklearn." + class, On: ReceiverModule, Module: ModuleSklearn, Method: class,
			Yields: ReceiverEstimator, Extract: func(c *Call, _ Shape) map[string]any {
				params := make(map[string]any, len(c.Kwargs))
				for k, a := range c.Kwargs {
					params[k] = argValue(a)
				}
				return params
			}}
	}
	for class := range estimatorFamilies {
		ps = append(ps, constructor(class))
	}
	for _, class := range sklearnModels {
		ps = append(ps, constructor(class))
	}

	family := func(f string) MatchFunc {
		return func(_ *Call, s Shape) bool { return EstimatorFamily(s.Estimator) == f }
	}
	for _, m := range []string{"fit_transform", "transform"} {
		ps = append(ps,
			&Pattern{Name: "estimator." + m + "(scaler)", On: ReceiverEstimator, Method: m,
				Kind: schema.KindNormalize, FrameArg: true, Match: family(FamilyScaler),
				Extract: func(c *Call, s Shape) map[string]any {
					return map[string]any{schema.ParamMethod: scalerMethods[s.Estimator], schema.ParamColumns: c.Strings(0, "X")}
				}},
			&Pattern{Name: "estimator." + m + "(encoder)", On: ReceiverEstimator, Method: m,
				Kind: schema.KindEncode, FrameArg: true, Match: family(FamilyEncoder),
				Extract: func(c *Call, s Shape) map[string]any {
					return map[string]any{schema.ParamMethod: encoderMethods[s.Estimator], schema.ParamColumns: c.Strings(0, "X", "y")}
				}},
			&Pattern{Name: "estimator." + m + "(imputer)", On: ReceiverEstimator, Method: m,
				Kind: schema.KindFillMissing, FrameArg: true, Match: family(FamilyImputer),
				Extract: func(c *Call, s Shape) map[string]any {
					strategy, _ := s.EstimatorParams["strategy"].(string)
					if strategy == "" {
						strategy = "mean"
					}
					params := map[string]any{schema.ParamStrategy: strategy, schema.ParamMethod: strategy}
					if fill, ok := s.EstimatorParams["fill_value"]; ok {
						params[schema.ParamValue] = fill
					}
					params[schema.ParamColumns] = c.Strings(0, "X")
					return params
				}},
		)
	}
	ps = append(ps, &Pattern{Name: "estimator.fit(preprocessor)", On: ReceiverEstimator, Method: "fit", Inspect: true,
		Match: func(_ *Call, s Shape) bool { return EstimatorFamily(s.Estimator) != FamilyModel }})
	for _, m := range []string{"fit", "predict", "predict_proba", "fit_predict", "score", "fit_transform", "transform"} {
		ps = append(ps, &Pattern{Name: "estimator." + m + "(model)", On: ReceiverEstimator, Method: m,
			Kind: schema.KindOpaque, FrameArg: true, Match: family(FamilyModel),
			Extract: func(c *Call, s Shape) map[string]any {
				return map[string]any{"estimator": s.Estimator}
			}})
	}
	return ps
}
