package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"
)

// ToMap exports the flow as a nested map with stable keys. Optional fields
// are omitted rather than set to nil.
func (f *Flow) ToMap() map[string]any {
	m := map[string]any{
		"datasets": datasetsToList(f.Datasets),
		"recipes":  recipesToList(f.Recipes),
	}
	if f.ID != "" {
		m["id"] = f.ID
	}
	if f.Name != "" {
		m["name"] = f.Name
	}
	if len(f.Notes) > 0 {
		notes := make([]any, len(f.Notes))
		for i, n := range f.Notes {
			nm := map[string]any{"severity": string(n.Severity), "message": n.Message}
			if n.Code != "" {
				nm["code"] = n.Code
			}
			if n.Ref != "" {
				nm["ref"] = n.Ref
			}
			notes[i] = nm
		}
		m["notes"] = notes
	}
	if f.Scenario != nil {
		sc := map[string]any{"cron": f.Scenario.Cron}
		if f.Scenario.Name != "" {
			sc["name"] = f.Scenario.Name
		}
		m["scenario"] = sc
	}
	return m
}

// FlowFromMap rebuilds a flow from its nested-map export.
func FlowFromMap(m map[string]any) (*Flow, error) {
	if m == nil {
		return nil, NewError(ErrCodeValidation, "flow map is nil")
	}
	f := &Flow{ID: asString(m["id"]), Name: asString(m["name"])}

	for i, raw := range asSlice(m["datasets"]) {
		dm, ok := raw.(map[string]any)
		if !ok {
			return nil, NewErrorf(ErrCodeValidation, "datasets[%d] is not an object", i)
		}
		d := &Dataset{
			Name:        asString(dm["name"]),
			Role:        DatasetRole(asString(dm["role"])),
			Path:        asString(dm["path"]),
			Format:      asString(dm["format"]),
			Declared:    asBool(dm["declared"]),
			Placeholder: asBool(dm["placeholder"]),
		}
		for _, rc := range asSlice(dm["schema"]) {
			cm, _ := rc.(map[string]any)
			d.Schema = append(d.Schema, Column{
				Name:     asString(cm["name"]),
				Type:     asString(cm["type"]),
				Nullable: asBool(cm["nullable"]),
			})
		}
		f.Datasets = append(f.Datasets, d)
	}

	for i, raw := range asSlice(m["recipes"]) {
		rm, ok := raw.(map[string]any)
		if !ok {
			return nil, NewErrorf(ErrCodeValidation, "recipes[%d] is not an object", i)
		}
		r := &Recipe{
			Name:    asString(rm["name"]),
			Type:    RecipeType(asString(rm["type"])),
			Inputs:  asStrings(rm["inputs"]),
			Outputs: asStrings(rm["outputs"]),
		}
		for _, l := range asSlice(rm["source_lines"]) {
			r.SourceLines = append(r.SourceLines, asInt(l))
		}
		settings, err := SettingsFromMap(r.Type, asMap(rm["settings"]))
		if err != nil {
			return nil, fmt.Errorf("recipe %s: %w", r.Name, err)
		}
		r.Settings = settings
		f.Recipes = append(f.Recipes, r)
	}

	for _, raw := range asSlice(m["notes"]) {
		nm, _ := raw.(map[string]any)
		f.Notes = append(f.Notes, Note{
			Severity: Severity(asString(nm["severity"])),
			Code:     asString(nm["code"]),
			Message:  asString(nm["message"]),
			Ref:      asString(nm["ref"]),
		})
	}

	if sc := asMap(m["scenario"]); sc != nil {
		f.Scenario = &Scenario{Name: asString(sc["name"]), Cron: asString(sc["cron"])}
	}
	return f, nil
}

// MarshalJSON encodes the flow through its nested-map form.
func (f *Flow) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.ToMap())
}

// UnmarshalJSON decodes the nested-map form.
func (f *Flow) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out, err := FlowFromMap(m)
	if err != nil {
		return err
	}
	*f = *out
	return nil
}

// MarshalYAML encodes the flow through its nested-map form.
func (f *Flow) MarshalYAML() (any, error) {
	return f.ToMap(), nil
}

// UnmarshalYAML decodes the nested-map form.
func (f *Flow) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	out, err := FlowFromMap(m)
	if err != nil {
		return err
	}
	*f = *out
	return nil
}

// MarshalJSON encodes a recipe including its settings payload.
func (r *Recipe) MarshalJSON() ([]byte, error) {
	return json.Marshal(recipeToMap(r))
}

func datasetsToList(ds []*Dataset) []any {
	out := make([]any, len(ds))
	for i, d := range ds {
		m := map[string]any{"name": d.Name, "role": string(d.Role)}
		if len(d.Schema) > 0 {
			cols := make([]any, len(d.Schema))
			for j, c := range d.Schema {
				cm := map[string]any{"name": c.Name, "nullable": c.Nullable}
				if c.Type != "" {
					cm["type"] = c.Type
				}
				cols[j] = cm
			}
			m["schema"] = cols
		}
		if d.Path != "" {
			m["path"] = d.Path
		}
		if d.Format != "" {
			m["format"] = d.Format
		}
		if d.Declared {
			m["declared"] = true
		}
		if d.Placeholder {
			m["placeholder"] = true
		}
		out[i] = m
	}
	return out
}

func recipesToList(rs []*Recipe) []any {
	out := make([]any, len(rs))
	for i, r := range rs {
		out[i] = recipeToMap(r)
	}
	return out
}

func recipeToMap(r *Recipe) map[string]any {
	m := map[string]any{
		"name":    r.Name,
		"type":    string(r.Type),
		"inputs":  stringsToList(r.Inputs),
		"outputs": stringsToList(r.Outputs),
	}
	if r.Settings != nil {
		m["settings"] = r.Settings.toMap()
	} else {
		m["settings"] = map[string]any{}
	}
	if len(r.SourceLines) > 0 {
		lines := make([]any, len(r.SourceLines))
		for i, l := range r.SourceLines {
			lines[i] = l
		}
		m["source_lines"] = lines
	}
	return m
}

// SettingsToMap exports a settings payload with stable keys.
func SettingsToMap(s RecipeSettings) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return s.toMap()
}

// --- per-variant encoding ---

func (s *PrepareSettings) toMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, st := range s.Steps {
		m := map[string]any{"type": string(st.Type)}
		if len(st.Params) > 0 {
			m["params"] = copyMap(st.Params)
		}
		if st.SourceLine > 0 {
			m["source_line"] = st.SourceLine
		}
		steps[i] = m
	}
	return map[string]any{"steps": steps}
}

func (s *GroupingSettings) toMap() map[string]any {
	m := map[string]any{"aggregations": aggregationsToList(s.Aggregations)}
	if len(s.Keys) > 0 {
		m["keys"] = stringsToList(s.Keys)
	}
	return m
}

func (s *JoinSettings) toMap() map[string]any {
	conds := make([]any, len(s.Conditions))
	for i, c := range s.Conditions {
		conds[i] = map[string]any{"left_column": c.LeftColumn, "right_column": c.RightColumn}
	}
	return map[string]any{"join_type": s.JoinType, "conditions": conds}
}

func (s *StackSettings) toMap() map[string]any {
	m := map[string]any{"mode": s.Mode}
	if s.IgnoreIndex {
		m["ignore_index"] = true
	}
	return m
}

func (s *SplitSettings) toMap() map[string]any {
	m := map[string]any{"mode": s.Mode}
	if s.Ratio != 0 {
		m["ratio"] = s.Ratio
	}
	if s.Condition != "" {
		m["condition"] = s.Condition
	}
	if s.Seed != nil {
		m["seed"] = *s.Seed
	}
	return m
}

func (s *SortSettings) toMap() map[string]any {
	return map[string]any{"columns": sortColumnsToList(s.Columns)}
}

func (s *DistinctSettings) toMap() map[string]any {
	m := map[string]any{}
	if len(s.Columns) > 0 {
		m["columns"] = stringsToList(s.Columns)
	}
	if s.Keep != "" {
		m["keep"] = s.Keep
	}
	return m
}

func (s *TopNSettings) toMap() map[string]any {
	return map[string]any{"n": s.N, "order_by": sortColumnsToList(s.OrderBy)}
}

func (s *SampleSettings) toMap() map[string]any {
	m := map[string]any{"method": s.Method}
	if s.N != 0 {
		m["n"] = s.N
	}
	if s.Fraction != 0 {
		m["fraction"] = s.Fraction
	}
	if s.Seed != nil {
		m["seed"] = *s.Seed
	}
	return m
}

func (s *PivotSettings) toMap() map[string]any {
	m := map[string]any{}
	if len(s.Index) > 0 {
		m["index"] = stringsToList(s.Index)
	}
	if len(s.Columns) > 0 {
		m["columns"] = stringsToList(s.Columns)
	}
	if len(s.Values) > 0 {
		m["values"] = stringsToList(s.Values)
	}
	if s.AggFunc != "" {
		m["aggfunc"] = s.AggFunc
	}
	return m
}

func (s *WindowSettings) toMap() map[string]any {
	m := map[string]any{"aggregations": aggregationsToList(s.Aggregations)}
	if len(s.PartitionBy) > 0 {
		m["partition_by"] = stringsToList(s.PartitionBy)
	}
	if len(s.OrderBy) > 0 {
		m["order_by"] = sortColumnsToList(s.OrderBy)
	}
	if s.Frame != 0 {
		m["frame"] = s.Frame
	}
	return m
}

func (s *SyncSettings) toMap() map[string]any { return map[string]any{} }

func (s *CodeSettings) toMap() map[string]any {
	return map[string]any{"language": s.Language, "code": s.Code}
}

// SettingsFromMap decodes the settings variant for a recipe type.
func SettingsFromMap(t RecipeType, m map[string]any) (RecipeSettings, error) {
	switch t {
	case RecipePrepare:
		s := &PrepareSettings{}
		for _, raw := range asSlice(m["steps"]) {
			sm := asMap(raw)
			st := ProcessorStep{
				Type:       ProcessorType(asString(sm["type"])),
				SourceLine: asInt(sm["source_line"]),
			}
			if p := asMap(sm["params"]); len(p) > 0 {
				st.Params = copyMap(p)
			}
			s.Steps = append(s.Steps, st)
		}
		return s, nil
	case RecipeGrouping:
		return &GroupingSettings{Keys: asStrings(m["keys"]), Aggregations: aggregationsFromList(m["aggregations"])}, nil
	case RecipeJoin:
		s := &JoinSettings{JoinType: asString(m["join_type"])}
		for _, raw := range asSlice(m["conditions"]) {
			cm := asMap(raw)
			s.Conditions = append(s.Conditions, JoinCondition{
				LeftColumn:  asString(cm["left_column"]),
				RightColumn: asString(cm["right_column"]),
			})
		}
		return s, nil
	case RecipeStack:
		return &StackSettings{Mode: asString(m["mode"]), IgnoreIndex: asBool(m["ignore_index"])}, nil
	case RecipeSplit:
		return &SplitSettings{
			Mode:      asString(m["mode"]),
			Ratio:     asFloat(m["ratio"]),
			Condition: asString(m["condition"]),
			Seed:      asIntPtr(m["seed"]),
		}, nil
	case RecipeSort:
		return &SortSettings{Columns: sortColumnsFromList(m["columns"])}, nil
	case RecipeDistinct:
		return &DistinctSettings{Columns: asStrings(m["columns"]), Keep: asString(m["keep"])}, nil
	case RecipeTopN:
		return &TopNSettings{N: asInt(m["n"]), OrderBy: sortColumnsFromList(m["order_by"])}, nil
	case RecipeSample:
		return &SampleSettings{
			Method:   asString(m["method"]),
			N:        asInt(m["n"]),
			Fraction: asFloat(m["fraction"]),
			Seed:     asIntPtr(m["seed"]),
		}, nil
	case RecipePivot:
		return &PivotSettings{
			Index:   asStrings(m["index"]),
			Columns: asStrings(m["columns"]),
			Values:  asStrings(m["values"]),
			AggFunc: asString(m["aggfunc"]),
		}, nil
	case RecipeWindow:
		return &WindowSettings{
			PartitionBy:  asStrings(m["partition_by"]),
			OrderBy:      sortColumnsFromList(m["order_by"]),
			Frame:        asInt(m["frame"]),
			Aggregations: aggregationsFromList(m["aggregations"]),
		}, nil
	case RecipeSync:
		return &SyncSettings{}, nil
	case RecipePython:
		return &CodeSettings{Language: asString(m["language"]), Code: asString(m["code"])}, nil
	}
	return nil, NewErrorf(ErrCodeValidation, "unknown recipe type %q", t)
}

func aggregationsToList(aggs []Aggregation) []any {
	out := make([]any, len(aggs))
	for i, a := range aggs {
		m := map[string]any{"column": a.Column, "function": a.Function}
		if a.OutputColumn != "" {
			m["output_column"] = a.OutputColumn
		}
		out[i] = m
	}
	return out
}

func aggregationsFromList(v any) []Aggregation {
	var out []Aggregation
	for _, raw := range asSlice(v) {
		am := asMap(raw)
		out = append(out, Aggregation{
			Column:       asString(am["column"]),
			Function:     asString(am["function"]),
			OutputColumn: asString(am["output_column"]),
		})
	}
	return out
}

func sortColumnsToList(cols []SortColumn) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = map[string]any{"column": c.Column, "ascending": c.Ascending}
	}
	return out
}

func sortColumnsFromList(v any) []SortColumn {
	var out []SortColumn
	for _, raw := range asSlice(v) {
		cm := asMap(raw)
		out = append(out, SortColumn{Column: asString(cm["column"]), Ascending: asBool(cm["ascending"])})
	}
	return out
}

func stringsToList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// --- plain value helpers ---

// PlainValue converts typed parameter values into the JSON-like shapes
// (string, bool, int, float64, []any, map[string]any) used by processor
// step params, so exported maps round-trip without type drift.
func PlainValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int, float64:
		return val
	case int64:
		return int(val)
	case int32:
		return int(val)
	case float32:
		return float64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
		f, _ := val.Float64()
		return f
	case []string:
		return stringsToList(val)
	case []int:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = x
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = PlainValue(x)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = x
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = PlainValue(x)
		}
		return out
	case FilterCondition:
		m := map[string]any{"column": val.Column, "operator": val.Operator}
		if val.Value != nil {
			m["value"] = PlainValue(val.Value)
		}
		return m
	case []FilterCondition:
		out := make([]any, len(val))
		for i, c := range val {
			out[i] = PlainValue(c)
		}
		return out
	case []Aggregation:
		return aggregationsToList(val)
	case []SortColumn:
		return sortColumnsToList(val)
	case []JoinCondition:
		return (&JoinSettings{Conditions: val}).toMap()["conditions"]
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return string(b)
	}
	return PlainValue(out)
}

// PlainParams converts every value of a parameter map with PlainValue.
func PlainParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = PlainValue(v)
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = copyValue(x)
		}
		return out
	}
	return v
}

// SortedKeys returns the keys of a map in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

func asIntPtr(v any) *int {
	if v == nil {
		return nil
	}
	n := asInt(v)
	return &n
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func asSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		return stringsToList(s)
	case []map[string]any:
		out := make([]any, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out
	}
	return nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asStrings(v any) []string {
	items := asSlice(v)
	if len(items) == 0 {
		return nil
	}
	out := make([]string, len(items))
	for i, x := range items {
		out[i] = asString(x)
	}
	return out
}
