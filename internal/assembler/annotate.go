package assembler

import (
	"github.com/rendis/pyflow/internal/expressions"
	"github.com/rendis/pyflow/pkg/schema"
)

// annotateSchemas records on each dataset the columns that recipes reveal:
// columns a recipe reads belong to its input, columns it keeps or creates
// belong to its output.
func annotateSchemas(flow *schema.Flow) {
	for _, r := range flow.Recipes {
		if len(r.Inputs) == 0 || len(r.Outputs) == 0 {
			continue
		}
		in := flow.Dataset(r.Inputs[0])
		outs := make([]*schema.Dataset, 0, len(r.Outputs))
		for _, name := range r.Outputs {
			if ds := flow.Dataset(name); ds != nil {
				outs = append(outs, ds)
			}
		}

		switch s := r.Settings.(type) {
		case *schema.PrepareSettings:
			annotatePrepare(in, outs, s)
		case *schema.GroupingSettings:
			for _, k := range s.Keys {
				addColumn(in, k, "")
				addColumns(outs, k, "")
			}
			for _, a := range s.Aggregations {
				if a.Column != "*" {
					addColumn(in, a.Column, "")
				}
				addColumns(outs, aggregationOutput(a), aggregationType(a.Function))
			}
		case *schema.JoinSettings:
			var right *schema.Dataset
			if len(r.Inputs) > 1 {
				right = flow.Dataset(r.Inputs[1])
			}
			for _, c := range s.Conditions {
				addColumn(in, c.LeftColumn, "")
				addColumn(right, c.RightColumn, "")
				addColumns(outs, c.LeftColumn, "")
			}
		case *schema.SortSettings:
			for _, c := range s.Columns {
				addColumn(in, c.Column, "")
			}
		case *schema.TopNSettings:
			for _, c := range s.OrderBy {
				addColumn(in, c.Column, "")
			}
		case *schema.DistinctSettings:
			for _, c := range s.Columns {
				addColumn(in, c, "")
			}
		case *schema.PivotSettings:
			for _, c := range append(append(append([]string(nil), s.Index...), s.Columns...), s.Values...) {
				addColumn(in, c, "")
			}
		case *schema.WindowSettings:
			for _, c := range s.PartitionBy {
				addColumn(in, c, "")
			}
			for _, a := range s.Aggregations {
				if a.Column != "*" {
					addColumn(in, a.Column, "")
				}
				addColumns(outs, aggregationOutput(a), aggregationType(a.Function))
			}
		}
	}
}

func annotatePrepare(in *schema.Dataset, outs []*schema.Dataset, s *schema.PrepareSettings) {
	created := map[string]bool{}
	dropped := map[string]bool{}
	for _, st := range s.Steps {
		cols := stringList(st.Params[schema.ParamColumns])
		read := cols
		if expr, ok := st.Params[schema.ParamExpression].(string); ok {
			if refs, err := expressions.ReferencedColumns(expr); err == nil {
				read = append(append([]string(nil), cols...), refs...)
			}
		}
		for _, c := range read {
			if !created[c] {
				addColumn(in, c, "")
			}
		}
		typ := stepType(st)
		switch st.Type {
		case schema.ProcColumnsSelector:
			keep, _ := st.Params[schema.ParamKeep].(bool)
			for _, c := range cols {
				if keep {
					addColumns(outs, c, "")
				} else {
					dropped[c] = true
				}
			}
			continue
		case schema.ProcColumnRenamer:
			if mapping, ok := st.Params[schema.ParamMapping].(map[string]any); ok {
				for _, old := range schema.SortedKeys(mapping) {
					if !created[old] {
						addColumn(in, old, "")
					}
					if name, ok := mapping[old].(string); ok {
						created[name] = true
						addColumns(outs, name, "")
					}
				}
			}
			continue
		}

		target := cols
		if out, ok := st.Params[schema.ParamOutputColumn].(string); ok && out != "" {
			target = []string{out}
			created[out] = true
		}
		for _, c := range target {
			dropped[c] = false
			addColumns(outs, c, typ)
			if st.Type == schema.ProcRemoveRowsOnEmpty {
				for _, ds := range outs {
					if col := ds.Column(c); col != nil {
						col.Nullable = false
					}
				}
			}
		}
	}
	for _, ds := range outs {
		kept := ds.Schema[:0]
		for _, c := range ds.Schema {
			if !dropped[c.Name] {
				kept = append(kept, c)
			}
		}
		ds.Schema = kept
	}
}

func stepType(st schema.ProcessorStep) string {
	switch st.Type {
	case schema.ProcTypeSetter:
		dtype, _ := st.Params[schema.ParamDType].(string)
		return columnType(dtype)
	case schema.ProcDateParser:
		return "date"
	case schema.ProcDateComponents:
		return "int"
	case schema.ProcStringTransformer:
		return "string"
	}
	return ""
}

func aggregationOutput(a schema.Aggregation) string {
	if a.OutputColumn != "" {
		return a.OutputColumn
	}
	if a.Column == "*" {
		return a.Function
	}
	return a.Column + "_" + a.Function
}

func addColumns(ds []*schema.Dataset, name, typ string) {
	for _, d := range ds {
		addColumn(d, name, typ)
	}
}

func addColumn(ds *schema.Dataset, name, typ string) {
	if ds == nil || name == "" {
		return
	}
	if col := ds.Column(name); col != nil {
		if typ != "" {
			col.Type = typ
		}
		return
	}
	ds.Schema = append(ds.Schema, schema.Column{Name: name, Type: typ, Nullable: true})
}
