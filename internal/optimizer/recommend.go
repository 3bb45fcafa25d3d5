package optimizer

import (
	"fmt"

	"github.com/rendis/pyflow/pkg/schema"
)

// recommend records advice notes. Notes are deduplicated by the flow, so
// repeated runs leave the note list unchanged.
func recommend(flow *schema.Flow) {
	for _, r := range flow.Recipes {
		for _, out := range r.Outputs {
			for _, next := range flow.Consumers(out) {
				if note, ok := advise(r, next, flow); ok {
					flow.AddNote(note)
				}
			}
		}
	}
}

func advise(r, next *schema.Recipe, flow *schema.Flow) (schema.Note, bool) {
	switch {
	case r.Type == schema.RecipeJoin && startsWithFilter(next):
		return schema.Info(schema.NoteRecommendation, next.Name,
			fmt.Sprintf("%s filters rows produced by %s; filtering the join inputs first reduces the rows joined", next.Name, r.Name)), true
	case r.Type == schema.RecipeSort && next.Type == schema.RecipeGrouping && len(flow.Consumers(r.Outputs[0])) == 1:
		return schema.Info(schema.NoteRecommendation, r.Name,
			fmt.Sprintf("%s sorts rows that %s groups right after; the sort can be removed", r.Name, next.Name)), true
	case r.Type == schema.RecipePython && next.Type == schema.RecipePython:
		return schema.Info(schema.NoteRecommendation, next.Name,
			fmt.Sprintf("%s and %s are consecutive code recipes and can be combined", r.Name, next.Name)), true
	}
	return schema.Note{}, false
}

func startsWithFilter(r *schema.Recipe) bool {
	ps, ok := r.Settings.(*schema.PrepareSettings)
	if !ok || len(ps.Steps) == 0 {
		return false
	}
	switch ps.Steps[0].Type {
	case schema.ProcFilterOnValue, schema.ProcFilterOnFormula:
		return true
	}
	return false
}
