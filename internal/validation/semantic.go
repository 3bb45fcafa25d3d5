package validation

import (
	"fmt"
	"regexp"

	"github.com/rendis/pyflow/internal/scenario"
	"github.com/rendis/pyflow/pkg/schema"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// validateSemantic checks what the JSON Schema cannot express: unique
// names, resolvable references, single producers, settings matching the
// recipe type, role consistency and the scenario trigger.
func validateSemantic(flow *schema.Flow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	datasets := make(map[string]bool, len(flow.Datasets))
	for i, d := range flow.Datasets {
		path := fmt.Sprintf("datasets[%d]", i)
		if datasets[d.Name] {
			result.AddError(path+".name", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate dataset name %q", d.Name))
		}
		datasets[d.Name] = true
		if !validName.MatchString(d.Name) {
			result.AddWarning(path+".name", schema.ErrCodeValidation,
				fmt.Sprintf("dataset name %q contains characters outside [A-Za-z0-9_]", d.Name))
		}
	}

	recipes := make(map[string]bool, len(flow.Recipes))
	producers := make(map[string]string)
	for _, r := range flow.Recipes {
		path := fmt.Sprintf("recipes[%s]", r.Name)
		if recipes[r.Name] {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("duplicate recipe name %q", r.Name))
		}
		recipes[r.Name] = true
		validateRecipe(r, path, datasets, result)

		for _, out := range r.Outputs {
			if prev, ok := producers[out]; ok {
				result.AddError(path+".outputs", schema.ErrCodeValidation,
					fmt.Sprintf("dataset %q is produced by both %s and %s", out, prev, r.Name))
				continue
			}
			producers[out] = r.Name
		}
	}

	validateRoles(flow, producers, result)

	if flow.Scenario != nil {
		if _, err := scenario.Parse(flow.Scenario.Cron); err != nil {
			result.AddError("scenario.cron", schema.ErrCodeValidation, err.Error())
		}
	}
	return result
}

func validateRecipe(r *schema.Recipe, path string, datasets map[string]bool, result *schema.ValidationResult) {
	if !r.Type.Valid() {
		result.AddError(path+".type", schema.ErrCodeValidation,
			fmt.Sprintf("unknown recipe type %q", r.Type))
	}
	if len(r.Inputs) == 0 {
		result.AddError(path+".inputs", schema.ErrCodeValidation, "recipe has no inputs")
	}
	if len(r.Outputs) == 0 {
		result.AddError(path+".outputs", schema.ErrCodeValidation, "recipe has no outputs")
	}
	for j, in := range r.Inputs {
		if !datasets[in] {
			result.AddError(fmt.Sprintf("%s.inputs[%d]", path, j), schema.ErrCodeDanglingReference,
				fmt.Sprintf("references non-existent dataset %q", in))
		}
	}
	for j, out := range r.Outputs {
		if !datasets[out] {
			result.AddError(fmt.Sprintf("%s.outputs[%d]", path, j), schema.ErrCodeDanglingReference,
				fmt.Sprintf("references non-existent dataset %q", out))
		}
	}

	switch {
	case r.Settings == nil:
		result.AddWarning(path+".settings", schema.NoteEmptySettings, "recipe has no settings")
	case r.Settings.RecipeType() != r.Type:
		result.AddError(path+".settings", schema.ErrCodeValidation,
			fmt.Sprintf("%s settings on a %s recipe", r.Settings.RecipeType(), r.Type))
	}

	switch r.Type {
	case schema.RecipeJoin:
		if len(r.Inputs) < 2 {
			result.AddWarning(path+".inputs", schema.ErrCodeValidation, "join recipe reads fewer than two datasets")
		}
	case schema.RecipePrepare:
		if ps, ok := r.Settings.(*schema.PrepareSettings); ok {
			for j, st := range ps.Steps {
				if st.Type == "" {
					result.AddError(fmt.Sprintf("%s.settings.steps[%d]", path, j),
						schema.ErrCodeValidation, "processor step has no type")
				}
			}
		}
	}
}

// validateRoles warns when a dataset role disagrees with its position in
// the graph.
func validateRoles(flow *schema.Flow, producers map[string]string, result *schema.ValidationResult) {
	consumed := make(map[string]bool)
	for _, r := range flow.Recipes {
		for _, in := range r.Inputs {
			consumed[in] = true
		}
	}
	for i, d := range flow.Datasets {
		_, produced := producers[d.Name]
		var want schema.DatasetRole
		switch {
		case !produced:
			want = schema.RoleInput
		case !consumed[d.Name]:
			want = schema.RoleOutput
		default:
			want = schema.RoleIntermediate
		}
		if d.Role != want {
			result.AddWarning(fmt.Sprintf("datasets[%d].role", i), schema.ErrCodeValidation,
				fmt.Sprintf("dataset %q has role %s but its position makes it %s", d.Name, d.Role, want))
		}
	}
}
