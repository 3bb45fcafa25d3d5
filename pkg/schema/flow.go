package schema

import "sort"

// DatasetRole is the position of a dataset in the flow.
type DatasetRole string

const (
	RoleInput        DatasetRole = "input"
	RoleIntermediate DatasetRole = "intermediate"
	RoleOutput       DatasetRole = "output"
)

// RecipeType tags a recipe and selects its settings variant.
type RecipeType string

const (
	RecipePrepare  RecipeType = "prepare"
	RecipeGrouping RecipeType = "grouping"
	RecipeJoin     RecipeType = "join"
	RecipeStack    RecipeType = "vstack"
	RecipeSplit    RecipeType = "split"
	RecipeSort     RecipeType = "sort"
	RecipeDistinct RecipeType = "distinct"
	RecipeTopN     RecipeType = "topn"
	RecipeSample   RecipeType = "sampling"
	RecipePivot    RecipeType = "pivot"
	RecipeWindow   RecipeType = "window"
	RecipeSync     RecipeType = "sync"
	RecipePython   RecipeType = "python"
)

// AllRecipeTypes lists every recipe type in a stable order.
var AllRecipeTypes = []RecipeType{
	RecipePrepare, RecipeGrouping, RecipeJoin, RecipeStack, RecipeSplit,
	RecipeSort, RecipeDistinct, RecipeTopN, RecipeSample, RecipePivot,
	RecipeWindow, RecipeSync, RecipePython,
}

// Valid reports whether t is a known recipe type.
func (t RecipeType) Valid() bool {
	for _, rt := range AllRecipeTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// ProcessorType names a step inside a Prepare recipe.
type ProcessorType string

const (
	ProcFillEmpty          ProcessorType = "FillEmptyWithValue"
	ProcRemoveRowsOnEmpty  ProcessorType = "RemoveRowsOnEmpty"
	ProcColumnRenamer      ProcessorType = "ColumnRenamer"
	ProcColumnsSelector    ProcessorType = "ColumnsSelector"
	ProcFilterOnValue      ProcessorType = "FilterOnValue"
	ProcFilterOnFormula    ProcessorType = "FilterOnFormula"
	ProcStringTransformer  ProcessorType = "StringTransformer"
	ProcTypeSetter         ProcessorType = "TypeSetter"
	ProcDateParser         ProcessorType = "DateParser"
	ProcDateComponents     ProcessorType = "ExtractDateComponents"
	ProcFormula            ProcessorType = "CreateColumnWithGREL"
	ProcFindReplace        ProcessorType = "FindReplace"
	ProcRound              ProcessorType = "RoundProcessor"
	ProcClip               ProcessorType = "MinMaxProcessor"
	ProcBinner             ProcessorType = "Binner"
	ProcCategoricalEncoder ProcessorType = "CategoricalEncoder"
	ProcNormalizer         ProcessorType = "Normalizer"
	ProcFold               ProcessorType = "FoldMultipleColumns"
)

// Column is one entry of a dataset schema.
type Column struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
}

// Dataset is a named data container node.
type Dataset struct {
	Name   string      `json:"name"`
	Role   DatasetRole `json:"role"`
	Schema []Column    `json:"schema,omitempty"`
	Path   string      `json:"path,omitempty"`
	Format string      `json:"format,omitempty"`
	// Declared marks datasets explicitly read or written by the script.
	Declared bool `json:"declared,omitempty"`
	// Placeholder marks inputs synthesized for unresolved references.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Column returns the schema column with the given name, or nil.
func (d *Dataset) Column(name string) *Column {
	for i := range d.Schema {
		if d.Schema[i].Name == name {
			return &d.Schema[i]
		}
	}
	return nil
}

// Recipe is a transformation node.
type Recipe struct {
	Name        string         `json:"name"`
	Type        RecipeType     `json:"type"`
	Inputs      []string       `json:"inputs"`
	Outputs     []string       `json:"outputs"`
	Settings    RecipeSettings `json:"-"`
	SourceLines []int          `json:"source_lines,omitempty"`
}

// Scenario is an optional DSS scenario trigger attached to the flow.
type Scenario struct {
	Name string `json:"name,omitempty"`
	Cron string `json:"cron"`
}

// Flow is the dataset/recipe graph produced for one script.
type Flow struct {
	ID       string     `json:"id,omitempty"`
	Name     string     `json:"name,omitempty"`
	Datasets []*Dataset `json:"datasets"`
	Recipes  []*Recipe  `json:"recipes"`
	Notes    []Note     `json:"notes,omitempty"`
	Scenario *Scenario  `json:"scenario,omitempty"`
}

// NewFlow creates an empty flow.
func NewFlow(name string) *Flow {
	return &Flow{Name: name}
}

// Dataset returns the dataset with the given name, or nil.
func (f *Flow) Dataset(name string) *Dataset {
	for _, d := range f.Datasets {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Recipe returns the recipe with the given name, or nil.
func (f *Flow) Recipe(name string) *Recipe {
	for _, r := range f.Recipes {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Producer returns the recipe that outputs the dataset, or nil.
func (f *Flow) Producer(dataset string) *Recipe {
	for _, r := range f.Recipes {
		for _, out := range r.Outputs {
			if out == dataset {
				return r
			}
		}
	}
	return nil
}

// Consumers returns the recipes that read the dataset, in flow order.
func (f *Flow) Consumers(dataset string) []*Recipe {
	var out []*Recipe
	for _, r := range f.Recipes {
		for _, in := range r.Inputs {
			if in == dataset {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// RemoveDataset deletes a dataset node by name.
func (f *Flow) RemoveDataset(name string) {
	kept := f.Datasets[:0]
	for _, d := range f.Datasets {
		if d.Name != name {
			kept = append(kept, d)
		}
	}
	f.Datasets = kept
}

// RemoveRecipe deletes a recipe node by name.
func (f *Flow) RemoveRecipe(name string) {
	kept := f.Recipes[:0]
	for _, r := range f.Recipes {
		if r.Name != name {
			kept = append(kept, r)
		}
	}
	f.Recipes = kept
}

// AddNote appends a note unless an identical one is already recorded.
func (f *Flow) AddNote(n Note) bool {
	if HasNote(f.Notes, n) {
		return false
	}
	f.Notes = append(f.Notes, n)
	return true
}

// RecipesOfType returns recipes with the given type, in flow order.
func (f *Flow) RecipesOfType(t RecipeType) []*Recipe {
	var out []*Recipe
	for _, r := range f.Recipes {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// DatasetsWithRole returns the sorted names of datasets with a role.
func (f *Flow) DatasetsWithRole(role DatasetRole) []string {
	var names []string
	for _, d := range f.Datasets {
		if d.Role == role {
			names = append(names, d.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() *Flow {
	out := &Flow{ID: f.ID, Name: f.Name}
	for _, d := range f.Datasets {
		cp := *d
		cp.Schema = append([]Column(nil), d.Schema...)
		out.Datasets = append(out.Datasets, &cp)
	}
	for _, r := range f.Recipes {
		cp := *r
		cp.Inputs = append([]string(nil), r.Inputs...)
		cp.Outputs = append([]string(nil), r.Outputs...)
		cp.SourceLines = append([]int(nil), r.SourceLines...)
		if r.Settings != nil {
			cp.Settings = r.Settings.clone()
		}
		out.Recipes = append(out.Recipes, &cp)
	}
	out.Notes = append([]Note(nil), f.Notes...)
	if f.Scenario != nil {
		sc := *f.Scenario
		out.Scenario = &sc
	}
	return out
}
