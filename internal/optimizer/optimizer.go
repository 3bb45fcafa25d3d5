// Package optimizer rewrites an assembled flow in place: it merges chains
// of Prepare recipes, drops orphan datasets, flags recipes with empty
// settings and records recommendations.
package optimizer

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/rendis/pyflow/internal/graph"
	"github.com/rendis/pyflow/pkg/schema"
)

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Optimizer) { o.logger = l }
}

// WithoutRecommendations disables the recommendation pass.
func WithoutRecommendations() Option {
	return func(o *Optimizer) { o.recommend = false }
}

// Optimizer applies the optimization passes to a flow.
type Optimizer struct {
	logger    *slog.Logger
	recommend bool
}

// New creates an Optimizer.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{logger: slog.Default(), recommend: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize rewrites flow in place and returns the notes it added. Running
// it again on its own output changes nothing and adds no notes.
func (o *Optimizer) Optimize(flow *schema.Flow) []schema.Note {
	if flow == nil {
		return nil
	}
	before := len(flow.Notes)

	merged := o.mergePrepares(flow)
	removed := removeOrphans(flow)
	flagEmpty(flow)
	if o.recommend {
		recommend(flow)
	}

	added := slices.Clone(flow.Notes[before:])
	o.logger.Debug("flow optimized",
		slog.String("flow", flow.Name),
		slog.Int("merged", merged),
		slog.Int("orphans_removed", removed),
		slog.Int("notes", len(added)),
	)
	return added
}

// mergePrepares folds Prepare recipes into their upstream Prepare until no
// candidate pair remains. Every merge removes a recipe, so the number of
// passes is bounded by the recipe count.
func (o *Optimizer) mergePrepares(flow *schema.Flow) int {
	merged := 0
	skip := map[string]bool{}
	limit := len(flow.Recipes)
	for pass := 0; pass < limit; pass++ {
		up, down, mid := findMergeable(flow, skip)
		if up == nil {
			break
		}
		snapshot := flow.Clone()
		upName, downName := up.Name, down.Name
		fold(flow, up, down, mid)

		if err := checkInvariants(flow); err != nil {
			restore(flow, snapshot)
			skip[upName+"|"+downName] = true
			flow.AddNote(schema.Warning(schema.NoteMergeReverted, downName,
				fmt.Sprintf("merge of %s into %s reverted: %v", downName, upName, err)))
			o.logger.Warn("prepare merge reverted",
				slog.String("upstream", upName),
				slog.String("downstream", downName),
				slog.String("error", err.Error()),
			)
			continue
		}
		merged++
		flow.AddNote(schema.Info(schema.NoteMergedPrepare, upName,
			fmt.Sprintf("%s merged into %s through %s", downName, upName, mid)))
	}
	return merged
}

// findMergeable returns the first pair of Prepare recipes in flow order
// joined by an undeclared dataset that nothing else reads.
func findMergeable(flow *schema.Flow, skip map[string]bool) (up, down *schema.Recipe, mid string) {
	for _, r := range flow.Recipes {
		if r.Type != schema.RecipePrepare || len(r.Outputs) != 1 {
			continue
		}
		out := r.Outputs[0]
		ds := flow.Dataset(out)
		if ds == nil || ds.Declared || ds.Placeholder {
			continue
		}
		consumers := flow.Consumers(out)
		if len(consumers) != 1 {
			continue
		}
		next := consumers[0]
		if next == r || next.Type != schema.RecipePrepare || len(next.Inputs) != 1 {
			continue
		}
		if skip[r.Name+"|"+next.Name] {
			continue
		}
		return r, next, out
	}
	return nil, nil, ""
}

// fold appends down's steps to up, hands up down's outputs and drops the
// intermediate dataset between them.
func fold(flow *schema.Flow, up, down *schema.Recipe, mid string) {
	ups, _ := up.Settings.(*schema.PrepareSettings)
	downs, _ := down.Settings.(*schema.PrepareSettings)
	if ups == nil {
		ups = &schema.PrepareSettings{}
		up.Settings = ups
	}
	if downs != nil {
		ups.Steps = append(ups.Steps, downs.Steps...)
	}
	up.Outputs = slices.Clone(down.Outputs)
	up.SourceLines = mergeLines(up.SourceLines, down.SourceLines)
	flow.RemoveRecipe(down.Name)
	flow.RemoveDataset(mid)
}

// checkInvariants verifies the flow is still a DAG whose datasets each
// have at most one producer.
func checkInvariants(flow *schema.Flow) error {
	producers := map[string]string{}
	for _, r := range flow.Recipes {
		for _, out := range r.Outputs {
			if prev, ok := producers[out]; ok {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"dataset %s produced by %s and %s", out, prev, r.Name).WithRef(out)
			}
			producers[out] = r.Name
		}
	}
	_, err := graph.ParseDAG(flow)
	return err
}

func restore(flow, snapshot *schema.Flow) {
	flow.Datasets = snapshot.Datasets
	flow.Recipes = snapshot.Recipes
	flow.Notes = snapshot.Notes
}

// removeOrphans drops datasets that no recipe touches, unless the script
// declared them. Recipes are never removed.
func removeOrphans(flow *schema.Flow) int {
	var orphans []string
	for _, d := range flow.Datasets {
		if d.Declared {
			continue
		}
		if flow.Producer(d.Name) == nil && len(flow.Consumers(d.Name)) == 0 {
			orphans = append(orphans, d.Name)
		}
	}
	for _, name := range orphans {
		flow.RemoveDataset(name)
		flow.AddNote(schema.Info(schema.NoteRemovedOrphan, name,
			fmt.Sprintf("dataset %s is not connected to any recipe and was removed", name)))
	}
	return len(orphans)
}

func flagEmpty(flow *schema.Flow) {
	for _, r := range flow.Recipes {
		if r.Settings == nil || r.Settings.Empty() {
			flow.AddNote(schema.EmptySettingsNote(r))
		}
	}
}

func mergeLines(a, b []int) []int {
	out := slices.Concat(a, b)
	slices.Sort(out)
	return slices.Compact(out)
}
