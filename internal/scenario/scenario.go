// Package scenario parses the cron trigger attached to a flow as a DSS
// scenario and computes its fire times.
package scenario

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/pyflow/pkg/schema"
)

// Standard five-field expressions plus descriptors such as @daily.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Trigger is a parsed scenario schedule.
type Trigger struct {
	Expr     string
	schedule cron.Schedule
}

// Parse validates a cron expression. Invalid expressions yield a
// VALIDATION_ERROR.
func Parse(expr string) (*Trigger, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse cron expression %q: %v", expr, err).WithCause(err)
	}
	return &Trigger{Expr: expr, schedule: schedule}, nil
}

// Next returns the first fire time after from.
func (t *Trigger) Next(from time.Time) time.Time {
	return t.schedule.Next(from)
}

// Upcoming returns the next n fire times after from.
func (t *Trigger) Upcoming(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		from = t.schedule.Next(from)
		if from.IsZero() {
			break
		}
		out = append(out, from)
	}
	return out
}

// Attach validates expr and sets it as the flow's scenario. An empty name
// defaults to "<flow>_schedule".
func Attach(flow *schema.Flow, name, expr string) error {
	if _, err := Parse(expr); err != nil {
		return err
	}
	if name == "" {
		name = fmt.Sprintf("%s_schedule", flow.Name)
	}
	flow.Scenario = &schema.Scenario{Name: name, Cron: expr}
	return nil
}
