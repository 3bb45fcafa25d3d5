package catalog

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"gopkg.in/yaml.v3"

	"github.com/rendis/pyflow/pkg/schema"
)

const (
	ruleMaxSteps    = uint64(50_000)
	ruleEvalTimeout = 2 * time.Second
	maxRuleBytes    = 256 * 1024
)

// RuleFile is the YAML layout of a rule pack.
//
//	rules:
//	  - name: polars_read_csv
//	    on: module
//	    module: polars
//	    method: read_csv
//	    kind: read_data
//	    when: size(call.args) > 0
//	    extract: |
//	      {"path": call["args"][0], "format": "csv"}
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec declares one user pattern. When is a CEL guard over call and
// shape; Extract is a Starlark function body receiving the same two values
// as dicts and returning the parameter dict.
type RuleSpec struct {
	Name      string `yaml:"name"`
	On        string `yaml:"on"`
	Module    string `yaml:"module"`
	Method    string `yaml:"method"`
	Kind      string `yaml:"kind"`
	Recipe    string `yaml:"recipe"`
	Processor string `yaml:"processor"`
	Yields    string `yaml:"yields"`
	Alias     bool   `yaml:"alias"`
	Inspect   bool   `yaml:"inspect"`
	FrameArg  bool   `yaml:"frame_arg"`
	Sources   []int  `yaml:"source_args"`
	When      string `yaml:"when"`
	Extract   string `yaml:"extract"`
}

// LoadRulesFile loads a rule pack from disk. The pack is named after the
// file.
func (c *Catalog) LoadRulesFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "open rule pack: %s", err).WithCause(err)
	}
	defer f.Close()
	pack := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return c.LoadRules(f, pack)
}

// LoadRules registers every rule of a YAML pack and returns how many were
// added. Either all rules load or none do.
func (c *Catalog) LoadRules(r io.Reader, pack string) (int, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxRuleBytes+1))
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "read rule pack %s: %s", pack, err).WithCause(err)
	}
	if len(data) > maxRuleBytes {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "rule pack %s exceeds %d bytes", pack, maxRuleBytes)
	}

	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "parse rule pack %s: %s", pack, err).WithCause(err)
	}

	extractors, err := compileExtractors(pack, file.Rules)
	if err != nil {
		return 0, err
	}

	patterns := make([]*Pattern, 0, len(file.Rules))
	for i, rule := range file.Rules {
		p := &Pattern{
			Name:       rule.Name,
			On:         Receiver(rule.On),
			Module:     rule.Module,
			Method:     rule.Method,
			Kind:       schema.TransformationKind(rule.Kind),
			Recipe:     schema.RecipeType(rule.Recipe),
			Processor:  schema.ProcessorType(rule.Processor),
			Yields:     Receiver(rule.Yields),
			Alias:      rule.Alias,
			Inspect:    rule.Inspect,
			FrameArg:   rule.FrameArg,
			SourceArgs: rule.Sources,
			Guard:      rule.When,
			Rule:       pack,
		}
		if p.Kind == "" && p.Yields == "" && !p.Alias && !p.Inspect {
			return 0, schema.NewErrorf(schema.ErrCodeValidation,
				"rule %d of %s: one of kind, yields, alias or inspect is required", i, pack)
		}
		if p.Recipe != "" && !p.Recipe.Valid() {
			return 0, schema.NewErrorf(schema.ErrCodeValidation, "rule %d of %s: unknown recipe %q", i, pack, p.Recipe)
		}
		if fn, ok := extractors[i]; ok {
			p.Extract = c.starlarkExtract(pack, rule.Name, fn)
		}
		patterns = append(patterns, p)
	}

	// Validate everything before registering anything.
	staged := Empty()
	for _, p := range patterns {
		if err := staged.Register(p); err != nil {
			if fe, ok := err.(*schema.FlowError); ok {
				return 0, fe.WithRef(pack + ":" + p.Method)
			}
			return 0, err
		}
	}
	for _, p := range patterns {
		c.add(p)
	}

	c.logger.Info("rule pack loaded",
		slog.String("pack", pack),
		slog.Int("rules", len(patterns)))
	return len(patterns), nil
}

// compileExtractors renders every extract body as a function of one
// Starlark module and loads it.
func compileExtractors(pack string, rules []RuleSpec) (map[int]starlark.Value, error) {
	var b strings.Builder
	names := map[int]string{}
	for i, rule := range rules {
		body := strings.TrimSpace(rule.Extract)
		if body == "" {
			continue
		}
		name := fmt.Sprintf("extract_%d", i)
		names[i] = name
		b.WriteString("def " + name + "(call, shape):\n")
		lines := strings.Split(body, "\n")
		if len(lines) == 1 && !looksLikeStatement(lines[0]) {
			b.WriteString("    return " + strings.TrimSpace(lines[0]) + "\n\n")
			continue
		}
		for _, line := range lines {
			trimmed := strings.TrimRight(line, " \t")
			if strings.TrimSpace(trimmed) == "" {
				b.WriteString("\n")
				continue
			}
			b.WriteString("    " + trimmed + "\n")
		}
		b.WriteString("\n")
	}
	if len(names) == 0 {
		return nil, nil
	}

	thread := &starlark.Thread{Name: "rule-pack-load"}
	thread.SetMaxExecutionSteps(ruleMaxSteps)
	var globals starlark.StringDict
	err := runWithTimeout(thread, ruleEvalTimeout, func() error {
		loaded, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, pack+".star", b.String(), nil)
		globals = loaded
		return err
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "compile rule pack %s: %s", pack, err).WithCause(err)
	}

	out := make(map[int]starlark.Value, len(names))
	for i, name := range names {
		out[i] = globals[name]
	}
	return out, nil
}

func (c *Catalog) starlarkExtract(pack, rule string, fn starlark.Value) ExtractFunc {
	return func(call *Call, shape Shape) map[string]any {
		thread := &starlark.Thread{Name: "rule-extract"}
		thread.SetMaxExecutionSteps(ruleMaxSteps)

		args := starlark.Tuple{toStarlark(call.toMap()), toStarlark(shape.toMap())}
		var result starlark.Value
		err := runWithTimeout(thread, ruleEvalTimeout, func() error {
			v, err := starlark.Call(thread, fn, args, nil)
			result = v
			return err
		})
		if err != nil {
			c.logger.Warn("rule extract failed",
				slog.String("pack", pack),
				slog.String("rule", rule),
				slog.String("error", err.Error()))
			return nil
		}
		params, ok := fromStarlark(result).(map[string]any)
		if !ok {
			c.logger.Warn("rule extract returned a non-dict value",
				slog.String("pack", pack),
				slog.String("rule", rule),
				slog.String("type", result.Type()))
			return nil
		}
		return params
	}
}

func toStarlark(v any) starlark.Value {
	switch val := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(val)
	case int:
		return starlark.MakeInt(val)
	case int64:
		return starlark.MakeInt64(val)
	case float64:
		return starlark.Float(val)
	case string:
		return starlark.String(val)
	case []string:
		elems := make([]starlark.Value, len(val))
		for i, s := range val {
			elems[i] = starlark.String(s)
		}
		return starlark.NewList(elems)
	case []any:
		elems := make([]starlark.Value, len(val))
		for i, item := range val {
			elems[i] = toStarlark(item)
		}
		return starlark.NewList(elems)
	case map[string]any:
		d := starlark.NewDict(len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_ = d.SetKey(starlark.String(k), toStarlark(val[k]))
		}
		return d
	default:
		return starlark.String(fmt.Sprint(val))
	}
}

func fromStarlark(v starlark.Value) any {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(val)
	case starlark.Int:
		if i, ok := val.Int64(); ok && i >= math.MinInt && i <= math.MaxInt {
			return int(i)
		}
		return val.String()
	case starlark.Float:
		return float64(val)
	case starlark.String:
		return string(val)
	case *starlark.List:
		out := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			out[i] = fromStarlark(val.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromStarlark(item)
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				key = item[0].String()
			}
			out[key] = fromStarlark(item[1])
		}
		return out
	default:
		return v.String()
	}
}

func runWithTimeout(thread *starlark.Thread, timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		thread.Cancel("rule execution timed out")
		<-done
		return schema.NewErrorf(schema.ErrCodeValidation, "rule execution timed out after %s", timeout)
	}
}

func looksLikeStatement(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"return ", "if ", "for ", "def ", "pass"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return strings.Contains(trimmed, " = ")
}
