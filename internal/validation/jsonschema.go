package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rendis/pyflow/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const flowSchemaURL = "https://pyflow.dev/schemas/flow.json"

// flowSchemaJSON is the JSON Schema of the nested-map flow export.
const flowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://pyflow.dev/schemas/flow.json",
  "type": "object",
  "required": ["datasets", "recipes"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string" },
    "datasets": {
      "type": "array",
      "items": { "$ref": "#/$defs/dataset" }
    },
    "recipes": {
      "type": "array",
      "items": { "$ref": "#/$defs/recipe" }
    },
    "notes": {
      "type": "array",
      "items": { "$ref": "#/$defs/note" }
    },
    "scenario": {
      "type": "object",
      "required": ["cron"],
      "properties": {
        "name": { "type": "string" },
        "cron": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false,
  "$defs": {
    "dataset": {
      "type": "object",
      "required": ["name", "role"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "role": { "enum": ["input", "intermediate", "output"] },
        "schema": {
          "type": "array",
          "items": { "$ref": "#/$defs/column" }
        },
        "path": { "type": "string" },
        "format": { "type": "string" },
        "declared": { "type": "boolean" },
        "placeholder": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "column": {
      "type": "object",
      "required": ["name", "nullable"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "type": { "type": "string" },
        "nullable": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "recipe": {
      "type": "object",
      "required": ["name", "type", "inputs", "outputs", "settings"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "type": {
          "enum": ["prepare", "grouping", "join", "vstack", "split", "sort", "distinct",
                   "topn", "sampling", "pivot", "window", "sync", "python"]
        },
        "inputs": { "type": "array", "items": { "type": "string" } },
        "outputs": { "type": "array", "items": { "type": "string" } },
        "settings": { "type": "object" },
        "source_lines": {
          "type": "array",
          "items": { "type": "integer", "minimum": 1 }
        }
      },
      "additionalProperties": false,
      "allOf": [
        {
          "if": { "properties": { "type": { "const": "prepare" } } },
          "then": { "properties": { "settings": { "$ref": "#/$defs/prepare" } } }
        },
        {
          "if": { "properties": { "type": { "const": "join" } } },
          "then": { "properties": { "settings": { "$ref": "#/$defs/join" } } }
        },
        {
          "if": { "properties": { "type": { "const": "python" } } },
          "then": { "properties": { "settings": { "required": ["language", "code"] } } }
        }
      ]
    },
    "prepare": {
      "type": "object",
      "required": ["steps"],
      "properties": {
        "steps": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type"],
            "properties": {
              "type": { "type": "string", "minLength": 1 },
              "params": { "type": "object" },
              "source_line": { "type": "integer", "minimum": 1 }
            },
            "additionalProperties": false
          }
        }
      }
    },
    "join": {
      "type": "object",
      "required": ["join_type", "conditions"],
      "properties": {
        "join_type": { "enum": ["inner", "left", "right", "outer", "cross", "left_anti", "right_anti"] },
        "conditions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["left_column", "right_column"],
            "properties": {
              "left_column": { "type": "string" },
              "right_column": { "type": "string" }
            }
          }
        }
      }
    },
    "note": {
      "type": "object",
      "required": ["severity", "message"],
      "properties": {
        "severity": { "enum": ["info", "warning", "error"] },
        "code": { "type": "string" },
        "message": { "type": "string" },
        "ref": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates flow exports and arbitrary documents
// against JSON Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	flowSchema *jsonschema.Schema

	// mu guards the cache of compiled document schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the flow schema
// pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(flowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal flow schema: %w", err)
	}
	if err := c.AddResource(flowSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add flow schema resource: %w", err)
	}
	compiled, err := c.Compile(flowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile flow schema: %w", err)
	}
	return &JSONSchemaValidator{
		flowSchema: compiled,
		cache:      make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateFlow validates the nested-map export of flow.
func (v *JSONSchemaValidator) ValidateFlow(flow *schema.Flow) error {
	if flow == nil {
		return schema.NewError(schema.ErrCodeValidation, "flow is nil")
	}
	doc, err := toJSONValue(flow.ToMap())
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize flow").WithCause(err)
	}
	if err := v.flowSchema.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// ValidateDocument validates doc against a JSON Schema given as raw bytes.
// Compiled schemas are cached by content.
func (v *JSONSchemaValidator) ValidateDocument(doc any, schemaBytes []byte) error {
	if len(schemaBytes) == 0 {
		return nil
	}
	compiled, err := v.getOrCompile(schemaBytes)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid document schema").WithCause(err)
	}
	value, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize document").WithCause(err)
	}
	if err := compiled.Validate(value); err != nil {
		return toFlowError(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("pyflow://document-schema/%d", len(v.cache))
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, as the jsonschema library expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError converts a jsonschema.ValidationError into a FlowError that
// lists every leaf violation.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
