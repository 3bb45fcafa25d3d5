package semantic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rendis/pyflow/pkg/schema"
)

// envelopeQuery reshapes the answer layouts models produce into
// {steps, summary, warnings}. It accepts a bare step array and the
// steps/data_steps/operations/analysis.steps spellings, drops null
// fields, numbers unnumbered steps and coerces scalar list fields.
const envelopeQuery = `
def listify: if type == "array" then . elif . == null then null else [.] end;
def sortcol: if type == "string" then {column: ., ascending: true} else . end;
def clean:
  if type != "object" then .
  else with_entries(select(.value != null))
    | if has("input_datasets") then .input_datasets |= listify else . end
    | if has("columns") then .columns |= listify else . end
    | if has("group_by_columns") then .group_by_columns |= listify else . end
    | if has("sort_columns") then .sort_columns |= (listify | map(sortcol)) else . end
  end;
(if type == "array" then {steps: .} else . end)
| {
    steps: (.steps // .data_steps // .operations // .analysis.steps),
    summary: (.summary // .analysis.summary // ""),
    warnings: ((.warnings // []) | listify | map(if type == "string" then . else tojson end))
  }
| if (.steps | type) == "array" then
    .steps |= (to_entries | map(
      .key as $i
      | .value
      | clean
      | if type == "object" and .step_number == null then .step_number = $i + 1 else . end))
  else . end
| with_entries(select(.value != null))`

// responseSchema describes a normalized answer (JSON Schema 2020-12).
var responseSchema = []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": { "type": "array", "items": { "$ref": "#/$defs/step" } },
    "summary": { "type": "string" },
    "warnings": { "type": "array", "items": { "type": "string" } }
  },
  "$defs": {
    "strings": { "type": "array", "items": { "type": "string" } },
    "step": {
      "type": "object",
      "required": ["operation"],
      "properties": {
        "step_number": { "type": "integer", "minimum": 0 },
        "operation": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "input_datasets": { "$ref": "#/$defs/strings" },
        "output_dataset": { "type": "string" },
        "columns": { "$ref": "#/$defs/strings" },
        "filter_conditions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["column"],
            "properties": {
              "column": { "type": "string" },
              "operator": { "type": "string" }
            }
          }
        },
        "group_by_columns": { "$ref": "#/$defs/strings" },
        "aggregations": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["column", "function"],
            "properties": {
              "column": { "type": "string" },
              "function": { "type": "string" },
              "output_column": { "type": "string" }
            }
          }
        },
        "join_type": { "type": "string" },
        "join_conditions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["left_column", "right_column"],
            "properties": {
              "left_column": { "type": "string" },
              "right_column": { "type": "string" }
            }
          }
        },
        "column_mapping": { "type": "object", "additionalProperties": { "type": "string" } },
        "sort_columns": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["column"],
            "properties": {
              "column": { "type": "string" },
              "ascending": { "type": "boolean" }
            }
          }
        },
        "parameters": { "type": "object" },
        "code": { "type": "string" },
        "reasoning": { "type": "string" },
        "requires_opaque_recipe": { "type": "boolean" },
        "suggested_recipe": { "type": "string" },
        "suggested_processor": { "type": "string" },
        "source_lines": { "type": "array", "items": { "type": "integer", "minimum": 1 } }
      }
    }
  }
}`)

// normalize reshapes and validates a raw answer, returning the canonical
// JSON document.
func (a *Analyzer) normalize(ctx context.Context, raw any) ([]byte, error) {
	out, err := a.jq.Run(ctx, envelopeQuery, raw)
	if err != nil {
		return nil, parseError("model response could not be normalized", err)
	}
	if len(out) != 1 {
		return nil, schema.NewErrorf(schema.ErrCodeResponseParse,
			"model response normalized to %d documents", len(out))
	}
	doc := out[0]
	if err := a.validator.ValidateDocument(doc, responseSchema); err != nil {
		return nil, parseError("model response does not describe data steps", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, parseError("model response could not be encoded", err)
	}
	return b, nil
}

func decode(doc []byte) (*schema.AnalysisResult, error) {
	var result schema.AnalysisResult
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, parseError("model response could not be decoded", err)
	}
	if result.Steps == nil {
		result.Steps = []schema.DataStep{}
	}
	return &result, nil
}

func parseError(msg string, cause error) *schema.FlowError {
	fe := schema.NewError(schema.ErrCodeResponseParse, msg).WithCause(cause)
	var inner *schema.FlowError
	if errors.As(cause, &inner) && inner.Details != nil {
		fe = fe.WithDetails(inner.Details)
	}
	return fe
}
