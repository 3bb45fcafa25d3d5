package semantic

import (
	"strings"

	"github.com/rendis/pyflow/pkg/schema"
)

const analysisInstructions = `You are a data engineer translating a Python data-processing script into a visual data pipeline.

Read the script below and list every data transformation it performs, in execution order.
Ignore printing, plotting and other statements that do not change data.

Answer with a single JSON object of this shape and nothing else:

{
  "steps": [
    {
      "step_number": 1,
      "operation": "<one of the operations listed below>",
      "description": "<short description>",
      "input_datasets": ["<variable or file the step reads>"],
      "output_dataset": "<variable or file the step writes>",
      "columns": ["<columns involved>"],
      "filter_conditions": [{"column": "", "operator": "", "value": null}],
      "group_by_columns": [],
      "aggregations": [{"column": "", "function": "", "output_column": ""}],
      "join_type": "inner|left|right|outer|cross",
      "join_conditions": [{"left_column": "", "right_column": ""}],
      "column_mapping": {"<old>": "<new>"},
      "sort_columns": [{"column": "", "ascending": true}],
      "fill_value": null,
      "parameters": {},
      "code": "<original code when no operation fits>",
      "reasoning": "<why this operation was chosen>",
      "requires_opaque_recipe": false,
      "source_lines": [1]
    }
  ],
  "summary": "<one paragraph describing what the script does>",
  "warnings": ["<anything that could not be mapped>"]
}

Omit fields that do not apply. Use "custom_code" with the original code and
"requires_opaque_recipe": true for logic no operation describes.

Operations:
`

const explainInstructions = `Describe in plain language what the following Python data-processing script does to its data.
Mention the inputs it reads, the transformations in order and the outputs it writes.
`

func buildAnalysisPrompt(source string) string {
	var b strings.Builder
	b.WriteString(analysisInstructions)
	for _, op := range schema.Operations() {
		b.WriteString("- ")
		b.WriteString(string(op))
		b.WriteByte('\n')
	}
	writeSource(&b, source)
	return b.String()
}

func buildExplainPrompt(source string) string {
	var b strings.Builder
	b.WriteString(explainInstructions)
	writeSource(&b, source)
	return b.String()
}

func writeSource(b *strings.Builder, source string) {
	b.WriteString("\nScript:\n```python\n")
	b.WriteString(source)
	if !strings.HasSuffix(source, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("```\n")
}
