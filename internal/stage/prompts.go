package stage

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/datacrew-cli/internal/ai"
	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
)

// DefaultObjective is used when the caller does not supply one.
const DefaultObjective = "Understand what this dataset describes and how it can be analyzed."

type persona struct {
	role         string
	instructions string
}

var personas = map[ID]persona{
	Validate: {
		role: "You are a strict dataset gatekeeper. You judge whether a dataset is usable for analysis and you say so plainly.",
		instructions: "Decide whether the dataset is suitable for analysis. Answer in plain text, no JSON, exactly in this form:\n" +
			"Decision: YES or NO\nReason: <one or two sentences>",
	},
	Relate: {
		role: "You are a precise data analyst. You follow formatting instructions exactly and never invent column names.",
		instructions: "Identify 5 key relationships worth visualizing. Output only a list, one per line, in this exact format:\n" +
			"- X: <column> | Y: <column> | Type: <chart type>\nDo not add any other text.",
	},
	Codegen: {
		role: "You are a data visualization engineer fluent in pandas, matplotlib and seaborn. You never drop or filter rows.",
		instructions: "Write one complete Python script inside a single ```python fenced block that:\n" +
			"1. imports pandas as pd, matplotlib.pyplot as plt and seaborn as sns\n" +
			"2. loads the data with df = pd.read_csv('%s')\n" +
			"3. draws one figure per meaningful relationship using only the listed columns\n" +
			"4. saves each figure under outputs/ and closes it",
	},
	Insight: {
		role:         "You are a seasoned business intelligence analyst. You infer the story of a dataset from its schema and the findings of earlier reviews.",
		instructions: "Give 5 key insights about this dataset as a numbered list, one per line. No JSON.",
	},
}

// Request is everything a stage sends to the runtime: the schema and the
// objective, never row content.
type Request struct {
	Schema    []analysis.Field
	Objective string
	// Prior is the concatenated text of earlier stages; only Insight uses it.
	Prior string
	// DataPath is the cleaned table location referenced by generated code.
	DataPath string
}

// Messages renders the chat messages for stage id.
func Messages(id ID, req Request) []ai.Message {
	p := personas[id]
	instructions := p.instructions
	if id == Codegen {
		path := req.DataPath
		if path == "" {
			path = "data/cleaned_csv.csv"
		}
		instructions = fmt.Sprintf(instructions, path)
	}
	objective := strings.TrimSpace(req.Objective)
	if objective == "" {
		objective = DefaultObjective
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n\n", objective)
	b.WriteString("[SCHEMA]\n")
	for _, f := range req.Schema {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Kind)
	}
	if id == Insight && strings.TrimSpace(req.Prior) != "" {
		b.WriteString("\n[EARLIER FINDINGS]\n")
		b.WriteString(strings.TrimSpace(req.Prior))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(instructions)

	return []ai.Message{
		{Role: ai.RoleSystem, Content: p.role},
		{Role: ai.RoleUser, Content: b.String()},
	}
}

// PriorText joins stage results into the findings block handed to Insight.
func PriorText(results map[ID]Result, ids ...ID) string {
	var parts []string
	for _, id := range ids {
		r, ok := results[id]
		if !ok || strings.TrimSpace(r.Text) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n%s", id, strings.TrimSpace(r.Text)))
	}
	return strings.Join(parts, "\n\n")
}
