package translator

import (
	"fmt"
	"strings"
	"text/template"
)

// PromptData fills the SQL generation prompt.
type PromptData struct {
	Engine    string
	TableName string
	Schema    string
	Question  string
}

var promptTemplate = template.Must(template.New("sql").Parse(`You are an expert SQL query generator. Your task is to convert natural language questions into valid {{.Engine}} SQL queries.

TABLE INFORMATION:
Table name: {{.TableName}}
Columns:
{{.Schema}}

USER QUESTION:
{{.Question}}

IMPORTANT GUIDELINES:
1. Generate ONLY the SQL query without any explanations or markdown.
2. Ensure the query is valid {{.Engine}} syntax.
3. Use the exact column names as provided in the table information.
4. Handle case sensitivity appropriately in column names.
5. For string comparisons, use appropriate wildcards (%) and LIKE operator when needed.
6. When appropriate, use aggregation functions (COUNT, SUM, AVG, etc.)
7. If the question asks for a specific number of results, use LIMIT.
8. Ensure proper use of GROUP BY, ORDER BY, and WHERE clauses as needed.
9. Do not use features not supported by {{.Engine}}.

SQL QUERY:
`))

// BuildPrompt renders the prompt sent to the model.
func BuildPrompt(data PromptData) (string, error) {
	if data.Engine == "" {
		data.Engine = "SQLite"
	}
	data.Schema = strings.TrimRight(data.Schema, "\n")

	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}
