// Package prompts builds the LLM prompts for query generation.
package prompts

import (
	"fmt"
	"strings"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

// QueryGenerationSystem is the system message for query generation. The
// response contract is a single JSON object so the answer parses
// without heuristics.
const QueryGenerationSystem = `You are a database query generator. ` +
	`Given a database schema and a natural language question, produce one query ` +
	`in the target database's native syntax that answers the question. ` +
	`Respond with a single JSON object of the form ` +
	`{"query": "<the query>", "explanation": "<one or two sentences describing what the query does>"}. ` +
	`Do not include any text outside the JSON object. ` +
	`If the question cannot be answered from the schema, return an empty query ` +
	`with an explanation of what is missing.`

// HistoryTurn is one prior exchange included for follow-up questions.
type HistoryTurn struct {
	Question string
	Query    string
}

// PromptEntity is one schema entity selected for the prompt, already
// filtered and neutralized by the context builder.
type PromptEntity struct {
	Kind       models.EntityKind
	Name       string
	Inferred   bool
	StartLabel string
	EndLabel   string
	Fields     []models.FieldDescriptor
}

// BuildQueryGenerationPrompt assembles the user prompt: target dialect,
// relevant schema entities, recent conversation turns and the question.
func BuildQueryGenerationPrompt(dbType, dialect, question string, entities []PromptEntity, history []HistoryTurn, partial bool) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Target database: %s\n", dbType))
	prompt.WriteString(fmt.Sprintf("Query syntax: %s\n\n", dialect))

	prompt.WriteString("## Schema\n\n")
	if len(entities) == 0 {
		prompt.WriteString("(no schema information available)\n")
	}
	for _, entity := range entities {
		writeEntity(&prompt, entity)
	}
	if partial {
		prompt.WriteString("\nNote: the schema listing is incomplete; some entities could not be introspected.\n")
	}

	if len(history) > 0 {
		prompt.WriteString("\n## Conversation so far\n\n")
		for _, turn := range history {
			prompt.WriteString(fmt.Sprintf("Q: %s\n", turn.Question))
			if turn.Query != "" {
				prompt.WriteString(fmt.Sprintf("Query: %s\n", turn.Query))
			}
		}
	}

	prompt.WriteString(fmt.Sprintf("\n## Question\n\n%q\n", question))

	return prompt.String()
}

func writeEntity(prompt *strings.Builder, entity PromptEntity) {
	header := fmt.Sprintf("### %s %s", entity.Kind, entity.Name)
	if entity.Inferred {
		header += " (fields inferred from samples)"
	}
	prompt.WriteString(header + "\n")

	if entity.Kind == models.EntityRelationship && entity.StartLabel != "" {
		prompt.WriteString(fmt.Sprintf("Connects: (%s)-[%s]->(%s)\n", entity.StartLabel, entity.Name, entity.EndLabel))
	}

	for _, field := range entity.Fields {
		flags := ""
		if field.IsPrimaryKey {
			flags += " [PK]"
		}
		if field.IsForeignKey {
			flags += fmt.Sprintf(" [FK->%s]", field.References)
		}
		prompt.WriteString(fmt.Sprintf("- %s: %s%s\n", field.Name, field.DataType, flags))
	}
	prompt.WriteString("\n")
}
