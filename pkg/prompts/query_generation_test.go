package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

func TestBuildQueryGenerationPromptSections(t *testing.T) {
	entities := []PromptEntity{
		{
			Kind: models.EntityTable,
			Name: "users",
			Fields: []models.FieldDescriptor{
				{Name: "id", DataType: "integer", IsPrimaryKey: true},
				{Name: "org_id", DataType: "integer", IsForeignKey: true, References: "orgs.id"},
			},
		},
	}
	history := []HistoryTurn{
		{Question: "how many users", Query: "SELECT count(*) FROM users"},
	}

	prompt := BuildQueryGenerationPrompt("postgresql", "PostgreSQL", "and per org?", entities, history, false)

	assert.Contains(t, prompt, "Target database: postgresql")
	assert.Contains(t, prompt, "Query syntax: PostgreSQL")
	assert.Contains(t, prompt, "### table users")
	assert.Contains(t, prompt, "- id: integer [PK]")
	assert.Contains(t, prompt, "- org_id: integer [FK->orgs.id]")
	assert.Contains(t, prompt, "Q: how many users")
	assert.Contains(t, prompt, "Query: SELECT count(*) FROM users")
	assert.Contains(t, prompt, `"and per org?"`)
}

func TestBuildQueryGenerationPromptNoHistory(t *testing.T) {
	prompt := BuildQueryGenerationPrompt("mongodb", "MongoDB", "question", nil, nil, false)

	assert.NotContains(t, prompt, "Conversation so far")
	assert.Contains(t, prompt, "(no schema information available)")
}

func TestBuildQueryGenerationPromptPartialNote(t *testing.T) {
	entities := []PromptEntity{{Kind: models.EntityCollection, Name: "events"}}

	prompt := BuildQueryGenerationPrompt("mongodb", "MongoDB", "question", entities, nil, true)
	assert.Contains(t, prompt, "incomplete")

	prompt = BuildQueryGenerationPrompt("mongodb", "MongoDB", "question", entities, nil, false)
	assert.NotContains(t, prompt, "incomplete")
}

func TestBuildQueryGenerationPromptInferredAndRelationship(t *testing.T) {
	entities := []PromptEntity{
		{
			Kind:     models.EntityCollection,
			Name:     "orders",
			Inferred: true,
			Fields:   []models.FieldDescriptor{{Name: "_id", DataType: "objectId", IsPrimaryKey: true}},
		},
		{
			Kind:       models.EntityRelationship,
			Name:       "PLACED",
			StartLabel: "Customer",
			EndLabel:   "Order",
		},
	}

	prompt := BuildQueryGenerationPrompt("neo4j", "Cypher", "who placed orders", entities, nil, false)

	assert.Contains(t, prompt, "(fields inferred from samples)")
	assert.Contains(t, prompt, "Connects: (Customer)-[PLACED]->(Order)")
}

func TestQueryGenerationSystemContract(t *testing.T) {
	assert.True(t, strings.Contains(QueryGenerationSystem, `"query"`))
	assert.True(t, strings.Contains(QueryGenerationSystem, `"explanation"`))
	assert.True(t, strings.Contains(QueryGenerationSystem, "empty query"))
}
