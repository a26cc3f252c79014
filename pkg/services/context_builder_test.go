package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

func tableEntity(name string, fields ...string) models.SchemaEntity {
	descriptors := make([]models.FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		descriptors = append(descriptors, models.FieldDescriptor{Name: f, DataType: "text"})
	}
	return models.SchemaEntity{Kind: models.EntityTable, Name: name, Fields: descriptors}
}

func snapshotOf(entities ...models.SchemaEntity) *models.SchemaSnapshot {
	return &models.SchemaSnapshot{Family: models.FamilyRelational, Entities: entities}
}

func TestBuildUnderBudgetReturnsAll(t *testing.T) {
	builder := NewContextBuilder(10, zap.NewNop())
	snapshot := snapshotOf(
		tableEntity("users", "id", "email"),
		tableEntity("orders", "id", "user_id"),
	)

	out := builder.Build("anything at all", snapshot)
	assert.Len(t, out, 2)
}

func TestBuildPrefersOverlappingEntities(t *testing.T) {
	builder := NewContextBuilder(2, zap.NewNop())
	snapshot := snapshotOf(
		tableEntity("invoices", "id", "total"),
		tableEntity("users", "id", "email"),
		tableEntity("orders", "id", "user_id", "total"),
		tableEntity("audit_log", "id", "action"),
	)

	out := builder.Build("how many orders did each user place", snapshot)

	require.Len(t, out, 2)
	names := []string{out[0].Name, out[1].Name}
	assert.Contains(t, names, "orders")
	assert.Contains(t, names, "users")
}

func TestBuildSingularPluralMatching(t *testing.T) {
	builder := NewContextBuilder(1, zap.NewNop())
	snapshot := snapshotOf(
		tableEntity("countries", "id", "name"),
		tableEntity("cities", "id", "country_id"),
		tableEntity("airports", "id", "city_id"),
	)

	// "country" in the question must match the "countries" table.
	out := builder.Build("which country has the most people", snapshot)

	require.Len(t, out, 1)
	assert.Equal(t, "countries", out[0].Name)
}

func TestBuildNoOverlapFallsBackToFirstN(t *testing.T) {
	builder := NewContextBuilder(2, zap.NewNop())
	entities := make([]models.SchemaEntity, 5)
	for i := range entities {
		entities[i] = tableEntity(fmt.Sprintf("tbl_%d", i), "id")
	}
	snapshot := snapshotOf(entities...)

	out := builder.Build("completely unrelated question", snapshot)

	require.Len(t, out, 2)
	assert.Equal(t, "tbl_0", out[0].Name)
	assert.Equal(t, "tbl_1", out[1].Name)
}

func TestBuildDropsUnsafeEntityNames(t *testing.T) {
	builder := NewContextBuilder(10, zap.NewNop())
	snapshot := snapshotOf(
		tableEntity("users", "id"),
		tableEntity(`x"; DROP TABLE users; --`, "id"),
		tableEntity("orders'; SELECT pg_sleep(10)--", "id"),
	)

	out := builder.Build("list users", snapshot)

	require.Len(t, out, 1)
	assert.Equal(t, "users", out[0].Name)
}

func TestBuildDropsUnsafeFieldNames(t *testing.T) {
	builder := NewContextBuilder(10, zap.NewNop())
	entity := tableEntity("users", "id", "email")
	entity.Fields = append(entity.Fields, models.FieldDescriptor{Name: "bad\"name' OR 1=1--", DataType: "text"})
	snapshot := snapshotOf(entity)

	out := builder.Build("list users", snapshot)

	require.Len(t, out, 1)
	require.Len(t, out[0].Fields, 2)
	assert.Equal(t, "id", out[0].Fields[0].Name)
	assert.Equal(t, "email", out[0].Fields[1].Name)
}

func TestBuildAllowsCommonIdentifierShapes(t *testing.T) {
	builder := NewContextBuilder(10, zap.NewNop())
	entity := models.SchemaEntity{
		Kind:     models.EntityKeyspace,
		Name:     "keyspace",
		Inferred: true,
		Fields: []models.FieldDescriptor{
			{Name: "user:*:profile (12 keys)", DataType: "hash"},
			{Name: "session:* (4 keys)", DataType: "string"},
		},
	}
	snapshot := snapshotOf(tableEntity("public.users", "id"), entity)

	out := builder.Build("users", snapshot)

	require.Len(t, out, 2)
	assert.Len(t, out[1].Fields, 2, "key pattern names survive the identifier screen")
}
