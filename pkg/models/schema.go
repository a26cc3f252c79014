package models

import "time"

// EntityKind tags the family-specific shape variant of a schema entity.
// All variants share the SchemaEntity contract; consumers that care about
// graph or time-series specifics switch on the kind.
type EntityKind string

const (
	EntityTable        EntityKind = "table"
	EntityCollection   EntityKind = "collection"
	EntityKeyspace     EntityKind = "keyspace"
	EntityNode         EntityKind = "node"
	EntityRelationship EntityKind = "relationship"
	EntityMeasurement  EntityKind = "measurement"
)

// FieldDescriptor describes one column, document field, property key, or
// field/tag key of a schema entity.
type FieldDescriptor struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsPrimaryKey bool   `json:"is_primary_key,omitempty"`
	IsForeignKey bool   `json:"is_foreign_key,omitempty"`
	// References holds "table.column" for foreign keys.
	References string `json:"references,omitempty"`
}

// SchemaEntity is one introspected structure: a table, collection, node
// label, relationship type, or measurement.
type SchemaEntity struct {
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`

	// Inferred marks entities whose shape was sampled rather than
	// declared (document stores have no schema catalog).
	Inferred bool `json:"inferred,omitempty"`

	// StartLabel/EndLabel are set for relationship entities only.
	StartLabel string `json:"start_label,omitempty"`
	EndLabel   string `json:"end_label,omitempty"`

	Fields []FieldDescriptor `json:"fields"`
}

// SchemaSnapshot is the cached structural description of a connected
// database. At most one live snapshot exists per connection fingerprint.
type SchemaSnapshot struct {
	Family   Family         `json:"family"`
	Entities []SchemaEntity `json:"entities"`

	// Partial is set when some entities could not be introspected.
	// Partial success is a valid non-error outcome: the unintrospectable
	// entities are omitted and this warning flag is surfaced.
	Partial bool `json:"partial,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsStale reports whether the snapshot has outlived the given TTL.
func (s *SchemaSnapshot) IsStale(ttl time.Duration) bool {
	return time.Since(s.CreatedAt) > ttl
}

// Entity returns the named entity, or nil.
func (s *SchemaSnapshot) Entity(name string) *SchemaEntity {
	for i := range s.Entities {
		if s.Entities[i].Name == name {
			return &s.Entities[i]
		}
	}
	return nil
}
