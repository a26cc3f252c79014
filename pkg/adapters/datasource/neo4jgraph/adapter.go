// Package neo4jgraph provides the graph database adapter. Introspection
// walks node labels and relationship types, sampling property keys for
// each; generated queries are Cypher.
package neo4jgraph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

// Adapter provides Neo4j connectivity.
type Adapter struct {
	driver    neo4j.DriverWithContext
	closeOnce sync.Once
}

// NewAdapter builds a Neo4j driver from a validated descriptor.
func NewAdapter(ctx context.Context, descriptor *models.ConnectionDescriptor) (*Adapter, error) {
	uri := descriptor.URI
	if uri == "" {
		uri = descriptor.FirstParam("bolt_url", "connection_string", "uri")
	}
	if uri == "" {
		return nil, fmt.Errorf("bolt url is required")
	}

	user := descriptor.FirstParam("username", "user")
	password := descriptor.Param("password", "")

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	return &Adapter{driver: driver}, nil
}

// Test verifies the server is reachable with valid credentials.
func (a *Adapter) Test(ctx context.Context) error {
	if err := a.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("connectivity check failed: %w", err)
	}
	return nil
}

// IntrospectSchema discovers node labels and relationship types with
// sampled property keys. Labels whose properties cannot be sampled are
// included without fields and the snapshot is marked partial.
func (a *Adapter) IntrospectSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	labels, err := a.listStrings(ctx, session, "CALL db.labels() YIELD label RETURN label")
	if err != nil {
		return nil, fmt.Errorf("list node labels: %w", err)
	}

	relTypes, err := a.listStrings(ctx, session, "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType")
	if err != nil {
		return nil, fmt.Errorf("list relationship types: %w", err)
	}

	snapshot := &models.SchemaSnapshot{
		Family:    models.FamilyGraph,
		Entities:  make([]models.SchemaEntity, 0, len(labels)+len(relTypes)),
		CreatedAt: time.Now(),
	}

	for _, label := range labels {
		query := fmt.Sprintf("MATCH (n:`%s`) WITH n LIMIT 20 UNWIND keys(n) AS k RETURN DISTINCT k", label)
		props, err := a.listStrings(ctx, session, query)
		if err != nil {
			snapshot.Partial = true
			props = nil
		}
		snapshot.Entities = append(snapshot.Entities, models.SchemaEntity{
			Kind:     models.EntityNode,
			Name:     label,
			Inferred: true,
			Fields:   propertyFields(props),
		})
	}

	for _, relType := range relTypes {
		entity := models.SchemaEntity{
			Kind:     models.EntityRelationship,
			Name:     relType,
			Inferred: true,
		}

		query := fmt.Sprintf(
			"MATCH (a)-[r:`%s`]->(b) RETURN labels(a)[0] AS start, labels(b)[0] AS end, keys(r) AS props LIMIT 1", relType)
		result, err := session.Run(ctx, query, nil)
		if err == nil && result.Next(ctx) {
			record := result.Record()
			if start, ok := record.Get("start"); ok {
				entity.StartLabel, _ = start.(string)
			}
			if end, ok := record.Get("end"); ok {
				entity.EndLabel, _ = end.(string)
			}
			if props, ok := record.Get("props"); ok {
				if list, ok := props.([]any); ok {
					names := make([]string, 0, len(list))
					for _, p := range list {
						if s, ok := p.(string); ok {
							names = append(names, s)
						}
					}
					entity.Fields = propertyFields(names)
				}
			}
		} else if err != nil {
			snapshot.Partial = true
		}

		snapshot.Entities = append(snapshot.Entities, entity)
	}

	return snapshot, nil
}

func (a *Adapter) listStrings(ctx context.Context, session neo4j.SessionWithContext, query string) ([]string, error) {
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	var values []string
	for result.Next(ctx) {
		record := result.Record()
		if len(record.Values) > 0 {
			if s, ok := record.Values[0].(string); ok {
				values = append(values, s)
			}
		}
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	sort.Strings(values)
	return values, nil
}

func propertyFields(names []string) []models.FieldDescriptor {
	fields := make([]models.FieldDescriptor, 0, len(names))
	for _, name := range names {
		fields = append(fields, models.FieldDescriptor{Name: name, DataType: "property"})
	}
	return fields
}

// Execute runs a Cypher query. Node and relationship values are
// flattened to their property maps so results serialize cleanly.
func (a *Adapter) Execute(ctx context.Context, query string) (*datasource.RawResult, error) {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("execute cypher: %w", err)
	}

	var columns []string
	raw := &datasource.RawResult{Rows: make([]map[string]any, 0)}

	for result.Next(ctx) {
		record := result.Record()
		if columns == nil {
			columns = record.Keys
		}

		row := make(map[string]any, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = graphValue(record.Values[i])
		}
		raw.Rows = append(raw.Rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read cypher results: %w", err)
	}

	if columns == nil {
		if keys, err := result.Keys(); err == nil {
			columns = keys
		}
	}
	raw.Columns = columns

	return raw, nil
}

// graphValue converts driver graph types into plain values.
func graphValue(value any) any {
	switch v := value.(type) {
	case neo4j.Node:
		props := make(map[string]any, len(v.Props)+1)
		for key, inner := range v.Props {
			props[key] = inner
		}
		if len(v.Labels) > 0 {
			props["_label"] = v.Labels[0]
		}
		return props
	case neo4j.Relationship:
		props := make(map[string]any, len(v.Props)+1)
		for key, inner := range v.Props {
			props[key] = inner
		}
		props["_type"] = v.Type
		return props
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = graphValue(inner)
		}
		return out
	default:
		return value
	}
}

// Close releases the driver. Safe to call more than once.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = a.driver.Close(ctx)
	})
	return err
}

var _ datasource.Connector = (*Adapter)(nil)
