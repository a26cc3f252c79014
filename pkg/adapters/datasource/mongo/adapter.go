// Package mongo provides the document-store adapter. MongoDB has no
// schema catalog, so introspection samples documents per collection and
// unions the observed fields. Generated queries arrive as a JSON
// operation document rather than a query-language string.
package mongo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

// sampleSize is the number of documents examined per collection when
// inferring its field set.
const sampleSize = 20

// Adapter provides MongoDB connectivity.
type Adapter struct {
	client    *mongo.Client
	database  string
	closeOnce sync.Once
}

// NewAdapter connects to MongoDB with the given config.
func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	return &Adapter{client: client, database: cfg.Database}, nil
}

// Test verifies the server is reachable with valid credentials.
func (a *Adapter) Test(ctx context.Context) error {
	if err := a.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// IntrospectSchema lists collections and infers each one's field set by
// sampling documents. Collections that cannot be sampled are skipped
// and the snapshot is marked partial. An empty database yields an empty
// snapshot.
func (a *Adapter) IntrospectSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	db := a.client.Database(a.database)

	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(names)

	snapshot := &models.SchemaSnapshot{
		Family:    models.FamilyDocument,
		Entities:  make([]models.SchemaEntity, 0, len(names)),
		CreatedAt: time.Now(),
	}

	for _, name := range names {
		fields, err := a.sampleCollection(ctx, db, name)
		if err != nil {
			snapshot.Partial = true
			continue
		}
		snapshot.Entities = append(snapshot.Entities, models.SchemaEntity{
			Kind:     models.EntityCollection,
			Name:     name,
			Inferred: true,
			Fields:   fields,
		})
	}

	return snapshot, nil
}

// sampleCollection reads up to sampleSize documents and unions their
// top-level fields.
func (a *Adapter) sampleCollection(ctx context.Context, db *mongo.Database, name string) ([]models.FieldDescriptor, error) {
	cursor, err := db.Collection(name).Find(ctx, bson.D{}, options.Find().SetLimit(sampleSize))
	if err != nil {
		return nil, fmt.Errorf("sample collection %s: %w", name, err)
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read samples from %s: %w", name, err)
	}

	return unionFields(docs), nil
}

// unionFields merges the top-level fields of sampled documents into a
// sorted field list. When documents disagree on a field's type the
// first observed type wins.
func unionFields(docs []bson.M) []models.FieldDescriptor {
	seen := make(map[string]string)
	for _, doc := range docs {
		for key, value := range doc {
			if _, ok := seen[key]; !ok {
				seen[key] = bsonTypeName(value)
			}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make([]models.FieldDescriptor, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, models.FieldDescriptor{
			Name:         key,
			DataType:     seen[key],
			IsPrimaryKey: key == "_id",
		})
	}

	return fields
}

// operation is the JSON document the query generator produces for
// document stores.
type operation struct {
	Collection string           `json:"collection"`
	Operation  string           `json:"operation"`
	Filter     map[string]any   `json:"filter,omitempty"`
	Pipeline   []map[string]any `json:"pipeline,omitempty"`
	Projection map[string]any   `json:"projection,omitempty"`
	Sort       map[string]any   `json:"sort,omitempty"`
	Limit      int64            `json:"limit,omitempty"`
}

// Execute runs a JSON operation document. Supported operations are
// find, aggregate and countDocuments.
func (a *Adapter) Execute(ctx context.Context, query string) (*datasource.RawResult, error) {
	var op operation
	if err := bson.UnmarshalExtJSON([]byte(query), false, &op); err != nil {
		return nil, fmt.Errorf("parse operation document: %w", err)
	}
	if op.Collection == "" {
		return nil, fmt.Errorf("operation document is missing the collection name")
	}

	coll := a.client.Database(a.database).Collection(op.Collection)

	switch op.Operation {
	case "find", "":
		return a.runFind(ctx, coll, &op)
	case "aggregate":
		return a.runAggregate(ctx, coll, &op)
	case "countDocuments", "count":
		return a.runCount(ctx, coll, &op)
	default:
		return nil, fmt.Errorf("unsupported operation %q (expected find, aggregate or countDocuments)", op.Operation)
	}
}

func (a *Adapter) runFind(ctx context.Context, coll *mongo.Collection, op *operation) (*datasource.RawResult, error) {
	findOpts := options.Find()
	if op.Limit > 0 {
		findOpts.SetLimit(op.Limit)
	}
	if len(op.Projection) > 0 {
		findOpts.SetProjection(op.Projection)
	}
	if len(op.Sort) > 0 {
		findOpts.SetSort(op.Sort)
	}

	filter := op.Filter
	if filter == nil {
		filter = map[string]any{}
	}

	cursor, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find failed: %w", err)
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read find results: %w", err)
	}

	return documentsToResult(docs), nil
}

func (a *Adapter) runAggregate(ctx context.Context, coll *mongo.Collection, op *operation) (*datasource.RawResult, error) {
	if len(op.Pipeline) == 0 {
		return nil, fmt.Errorf("aggregate requires a pipeline")
	}

	pipeline := make(mongo.Pipeline, 0, len(op.Pipeline))
	for _, stage := range op.Pipeline {
		doc := bson.D{}
		for key, value := range stage {
			doc = append(doc, bson.E{Key: key, Value: value})
		}
		pipeline = append(pipeline, doc)
	}

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate failed: %w", err)
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read aggregate results: %w", err)
	}

	return documentsToResult(docs), nil
}

func (a *Adapter) runCount(ctx context.Context, coll *mongo.Collection, op *operation) (*datasource.RawResult, error) {
	filter := op.Filter
	if filter == nil {
		filter = map[string]any{}
	}

	count, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	return &datasource.RawResult{
		Columns: []string{"count"},
		Rows:    []map[string]any{{"count": count}},
	}, nil
}

// documentsToResult flattens result documents into the tabular raw
// shape. Columns are the sorted union of top-level keys across all
// documents; driver-specific BSON values are converted to plain Go
// values for the normalizer.
func documentsToResult(docs []bson.M) *datasource.RawResult {
	seen := make(map[string]bool)
	for _, doc := range docs {
		for key := range doc {
			seen[key] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for key := range seen {
		columns = append(columns, key)
	}
	sort.Strings(columns)

	rows := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		row := make(map[string]any, len(doc))
		for key, value := range doc {
			row[key] = plainValue(value)
		}
		rows = append(rows, row)
	}

	return &datasource.RawResult{Columns: columns, Rows: rows}
}

// plainValue converts BSON driver types into plain Go values.
func plainValue(value any) any {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time()
	case primitive.Decimal128:
		return v.String()
	case primitive.Binary:
		return v.Data
	case bson.M:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			out[key] = plainValue(inner)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(v))
		for _, e := range v {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = plainValue(inner)
		}
		return out
	default:
		return value
	}
}

// bsonTypeName names a sampled value's type for the schema snapshot.
func bsonTypeName(value any) string {
	switch value.(type) {
	case primitive.ObjectID:
		return "objectId"
	case primitive.DateTime:
		return "date"
	case primitive.Decimal128:
		return "decimal"
	case string:
		return "string"
	case int32, int64, int:
		return "int"
	case float64:
		return "double"
	case bool:
		return "bool"
	case bson.M, bson.D:
		return "object"
	case bson.A:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// Close disconnects the client. Safe to call more than once.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = a.client.Disconnect(ctx)
	})
	return err
}

var _ datasource.Connector = (*Adapter)(nil)
