// Package rediskv provides the key-value store adapter. Redis has no
// schema, so introspection scans a bounded sample of keys and reports
// the naming patterns found. Generated queries are Redis commands,
// either as a JSON argument array or a whitespace-separated string.
package rediskv

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

// scanLimit bounds how many keys introspection samples. A full keyspace
// walk on a large instance would be slow and disruptive.
const scanLimit = 200

// Adapter provides Redis connectivity.
type Adapter struct {
	client    *redis.Client
	closeOnce sync.Once
}

// NewAdapter builds a Redis client from a validated descriptor.
func NewAdapter(descriptor *models.ConnectionDescriptor) (*Adapter, error) {
	if descriptor.UseURI || descriptor.FirstParam("connection_string") != "" {
		uri := descriptor.URI
		if uri == "" {
			uri = descriptor.FirstParam("connection_string")
		}
		opts, err := redis.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return &Adapter{client: redis.NewClient(opts)}, nil
	}

	host := descriptor.FirstParam("hostname", "host")
	if host == "" {
		return nil, fmt.Errorf("hostname is required")
	}
	port := descriptor.Param("port", "6379")

	db := 0
	if v := descriptor.Param("db", ""); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid db number %q", v)
		}
		db = parsed
	}

	return &Adapter{client: redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: descriptor.Param("password", ""),
		DB:       db,
	})}, nil
}

// Test verifies the server is reachable with valid credentials.
func (a *Adapter) Test(ctx context.Context) error {
	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// IntrospectSchema samples up to scanLimit keys and summarizes their
// naming patterns as one synthetic keyspace entity. An empty instance
// yields an empty snapshot.
func (a *Adapter) IntrospectSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	keys, err := a.sampleKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}

	snapshot := &models.SchemaSnapshot{
		Family:    models.FamilyKeyValue,
		Entities:  make([]models.SchemaEntity, 0, 1),
		CreatedAt: time.Now(),
	}

	if len(keys) == 0 {
		return snapshot, nil
	}

	patterns := KeyPatternStats(keys)

	fields := make([]models.FieldDescriptor, 0, len(patterns))
	for _, p := range patterns {
		keyType, err := a.client.Type(ctx, p.Sample).Result()
		if err != nil {
			keyType = "unknown"
			snapshot.Partial = true
		}
		fields = append(fields, models.FieldDescriptor{
			Name:     fmt.Sprintf("%s (%d keys)", p.Pattern, p.Count),
			DataType: keyType,
		})
	}

	snapshot.Entities = append(snapshot.Entities, models.SchemaEntity{
		Kind:     models.EntityKeyspace,
		Name:     "keyspace",
		Inferred: true,
		Fields:   fields,
	})

	return snapshot, nil
}

func (a *Adapter) sampleKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		batch, next, err := a.client.Scan(ctx, cursor, "*", 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 || len(keys) >= scanLimit {
			break
		}
		cursor = next
	}

	if len(keys) > scanLimit {
		keys = keys[:scanLimit]
	}
	return keys, nil
}

// Execute runs a Redis command. The query is either a JSON document
// {"command": ["GET", "user:1"]} or a whitespace-separated command
// string.
func (a *Adapter) Execute(ctx context.Context, query string) (*datasource.RawResult, error) {
	args, err := parseCommand(query)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	value, err := a.client.Do(ctx, args...).Result()
	if err != nil {
		if err == redis.Nil {
			return &datasource.RawResult{
				Columns: []string{"value"},
				Rows:    []map[string]any{{"value": nil}},
			}, nil
		}
		return nil, fmt.Errorf("command failed: %w", err)
	}

	return commandResult(value), nil
}

type commandDoc struct {
	Command []any `json:"command"`
}

func parseCommand(query string) ([]any, error) {
	trimmed := strings.TrimSpace(query)
	if strings.HasPrefix(trimmed, "{") {
		var doc commandDoc
		if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
			return nil, fmt.Errorf("parse command document: %w", err)
		}
		return doc.Command, nil
	}

	parts := strings.Fields(trimmed)
	args := make([]any, len(parts))
	for i, p := range parts {
		args[i] = p
	}
	return args, nil
}

// commandResult shapes a command reply as rows. Scalars become a single
// value row; arrays one row per element; maps one row per field.
func commandResult(value any) *datasource.RawResult {
	switch v := value.(type) {
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for i, elem := range v {
			rows = append(rows, map[string]any{"index": i, "value": elem})
		}
		return &datasource.RawResult{Columns: []string{"index", "value"}, Rows: rows}
	case map[any]any:
		rows := make([]map[string]any, 0, len(v))
		for key, elem := range v {
			rows = append(rows, map[string]any{"field": fmt.Sprint(key), "value": elem})
		}
		return &datasource.RawResult{Columns: []string{"field", "value"}, Rows: rows}
	case map[string]any:
		rows := make([]map[string]any, 0, len(v))
		for key, elem := range v {
			rows = append(rows, map[string]any{"field": key, "value": elem})
		}
		return &datasource.RawResult{Columns: []string{"field", "value"}, Rows: rows}
	default:
		return &datasource.RawResult{
			Columns: []string{"value"},
			Rows:    []map[string]any{{"value": value}},
		}
	}
}

// Close releases the client. Safe to call more than once.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.client.Close()
	})
	return err
}

var _ datasource.Connector = (*Adapter)(nil)
