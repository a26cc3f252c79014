// Package influx provides the time-series adapter for InfluxDB 2.x.
// Introspection enumerates buckets and their measurements with field
// and tag keys; generated queries are Flux.
package influx

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

// Adapter provides InfluxDB connectivity.
type Adapter struct {
	client    influxdb2.Client
	queryAPI  api.QueryAPI
	org       string
	closeOnce sync.Once
}

// NewAdapter builds an InfluxDB client for the given config.
func NewAdapter(cfg *Config) *Adapter {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Adapter{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Org),
		org:      cfg.Org,
	}
}

// Test verifies the server is reachable and the token is accepted. Ping
// alone does not check authentication, so a trivial Flux query runs
// afterwards.
func (a *Adapter) Test(ctx context.Context) error {
	ok, err := a.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("server did not respond to ping")
	}

	result, err := a.queryAPI.Query(ctx, `buckets() |> limit(n: 1)`)
	if err != nil {
		return fmt.Errorf("auth check failed: %w", err)
	}
	for result.Next() {
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("auth check failed: %w", err)
	}

	return nil
}

// IntrospectSchema lists buckets and, per bucket, the measurements with
// their field and tag keys. Buckets that cannot be described are
// skipped and the snapshot is marked partial.
func (a *Adapter) IntrospectSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	buckets, err := a.listColumn(ctx, `buckets() |> keep(columns: ["name"])`, "name")
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	snapshot := &models.SchemaSnapshot{
		Family:    models.FamilyTimeSeries,
		Entities:  make([]models.SchemaEntity, 0),
		CreatedAt: time.Now(),
	}

	for _, bucket := range buckets {
		if isSystemBucket(bucket) {
			continue
		}

		measurements, err := a.listColumn(ctx, fmt.Sprintf(
			`import "influxdata/influxdb/schema" schema.measurements(bucket: %q)`, bucket), "_value")
		if err != nil {
			snapshot.Partial = true
			continue
		}

		for _, measurement := range measurements {
			fields, err := a.describeMeasurement(ctx, bucket, measurement)
			if err != nil {
				snapshot.Partial = true
				continue
			}
			snapshot.Entities = append(snapshot.Entities, models.SchemaEntity{
				Kind:   models.EntityMeasurement,
				Name:   bucket + "/" + measurement,
				Fields: fields,
			})
		}
	}

	return snapshot, nil
}

func isSystemBucket(name string) bool {
	return name == "_monitoring" || name == "_tasks"
}

func (a *Adapter) describeMeasurement(ctx context.Context, bucket, measurement string) ([]models.FieldDescriptor, error) {
	fieldKeys, err := a.listColumn(ctx, fmt.Sprintf(
		`import "influxdata/influxdb/schema" schema.measurementFieldKeys(bucket: %q, measurement: %q)`,
		bucket, measurement), "_value")
	if err != nil {
		return nil, err
	}

	tagKeys, err := a.listColumn(ctx, fmt.Sprintf(
		`import "influxdata/influxdb/schema" schema.measurementTagKeys(bucket: %q, measurement: %q)`,
		bucket, measurement), "_value")
	if err != nil {
		return nil, err
	}

	fields := make([]models.FieldDescriptor, 0, len(fieldKeys)+len(tagKeys))
	for _, key := range fieldKeys {
		fields = append(fields, models.FieldDescriptor{Name: key, DataType: "field"})
	}
	for _, key := range tagKeys {
		if key == "_measurement" || key == "_start" || key == "_stop" {
			continue
		}
		fields = append(fields, models.FieldDescriptor{Name: key, DataType: "tag"})
	}

	return fields, nil
}

// listColumn runs a Flux query and collects string values from one
// result column.
func (a *Adapter) listColumn(ctx context.Context, flux, column string) ([]string, error) {
	result, err := a.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, err
	}

	var values []string
	for result.Next() {
		if v, ok := result.Record().ValueByKey(column).(string); ok {
			values = append(values, v)
		}
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	return values, nil
}

// Execute runs a Flux query. Each record becomes one row holding the
// record's full value map, so tags, fields and timestamps all surface.
func (a *Adapter) Execute(ctx context.Context, query string) (*datasource.RawResult, error) {
	result, err := a.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute flux: %w", err)
	}

	raw := &datasource.RawResult{Rows: make([]map[string]any, 0)}
	columnSet := make(map[string]bool)

	for result.Next() {
		values := result.Record().Values()
		row := make(map[string]any, len(values))
		for key, value := range values {
			if key == "result" || key == "table" {
				continue
			}
			row[key] = value
			if !columnSet[key] {
				columnSet[key] = true
				raw.Columns = append(raw.Columns, key)
			}
		}
		raw.Rows = append(raw.Rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read flux results: %w", err)
	}

	return raw, nil
}

// Close releases the client. Safe to call more than once.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		a.client.Close()
	})
	return nil
}

var _ datasource.Connector = (*Adapter)(nil)
