// Package datasource defines the capability interface every database
// family adapter implements, plus the registry that maps backend types
// to adapter factories.
package datasource

import (
	"context"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

// Connector is the uniform operation set over one live database handle.
// A connector is obtained from the registry factory (the "connect"
// capability), owns its underlying connection, and must be closed on
// every exit path. Close is idempotent.
type Connector interface {
	// Test verifies the backend is reachable with valid credentials.
	Test(ctx context.Context) error

	// IntrospectSchema returns the structural description of the
	// connected database. When only some entities are introspectable it
	// returns a partial snapshot with Partial set rather than failing
	// outright; an empty database yields an empty snapshot, not an
	// error.
	IntrospectSchema(ctx context.Context) (*models.SchemaSnapshot, error)

	// Execute runs a native query and returns the raw result. The
	// context carries the coordinator's execution deadline; adapters
	// that support cancellation must honor it.
	Execute(ctx context.Context, query string) (*RawResult, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// RawResult is the adapter-native result shape before normalization.
// Values may still hold driver types (time.Time, []byte, decimals); the
// result normalizer converts them to canonical scalars.
type RawResult struct {
	Columns      []string
	Rows         []map[string]any
	RowsAffected int64
}

// Info describes a registered adapter for discovery by the UI layer.
type Info struct {
	Type        string        `json:"type"`
	DisplayName string        `json:"display_name"`
	Family      models.Family `json:"family"`

	// Dialect is the native query syntax the generator must target.
	Dialect string `json:"dialect"`
}

// Registration binds adapter info to its connect factory.
type Registration struct {
	Info    Info
	Connect func(ctx context.Context, descriptor *models.ConnectionDescriptor) (Connector, error)
}
