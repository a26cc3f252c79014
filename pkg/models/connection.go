package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Family groups database backends by structural paradigm. It drives
// which snapshot shape an adapter produces and which dialect the query
// generator targets.
type Family string

const (
	FamilyRelational Family = "relational"
	FamilyDocument   Family = "document"
	FamilyKeyValue   Family = "keyvalue"
	FamilyGraph      Family = "graph"
	FamilyTimeSeries Family = "timeseries"
	FamilyWarehouse  Family = "warehouse"
)

// ConnectionDescriptor identifies one database connection. It is built
// from validated user input and never mutated afterwards; a Session owns
// exactly one.
type ConnectionDescriptor struct {
	// Type is the concrete backend, e.g. "postgresql", "mongodb".
	Type string `json:"type"`

	// Family is resolved from the adapter registry at validation time.
	Family Family `json:"family"`

	// Params holds discrete credential fields (host, port, username...).
	Params map[string]string `json:"params"`

	// UseURI selects the single connection-string entry path. When set,
	// URI carries the full native connection string and Params may be
	// empty.
	UseURI bool   `json:"use_uri,omitempty"`
	URI    string `json:"uri,omitempty"`
}

// Param returns the named parameter, or def when absent or empty.
func (d *ConnectionDescriptor) Param(name, def string) string {
	if v, ok := d.Params[name]; ok && v != "" {
		return v
	}
	return def
}

// FirstParam returns the first non-empty value among the named
// parameters. Credential forms changed field names over time, so
// adapters accept both the old and the new spelling.
func (d *ConnectionDescriptor) FirstParam(names ...string) string {
	for _, n := range names {
		if v, ok := d.Params[n]; ok && v != "" {
			return v
		}
	}
	return ""
}

// Fingerprint returns a stable hash of the descriptor's identifying
// fields. It keys the schema cache: identical credentials reused across
// sessions share a cached snapshot but never a live handle.
func (d *ConnectionDescriptor) Fingerprint() string {
	var b strings.Builder
	b.WriteString(d.Type)
	b.WriteByte('\n')
	if d.UseURI {
		b.WriteString(d.URI)
		b.WriteByte('\n')
	}

	keys := make([]string, 0, len(d.Params))
	for k := range d.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, d.Params[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Validate checks that the descriptor carries enough to attempt a
// connection.
func (d *ConnectionDescriptor) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("database type is required")
	}
	if d.UseURI && d.URI == "" {
		return fmt.Errorf("connection string is required when use_uri is set")
	}
	if !d.UseURI && len(d.Params) == 0 {
		return fmt.Errorf("connection parameters are required")
	}
	return nil
}
