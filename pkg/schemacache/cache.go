// Package schemacache holds introspected schema snapshots keyed by
// connection fingerprint, so repeated query generation does not pay the
// introspection cost on every request.
package schemacache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/engineerrors"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

// Cache is a TTL-bounded snapshot store. At most one snapshot lives per
// fingerprint; refreshes replace it atomically. Concurrent refreshes of
// the same fingerprint collapse into one introspection.
type Cache struct {
	ttl    time.Duration
	logger *zap.Logger

	mu        sync.Mutex
	snapshots map[string]*models.SchemaSnapshot
	inflight  map[string]*sync.Mutex
}

// New creates a cache with the given snapshot TTL.
func New(ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		ttl:       ttl,
		logger:    logger.Named("schemacache"),
		snapshots: make(map[string]*models.SchemaSnapshot),
		inflight:  make(map[string]*sync.Mutex),
	}
}

// GetOrRefresh returns the snapshot for the connector's fingerprint. A
// fresh cached snapshot is returned without touching the database; a
// stale or missing one triggers introspection. force always
// introspects, regardless of freshness. The second return reports
// whether an introspection replaced the snapshot; cache hits and stale
// fallbacks report false.
//
// When introspection fails and a previous snapshot exists, the stale
// snapshot is returned with a nil error so query generation can proceed
// on best-effort structure. With no previous snapshot the failure is
// surfaced as a schema error.
func (c *Cache) GetOrRefresh(ctx context.Context, fingerprint string, connector datasource.Connector, force bool) (*models.SchemaSnapshot, bool, error) {
	lock := c.fingerprintLock(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	cached := c.snapshots[fingerprint]
	c.mu.Unlock()

	if cached != nil && !force && !cached.IsStale(c.ttl) {
		return cached, false, nil
	}

	snapshot, err := connector.IntrospectSchema(ctx)
	if err != nil {
		if cached != nil {
			c.logger.Warn("introspection failed, serving stale snapshot",
				zap.String("fingerprint", shortFingerprint(fingerprint)),
				zap.Error(err))
			return cached, false, nil
		}
		return nil, false, engineerrors.Schema("schema introspection failed", err)
	}

	c.mu.Lock()
	c.snapshots[fingerprint] = snapshot
	c.mu.Unlock()

	c.logger.Debug("snapshot refreshed",
		zap.String("fingerprint", shortFingerprint(fingerprint)),
		zap.Int("entities", len(snapshot.Entities)),
		zap.Bool("partial", snapshot.Partial))

	return snapshot, true, nil
}

// Peek returns the cached snapshot without refreshing, or nil.
func (c *Cache) Peek(fingerprint string) *models.SchemaSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshots[fingerprint]
}

// Invalidate drops the snapshot for a fingerprint.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, fingerprint)
}

// shortFingerprint truncates a fingerprint for log lines. Production
// keys are sha256 hex, but the cache accepts any string.
func shortFingerprint(fingerprint string) string {
	if len(fingerprint) > 8 {
		return fingerprint[:8]
	}
	return fingerprint
}

// fingerprintLock returns the per-fingerprint refresh lock, creating it
// on first use. Serializing per fingerprint keeps one slow backend from
// blocking refreshes of others.
func (c *Cache) fingerprintLock(fingerprint string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.inflight[fingerprint]
	if !ok {
		lock = &sync.Mutex{}
		c.inflight[fingerprint] = lock
	}
	return lock
}
