package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
)

const schemaCacheKeyspace = "schema"

// CachedSchemaProvider wraps a SchemaProvider with cache-aside caching keyed by connection
type CachedSchemaProvider struct {
	provider providers.SchemaProvider
	cache    providers.CacheProvider
	ttl      time.Duration
}

// NewCachedSchemaProvider creates a new cached schema provider
func NewCachedSchemaProvider(provider providers.SchemaProvider, cache providers.CacheProvider, ttl time.Duration) *CachedSchemaProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedSchemaProvider{
		provider: provider,
		cache:    cache,
		ttl:      ttl,
	}
}

func schemaCacheKey(conn providers.Connection) string {
	return fmt.Sprintf("schema:%s:%s", conn.Kind(), conn.ID())
}

// GetSchema returns the cached schema of conn, introspecting it on a miss
func (p *CachedSchemaProvider) GetSchema(ctx context.Context, conn providers.Connection) (*entities.Schema, error) {
	key := schemaCacheKey(conn)

	if cached, err := p.cache.Get(ctx, key); err == nil {
		var schema entities.Schema
		if err := json.Unmarshal(cached, &schema); err == nil {
			observability.RecordCacheHit(ctx, schemaCacheKeyspace)
			return &schema, nil
		}
		log.Warn().Err(err).Str("connection_id", conn.ID()).Msg("failed to unmarshal cached schema")
	}
	observability.RecordCacheMiss(ctx, schemaCacheKeyspace)

	schema, err := p.provider.GetSchema(ctx, conn)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(schema); err == nil {
		if err := p.cache.Set(ctx, key, data, int(p.ttl.Seconds())); err != nil {
			log.Warn().Err(err).Str("connection_id", conn.ID()).Msg("failed to cache schema")
		}
	}
	return schema, nil
}

// Invalidate drops the cached schema of conn
func (p *CachedSchemaProvider) Invalidate(ctx context.Context, conn providers.Connection) error {
	return p.cache.Delete(ctx, schemaCacheKey(conn))
}
