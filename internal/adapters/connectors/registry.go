package connectors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
	"github.com/zatekoja/databaseguru/backend/pkg/config"
)

type managed interface {
	Ping(ctx context.Context) error
	Close() error
}

// Registry owns the user database connections of the process, keyed by connection ID
type Registry struct {
	mu    sync.RWMutex
	conns map[string]providers.Connection
	order []string
	pool  *WorkerPool
}

// NewRegistry creates an empty registry. Synchronous connections share pool.
func NewRegistry(pool *WorkerPool) *Registry {
	if pool == nil {
		pool = NewWorkerPool(DefaultSyncWorkers)
	}
	return &Registry{
		conns: make(map[string]providers.Connection),
		pool:  pool,
	}
}

// OpenRegistry connects to every configured database. A database that cannot be reached is
// logged and left out so the service can still answer for the others.
func OpenRegistry(ctx context.Context, cfgs []config.ConnectionConfig, pool *WorkerPool) (*Registry, error) {
	r := NewRegistry(pool)

	// Databases are dialled concurrently; registration keeps configuration order.
	opened := make([]providers.Connection, len(cfgs))
	var g errgroup.Group
	g.SetLimit(maxConcurrentOpens)
	for i, cfg := range cfgs {
		g.Go(func() error {
			conn, err := r.open(ctx, cfg)
			if err != nil {
				if errors.Is(err, errUnsupportedKind) {
					return err
				}
				log.Warn().Err(err).Str("connection_id", cfg.ID).Str("kind", cfg.Kind).Msg("database unavailable, skipping")
				return nil
			}
			opened[i] = conn
			return nil
		})
	}
	err := g.Wait()
	for _, conn := range opened {
		if conn == nil {
			continue
		}
		if err == nil {
			err = r.Register(conn)
		}
		if err != nil {
			if m, ok := conn.(managed); ok {
				_ = m.Close()
			}
		}
	}
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	if len(r.order) == 0 && len(cfgs) > 0 {
		log.Warn().Msg("no user databases available")
	} else {
		log.Info().Int("connections", len(r.order)).Msg("connected to user databases")
	}
	return r, nil
}

const maxConcurrentOpens = 8

var errUnsupportedKind = errors.New("unsupported database kind")

func (r *Registry) open(ctx context.Context, cfg config.ConnectionConfig) (providers.Connection, error) {
	switch cfg.Kind {
	case entities.DatabaseKindPostgres, "postgresql":
		return NewPostgresConnection(ctx, cfg.ID, cfg.DSN, cfg.ReadOnly)
	case entities.DatabaseKindMySQL:
		return NewMySQLConnection(ctx, cfg.ID, cfg.DSN, cfg.ReadOnly)
	case entities.DatabaseKindSQLite:
		conn, err := NewSQLiteConnection(ctx, cfg.ID, cfg.DSN, cfg.ReadOnly)
		if err != nil {
			return nil, err
		}
		return NewPooled(conn, r.pool), nil
	}
	return nil, fmt.Errorf("%w %q for connection %s", errUnsupportedKind, cfg.Kind, cfg.ID)
}

// Register adds conn. Synchronous drivers must already be wrapped with NewPooled.
func (r *Registry) Register(conn providers.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.conns[conn.ID()]; dup {
		return fmt.Errorf("duplicate connection id %q", conn.ID())
	}
	r.conns[conn.ID()] = conn
	r.order = append(r.order, conn.ID())
	return nil
}

// RegisterSync wraps a synchronous driver with the shared worker pool and adds it
func (r *Registry) RegisterSync(conn providers.SyncConnection) error {
	return r.Register(NewPooled(conn, r.pool))
}

// Get returns the connection with the given ID
func (r *Registry) Get(id string) (providers.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// List returns every connection in registration order
func (r *Registry) List() []providers.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]providers.Connection, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.conns[id])
	}
	return out
}

// HealthCheck pings every connection and returns the failures keyed by connection ID
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for _, conn := range r.List() {
		m, ok := conn.(managed)
		if !ok {
			continue
		}
		if err := m.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("connection_id", conn.ID()).Msg("database unhealthy")
			failures[conn.ID()] = err
		}
	}
	return failures
}

// IDs returns the registered connection IDs sorted
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

// Close closes all database connections
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, id := range r.order {
		if m, ok := r.conns[id].(managed); ok {
			if err := m.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %s: %w", id, err))
			}
		}
	}
	r.conns = make(map[string]providers.Connection)
	r.order = nil
	return errors.Join(errs...)
}
