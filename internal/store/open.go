// internal/store/open.go
package store

import (
	"context"
	"fmt"

	"loan-club/internal/common/config"
	"loan-club/internal/common/database"
)

// Backend is a configured Gateway together with the connection it owns.
type Backend struct {
	Gateway Gateway
	ping    func(ctx context.Context) error
	close   func() error
}

// Ping reports whether the underlying connection is reachable. Backends
// without a connection (file, github) are always reachable from here.
func (b *Backend) Ping(ctx context.Context) error {
	if b == nil || b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Open builds the gateway selected by store.backend.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendFile:
		return &Backend{Gateway: NewFileGateway(cfg.Store.File.Path)}, nil

	case config.BackendGitHub:
		gw := NewGitHubGateway(cfg.Store.GitHub, config.GetDuration(cfg.Store.Timeout))
		return &Backend{Gateway: gw}, nil

	case config.BackendPostgres:
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		if err := pg.Ping(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("postgres ping failed: %w", err)
		}
		gw := NewPostgresGateway(pg.DB, cfg.Store.Postgres.Table, cfg.Store.Postgres.Name)
		if err := gw.EnsureTable(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return &Backend{Gateway: gw, ping: pg.Ping, close: pg.Close}, nil

	case config.BackendRedis:
		rc, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return nil, err
		}
		gw := NewRedisGateway(rc.Client, cfg.Store.Redis.Key)
		return &Backend{Gateway: gw, ping: rc.Ping, close: rc.Close}, nil
	}

	return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
}
