// Package storage opens the configured persistence backend.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/daladal/discord-bot/internal/config"
	"github.com/daladal/discord-bot/internal/migrate"
	"github.com/daladal/discord-bot/internal/repository"
	"github.com/daladal/discord-bot/internal/repository/postgres"
	"github.com/daladal/discord-bot/internal/repository/sqlite"
)

// Stores bundles the repositories of one backend.
type Stores struct {
	Links   repository.LinkRepository
	Configs repository.ConfigRepository
	Pinger  repository.Pinger

	close func()
}

// Close releases the backend connections.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open migrates and connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.Storage, log *zap.Logger) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.Path, cfg.MaxConns, log.Named("sqlite"))
		if err != nil {
			return nil, err
		}
		return &Stores{Links: s, Configs: s, Pinger: s, close: func() { _ = s.Close() }}, nil

	case config.DriverPostgres:
		if err := migrate.Up(ctx, cfg.DSN, log.Named("migrate")); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		db, err := postgres.Connect(ctx, cfg.DSN, postgres.ConnectOptions{MaxConns: int32(cfg.MaxConns)}, log.Named("postgres"))
		if err != nil {
			return nil, err
		}
		return &Stores{
			Links:   postgres.NewLinkRepo(db),
			Configs: postgres.NewConfigRepo(db),
			Pinger:  db,
			close:   db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalid, cfg.Driver)
	}
}
