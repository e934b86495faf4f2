package repository

import (
	"context"

	"github.com/daladal/discord-bot/internal/model"
)

// ConfigRepository persists per-guild settings.
type ConfigRepository interface {
	// GetConfig loads a single guild config; errs.ErrNotFound when absent.
	GetConfig(ctx context.Context, scopeID string) (*model.ServerConfig, error)
	// UpsertConfig inserts or replaces the config for scopeID.
	UpsertConfig(ctx context.Context, scopeID string, cfg model.ServerConfig) error
	// LoadAllConfigs returns every stored guild config (startup warm-up).
	LoadAllConfigs(ctx context.Context) ([]model.ScopedConfig, error)
}
