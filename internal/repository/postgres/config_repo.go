package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/daladal/discord-bot/internal/errs"
	"github.com/daladal/discord-bot/internal/model"
)

// ConfigRepo implements ConfigRepository using PostgreSQL.
type ConfigRepo struct{ db *DB }

// NewConfigRepo constructs a guild config repository.
func NewConfigRepo(db *DB) *ConfigRepo { return &ConfigRepo{db: db} }

// GetConfig selects one guild config.
func (r *ConfigRepo) GetConfig(ctx context.Context, scopeID string) (*model.ServerConfig, error) {
	const q = `SELECT prefix FROM guild_configs WHERE guild_id = $1`
	var c model.ServerConfig
	if err := r.db.Pool.QueryRow(ctx, q, scopeID).Scan(&c.Prefix); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpsertConfig inserts the config or replaces the prefix of an existing row.
func (r *ConfigRepo) UpsertConfig(ctx context.Context, scopeID string, cfg model.ServerConfig) error {
	const q = `
INSERT INTO guild_configs (guild_id, prefix, created_at, updated_at)
VALUES ($1, $2, now(), now())
ON CONFLICT (guild_id) DO UPDATE
SET prefix = EXCLUDED.prefix, updated_at = now()
WHERE guild_configs.prefix IS DISTINCT FROM EXCLUDED.prefix`
	_, err := r.db.Pool.Exec(ctx, q, scopeID, cfg.Prefix)
	return err
}

// LoadAllConfigs returns every stored guild config ordered by guild id.
func (r *ConfigRepo) LoadAllConfigs(ctx context.Context) ([]model.ScopedConfig, error) {
	const q = `SELECT guild_id, prefix FROM guild_configs ORDER BY guild_id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScopedConfig
	for rows.Next() {
		var sc model.ScopedConfig
		if err = rows.Scan(&sc.ScopeID, &sc.Config.Prefix); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
