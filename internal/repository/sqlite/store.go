// Package sqlite provides an embedded SQLite implementation of the link and
// guild config repositories.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/daladal/discord-bot/internal/errs"
	"github.com/daladal/discord-bot/internal/migrate"
	"github.com/daladal/discord-bot/internal/model"
)

// Store persists links and guild configs in a single SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at path, bounds the connection pool to maxConns and
// applies embedded migrations.
func Open(ctx context.Context, path string, maxConns int, log *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(time.Second),
	), 3), ctx)
	notify := func(err error, wait time.Duration) {
		log.Warn("sqlite not ready, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(func() error { return db.PingContext(ctx) }, b, notify); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate.Run(ctx, db, goose.DialectSQLite3, "sqlite", log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Ping reports whether the database file is usable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetLink selects the link owned by a Discord user.
func (s *Store) GetLink(ctx context.Context, ownerID string) (*model.LinkRecord, error) {
	const q = `
SELECT discord_user_id, summoner_name, summoner_tag, region, riot_puuid
FROM user_links WHERE discord_user_id = ?`
	var (
		l      model.LinkRecord
		region string
		puuid  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, q, ownerID).Scan(&l.OwnerID, &l.Name, &l.Tag, &region, &puuid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	l.Region = model.Region(region)
	if puuid.Valid {
		l.VerifiedID = &puuid.String
	}
	return &l, nil
}

// UpsertLink inserts the link or overwrites every mutable column of an
// existing row whose values differ.
func (s *Store) UpsertLink(ctx context.Context, rec model.LinkRecord) error {
	const q = `
INSERT INTO user_links (discord_user_id, summoner_name, summoner_tag, region, riot_puuid, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (discord_user_id) DO UPDATE
SET summoner_name = excluded.summoner_name,
    summoner_tag  = excluded.summoner_tag,
    region        = excluded.region,
    riot_puuid    = excluded.riot_puuid,
    updated_at    = excluded.updated_at
WHERE user_links.summoner_name IS NOT excluded.summoner_name
   OR user_links.summoner_tag IS NOT excluded.summoner_tag
   OR user_links.region IS NOT excluded.region
   OR user_links.riot_puuid IS NOT excluded.riot_puuid`
	ts := s.now().Unix()
	var puuid sql.NullString
	if rec.VerifiedID != nil {
		puuid = sql.NullString{String: *rec.VerifiedID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, q, rec.OwnerID, rec.Name, rec.Tag, string(rec.Region), puuid, ts, ts)
	return err
}

// DeleteLink removes the link and reports whether a row was deleted.
func (s *Store) DeleteLink(ctx context.Context, ownerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_links WHERE discord_user_id = ?`, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetConfig selects one guild config.
func (s *Store) GetConfig(ctx context.Context, scopeID string) (*model.ServerConfig, error) {
	var c model.ServerConfig
	err := s.db.QueryRowContext(ctx, `SELECT prefix FROM guild_configs WHERE guild_id = ?`, scopeID).Scan(&c.Prefix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpsertConfig inserts the config or replaces the prefix of an existing row.
func (s *Store) UpsertConfig(ctx context.Context, scopeID string, cfg model.ServerConfig) error {
	const q = `
INSERT INTO guild_configs (guild_id, prefix, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (guild_id) DO UPDATE
SET prefix = excluded.prefix, updated_at = excluded.updated_at
WHERE guild_configs.prefix IS NOT excluded.prefix`
	ts := s.now().Unix()
	_, err := s.db.ExecContext(ctx, q, scopeID, cfg.Prefix, ts, ts)
	return err
}

// LoadAllConfigs returns every stored guild config ordered by guild id.
func (s *Store) LoadAllConfigs(ctx context.Context) ([]model.ScopedConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id, prefix FROM guild_configs ORDER BY guild_id`)
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
