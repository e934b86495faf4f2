package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/daladal/discord-bot/internal/errs"
	"github.com/daladal/discord-bot/internal/model"
)

// LinkRepo implements LinkRepository using PostgreSQL.
type LinkRepo struct{ db *DB }

// NewLinkRepo constructs a link repository.
func NewLinkRepo(db *DB) *LinkRepo { return &LinkRepo{db: db} }

// GetLink selects the link owned by a Discord user.
func (r *LinkRepo) GetLink(ctx context.Context, ownerID string) (*model.LinkRecord, error) {
	const q = `
SELECT discord_user_id, summoner_name, summoner_tag, region, riot_puuid
FROM user_links WHERE discord_user_id = $1`
	var (
		l      model.LinkRecord
		region string
	)
	err := r.db.Pool.QueryRow(ctx, q, ownerID).Scan(&l.OwnerID, &l.Name, &l.Tag, &region, &l.VerifiedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	l.Region = model.Region(region)
	return &l, nil
}

// UpsertLink inserts the link or overwrites every mutable column. A repeated
// upsert with identical values leaves the row, including updated_at, untouched.
func (r *LinkRepo) UpsertLink(ctx context.Context, rec model.LinkRecord) error {
	const q = `
INSERT INTO user_links (discord_user_id, summoner_name, summoner_tag, region, riot_puuid, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())
ON CONFLICT (discord_user_id) DO UPDATE
SET summoner_name = EXCLUDED.summoner_name,
    summoner_tag  = EXCLUDED.summoner_tag,
    region        = EXCLUDED.region,
    riot_puuid    = EXCLUDED.riot_puuid,
    updated_at    = now()
WHERE (user_links.summoner_name, user_links.summoner_tag, user_links.region, user_links.riot_puuid)
      IS DISTINCT FROM (EXCLUDED.summoner_name, EXCLUDED.summoner_tag, EXCLUDED.region, EXCLUDED.riot_puuid)`
	_, err := r.db.Pool.Exec(ctx, q, rec.OwnerID, rec.Name, rec.Tag, string(rec.Region), rec.VerifiedID)
	return err
}

// DeleteLink removes the link and reports whether a row was deleted.
func (r *LinkRepo) DeleteLink(ctx context.Context, ownerID string) (bool, error) {
	const q = `DELETE FROM user_links WHERE discord_user_id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
