package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/daladal/discord-bot/internal/errs"
	"github.com/daladal/discord-bot/internal/model"
	"github.com/daladal/discord-bot/internal/repository"
)

var (
	_ repository.LinkRepository   = (*Store)(nil)
	_ repository.ConfigRepository = (*Store)(nil)
	_ repository.Pinger           = (*Store)(nil)
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "bot.db"), 2, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func updatedAt(t *testing.T, s *Store, ownerID string) int64 {
	t.Helper()
	var ts int64
	err := s.db.QueryRow(`SELECT updated_at FROM user_links WHERE discord_user_id = ?`, ownerID).Scan(&ts)
	require.NoError(t, err)
	return ts
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ", 1, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestStore_LinkRoundTrip(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	puuid := "p1"

	_, err := s.GetLink(ctx, "42")
	require.ErrorIs(t, err, errs.ErrNotFound)

	rec := model.LinkRecord{OwnerID: "42", Name: "Faker", Tag: "KR1", Region: "kr", VerifiedID: &puuid}
	require.NoError(t, s.UpsertLink(ctx, rec))

	got, err := s.GetLink(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, rec, *got)

	rec.VerifiedID = nil
	rec.Name = "Legacy"
	require.NoError(t, s.UpsertLink(ctx, rec))
	got, err = s.GetLink(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "Legacy", got.Name)
	require.Nil(t, got.VerifiedID)
}

func TestStore_UpsertLinkIdempotent(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return t0 }

	puuid := "p1"
	rec := model.LinkRecord{OwnerID: "42", Name: "Faker", Tag: "KR1", Region: "kr", VerifiedID: &puuid}
	require.NoError(t, s.UpsertLink(ctx, rec))

	s.now = func() time.Time { return t0.Add(time.Hour) }
	require.NoError(t, s.UpsertLink(ctx, rec))
	require.Equal(t, t0.Unix(), updatedAt(t, s, "42"))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM user_links`).Scan(&n))
	require.Equal(t, 1, n)

	rec.Tag = "KR2"
	require.NoError(t, s.UpsertLink(ctx, rec))
	require.Equal(t, t0.Add(time.Hour).Unix(), updatedAt(t, s, "42"))
}

func TestStore_DeleteLink(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	ok, err := s.DeleteLink(ctx, "42")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.UpsertLink(ctx, model.LinkRecord{OwnerID: "42", Name: "a", Tag: "b", Region: "na"}))
	ok, err = s.DeleteLink(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.GetLink(ctx, "42")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStore_Configs(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	out, err := s.LoadAllConfigs(ctx)
	require.NoError(t, err)
	require.Empty(t, out)

	_, err = s.GetConfig(ctx, "g1")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, s.UpsertConfig(ctx, "g2", model.ServerConfig{Prefix: "?"}))
	require.NoError(t, s.UpsertConfig(ctx, "g1", model.ServerConfig{Prefix: "!"}))
	require.NoError(t, s.UpsertConfig(ctx, "g1", model.ServerConfig{Prefix: "$"}))

	c, err := s.GetConfig(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, "$", c.Prefix)

	out, err = s.LoadAllConfigs(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.ScopedConfig{
		{ScopeID: "g1", Config: model.ServerConfig{Prefix: "$"}},
		{ScopeID: "g2", Config: model.ServerConfig{Prefix: "?"}},
	}, out)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	s, err := Open(ctx, path, 1, log)
	require.NoError(t, err)
	require.NoError(t, s.UpsertConfig(ctx, "g1", model.ServerConfig{Prefix: "%"}))
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, 1, log)
	require.NoError(t, err)
	defer s.Close()
	c, err := s.GetConfig(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, "%", c.Prefix)
}
