package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/daladal/discord-bot/internal/cache"
	"github.com/daladal/discord-bot/internal/errs"
	"github.com/daladal/discord-bot/internal/metrics"
	"github.com/daladal/discord-bot/internal/model"
	"github.com/daladal/discord-bot/internal/repository"
	"github.com/daladal/discord-bot/internal/reqctx"
)

// MaxPrefixLen bounds a guild command prefix, in characters.
const MaxPrefixLen = 5

// ConfigService defines operations on per-guild settings.
type ConfigService interface {
	// Warm loads every stored config into memory and returns how many were loaded.
	Warm(ctx context.Context) (int, error)
	// Prefix returns the command prefix of a guild, never touching the store.
	Prefix(scopeID string) string
	// SetPrefix validates and persists a new prefix, then caches it.
	SetPrefix(ctx context.Context, scopeID, prefix string) error
	// Reload re-reads one guild's config from the store.
	Reload(ctx context.Context, scopeID string) error
}

// ConfigServiceImpl keeps the config cache authoritative: it is filled once
// by Warm and updated synchronously by every write, so reads never go to the
// store and entries never expire.
type ConfigServiceImpl struct {
	repo    repository.ConfigRepository
	cache   *cache.Cache[string, model.ServerConfig]
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewConfigService constructs ConfigService with an empty cache.
func NewConfigService(repo repository.ConfigRepository, m *metrics.Metrics, log *zap.Logger) *ConfigServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	s := &ConfigServiceImpl{
		repo:    repo,
		cache:   cache.New[string, model.ServerConfig](),
		metrics: m,
		log:     log,
	}
	m.TrackCacheSize("config", s.cache.Len)
	return s
}

// ValidatePrefix rejects empty prefixes, prefixes containing whitespace and
// prefixes longer than MaxPrefixLen.
func ValidatePrefix(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("%w: empty", errs.ErrInvalidPrefix)
	case strings.IndexFunc(p, unicode.IsSpace) >= 0:
		return fmt.Errorf("%w: contains whitespace", errs.ErrInvalidPrefix)
	case utf8.RuneCountInString(p) > MaxPrefixLen:
		return fmt.Errorf("%w: longer than %d characters", errs.ErrInvalidPrefix, MaxPrefixLen)
	}
	return nil
}

func (s *ConfigServiceImpl) Warm(ctx context.Context) (int, error) {
	all, err := s.repo.LoadAllConfigs(ctx)
	if err != nil {
		s.metrics.StoreError(errs.OpLoad)
		return 0, &errs.StoreError{Op: errs.OpLoad, Err: err}
	}
	for _, sc := range all {
		s.cache.Insert(sc.ScopeID, sc.Config)
	}
	return len(all), nil
}

func (s *ConfigServiceImpl) Prefix(scopeID string) string {
	if scopeID == "" {
		return model.DefaultPrefix
	}
	e, ok := s.cache.Get(scopeID)
	if !ok {
		s.metrics.CacheLookup("config", metrics.Miss)
		return model.DefaultPrefix
	}
	s.metrics.CacheLookup("config", metrics.Hit)
	return e.Value.Prefix
}

// SetPrefix writes the store first; the cache is only updated on success.
func (s *ConfigServiceImpl) SetPrefix(ctx context.Context, scopeID, prefix string) error {
	if err := ValidatePrefix(prefix); err != nil {
		return err
	}
	cfg := model.ServerConfig{Prefix: prefix}
	if err := s.repo.UpsertConfig(ctx, scopeID, cfg); err != nil {
		s.metrics.StoreError(errs.OpSave)
		s.log.Warn("config store call failed", reqctx.Field(ctx),
			zap.String("op", errs.OpSave), zap.String("guild_id", scopeID), zap.Error(err))
		return &errs.StoreError{Op: errs.OpSave, Err: err}
	}
	s.cache.Insert(scopeID, cfg)
	return nil
}

// Reload is used when the bot joins a guild whose config may have been
// written while it was away.
func (s *ConfigServiceImpl) Reload(ctx context.Context, scopeID string) error {
	cfg, err := s.repo.GetConfig(ctx, scopeID)
	switch {
	case err == nil:
		s.cache.Insert(scopeID, *cfg)
		return nil
	case errors.Is(err, errs.ErrNotFound):
		s.cache.Remove(scopeID)
		return nil
	default:
		s.metrics.StoreError(errs.OpLoad)
		return &errs.StoreError{Op: errs.OpLoad, Err: err}
	}
}
