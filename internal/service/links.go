// Package service contains the link and guild config synchronizers that keep
// the in-memory caches, the durable store and the Riot verifier coherent.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/daladal/discord-bot/internal/cache"
	"github.com/daladal/discord-bot/internal/errs"
	"github.com/daladal/discord-bot/internal/limiter"
	"github.com/daladal/discord-bot/internal/metrics"
	"github.com/daladal/discord-bot/internal/model"
	"github.com/daladal/discord-bot/internal/repository"
	"github.com/daladal/discord-bot/internal/reqctx"
)

// DefaultLinkTTL is how long a cached link is trusted without asking the store.
const DefaultLinkTTL = time.Hour

// DefaultReadTimeout bounds a store read shared by concurrent lookups.
const DefaultReadTimeout = 10 * time.Second

// Verifier resolves a Riot ID to its canonical identity.
type Verifier interface {
	Resolve(ctx context.Context, name, tag string, region model.Region) (model.VerifiedIdentity, error)
}

// LinkService defines the operations on Discord-to-Riot links.
type LinkService interface {
	// Link verifies name#tag upstream, persists it and caches the canonical record.
	Link(ctx context.Context, ownerID, name, tag, region string) (model.LinkRecord, error)
	// Unlink deletes the owner's link. errs.ErrNotFound when nothing was linked.
	Unlink(ctx context.Context, ownerID string) error
	// Lookup returns the owner's link, refreshing it from the store when stale.
	Lookup(ctx context.Context, ownerID string) (model.LinkRecord, error)
}

type LinkServiceImpl struct {
	repo     repository.LinkRepository
	verifier Verifier
	cache    *cache.Cache[string, model.LinkRecord]
	ttl      time.Duration
	lim      limiter.Limiter
	group    singleflight.Group
	metrics  *metrics.Metrics
	log      *zap.Logger

	// bounds the shared Lookup read, which ignores caller cancellation
	readTimeout time.Duration
}

// LinkOption customizes NewLinkService.
type LinkOption func(*linkOptions)

type linkOptions struct {
	ttl     time.Duration
	read    time.Duration
	now     func() time.Time
	lim     limiter.Limiter
	metrics *metrics.Metrics
	log     *zap.Logger
}

// WithLinkTTL overrides DefaultLinkTTL.
func WithLinkTTL(d time.Duration) LinkOption { return func(o *linkOptions) { o.ttl = d } }

// WithReadTimeout overrides DefaultReadTimeout.
func WithReadTimeout(d time.Duration) LinkOption { return func(o *linkOptions) { o.read = d } }

// WithClock sets the time source of the link cache.
func WithClock(now func() time.Time) LinkOption { return func(o *linkOptions) { o.now = now } }

// WithLimiter throttles Link per owner before the verifier is called.
func WithLimiter(l limiter.Limiter) LinkOption { return func(o *linkOptions) { o.lim = l } }

// WithMetrics records lookup and verification outcomes.
func WithMetrics(m *metrics.Metrics) LinkOption { return func(o *linkOptions) { o.metrics = m } }

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) LinkOption { return func(o *linkOptions) { o.log = l } }

// NewLinkService constructs LinkService with an empty link cache.
func NewLinkService(repo repository.LinkRepository, verifier Verifier, opts ...LinkOption) *LinkServiceImpl {
	o := linkOptions{ttl: DefaultLinkTTL, read: DefaultReadTimeout, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = DefaultLinkTTL
	}
	if o.read <= 0 {
		o.read = DefaultReadTimeout
	}
	s := &LinkServiceImpl{
		repo:        repo,
		verifier:    verifier,
		cache:       cache.New[string, model.LinkRecord](cache.WithClock(o.now)),
		ttl:         o.ttl,
		lim:         o.lim,
		metrics:     o.metrics,
		log:         o.log,
		readTimeout: o.read,
	}
	o.metrics.TrackCacheSize("link", s.cache.Len)
	if l, ok := o.lim.(interface{ Len() int }); ok {
		o.metrics.TrackLimiterKeys(l.Len)
	}
	return s
}

// Link follows verifier, then store, then cache. A failure at any step leaves
// every later tier untouched.
func (s *LinkServiceImpl) Link(ctx context.Context, ownerID, name, tag, region string) (model.LinkRecord, error) {
	r, err := model.ParseRegion(region)
	if err != nil {
		return model.LinkRecord{}, err
	}
	name, tag = strings.TrimSpace(name), strings.TrimSpace(tag)
	if name == "" || tag == "" {
		return model.LinkRecord{}, fmt.Errorf("%w: name and tag are required", errs.ErrInvalidRiotID)
	}
	if s.lim != nil {
		if ok, wait := s.lim.Allow(ownerID); !ok {
			return model.LinkRecord{}, fmt.Errorf("%w: retry in %s", errs.ErrCommandThrottled, wait.Round(time.Second))
		}
	}

	id, err := s.verifier.Resolve(ctx, name, tag, r)
	s.metrics.Verification(err)
	if err != nil {
		return model.LinkRecord{}, err
	}

	puuid := id.PUUID
	rec := model.LinkRecord{
		OwnerID:    ownerID,
		Name:       id.GameName,
		Tag:        id.TagLine,
		Region:     r,
		VerifiedID: &puuid,
	}
	if err := s.repo.UpsertLink(ctx, rec); err != nil {
		return model.LinkRecord{}, s.storeErr(ctx, errs.OpSave, ownerID, err)
	}
	s.cache.Insert(ownerID, rec)
	return rec, nil
}

// Unlink treats the store as authoritative: a cached entry the store no
// longer knows about is purged and reported as nothing to delete.
func (s *LinkServiceImpl) Unlink(ctx context.Context, ownerID string) error {
	if _, ok := s.cache.Get(ownerID); !ok {
		if _, err := s.repo.GetLink(ctx, ownerID); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrNotFound
			}
			return s.storeErr(ctx, errs.OpCheck, ownerID, err)
		}
	}

	deleted, err := s.repo.DeleteLink(ctx, ownerID)
	if err != nil {
		return s.storeErr(ctx, errs.OpDelete, ownerID, err)
	}
	s.cache.Remove(ownerID)
	if !deleted {
		return errs.ErrNotFound
	}
	return nil
}

// Lookup serves fresh entries from memory. Stale and missing entries are
// read from the store; concurrent reads for one owner share a single query.
func (s *LinkServiceImpl) Lookup(ctx context.Context, ownerID string) (model.LinkRecord, error) {
	e, cached := s.cache.Get(ownerID)
	if cached && !e.IsStale(s.ttl, s.cache.Now()) {
		s.metrics.CacheLookup("link", metrics.Hit)
		return e.Value, nil
	}

	op := errs.OpLoad
	if cached {
		op = errs.OpRefresh
		s.metrics.CacheLookup("link", metrics.Stale)
	} else {
		s.metrics.CacheLookup("link", metrics.Miss)
	}

	// The shared read outlives any single caller; each caller waits only as
	// long as its own ctx allows.
	ch := s.group.DoChan(ownerID, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.readTimeout)
		defer cancel()
		rec, err := s.repo.GetLink(rctx, ownerID)
		switch {
		case err == nil:
			s.cache.Insert(ownerID, *rec)
			return *rec, nil
		case errors.Is(err, errs.ErrNotFound):
			if cached {
				s.cache.Remove(ownerID)
			}
			return nil, err
		default:
			return nil, err
		}
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return model.LinkRecord{}, fmt.Errorf("lookup %s: %w", ownerID, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		if errors.Is(res.Err, errs.ErrNotFound) {
			return model.LinkRecord{}, errs.ErrNotFound
		}
		return model.LinkRecord{}, s.storeErr(ctx, op, ownerID, res.Err)
	}
	return res.Val.(model.LinkRecord), nil
}

func (s *LinkServiceImpl) storeErr(ctx context.Context, op, ownerID string, err error) error {
	s.metrics.StoreError(op)
	s.log.Warn("link store call failed",
		reqctx.Field(ctx), zap.String("op", op), zap.String("owner_id", ownerID), zap.Error(err))
	return &errs.StoreError{Op: op, Err: err}
}
