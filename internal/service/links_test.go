package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/daladal/discord-bot/internal/errs"
	"github.com/daladal/discord-bot/internal/limiter"
	"github.com/daladal/discord-bot/internal/metrics"
	"github.com/daladal/discord-bot/internal/model"
	"github.com/daladal/discord-bot/internal/repository"
	"github.com/daladal/discord-bot/internal/reqctx"
	"github.com/daladal/discord-bot/internal/riot"
)

type fakeLinkRepo struct {
	mu   sync.Mutex
	rows map[string]model.LinkRecord

	getErr    error
	upsertErr error
	deleteErr error
	// deleteMiss makes DeleteLink report no row even when one exists.
	deleteMiss bool
	// gate, when set, blocks GetLink until closed or the call's ctx ends.
	gate chan struct{}
	// entered, when set, receives once per GetLink that reached the gate.
	entered chan struct{}

	getCalls    int
	upsertCalls int
	deleteCalls int
}

var _ repository.LinkRepository = (*fakeLinkRepo)(nil)

func newFakeLinkRepo() *fakeLinkRepo { return &fakeLinkRepo{rows: map[string]model.LinkRecord{}} }

func (f *fakeLinkRepo) GetLink(ctx context.Context, ownerID string) (*model.LinkRecord, error) {
	if f.gate != nil {
		if f.entered != nil {
			f.entered <- struct{}{}
		}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.rows[ownerID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &r, nil
}

func (f *fakeLinkRepo) UpsertLink(_ context.Context, rec model.LinkRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.rows[rec.OwnerID] = rec
	return nil
}

func (f *fakeLinkRepo) DeleteLink(_ context.Context, ownerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	if f.deleteMiss {
		return false, nil
	}
	_, ok := f.rows[ownerID]
	delete(f.rows, ownerID)
	return ok, nil
}

func (f *fakeLinkRepo) gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

type fakeVerifier struct {
	out   model.VerifiedIdentity
	err   error
	calls int

	inName, inTag string
	inRegion      model.Region
}

var _ Verifier = (*fakeVerifier)(nil)

func (f *fakeVerifier) Resolve(_ context.Context, name, tag string, region model.Region) (model.VerifiedIdentity, error) {
	f.calls++
	f.inName, f.inTag, f.inRegion = name, tag, region
	return f.out, f.err
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

type denyLimiter struct{}

func (denyLimiter) Allow(string) (bool, time.Duration) { return false, 30 * time.Second }

var faker = model.VerifiedIdentity{PUUID: "p1", GameName: "Faker", TagLine: "KR1"}

func newLinkSvc(repo *fakeLinkRepo, v *fakeVerifier) (*LinkServiceImpl, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewLinkService(repo, v, WithClock(clk.now), WithLinkTTL(time.Hour)), clk
}

var _ LinkService = (*LinkServiceImpl)(nil)

func TestLink_FakerScenario(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	v := &fakeVerifier{out: faker}
	s, _ := newLinkSvc(repo, v)

	rec, err := s.Link(ctx, "owner", "faker", "kr1", "KR")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if v.inName != "faker" || v.inTag != "kr1" || v.inRegion != "kr" {
		t.Fatalf("verifier got %q %q %q", v.inName, v.inTag, v.inRegion)
	}
	stored := repo.rows["owner"]
	if stored.Name != "Faker" || stored.Tag != "KR1" || stored.Region != "kr" || stored.VerifiedID == nil || *stored.VerifiedID != "p1" {
		t.Fatalf("stored record = %+v", stored)
	}
	if rec.RiotID() != "Faker#KR1" {
		t.Fatalf("returned record not canonical: %s", rec.RiotID())
	}

	got, err := s.Lookup(ctx, "owner")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.RiotID() != "Faker#KR1" || *got.VerifiedID != "p1" {
		t.Fatalf("lookup = %+v", got)
	}
	if v.calls != 1 || repo.gets() != 0 {
		t.Fatalf("lookup after link must be served from cache: verifier=%d gets=%d", v.calls, repo.gets())
	}
}

func TestLink_ValidationBeforeIO(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	v := &fakeVerifier{out: faker}
	s, _ := newLinkSvc(repo, v)

	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "xx"); !errors.Is(err, errs.ErrInvalidRegion) {
		t.Fatalf("want ErrInvalidRegion, got %v", err)
	}
	if _, err := s.Link(ctx, "owner", " ", "KR1", "kr"); !errors.Is(err, errs.ErrInvalidRiotID) {
		t.Fatalf("want ErrInvalidRiotID, got %v", err)
	}
	if v.calls != 0 || repo.upsertCalls != 0 || s.cache.Len() != 0 {
		t.Fatalf("validation must not touch any tier: verifier=%d upserts=%d cache=%d", v.calls, repo.upsertCalls, s.cache.Len())
	}
}

func TestLink_VerifierFailureLeavesTiersUntouched(t *testing.T) {
	kinds := []error{
		errs.ErrUpstreamNotFound, errs.ErrRateLimited, errs.ErrUnauthorized,
		errs.ErrUpstreamFault, errs.ErrTransport, errs.ErrMalformed,
	}
	for _, kind := range kinds {
		repo := newFakeLinkRepo()
		v := &fakeVerifier{err: &riot.VerifyError{Kind: kind}}
		s, _ := newLinkSvc(repo, v)

		_, err := s.Link(context.Background(), "owner", "Faker", "KR1", "kr")
		if !errors.Is(err, kind) {
			t.Fatalf("want %v, got %v", kind, err)
		}
		if repo.upsertCalls != 0 || s.cache.Len() != 0 {
			t.Fatalf("%v: store or cache mutated", kind)
		}
	}
}

func TestLink_StoreFailureLeavesCacheEmpty(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	repo.upsertErr = errors.New("disk full")
	s, _ := newLinkSvc(repo, &fakeVerifier{out: faker})

	_, err := s.Link(ctx, "owner", "Faker", "KR1", "kr")
	var se *errs.StoreError
	if !errors.As(err, &se) || se.Op != errs.OpSave {
		t.Fatalf("want StoreError(save), got %v", err)
	}
	if s.cache.Len() != 0 {
		t.Fatalf("cache must not be populated after store failure")
	}

	if _, err := s.Lookup(ctx, "owner"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("lookup must report absent, got %v", err)
	}
	if repo.gets() != 1 {
		t.Fatalf("lookup should have gone to the store")
	}
}

func TestLink_FailedRelinkKeepsExistingLink(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	v := &fakeVerifier{out: faker}
	s, clk := newLinkSvc(repo, v)
	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "kr"); err != nil {
		t.Fatal(err)
	}
	before, _ := s.cache.Get("owner")
	storedBefore := repo.rows["owner"]

	assertUnchanged := func(step string) {
		t.Helper()
		e, ok := s.cache.Get("owner")
		if !ok || e.Value.RiotID() != "Faker#KR1" || *e.Value.VerifiedID != "p1" || !e.CachedAt.Equal(before.CachedAt) {
			t.Fatalf("%s: cache entry changed: %+v", step, e)
		}
		got := repo.rows["owner"]
		if got.Name != storedBefore.Name || got.Tag != storedBefore.Tag || got.Region != storedBefore.Region ||
			*got.VerifiedID != *storedBefore.VerifiedID {
			t.Fatalf("%s: stored row changed: %+v", step, got)
		}
	}

	clk.t = clk.t.Add(time.Minute)
	v.err = &riot.VerifyError{Kind: errs.ErrUpstreamFault}
	if _, err := s.Link(ctx, "owner", "Caps", "EUW", "euw"); !errors.Is(err, errs.ErrUpstreamFault) {
		t.Fatalf("want upstream fault, got %v", err)
	}
	assertUnchanged("verifier failure")

	v.err = nil
	v.out = model.VerifiedIdentity{PUUID: "p2", GameName: "Caps", TagLine: "EUW"}
	repo.upsertErr = errors.New("disk full")
	var se *errs.StoreError
	if _, err := s.Link(ctx, "owner", "Caps", "EUW", "euw"); !errors.As(err, &se) || se.Op != errs.OpSave {
		t.Fatalf("want StoreError(save), got %v", err)
	}
	assertUnchanged("store failure")
}

func TestLink_StoreFailureLogsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	repo := newFakeLinkRepo()
	repo.upsertErr = errors.New("disk full")
	s := NewLinkService(repo, &fakeVerifier{out: faker}, WithLogger(zap.New(core)))

	id := uuid.Must(uuid.NewV4())
	ctx := reqctx.WithRequestID(context.Background(), id)
	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "kr"); !errors.Is(err, errs.ErrStore) {
		t.Fatalf("want store error, got %v", err)
	}
	if logs.Len() != 1 {
		t.Fatalf("want one warning, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["request_id"]; got != id.String() {
		t.Fatalf("request_id = %v, want %s", got, id)
	}
}

func TestLink_LimiterKeysExported(t *testing.T) {
	reg := prometheus.NewRegistry()
	lim := limiter.NewMemory(1, time.Minute)
	s := NewLinkService(newFakeLinkRepo(), &fakeVerifier{out: faker},
		WithLimiter(lim), WithMetrics(metrics.New(reg)))

	for _, owner := range []string{"a", "b"} {
		if _, err := s.Link(context.Background(), owner, "Faker", "KR1", "kr"); err != nil {
			t.Fatalf("Link(%s): %v", owner, err)
		}
	}
	if _, err := s.Link(context.Background(), "a", "Faker", "KR1", "kr"); !errors.Is(err, errs.ErrCommandThrottled) {
		t.Fatalf("second link within the interval should be throttled, got %v", err)
	}

	const want = `
# HELP riotlink_limiter_keys Owners currently tracked by the link throttle.
# TYPE riotlink_limiter_keys gauge
riotlink_limiter_keys 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "riotlink_limiter_keys"); err != nil {
		t.Fatal(err)
	}
}

func TestLink_Throttled(t *testing.T) {
	repo := newFakeLinkRepo()
	v := &fakeVerifier{out: faker}
	s := NewLinkService(repo, v, WithLimiter(denyLimiter{}))

	_, err := s.Link(context.Background(), "owner", "Faker", "KR1", "kr")
	if !errors.Is(err, errs.ErrCommandThrottled) {
		t.Fatalf("want ErrCommandThrottled, got %v", err)
	}
	if v.calls != 0 {
		t.Fatalf("verifier must not be called when throttled")
	}
}

func TestLink_RelinkReplaces(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	v := &fakeVerifier{out: faker}
	s, _ := newLinkSvc(repo, v)

	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "kr"); err != nil {
		t.Fatal(err)
	}
	v.out = model.VerifiedIdentity{PUUID: "p2", GameName: "Caps", TagLine: "EUW"}
	if _, err := s.Link(ctx, "owner", "caps", "euw", "euw"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Lookup(ctx, "owner")
	if err != nil || got.RiotID() != "Caps#EUW" || got.Region != "euw" {
		t.Fatalf("lookup = %+v, %v", got, err)
	}
	if len(repo.rows) != 1 {
		t.Fatalf("want one row per owner, got %d", len(repo.rows))
	}
}

func TestLookup_FreshNeverTouchesStore(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	s, clk := newLinkSvc(repo, &fakeVerifier{out: faker})
	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "kr"); err != nil {
		t.Fatal(err)
	}

	clk.t = clk.t.Add(time.Hour) // age == ttl is still fresh
	if _, err := s.Lookup(ctx, "owner"); err != nil {
		t.Fatal(err)
	}
	if repo.gets() != 0 {
		t.Fatalf("fresh entry must not hit the store")
	}
}

func TestLookup_StaleRefreshes(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	s, clk := newLinkSvc(repo, &fakeVerifier{out: faker})
	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "kr"); err != nil {
		t.Fatal(err)
	}

	// out-of-band edit
	changed := repo.rows["owner"]
	changed.Name = "Hide on bush"
	repo.rows["owner"] = changed

	clk.t = clk.t.Add(time.Hour + time.Second)
	got, err := s.Lookup(ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Hide on bush" || repo.gets() != 1 {
		t.Fatalf("stale entry should be refreshed from store: %+v gets=%d", got, repo.gets())
	}

	e, _ := s.cache.Get("owner")
	if !e.CachedAt.Equal(clk.t) {
		t.Fatalf("refresh must reset CachedAt")
	}
	if _, err := s.Lookup(ctx, "owner"); err != nil || repo.gets() != 1 {
		t.Fatalf("refreshed entry should be fresh again")
	}
}

func TestLookup_ClockSkewCountsAsStale(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	s, clk := newLinkSvc(repo, &fakeVerifier{out: faker})
	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "kr"); err != nil {
		t.Fatal(err)
	}
	clk.t = clk.t.Add(-time.Minute)
	if _, err := s.Lookup(ctx, "owner"); err != nil {
		t.Fatal(err)
	}
	if repo.gets() != 1 {
		t.Fatalf("backward clock jump must force a refresh")
	}
}

func TestLookup_StaleDeletedOutOfBand(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	s, clk := newLinkSvc(repo, &fakeVerifier{out: faker})
	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "kr"); err != nil {
		t.Fatal(err)
	}
	delete(repo.rows, "owner")
	clk.t = clk.t.Add(2 * time.Hour)

	if _, err := s.Lookup(ctx, "owner"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, ok := s.cache.Get("owner"); ok {
		t.Fatalf("stale entry must be purged")
	}
}

func TestLookup_StaleRefreshErrorKeepsEntry(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	s, clk := newLinkSvc(repo, &fakeVerifier{out: faker})
	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "kr"); err != nil {
		t.Fatal(err)
	}
	repo.getErr = errors.New("conn reset")
	clk.t = clk.t.Add(2 * time.Hour)

	_, err := s.Lookup(ctx, "owner")
	var se *errs.StoreError
	if !errors.As(err, &se) || se.Op != errs.OpRefresh {
		t.Fatalf("want StoreError(refresh), got %v", err)
	}
	if errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("store failure must not look like not-found")
	}
	if _, ok := s.cache.Get("owner"); !ok {
		t.Fatalf("stale entry must be left in place")
	}

	repo.getErr = nil
	if got, err := s.Lookup(ctx, "owner"); err != nil || got.Name != "Faker" {
		t.Fatalf("retry should succeed: %+v %v", got, err)
	}
}

func TestLookup_MissWithoutMutation(t *testing.T) {
	repo := newFakeLinkRepo()
	s, _ := newLinkSvc(repo, &fakeVerifier{})

	if _, err := s.Lookup(context.Background(), "nobody"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if s.cache.Len() != 0 {
		t.Fatalf("miss must not mutate the cache")
	}
}

func TestLookup_MissLoadsFromStore(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	repo.rows["owner"] = model.LinkRecord{OwnerID: "owner", Name: "Old", Tag: "EUW", Region: "euw"}
	s, _ := newLinkSvc(repo, &fakeVerifier{})

	got, err := s.Lookup(ctx, "owner")
	if err != nil || got.Name != "Old" || got.VerifiedID != nil {
		t.Fatalf("lookup = %+v, %v", got, err)
	}
	if _, err := s.Lookup(ctx, "owner"); err != nil || repo.gets() != 1 {
		t.Fatalf("second lookup should be a cache hit, gets=%d", repo.gets())
	}

	repo.getErr = errors.New("boom")
	_, err = s.Lookup(ctx, "other")
	var se *errs.StoreError
	if !errors.As(err, &se) || se.Op != errs.OpLoad {
		t.Fatalf("want StoreError(load), got %v", err)
	}
}

func TestLookup_CoalescesConcurrentReads(t *testing.T) {
	repo := newFakeLinkRepo()
	repo.rows["owner"] = model.LinkRecord{OwnerID: "owner", Name: "Faker", Tag: "KR1", Region: "kr"}
	repo.gate = make(chan struct{})
	s, _ := newLinkSvc(repo, &fakeVerifier{})

	const n = 8
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Lookup(context.Background(), "owner")
			errCh <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(repo.gate)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
	}
	if repo.gets() != 1 {
		t.Fatalf("want one store read, got %d", repo.gets())
	}
}

func TestLookup_SharedReadSurvivesFirstCallerCancel(t *testing.T) {
	repo := newFakeLinkRepo()
	repo.rows["owner"] = model.LinkRecord{OwnerID: "owner", Name: "Faker", Tag: "KR1", Region: "kr"}
	repo.gate = make(chan struct{})
	repo.entered = make(chan struct{}, 4)
	s, _ := newLinkSvc(repo, &fakeVerifier{})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Lookup(firstCtx, "owner")
		firstErr <- err
	}()
	<-repo.entered

	type result struct {
		rec model.LinkRecord
		err error
	}
	second := make(chan result, 1)
	go func() {
		rec, err := s.Lookup(context.Background(), "owner")
		second <- result{rec, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("first caller: want context.Canceled, got %v", err)
		}
		if errors.Is(err, errs.ErrStore) {
			t.Fatalf("caller cancellation must not be reported as a store failure")
		}
	case <-time.After(time.Second):
		t.Fatalf("first caller did not return after cancel")
	}

	close(repo.gate)
	select {
	case r := <-second:
		if r.err != nil || r.rec.RiotID() != "Faker#KR1" {
			t.Fatalf("second caller: %+v, %v", r.rec, r.err)
		}
	case <-time.After(time.Second):
		t.Fatalf("second caller did not return")
	}
	if repo.gets() != 1 {
		t.Fatalf("want one shared store read, got %d", repo.gets())
	}
	if _, ok := s.cache.Get("owner"); !ok {
		t.Fatalf("shared read should populate the cache")
	}
}

func TestLookup_SharedReadIsBounded(t *testing.T) {
	repo := newFakeLinkRepo()
	repo.gate = make(chan struct{})
	s := NewLinkService(repo, &fakeVerifier{}, WithReadTimeout(20*time.Millisecond))

	_, err := s.Lookup(context.Background(), "owner")
	var se *errs.StoreError
	if !errors.As(err, &se) || se.Op != errs.OpLoad || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want StoreError(load) wrapping deadline, got %v", err)
	}
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	s, _ := newLinkSvc(repo, &fakeVerifier{out: faker})
	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "kr"); err != nil {
		t.Fatal(err)
	}

	if err := s.Unlink(ctx, "owner"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if repo.gets() != 0 {
		t.Fatalf("cached entry should skip the existence check")
	}
	if _, ok := s.cache.Get("owner"); ok || len(repo.rows) != 0 {
		t.Fatalf("link should be gone from cache and store")
	}

	if err := s.Unlink(ctx, "owner"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("second unlink: want ErrNotFound, got %v", err)
	}
	if repo.deleteCalls != 1 {
		t.Fatalf("nothing to delete must not issue a delete, calls=%d", repo.deleteCalls)
	}
}

func TestUnlink_UncachedExistingRow(t *testing.T) {
	repo := newFakeLinkRepo()
	repo.rows["owner"] = model.LinkRecord{OwnerID: "owner", Name: "a", Tag: "b", Region: "na"}
	s, _ := newLinkSvc(repo, &fakeVerifier{})

	if err := s.Unlink(context.Background(), "owner"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if repo.gets() != 1 || repo.deleteCalls != 1 {
		t.Fatalf("want check then delete, gets=%d deletes=%d", repo.gets(), repo.deleteCalls)
	}
}

func TestUnlink_ReconcilesOrphanedCacheEntry(t *testing.T) {
	ctx := context.Background()
	repo := newFakeLinkRepo()
	s, _ := newLinkSvc(repo, &fakeVerifier{out: faker})
	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "kr"); err != nil {
		t.Fatal(err)
	}
	delete(repo.rows, "owner")

	if err := s.Unlink(ctx, "owner"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, ok := s.cache.Get("owner"); ok {
		t.Fatalf("orphaned cache entry must be purged")
	}
}

func TestUnlink_StoreErrors(t *testing.T) {
	ctx := context.Background()

	repo := newFakeLinkRepo()
	repo.getErr = errors.New("conn refused")
	s, _ := newLinkSvc(repo, &fakeVerifier{})
	err := s.Unlink(ctx, "owner")
	var se *errs.StoreError
	if !errors.As(err, &se) || se.Op != errs.OpCheck {
		t.Fatalf("want StoreError(check), got %v", err)
	}

	repo = newFakeLinkRepo()
	repo.deleteErr = errors.New("timeout")
	s, _ = newLinkSvc(repo, &fakeVerifier{out: faker})
	if _, err := s.Link(ctx, "owner", "Faker", "KR1", "kr"); err != nil {
		t.Fatal(err)
	}
	err = s.Unlink(ctx, "owner")
	if !errors.As(err, &se) || se.Op != errs.OpDelete {
		t.Fatalf("want StoreError(delete), got %v", err)
	}
	if errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("delete failure must stay distinct from nothing to delete")
	}
	if _, ok := s.cache.Get("owner"); !ok {
		t.Fatalf("failed delete must leave the cache entry")
	}
}

func TestUnlink_StoreReportsNothingDeleted(t *testing.T) {
	repo := newFakeLinkRepo()
	repo.rows["owner"] = model.LinkRecord{OwnerID: "owner", Name: "a", Tag: "b", Region: "na"}
	repo.deleteMiss = true
	s, _ := newLinkSvc(repo, &fakeVerifier{})

	if err := s.Unlink(context.Background(), "owner"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("store is authoritative: want ErrNotFound, got %v", err)
	}
}
