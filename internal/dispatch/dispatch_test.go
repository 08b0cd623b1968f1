package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/store/sqlitestore"
	"github.com/nextdotid/relation-server-go/internal/upstream"
)

// fakeFetcher is a scriptable upstream.Fetcher: it answers canFetch
// with a predicate and fetch with a function the test supplies,
// counting how many times Fetch actually ran so dedup can be
// asserted on (spec §8, property 6 / scenario 6).
type fakeFetcher struct {
	name      domain.DataFetcher
	source    domain.DataSource
	canFetch  func(upstream.Target) bool
	fetch     func(upstream.Target) (upstream.Result, error)
	callCount int32
}

func (f *fakeFetcher) Name() domain.DataFetcher  { return f.name }
func (f *fakeFetcher) Source() domain.DataSource { return f.source }
func (f *fakeFetcher) CanFetch(t upstream.Target) bool {
	return f.canFetch == nil || f.canFetch(t)
}
func (f *fakeFetcher) Fetch(ctx context.Context, t upstream.Target) (upstream.Result, error) {
	atomic.AddInt32(&f.callCount, 1)
	return f.fetch(t)
}

func TestFetchAllDedupesSharedFollowUp(t *testing.T) {
	s, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	shared := upstream.NewIdentityTarget(domain.PlatformTwitter, "shared")

	seedA := upstream.NewIdentityTarget(domain.PlatformEthereum, "0xa")
	seedB := upstream.NewIdentityTarget(domain.PlatformEthereum, "0xb")

	seedFetcher := &fakeFetcher{
		name:   "seed",
		source: domain.DataSourceRss3,
		canFetch: func(t upstream.Target) bool {
			return t.Kind == upstream.TargetIdentity && t.Platform == domain.PlatformEthereum
		},
		fetch: func(t upstream.Target) (upstream.Result, error) {
			id := *domain.NewIdentity(t.Platform, t.Identity, time.Now())
			return upstream.Result{Identities: []domain.Identity{id}, Next: []upstream.Target{shared}}, nil
		},
	}
	sharedFetcher := &fakeFetcher{
		name:   "shared-fetcher",
		source: domain.DataSourceRss3,
		canFetch: func(t upstream.Target) bool {
			return t.Kind == upstream.TargetIdentity && t.Platform == domain.PlatformTwitter
		},
		fetch: func(t upstream.Target) (upstream.Result, error) {
			id := *domain.NewIdentity(t.Platform, t.Identity, time.Now())
			return upstream.Result{Identities: []domain.Identity{id}}, nil
		},
	}

	registry := upstream.NewRegistry(seedFetcher, sharedFetcher)
	engine := New(s, registry, 8)

	errs, err := engine.FetchAll(context.Background(), []upstream.Target{seedA, seedB}, 3)
	require.NoError(t, err)
	require.Empty(t, errs)

	require.Equal(t, int32(2), seedFetcher.callCount, "seedFetcher should run once per seed target")
	require.Equal(t, int32(1), sharedFetcher.callCount, "the shared follow-up target must be fetched exactly once")
}

func TestFetchAllCollectsErrorsWithoutAbortingSiblings(t *testing.T) {
	s, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ok := upstream.NewIdentityTarget(domain.PlatformEthereum, "0xok")
	bad := upstream.NewIdentityTarget(domain.PlatformEthereum, "0xbad")

	var mu sync.Mutex
	succeeded := map[string]bool{}

	f := &fakeFetcher{
		name:   "flaky",
		source: domain.DataSourceRss3,
		fetch: func(t upstream.Target) (upstream.Result, error) {
			if t.Identity == "0xbad" {
				return upstream.Result{}, context.DeadlineExceeded
			}
			mu.Lock()
			succeeded[t.Identity] = true
			mu.Unlock()
			id := *domain.NewIdentity(t.Platform, t.Identity, time.Now())
			return upstream.Result{Identities: []domain.Identity{id}}, nil
		},
	}

	registry := upstream.NewRegistry(f)
	engine := New(s, registry, 8)

	errs, err := engine.FetchAll(context.Background(), []upstream.Target{ok, bad}, 1)
	require.NoError(t, err, "a single adapter failure must not become a fatal top-level error")
	require.Len(t, errs, 1)
	require.True(t, succeeded["0xok"], "the sibling target's fetch must still have run and persisted")

	got, err := s.FindVertexByPlatformIdentity(context.Background(), domain.PlatformEthereum, "0xok")
	require.NoError(t, err)
	require.NotNil(t, got, "partial persistence from the successful fetch must be kept")
}

func TestFetchAllRespectsMaxDepth(t *testing.T) {
	s, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// Each fetch of a twitter identity yields a follow-up one further
	// down a chain by appending "x": a -> ax -> axx -> ...
	f := &fakeFetcher{
		name:   "chainer",
		source: domain.DataSourceRss3,
		canFetch: func(t upstream.Target) bool {
			return t.Kind == upstream.TargetIdentity && t.Platform == domain.PlatformTwitter
		},
		fetch: func(t upstream.Target) (upstream.Result, error) {
			id := *domain.NewIdentity(t.Platform, t.Identity, time.Now())
			next := upstream.NewIdentityTarget(domain.PlatformTwitter, t.Identity+"x")
			return upstream.Result{Identities: []domain.Identity{id}, Next: []upstream.Target{next}}, nil
		},
	}

	registry := upstream.NewRegistry(f)
	engine := New(s, registry, 8)

	seed := upstream.NewIdentityTarget(domain.PlatformTwitter, "a")
	_, err = engine.FetchAll(context.Background(), []upstream.Target{seed}, 2)
	require.NoError(t, err)

	// depth 0 = seed "a", depth 1 fetches "a" -> next "ax", depth 2
	// fetches "ax" -> next "axx" which is never fetched itself.
	require.Equal(t, int32(2), f.callCount, "max_depth=2 must stop after exactly 2 BFS layers of fetches")
}
