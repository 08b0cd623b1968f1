package query

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextdotid/relation-server-go/internal/dispatch"
	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/store/sqlitestore"
	"github.com/nextdotid/relation-server-go/internal/upstream"
)

// countingFetcher answers any Identity(ethereum,...) target by
// upserting a fresh identity, and counts how many times it actually
// ran an upstream call.
type countingFetcher struct {
	calls int32
}

func (f *countingFetcher) Name() domain.DataFetcher  { return "counting" }
func (f *countingFetcher) Source() domain.DataSource { return domain.DataSourceRss3 }
func (f *countingFetcher) CanFetch(t upstream.Target) bool {
	return t.Kind == upstream.TargetIdentity && t.Platform == domain.PlatformEthereum
}
func (f *countingFetcher) Fetch(ctx context.Context, t upstream.Target) (upstream.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	id := *domain.NewIdentity(t.Platform, t.Identity, time.Now())
	return upstream.Result{Identities: []domain.Identity{id}}, nil
}

func newTestService(t *testing.T, fetcher upstream.Fetcher, cfg Config) (*Service, *sqlitestore.Store) {
	t.Helper()
	s, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	registry := upstream.NewRegistry(fetcher)
	engine := dispatch.New(s, registry, 8)
	svc := New(s, engine, domain.DefaultTTLTable(), cfg)
	t.Cleanup(svc.Close)
	return svc, s
}

func TestIdentityColdFetchIsSynchronous(t *testing.T) {
	fetcher := &countingFetcher{}
	svc, _ := newTestService(t, fetcher, Config{MaxDepth: 1, DebounceDelay: time.Hour, Workers: 1, QueueSize: 16})

	id, status, err := svc.Identity(context.Background(), domain.PlatformEthereum, "0xabc", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, id, "a cold miss must return real data, not nil, once fetch_all runs synchronously")
	require.True(t, status.Has(domain.StatusCached))
	require.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls))
}

func TestIdentityWarmFreshSkipsFetch(t *testing.T) {
	fetcher := &countingFetcher{}
	svc, _ := newTestService(t, fetcher, Config{MaxDepth: 1, DebounceDelay: time.Hour, Workers: 1, QueueSize: 16})
	ctx := context.Background()

	_, _, err := svc.Identity(ctx, domain.PlatformEthereum, "0xabc", time.Hour)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls))

	// Second call within the TTL must answer from the store alone
	// (spec scenario 1: "second call within 1 hour returns same
	// record without HTTP fan-out").
	id2, status2, err := svc.Identity(ctx, domain.PlatformEthereum, "0xabc", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, id2)
	require.False(t, status2.Has(domain.StatusOutdated))
	require.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls), "a fresh record must not trigger another fetch")
}

func TestIdentityStaleServesImmediatelyThenRefetches(t *testing.T) {
	fetcher := &countingFetcher{}
	svc, s := newTestService(t, fetcher, Config{MaxDepth: 1, DebounceDelay: 20 * time.Millisecond, Workers: 2, QueueSize: 16})
	ctx := context.Background()

	tinyTTL := domain.TTLTable{domain.RecordKindIdentity: time.Millisecond}
	svc.ttl = tinyTTL

	_, _, err := svc.Identity(ctx, domain.PlatformEthereum, "0xstale", time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls))

	time.Sleep(5 * time.Millisecond) // outrun the 1ms TTL

	id, status, err := svc.Identity(ctx, domain.PlatformEthereum, "0xstale", time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, id, "a stale record must still be served immediately, not dropped")
	require.True(t, status.Has(domain.StatusOutdated))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fetcher.calls) >= 2
	}, time.Second, 5*time.Millisecond, "background refetch must eventually run")

	require.Eventually(t, func() bool {
		got, err := s.FindVertexByPlatformIdentity(ctx, domain.PlatformEthereum, "0xstale")
		return err == nil && got != nil
	}, time.Second, 5*time.Millisecond, "record must exist again after delete+refetch completes")
}

func TestIdentityDebounceSuppressesBurstRefetch(t *testing.T) {
	fetcher := &countingFetcher{}
	svc, _ := newTestService(t, fetcher, Config{MaxDepth: 1, DebounceDelay: time.Hour, Workers: 2, QueueSize: 16})
	ctx := context.Background()

	tinyTTL := domain.TTLTable{domain.RecordKindIdentity: time.Millisecond}
	svc.ttl = tinyTTL

	_, _, err := svc.Identity(ctx, domain.PlatformEthereum, "0xburst", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	for i := 0; i < 5; i++ {
		_, _, err := svc.Identity(ctx, domain.PlatformEthereum, "0xburst", time.Hour)
		require.NoError(t, err)
	}

	time.Sleep(20 * time.Millisecond)
	// Exactly one cold fetch plus at most one enqueued refetch should
	// have run; the debounce window (1h) must suppress the other 4
	// duplicate stale hits.
	require.LessOrEqual(t, int(atomic.LoadInt32(&fetcher.calls)), 2)
}
