package sqlitestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func upsertIdentity(t *testing.T, s *Store, id domain.Identity) {
	t.Helper()
	require.NoError(t, s.UpsertGraph(context.Background(), []store.VertexUpsert{store.FromIdentity(&id)}, nil))
}

func TestUpsertIdentityIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	id := *domain.NewIdentity(domain.PlatformEthereum, "0xabc", now)
	upsertIdentity(t, s, id)
	got1, err := s.FindVertexByPlatformIdentity(ctx, domain.PlatformEthereum, "0xabc")
	require.NoError(t, err)
	require.NotNil(t, got1)

	// Re-upserting the identical row must leave the store unchanged
	// (spec §8, property 1).
	upsertIdentity(t, s, id)
	got2, err := s.FindVertexByPlatformIdentity(ctx, domain.PlatformEthereum, "0xabc")
	require.NoError(t, err)
	require.Equal(t, got1.UpdatedAt, got2.UpdatedAt)
	require.Equal(t, got1.UUID, got2.UUID)
}

func TestUpdatedAtMonotone(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()

	id := *domain.NewIdentity(domain.PlatformEthereum, "0xabc", base)
	upsertIdentity(t, s, id)

	// An older updated_at must not regress the stored value (spec §8,
	// property 2: the store takes the max).
	older := id
	older.UpdatedAt = base.Add(-time.Hour)
	upsertIdentity(t, s, older)

	got, err := s.FindVertexByPlatformIdentity(ctx, domain.PlatformEthereum, "0xabc")
	require.NoError(t, err)
	require.Equal(t, base.Unix(), got.UpdatedAt.Unix())

	newer := id
	newer.UpdatedAt = base.Add(2 * time.Hour)
	upsertIdentity(t, s, newer)

	got, err = s.FindVertexByPlatformIdentity(ctx, domain.PlatformEthereum, "0xabc")
	require.NoError(t, err)
	require.Equal(t, base.Add(2*time.Hour).Unix(), got.UpdatedAt.Unix())
}

func TestPrimaryKeyStableAcrossRefetch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	id := *domain.NewIdentity(domain.PlatformEthereum, "0xabc", now)
	upsertIdentity(t, s, id)

	refetched := id
	refetched.DisplayName = "new display name"
	refetched.UpdatedAt = now.Add(time.Hour)
	upsertIdentity(t, s, refetched)

	got, err := s.FindVertexByPlatformIdentity(ctx, domain.PlatformEthereum, "0xabc")
	require.NoError(t, err)
	require.Equal(t, domain.PlatformEthereum, got.Platform)
	require.Equal(t, "0xabc", got.Identity)
	require.Equal(t, "new display name", got.DisplayName)
}

// seedChain builds wallet --(proof)--> twitter --(proof)--> lens, plus
// a primary and a non-primary ENS resolve edge off the wallet, for the
// neighbor/reverse-filter/depth tests below.
func seedChain(t *testing.T, s *Store) (wallet, twitterID, lensID, primaryENS, otherENS domain.Identity) {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	wallet = *domain.NewIdentity(domain.PlatformEthereum, "0xabc", now)
	twitterID = *domain.NewIdentity(domain.PlatformTwitter, "jack", now)
	lensID = *domain.NewIdentity(domain.PlatformLens, "jack.lens", now)
	primaryENS = *domain.NewIdentity(domain.PlatformENS, "primary.eth", now)
	otherENS = *domain.NewIdentity(domain.PlatformENS, "other.eth", now)

	vertices := []store.VertexUpsert{
		store.FromIdentity(&wallet), store.FromIdentity(&twitterID),
		store.FromIdentity(&lensID), store.FromIdentity(&primaryENS), store.FromIdentity(&otherENS),
	}

	proof1 := domain.NewProof(wallet.PrimaryKey(), twitterID.PrimaryKey(), domain.DataSourceSybilList, domain.DataFetcherSybilList, now)
	proof2 := domain.NewProof(twitterID.PrimaryKey(), lensID.PrimaryKey(), domain.DataSourceRss3, domain.DataFetcherRss3, now)
	resolvePrimary := domain.NewResolve(wallet.PrimaryKey(), primaryENS.PrimaryKey(), domain.DataSourceTheGraph, domain.DataFetcherENS, domain.DNSENS, "primary.eth", true, now)
	resolveOther := domain.NewResolve(wallet.PrimaryKey(), otherENS.PrimaryKey(), domain.DataSourceTheGraph, domain.DataFetcherENS, domain.DNSENS, "other.eth", false, now)

	edges := []store.EdgeUpsert{
		store.FromProof(proof1), store.FromProof(proof2),
		store.FromResolve(resolvePrimary), store.FromResolve(resolveOther),
	}

	require.NoError(t, s.UpsertGraph(ctx, vertices, edges))
	return
}

func TestNeighborsExcludesOrigin(t *testing.T) {
	s := openTestStore(t)
	wallet, _, _, _, _ := seedChain(t, s)

	neighbors, err := s.Neighbors(context.Background(), wallet.PrimaryKey(), 3, store.NeighborFilterAny)
	require.NoError(t, err)
	for _, n := range neighbors {
		require.NotEqual(t, wallet.PrimaryKey(), n.Identity.PrimaryKey(), "neighbors() must never return the origin")
	}
}

func TestNeighborsDepthBound(t *testing.T) {
	s := openTestStore(t)
	wallet, twitterID, lensID, _, _ := seedChain(t, s)

	within1, err := s.Neighbors(context.Background(), wallet.PrimaryKey(), 1, store.NeighborFilterAny)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, n := range within1 {
		ids[n.Identity.PrimaryKey()] = true
	}
	require.True(t, ids[twitterID.PrimaryKey()], "twitter is 1 hop away")
	require.False(t, ids[lensID.PrimaryKey()], "lens is 2 hops away, must not appear at depth 1")

	within2, err := s.Neighbors(context.Background(), wallet.PrimaryKey(), 2, store.NeighborFilterAny)
	require.NoError(t, err)
	ids = map[string]bool{}
	for _, n := range within2 {
		ids[n.Identity.PrimaryKey()] = true
	}
	require.True(t, ids[lensID.PrimaryKey()], "lens should be reachable within 2 hops")
}

func TestNeighborsReverseFilterSoundness(t *testing.T) {
	s := openTestStore(t)
	wallet, _, _, primaryENS, otherENS := seedChain(t, s)
	ctx := context.Background()

	any, err := s.Neighbors(ctx, wallet.PrimaryKey(), 2, store.NeighborFilterAny)
	require.NoError(t, err)
	reverseOnly, err := s.Neighbors(ctx, wallet.PrimaryKey(), 2, store.NeighborFilterReverseOnly)
	require.NoError(t, err)
	nonReverseOnly, err := s.Neighbors(ctx, wallet.PrimaryKey(), 2, store.NeighborFilterNonReverseOnly)
	require.NoError(t, err)

	anyKeys := keySet(any)
	reverseKeys := keySet(reverseOnly)
	nonReverseKeys := keySet(nonReverseOnly)

	// reverse-only must be a subset of the unfiltered result.
	for k := range reverseKeys {
		require.True(t, anyKeys[k], "reverse-only neighbor %s missing from unfiltered set", k)
	}
	// reverse-only and non-reverse-only must partition within "any".
	for k := range reverseKeys {
		require.False(t, nonReverseKeys[k], "%s appeared in both reverse and non-reverse sets", k)
	}

	require.True(t, reverseKeys[primaryENS.PrimaryKey()], "primary ENS must be in the reverse-only set")
	require.False(t, reverseKeys[otherENS.PrimaryKey()], "non-primary ENS must not be in the reverse-only set")
}

func keySet(neighbors []store.Neighbor) map[string]bool {
	out := make(map[string]bool, len(neighbors))
	for _, n := range neighbors {
		out[n.Identity.PrimaryKey()] = true
	}
	return out
}

func TestDeleteVertexAndIncidentEdges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	wallet, twitterID, _, _, _ := seedChain(t, s)

	require.NoError(t, s.DeleteVertexAndIncidentEdges(ctx, wallet.PrimaryKey()))

	got, err := s.FindVertexByPlatformIdentity(ctx, domain.PlatformEthereum, "0xabc")
	require.NoError(t, err)
	require.Nil(t, got)

	// The proof edge from wallet->twitter should be gone, so twitter
	// now has no path back from the deleted wallet.
	neighbors, err := s.Neighbors(ctx, twitterID.PrimaryKey(), 3, store.NeighborFilterAny)
	require.NoError(t, err)
	for _, n := range neighbors {
		require.NotEqual(t, wallet.PrimaryKey(), n.Identity.PrimaryKey())
	}
}

func TestNFTsPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	wallet := *domain.NewIdentity(domain.PlatformEthereum, "0xabc", now)
	contract := *domain.NewContract(domain.ChainEthereum, domain.ContractCategoryENS, "0x00000000000c2e074ec69a0dfb2997ba6c7d2e1", now)

	vertices := []store.VertexUpsert{store.FromIdentity(&wallet), store.FromContract(&contract)}
	var edges []store.EdgeUpsert
	for i := 0; i < 25; i++ {
		h := domain.NewHold(wallet.PrimaryKey(), contract.PrimaryKey(), domain.DataSourceTheGraph, domain.DataFetcherTheGraph,
			string(rune('a'+i%26))+string(rune(i)), now.Add(time.Duration(i)*time.Second))
		edges = append(edges, store.FromHold(h))
	}
	require.NoError(t, s.UpsertGraph(ctx, vertices, edges))

	page1, err := s.NFTs(ctx, wallet.PrimaryKey(), []domain.ContractCategory{domain.ContractCategoryENS}, 10, 0)
	require.NoError(t, err)
	require.Len(t, page1, 10)

	page2, err := s.NFTs(ctx, wallet.PrimaryKey(), []domain.ContractCategory{domain.ContractCategoryENS}, 10, 10)
	require.NoError(t, err)
	require.Len(t, page2, 10)

	page3, err := s.NFTs(ctx, wallet.PrimaryKey(), []domain.ContractCategory{domain.ContractCategoryENS}, 10, 20)
	require.NoError(t, err)
	require.Len(t, page3, 5)

	seen := map[string]bool{}
	for _, h := range append(append(page1, page2...), page3...) {
		seen[h.UUID.String()] = true
	}
	require.Len(t, seen, 25, "offsets must partition the 25 holds without overlap")
}

func TestNFTsEmptyForNonEthereumIdentity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	lensID := *domain.NewIdentity(domain.PlatformLens, "jack.lens", now)
	upsertIdentity(t, s, lensID)

	holds, err := s.NFTs(ctx, lensID.PrimaryKey(), nil, 10, 0)
	require.NoError(t, err)
	require.Empty(t, holds)
}

func TestReverseDomains(t *testing.T) {
	s := openTestStore(t)
	wallet, _, _, primaryENS, _ := seedChain(t, s)

	resolves, err := s.ReverseDomains(context.Background(), wallet.PrimaryKey())
	require.NoError(t, err)
	require.Len(t, resolves, 1)
	require.Equal(t, primaryENS.PrimaryKey(), resolves[0].To)
	require.True(t, resolves[0].Reverse)
}

func TestResolveByNameAndSystem(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	wallet := *domain.NewIdentity(domain.PlatformEthereum, "0xd8da", now)
	contract := *domain.NewContract(domain.ChainEthereum, domain.ContractCategoryENS, "0x00000000000c2e074ec69a0dfb2997ba6c7d2e1", now)
	forward := domain.NewResolve(contract.PrimaryKey(), wallet.PrimaryKey(), domain.DataSourceTheGraph, domain.DataFetcherTheGraph, domain.DNSENS, "vitalik.eth", false, now)

	require.NoError(t, s.UpsertGraph(ctx,
		[]store.VertexUpsert{store.FromIdentity(&wallet), store.FromContract(&contract)},
		[]store.EdgeUpsert{store.FromResolve(forward)}))

	got, err := s.ResolveByNameAndSystem(ctx, domain.DNSENS, "vitalik.eth")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, wallet.PrimaryKey(), got.To)

	none, err := s.ResolveByNameAndSystem(ctx, domain.DNSENS, "doesnotexist.eth")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestIdentitiesByIDsBatchLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	a := *domain.NewIdentity(domain.PlatformEthereum, "0xa", now)
	b := *domain.NewIdentity(domain.PlatformEthereum, "0xb", now)
	upsertIdentity(t, s, a)
	upsertIdentity(t, s, b)

	out, err := s.IdentitiesByIDs(ctx, []string{a.PrimaryKey(), b.PrimaryKey(), "ethereum,0xmissing"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Contains(t, out, a.PrimaryKey())
	require.Contains(t, out, b.PrimaryKey())
}
