// Package query is the stale-while-revalidate glue between the
// GraphQL transport and the store/dispatch layers (spec §4.4). A read
// whose record is missing runs fetch_all synchronously and then reads
// the store again; a read whose record is past its TTL answers with
// the stale record at once and enqueues a background fetch_all rather
// than blocking the caller on it. The enqueue is debounced per-target so a burst of reads for the
// same identity triggers at most one refetch every DebounceDelay,
// mirroring the teacher's lru.Cache-as-dedup-set idiom
// (consensus/oasys/oasys.go's schedulerCache).
package query

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/nextdotid/relation-server-go/internal/apperr"
	"github.com/nextdotid/relation-server-go/internal/dispatch"
	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/metrics"
	"github.com/nextdotid/relation-server-go/internal/store"
	"github.com/nextdotid/relation-server-go/internal/upstream"
)

// ensRegistryAddress mirrors the constant the thegraph/ens upstream
// adapters key their ENS Contract vertex on (spec §9, Open Question 2:
// ENS is routed as an NFT Target at this address).
const ensRegistryAddress = "0x00000000000c2e074ec69a0dfb2997ba6c7d2e1"

// Service answers identity-graph reads and drives the background
// refetch policy described in spec §4.4.
type Service struct {
	graph    store.GraphStore
	engine   *dispatch.Engine
	ttl      domain.TTLTable
	maxDepth int

	debounce *lru.Cache // target key -> time last enqueued

	refetchQueue chan upstream.Target
	wg           sync.WaitGroup
	closeOnce    sync.Once
	stopCh       chan struct{}
}

// Config bundles the knobs ApplyDefaults already resolved, so callers
// don't have to thread five constructor arguments.
type Config struct {
	MaxDepth      int
	DebounceDelay time.Duration
	Workers       int
	QueueSize     int
}

func New(graph store.GraphStore, engine *dispatch.Engine, ttl domain.TTLTable, cfg Config) *Service {
	debounce, _ := lru.New(4096)
	s := &Service{
		graph:        graph,
		engine:       engine,
		ttl:          ttl,
		maxDepth:     cfg.MaxDepth,
		debounce:     debounce,
		refetchQueue: make(chan upstream.Target, cfg.QueueSize),
		stopCh:       make(chan struct{}),
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.refetchWorker(cfg.DebounceDelay)
	}
	return s
}

// Close stops the refetch worker pool. Safe to call more than once.
func (s *Service) Close() {
	s.closeOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// refetchWorker drains the debounced refetch queue. Per spec §3's
// lifecycle and §4.4's background-refresh pseudocode, it waits the
// grace period, deletes the outdated vertex and its incident edges,
// then runs fetch_all to repopulate it — never surfacing a failure
// to any caller (spec §7: "every failure is logged and swallowed").
func (s *Service) refetchWorker(debounceDelay time.Duration) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.refetchQueue:
			select {
			case <-time.After(debounceDelay):
			case <-s.stopCh:
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if vID, ok := vertexIDForTarget(t); ok {
				if err := s.graph.DeleteVertexAndIncidentEdges(ctx, vID); err != nil {
					log.Warn("background refetch: delete outdated vertex failed", "target", t.Key(), "err", err)
				}
			}
			if _, err := s.engine.FetchAll(ctx, []upstream.Target{t}, s.maxDepth); err != nil {
				log.Warn("background refetch failed", "target", t.Key(), "err", err)
			}
			cancel()
		}
	}
}

// vertexIDForTarget maps an upstream.Target back to the store's vertex
// primary key, when the target addresses something the delete path
// can meaningfully remove (an Identity vertex). NFT targets have no
// single owning vertex to delete ahead of refetch, so they are left
// to the fetch_all upsert alone.
func vertexIDForTarget(t upstream.Target) (string, bool) {
	if t.Kind != upstream.TargetIdentity {
		return "", false
	}
	return domain.Identity{Platform: t.Platform, Identity: t.Identity}.PrimaryKey(), true
}

// maybeEnqueueRefetch enqueues t for background refetch unless one was
// already enqueued within DebounceDelay (spec §4.4/§9).
func (s *Service) maybeEnqueueRefetch(t upstream.Target, debounceDelay time.Duration) {
	key := t.Key()
	if last, ok := s.debounce.Get(key); ok {
		if time.Since(last.(time.Time)) < debounceDelay {
			return
		}
	}
	s.debounce.Add(key, time.Now())
	select {
	case s.refetchQueue <- t:
		metrics.RefetchQueueDepth.Update(int64(len(s.refetchQueue)))
	default:
		metrics.RefetchDropped.Inc(1)
		log.Warn("refetch queue full, dropping", "target", key)
	}
}

// Identity answers a single identity lookup with the stale-while-
// revalidate policy from spec §4.4: a cold miss runs fetch_all
// synchronously and rereads so the caller never gets an empty answer
// just because nothing had been fetched yet; a warm-but-stale record
// is served immediately while a refetch is enqueued in the
// background.
func (s *Service) Identity(ctx context.Context, platform domain.Platform, identity string, debounceDelay time.Duration) (*domain.Identity, domain.DataStatus, error) {
	metrics.QueryRequests.Inc(1)
	id, err := s.graph.FindVertexByPlatformIdentity(ctx, platform, identity)
	if err != nil {
		metrics.QueryErrors.Inc(1)
		return nil, 0, apperr.Store("find identity", err)
	}
	if id == nil {
		metrics.CacheMisses.Inc(1)
		if _, ferr := s.engine.FetchAll(ctx, []upstream.Target{upstream.NewIdentityTarget(platform, identity)}, s.maxDepth); ferr != nil {
			metrics.QueryErrors.Inc(1)
			return nil, 0, apperr.Store("cold fetch_all", ferr)
		}
		id, err = s.graph.FindVertexByPlatformIdentity(ctx, platform, identity)
		if err != nil {
			metrics.QueryErrors.Inc(1)
			return nil, 0, apperr.Store("find identity after cold fetch", err)
		}
		if id == nil {
			// Upstreams ran but found nothing; spec §4.4: "may still be
			// None if upstreams failed."
			return nil, 0, nil
		}
		return id, domain.StatusForRecord(domain.RecordKindIdentity, id.UpdatedAt, time.Now(), s.ttl), nil
	}

	metrics.CacheHits.Inc(1)
	status := domain.StatusForRecord(domain.RecordKindIdentity, id.UpdatedAt, time.Now(), s.ttl)
	if status.Has(domain.StatusOutdated) {
		s.maybeEnqueueRefetch(upstream.NewIdentityTarget(platform, identity), debounceDelay)
	}
	return id, status, nil
}

// StatusFor computes the freshness status for an already-hydrated
// Identity, for resolvers that obtain one outside Identity's own
// stale-while-revalidate path (batch loads, traversals, owned-by
// lookups) but still need to project the `status` field (spec §6).
func (s *Service) StatusFor(id domain.Identity) domain.DataStatus {
	return domain.StatusForRecord(domain.RecordKindIdentity, id.UpdatedAt, time.Now(), s.ttl)
}

// Identities batch-loads many identities in one store round trip,
// avoiding the N+1 pattern a naive per-field GraphQL resolver would
// otherwise produce (spec §4.4, §5).
func (s *Service) Identities(ctx context.Context, vIDs []string) (map[string]domain.Identity, error) {
	out, err := s.graph.IdentitiesByIDs(ctx, vIDs)
	if err != nil {
		return nil, apperr.Store("batch load identities", err)
	}
	return out, nil
}

func (s *Service) Neighbors(ctx context.Context, platform domain.Platform, identity string, depth int, filter store.NeighborFilter) ([]store.Neighbor, error) {
	metrics.QueryRequests.Inc(1)
	vID := domain.Identity{Platform: platform, Identity: identity}.PrimaryKey()
	out, err := s.graph.Neighbors(ctx, vID, depth, filter)
	if err != nil {
		metrics.QueryErrors.Inc(1)
		return nil, apperr.Store("neighbors", err)
	}
	return out, nil
}

func (s *Service) IdentityGraph(ctx context.Context, platform domain.Platform, identity string, depth int) ([]store.EdgeUnion, error) {
	metrics.QueryRequests.Inc(1)
	vID := domain.Identity{Platform: platform, Identity: identity}.PrimaryKey()
	out, err := s.graph.NeighborsWithTraversal(ctx, vID, depth)
	if err != nil {
		metrics.QueryErrors.Inc(1)
		return nil, apperr.Store("identity graph traversal", err)
	}
	return out, nil
}

func (s *Service) ReverseRecords(ctx context.Context, platform domain.Platform, identity string) ([]domain.Resolve, error) {
	metrics.QueryRequests.Inc(1)
	vID := domain.Identity{Platform: platform, Identity: identity}.PrimaryKey()
	out, err := s.graph.ReverseDomains(ctx, vID)
	if err != nil {
		metrics.QueryErrors.Inc(1)
		return nil, apperr.Store("reverse domains", err)
	}
	return out, nil
}

// IsReversePrimary backs the `reverse` projection on the nested
// Identity GraphQL type: whether some wallet has asserted vID as its
// primary domain, gated by platform.HasReverseFlag() at the caller.
func (s *Service) IsReversePrimary(ctx context.Context, platform domain.Platform, identity string) (bool, error) {
	vID := domain.Identity{Platform: platform, Identity: identity}.PrimaryKey()
	out, err := s.graph.IsReversePrimary(ctx, vID)
	if err != nil {
		return false, apperr.Store("is reverse primary", err)
	}
	return out, nil
}

func (s *Service) OwnedBy(ctx context.Context, platform domain.Platform, identity string, ownerPlatform domain.Platform) (*domain.Identity, error) {
	metrics.QueryRequests.Inc(1)
	vID := domain.Identity{Platform: platform, Identity: identity}.PrimaryKey()
	out, err := s.graph.IdentityOwnedBy(ctx, vID, ownerPlatform)
	if err != nil {
		metrics.QueryErrors.Inc(1)
		return nil, apperr.Store("identity owned by", err)
	}
	return out, nil
}

func (s *Service) NFTs(ctx context.Context, platform domain.Platform, identity string, categories []domain.ContractCategory, limit, offset int) ([]domain.Hold, error) {
	metrics.QueryRequests.Inc(1)
	vID := domain.Identity{Platform: platform, Identity: identity}.PrimaryKey()
	out, err := s.graph.NFTs(ctx, vID, categories, limit, offset)
	if err != nil {
		metrics.QueryErrors.Inc(1)
		return nil, apperr.Store("nfts", err)
	}
	return out, nil
}

// EnsResolve is the read-model for the `ens(name)` query (spec §6):
// the wallet a name forward-resolves to, and who owns it.
type EnsResolve struct {
	Resolved string
	Owner    string
}

// ENS answers `ens(name)` with the same stale-while-revalidate policy
// as Identity, except the cold-miss seed is an NFT Target over the
// ENS registry contract rather than an Identity Target (spec §9, Open
// Question 2: "ENS routed as an NFT Target"). In this system ENS
// ownership and ENS resolution are asserted by the same upstream call
// and always point at the same wallet, so Resolved and Owner coincide;
// a future upstream that can diverge (a name whose resolver points
// elsewhere than its owner) would need the Hold and Resolve edges
// compared independently.
func (s *Service) ENS(ctx context.Context, name string, debounceDelay time.Duration) (*EnsResolve, domain.DataStatus, error) {
	resolve, err := s.graph.ResolveByNameAndSystem(ctx, domain.DNSENS, name)
	if err != nil {
		return nil, 0, apperr.Store("resolve ens name", err)
	}
	seed := upstream.NewNFTTarget(domain.ChainEthereum, ensRegistryAddress, name)

	if resolve == nil {
		if _, ferr := s.engine.FetchAll(ctx, []upstream.Target{seed}, s.maxDepth); ferr != nil {
			return nil, 0, apperr.Store("cold fetch_all for ens", ferr)
		}
		resolve, err = s.graph.ResolveByNameAndSystem(ctx, domain.DNSENS, name)
		if err != nil {
			return nil, 0, apperr.Store("resolve ens name after cold fetch", err)
		}
		if resolve == nil {
			return nil, 0, nil
		}
		return ensResultFrom(resolve), domain.StatusForRecord(domain.RecordKindResolve, resolve.UpdatedAt, time.Now(), s.ttl), nil
	}

	status := domain.StatusForRecord(domain.RecordKindResolve, resolve.UpdatedAt, time.Now(), s.ttl)
	if status.Has(domain.StatusOutdated) {
		s.maybeEnqueueRefetch(seed, debounceDelay)
	}
	return ensResultFrom(resolve), status, nil
}

func ensResultFrom(r *domain.Resolve) *EnsResolve {
	_, wallet := splitPrimaryKey(r.To)
	return &EnsResolve{Resolved: wallet, Owner: wallet}
}

func splitPrimaryKey(pk string) (platform, identity string) {
	i := strings.Index(pk, ",")
	if i < 0 {
		return "", pk
	}
	return pk[:i], pk[i+1:]
}

// DotbitResolve is the read-model for the `dotbit(name)` query (spec
// §6): the wallet currently holding a .bit account, if observed.
type DotbitResolve struct {
	Owner string
}

// Dotbit answers `dotbit(name)` by reusing Identity's stale-while-
// revalidate policy over the dotbit-platform vertex, then walking its
// owned_by edge back to the holding wallet. The dotbit upstream
// adapter only discovers accounts starting from a wallet (spec §4.2's
// fetch contract is one-directional here), so a dotbit name that has
// never been seen via its owning wallet's fetch stays unresolved until
// that wallet is queried at least once; this mirrors the one real
// dotbit endpoint this codebase integrates (reverse record lookup).
func (s *Service) Dotbit(ctx context.Context, name string, debounceDelay time.Duration) (*DotbitResolve, domain.DataStatus, error) {
	id, status, err := s.Identity(ctx, domain.PlatformDotbit, name, debounceDelay)
	if err != nil || id == nil {
		return nil, status, err
	}
	owner, err := s.graph.IdentityOwnedBy(ctx, id.PrimaryKey(), domain.PlatformEthereum)
	if err != nil {
		return nil, status, apperr.Store("dotbit owned by", err)
	}
	if owner == nil {
		return &DotbitResolve{}, status, nil
	}
	return &DotbitResolve{Owner: owner.Identity}, status, nil
}

// Proof looks up a single edge by uuid, used by the `proof(uuid)`
// introspection query (spec §6 supplement).
func (s *Service) Proof(ctx context.Context, edgeType, uuid string) (*store.EdgeUnion, error) {
	metrics.QueryRequests.Inc(1)
	out, err := s.graph.FindEdgeByUUID(ctx, edgeType, uuid)
	if err != nil {
		metrics.QueryErrors.Inc(1)
		return nil, apperr.Store("find edge", err)
	}
	if out == nil {
		return nil, errors.WithMessage(apperr.NoResult("no such edge"), uuid)
	}
	return out, nil
}

// PrefetchProof fires every registered upstream.Prefetcher in the
// background and returns immediately, mirroring the original
// prefetch_proof resolver's tokio::spawn-and-forget contract: the
// caller gets an instant acknowledgement, not a completion signal.
func (s *Service) PrefetchProof(ctx context.Context) string {
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.engine.Prefetch(bgCtx); err != nil {
			log.Warn("prefetch_proof failed", "err", err)
		}
	}()
	return "Fetching"
}

// ownedByKey identifies one pending OwnedByLoader.Load call.
type ownedByKey struct {
	vID           string
	ownerPlatform domain.Platform
}

type ownedByResult struct {
	id  *domain.Identity
	err error
}

// OwnedByLoader is a per-request batch coalescer for the `ownedBy`
// field (spec §4.4/§9, "owned-by batching"): every Load call within
// one GraphQL request window is collected, the cheap owner-vertex-id
// lookup still runs once per distinct key, but the expensive identity
// hydration runs as a single IdentitiesByIDs call across every owner
// id the whole request discovered, instead of one round trip per
// field resolution.
type OwnedByLoader struct {
	svc *Service
	ctx context.Context

	mu      sync.Mutex
	pending map[ownedByKey][]chan ownedByResult
	timer   *time.Timer
}

// NewOwnedByLoader creates a coalescer scoped to a single request; a
// fresh instance belongs on the context of every GraphQL handler call.
func NewOwnedByLoader(svc *Service, ctx context.Context) *OwnedByLoader {
	return &OwnedByLoader{svc: svc, ctx: ctx, pending: make(map[ownedByKey][]chan ownedByResult)}
}

// Load enqueues vID for batched owned-by resolution and blocks until
// the next flush resolves it.
func (l *OwnedByLoader) Load(vID string, ownerPlatform domain.Platform) (*domain.Identity, error) {
	key := ownedByKey{vID: vID, ownerPlatform: ownerPlatform}
	ch := make(chan ownedByResult, 1)

	l.mu.Lock()
	l.pending[key] = append(l.pending[key], ch)
	if l.timer == nil {
		l.timer = time.AfterFunc(time.Millisecond, l.flush)
	}
	l.mu.Unlock()

	res := <-ch
	return res.id, res.err
}

// flush runs once per batch window: it resolves every distinct pending
// key's owner vertex id (cheap edge lookups, one per key), then
// hydrates every distinct owner id found in a single IdentitiesByIDs
// call, and finally distributes the results back to every waiting
// Load call.
func (l *OwnedByLoader) flush() {
	l.mu.Lock()
	pending := l.pending
	l.pending = make(map[ownedByKey][]chan ownedByResult)
	l.timer = nil
	l.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	type resolved struct {
		key      ownedByKey
		ownerVID string
		found    bool
		err      error
	}
	resolutions := make([]resolved, 0, len(pending))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for key := range pending {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			ownerVID, found, err := l.svc.graph.OwnedByVertexID(l.ctx, key.vID, key.ownerPlatform)
			mu.Lock()
			resolutions = append(resolutions, resolved{key: key, ownerVID: ownerVID, found: found, err: err})
			mu.Unlock()
		}()
	}
	wg.Wait()

	ownerVIDs := make([]string, 0, len(resolutions))
	seen := make(map[string]bool, len(resolutions))
	for _, r := range resolutions {
		if r.err != nil || !r.found || seen[r.ownerVID] {
			continue
		}
		seen[r.ownerVID] = true
		ownerVIDs = append(ownerVIDs, r.ownerVID)
	}

	var hydrated map[string]domain.Identity
	var hydrateErr error
	if len(ownerVIDs) > 0 {
		hydrated, hydrateErr = l.svc.graph.IdentitiesByIDs(l.ctx, ownerVIDs)
	}

	for _, r := range resolutions {
		chans := pending[r.key]
		var res ownedByResult
		switch {
		case r.err != nil:
			res.err = apperr.Store("owned by vertex id", r.err)
		case !r.found:
			// no owner found; res stays zero-value (nil identity, nil error)
		case hydrateErr != nil:
			res.err = apperr.Store("batch load owned by identities", hydrateErr)
		default:
			if id, ok := hydrated[r.ownerVID]; ok {
				idCopy := id
				res.id = &idCopy
			}
		}
		for _, ch := range chans {
			ch <- res
		}
	}
}
