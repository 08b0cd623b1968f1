// Package upstream defines the contract every external data source
// implements, and the static registry the dispatch engine walks to
// find which ones can handle a given target. The tagged-union Target
// and the can_fetch/fetch split are ported from
// original_source/src/upstream/mod.rs's Fetcher trait, generalized
// past its single Identity-only TempIdentity shape to also cover NFT
// targets (spec §4.2).
package upstream

import (
	"context"

	"github.com/nextdotid/relation-server-go/internal/domain"
)

// TargetKind discriminates the two things the dispatch engine can ask
// an upstream to expand.
type TargetKind int

const (
	TargetIdentity TargetKind = iota
	TargetNFT
)

// Target is a tagged union over what fetch_all can fan out from: an
// Identity vertex, or an NFT holding (Chain + contract address + token
// id) discovered via a prior Hold edge.
type Target struct {
	Kind TargetKind

	// set when Kind == TargetIdentity
	Platform domain.Platform
	Identity string

	// set when Kind == TargetNFT
	Chain           domain.Chain
	ContractAddress string
	TokenID         string
}

func NewIdentityTarget(platform domain.Platform, identity string) Target {
	return Target{Kind: TargetIdentity, Platform: platform, Identity: identity}
}

func NewNFTTarget(chain domain.Chain, contractAddress, tokenID string) Target {
	return Target{Kind: TargetNFT, Chain: chain, ContractAddress: contractAddress, TokenID: tokenID}
}

// Key identifies a target for the dispatch engine's visited set.
func (t Target) Key() string {
	if t.Kind == TargetNFT {
		return string(t.Chain) + "|" + t.ContractAddress + "|" + t.TokenID
	}
	return string(t.Platform) + "|" + t.Identity
}

// Result is everything one Fetcher call may contribute to the graph:
// any combination of new identities/contracts to upsert as vertices,
// and the edges connecting them. Dispatch merges Results from every
// fetcher that ran against a target before writing to the store once.
type Result struct {
	Identities []domain.Identity
	Contracts  []domain.Contract
	Proofs     []domain.Proof
	Holds      []domain.Hold
	Resolves   []domain.Resolve

	// Next is the set of further targets this fetch discovered and
	// that the dispatch engine should enqueue for the next BFS layer
	// (spec §4.3).
	Next []Target
}

// Fetcher is one upstream adapter. CanFetch is a cheap, synchronous
// filter; Fetch performs the actual network call and is only invoked
// when CanFetch returned true.
type Fetcher interface {
	// Name identifies the fetcher in logs and metrics.
	Name() domain.DataFetcher
	// Source is the DataSource recorded on edges this fetcher produces.
	Source() domain.DataSource
	CanFetch(t Target) bool
	Fetch(ctx context.Context, t Target) (Result, error)
}

// Prefetcher is implemented by the handful of fetchers whose upstream
// can be pulled in full ahead of any specific target request — e.g.
// SybilList's whole verified-claims snapshot is small enough to warm
// unconditionally (spec §6 supplement: `prefetchProof` "primes
// prefetchable upstreams"). Most Fetchers do not implement this.
type Prefetcher interface {
	Prefetch(ctx context.Context) (Result, error)
}

// Registry is the static, ordered list of fetchers the dispatch engine
// consults for every target, mirroring contracts/oasys's package-level
// registry of named structs rather than a dynamically built map —
// the fetcher set is fixed at compile time (spec §4.2: "The fetcher
// set is closed; plugins are out of scope").
type Registry struct {
	fetchers []Fetcher
}

func NewRegistry(fetchers ...Fetcher) *Registry {
	return &Registry{fetchers: fetchers}
}

// CapableFetchers returns every registered Fetcher willing to handle t.
func (r *Registry) CapableFetchers(t Target) []Fetcher {
	var out []Fetcher
	for _, f := range r.fetchers {
		if f.CanFetch(t) {
			out = append(out, f)
		}
	}
	return out
}

func (r *Registry) All() []Fetcher { return r.fetchers }
