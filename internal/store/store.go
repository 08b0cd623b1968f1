// Package store abstracts the remote graph database (spec §4.1). It
// is the single choke point for persistence: every other component
// speaks to it in terms of domain.Identity / domain.Contract /
// domain.Proof / domain.Hold / domain.Resolve, never in terms of the
// backend's own wire shape.
package store

import (
	"context"
	"time"

	"github.com/nextdotid/relation-server-go/internal/domain"
)

// Op is a per-attribute upsert operator (spec §4.1). Not every backing
// store supports these natively; implementations lacking them must
// emulate with a read-modify-write guarded by UpdatedAt (see
// sqlitestore, which does exactly that).
type Op int

const (
	// OpIgnoreIfExists is write-once: the caller's value is used only
	// if the store has no existing value for that attribute.
	OpIgnoreIfExists Op = iota
	// OpMax keeps the greater of the existing and incoming value;
	// used for UpdatedAt to guarantee monotonicity (spec §3).
	OpMax
	// OpDefault unconditionally overwrites.
	OpDefault
)

// Attr pairs a value with the operator that governs how upsert
// resolves it against any existing stored value.
type Attr struct {
	Value any
	Op    Op
}

// VertexUpsert is a generic, backend-agnostic vertex write.
type VertexUpsert struct {
	VertexType string
	ID         string // PrimaryKey()
	Attrs      map[string]Attr
}

// EdgeUpsert is a generic, backend-agnostic edge write. Discriminator
// is the edge's natural key within (EdgeType, From, To) — see
// domain.Proof/Hold/Resolve's Discriminator() methods — used by
// backends that must emulate idempotent upsert themselves.
type EdgeUpsert struct {
	EdgeType      string
	From          string
	To            string
	Discriminator string
	Attrs         map[string]Attr
}

// NeighborFilter mirrors the traversal's reverse_flag (spec §4.1):
// 0 = no filter, 1 = keep only reverse=true edges, 2 = keep only
// reverse=false edges.
type NeighborFilter int

const (
	NeighborFilterAny NeighborFilter = iota
	NeighborFilterReverseOnly
	NeighborFilterNonReverseOnly
)

// Neighbor is one row of a neighbors() traversal: an identity reached
// within the requested depth, annotated with the union of DataSources
// on edges along any path that reached it, and (when meaningful) the
// reverse flag of the edge that connects it.
type Neighbor struct {
	Identity domain.Identity
	Sources  []domain.DataSource
	Reverse  *bool
}

// EdgeUnion is a tagged union over the three edge kinds, used by
// neighbors_with_traversal to hand back raw topology instead of a
// flattened identity list.
type EdgeUnion struct {
	Proof   *domain.Proof
	Hold    *domain.Hold
	Resolve *domain.Resolve
}

// GraphStore is the full Graph Store Adapter contract (spec §4.1).
// All read traversals are snapshot-inconsistent: implementations may
// reflect concurrent writes, and callers must not assume "I just
// wrote this, I will see it."
type GraphStore interface {
	UpsertGraph(ctx context.Context, vertices []VertexUpsert, edges []EdgeUpsert) error

	FindVertexByPrimaryKey(ctx context.Context, vertexType, id string) (*VertexUpsert, error)
	FindVertexByPlatformIdentity(ctx context.Context, platform domain.Platform, identity string) (*domain.Identity, error)
	FindEdgeByUUID(ctx context.Context, edgeType, uuid string) (*EdgeUnion, error)

	DeleteVertexAndIncidentEdges(ctx context.Context, vID string) error

	Neighbors(ctx context.Context, vID string, depth int, filter NeighborFilter) ([]Neighbor, error)
	NeighborsWithTraversal(ctx context.Context, vID string, depth int) ([]EdgeUnion, error)
	IdentityBySource(ctx context.Context, vID string, source domain.DataSource) ([]domain.Identity, error)
	ReverseDomains(ctx context.Context, vID string) ([]domain.Resolve, error)
	IdentityOwnedBy(ctx context.Context, vID string, platform domain.Platform) (*domain.Identity, error)
	NFTs(ctx context.Context, vID string, categories []domain.ContractCategory, limit, offset int) ([]domain.Hold, error)
	IdentitiesByIDs(ctx context.Context, vIDs []string) (map[string]domain.Identity, error)

	// OwnedByVertexID is IdentityOwnedBy's cheap half: it returns just
	// the owner's vertex id (an edge-table lookup) without hydrating
	// the full Identity row, so the owned-by batch coalescer (spec
	// §4.4/§9) can collect owner ids across a whole listing and
	// hydrate them all in one IdentitiesByIDs call.
	OwnedByVertexID(ctx context.Context, vID string, platform domain.Platform) (ownerVID string, found bool, err error)

	// IsReversePrimary reports whether some wallet has marked vID as
	// its primary domain (a reverse=true Resolve edge targeting it),
	// backing the `reverse` projection on platforms in the
	// domain-systems set (spec §3, Invariants).
	IsReversePrimary(ctx context.Context, vID string) (bool, error)

	// ResolveByNameAndSystem looks up the forward Resolve edge for a
	// name within a DomainNameSystem (spec §6's `ens`/`dotbit` queries
	// need "what does this name resolve to" rather than a traversal
	// rooted at a known vertex id).
	ResolveByNameAndSystem(ctx context.Context, system domain.DomainNameSystem, name string) (*domain.Resolve, error)
}

// Now is overridable in tests; production code always calls
// time.Now(), matching how the rest of the codebase avoids a hidden
// global clock.
var Now = time.Now
