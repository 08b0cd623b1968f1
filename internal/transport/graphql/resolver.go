package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"github.com/nextdotid/relation-server-go/internal/apperr"
	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/query"
	"github.com/nextdotid/relation-server-go/internal/store"
)

// NewHandler parses the schema against resolver and returns the HTTP
// handler the cmd entrypoint mounts. Unlike relay.Handler's default
// dispatch, this handler reads each resolver error's statusCode
// extension (apperr.AppError.Extensions) back off the response to
// decide the HTTP status, and scopes a fresh OwnedByLoader to every
// request so the `ownedBy` field batches within one query instead of
// firing one store round trip per Identity (spec §4.4/§9).
func NewHandler(svc *query.Service, debounceDelay time.Duration) (http.Handler, error) {
	s, err := graphqlgo.ParseSchema(schema, &resolver{svc: svc, debounceDelay: debounceDelay})
	if err != nil {
		return nil, err
	}
	return &gqlHandler{schema: s, svc: svc}, nil
}

type gqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

type gqlHandler struct {
	schema *graphqlgo.Schema
	svc    *query.Service
}

type ownedByLoaderKey struct{}

func ownedByLoaderFromContext(ctx context.Context) *query.OwnedByLoader {
	l, _ := ctx.Value(ownedByLoaderKey{}).(*query.OwnedByLoader)
	return l
}

func (h *gqlHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var in gqlRequest
	switch req.Method {
	case http.MethodGet:
		q := req.URL.Query()
		in.Query = q.Get("query")
		in.OperationName = q.Get("operationName")
	case http.MethodPost:
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	loader := query.NewOwnedByLoader(h.svc, req.Context())
	ctx := context.WithValue(req.Context(), ownedByLoaderKey{}, loader)

	resp := h.schema.Exec(ctx, in.Query, in.OperationName, in.Variables)

	status := http.StatusOK
	for _, qerr := range resp.Errors {
		if code, ok := qerr.Extensions["statusCode"].(int); ok && code > status {
			status = code
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

type resolver struct {
	svc           *query.Service
	debounceDelay time.Duration
}

func (r *resolver) newIdentityResolver(id domain.Identity) *identityResolver {
	return &identityResolver{r: r, id: id}
}

type identityArgs struct {
	Platform string
	Identity string
}

type identitiesArgs struct {
	Platforms []string
	Identity  string
}

func (r *resolver) Identity(ctx context.Context, args identityArgs) (*identityResolver, error) {
	platform, ok := domain.ParsePlatform(args.Platform)
	if !ok {
		return nil, nil
	}
	id, _, err := r.svc.Identity(ctx, platform, args.Identity, r.debounceDelay)
	if err != nil || id == nil {
		return nil, err
	}
	return r.newIdentityResolver(*id), nil
}

// Identities looks up the same identity string across every given
// platform in one batched store round trip (spec §6: `identities`
// resolves a handle against a set of platforms, not a set of opaque
// vertex ids).
func (r *resolver) Identities(ctx context.Context, args identitiesArgs) ([]*identityResolver, error) {
	vIDs := make([]string, 0, len(args.Platforms))
	for _, p := range args.Platforms {
		platform, ok := domain.ParsePlatform(p)
		if !ok {
			continue
		}
		vIDs = append(vIDs, domain.Identity{Platform: platform, Identity: args.Identity}.PrimaryKey())
	}
	found, err := r.svc.Identities(ctx, vIDs)
	if err != nil {
		return nil, err
	}
	out := make([]*identityResolver, 0, len(found))
	for _, id := range found {
		out = append(out, r.newIdentityResolver(id))
	}
	return out, nil
}

type ensArgs struct{ Name string }

func (r *resolver) Ens(ctx context.Context, args ensArgs) (*ensResolver, error) {
	res, _, err := r.svc.ENS(ctx, args.Name, r.debounceDelay)
	if err != nil || res == nil {
		return nil, err
	}
	return &ensResolver{r: *res}, nil
}

func (r *resolver) Dotbit(ctx context.Context, args ensArgs) (*dotbitResolver, error) {
	res, _, err := r.svc.Dotbit(ctx, args.Name, r.debounceDelay)
	if err != nil || res == nil {
		return nil, err
	}
	return &dotbitResolver{r: *res}, nil
}

type proofArgs struct{ Uuid string }

// Proof backs the `proof(uuid)` introspection query (spec §6
// supplement). ProofRecord is Proof-edge-only: a uuid naming a Hold or
// Resolve edge resolves to null, matching the original's
// ProofRecord::find_by_uuid scoping to the Proof_Forward edge type.
func (r *resolver) Proof(ctx context.Context, args proofArgs) (*proofRecordResolver, error) {
	edge, err := r.svc.Proof(ctx, domain.EdgeTypeProof, args.Uuid)
	if apperr.KindOf(err) == apperr.KindNoResult {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if edge == nil || edge.Proof == nil {
		return nil, nil
	}
	ids, err := r.svc.Identities(ctx, []string{edge.Proof.From, edge.Proof.To})
	if err != nil {
		return nil, err
	}
	return &proofRecordResolver{r: r, p: *edge.Proof, from: ids[edge.Proof.From], to: ids[edge.Proof.To]}, nil
}

// PrefetchProof fires every registered prefetchable upstream in the
// background and answers immediately (spec §6 supplement); it never
// blocks on the prefetch actually completing.
func (r *resolver) PrefetchProof(ctx context.Context) string {
	return r.svc.PrefetchProof(ctx)
}

func (r *resolver) AvailablePlatforms() []string {
	platforms := domain.AllPlatforms()
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = string(p)
	}
	return out
}

func (r *resolver) AvailableUpstreams() []string {
	sources := domain.AllDataSources()
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

func (r *resolver) AvailableNameSystem() []string {
	systems := domain.AllNameSystems()
	out := make([]string, len(systems))
	for i, s := range systems {
		out[i] = string(s)
	}
	return out
}

type identityResolver struct {
	r  *resolver
	id domain.Identity
}

func (i *identityResolver) Uuid() string         { return i.id.UUID.String() }
func (i *identityResolver) Status() []string     { return i.r.svc.StatusFor(i.id).Strings() }
func (i *identityResolver) Platform() string     { return string(i.id.Platform) }
func (i *identityResolver) Identity() string     { return i.id.Identity }
func (i *identityResolver) Uid() *string         { return strPtr(i.id.Uid) }
func (i *identityResolver) DisplayName() *string { return strPtr(i.id.DisplayName) }
func (i *identityResolver) ProfileUrl() *string  { return strPtr(i.id.ProfileURL) }
func (i *identityResolver) AvatarUrl() *string   { return strPtr(i.id.AvatarURL) }

func (i *identityResolver) CreatedAt() *string {
	if i.id.CreatedAt == nil {
		return nil
	}
	s := i.id.CreatedAt.Format(time.RFC3339)
	return &s
}

func (i *identityResolver) AddedAt() string   { return i.id.AddedAt.Format(time.RFC3339) }
func (i *identityResolver) UpdatedAt() string { return i.id.UpdatedAt.Format(time.RFC3339) }

// ExpiredAt has no backing field on domain.Identity; the store never
// observes an identity's expiry the way it does a Hold's (spec §9,
// Open Question: "identity records don't expire, holdings do").
func (i *identityResolver) ExpiredAt() *string { return nil }

// Reverse projects IsReversePrimary, gated to the domain-systems
// platforms the original scopes reverse records to (spec §3).
func (i *identityResolver) Reverse(ctx context.Context) (*bool, error) {
	if !i.id.Platform.HasReverseFlag() {
		return nil, nil
	}
	ok, err := i.r.svc.IsReversePrimary(ctx, i.id.Platform, i.id.Identity)
	if err != nil {
		return nil, err
	}
	return &ok, nil
}

type neighborArgs struct {
	Depth   *int32
	Reverse *bool
}

func (i *identityResolver) Neighbor(ctx context.Context, args neighborArgs) ([]*neighborResolver, error) {
	depth := 1
	if args.Depth != nil {
		depth = int(*args.Depth)
	}
	filter := store.NeighborFilterAny
	if args.Reverse != nil {
		if *args.Reverse {
			filter = store.NeighborFilterReverseOnly
		} else {
			filter = store.NeighborFilterNonReverseOnly
		}
	}
	neighbors, err := i.r.svc.Neighbors(ctx, i.id.Platform, i.id.Identity, depth, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*neighborResolver, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, &neighborResolver{r: i.r, n: n})
	}
	return out, nil
}

type traversalArgs struct{ Depth *int32 }

func (i *identityResolver) NeighborWithTraversal(ctx context.Context, args traversalArgs) ([]*edgeUnionResolver, error) {
	depth := 1
	if args.Depth != nil {
		depth = int(*args.Depth)
	}
	edges, err := i.r.svc.IdentityGraph(ctx, i.id.Platform, i.id.Identity, depth)
	if err != nil {
		return nil, err
	}
	out := make([]*edgeUnionResolver, 0, len(edges))
	for _, e := range edges {
		out = append(out, &edgeUnionResolver{e: e})
	}
	return out, nil
}

type identityGraphArgs struct{ Reverse *bool }

// IdentityGraph reuses the same traversal as NeighborWithTraversal,
// filtered down to Resolve edges matching the requested reverse flag
// when one is given (spec §6 supplement: "identityGraph narrows the
// traversal to forward or reverse domain edges").
func (i *identityResolver) IdentityGraph(ctx context.Context, args identityGraphArgs) ([]*edgeUnionResolver, error) {
	edges, err := i.r.svc.IdentityGraph(ctx, i.id.Platform, i.id.Identity, 1)
	if err != nil {
		return nil, err
	}
	out := make([]*edgeUnionResolver, 0, len(edges))
	for _, e := range edges {
		if args.Reverse != nil && e.Resolve != nil && e.Resolve.Reverse != *args.Reverse {
			continue
		}
		out = append(out, &edgeUnionResolver{e: e})
	}
	return out, nil
}

func (i *identityResolver) ReverseRecords(ctx context.Context) ([]string, error) {
	resolves, err := i.r.svc.ReverseRecords(ctx, i.id.Platform, i.id.Identity)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resolves))
	for _, rv := range resolves {
		out = append(out, rv.Name)
	}
	return out, nil
}

// OwnedBy always resolves against the Ethereum owner platform, gated
// by Platform.IsOwnable(), reusing the per-request OwnedByLoader when
// one is present on the context so a listing of Identities collapses
// every field's owned-by lookup into a single IdentitiesByIDs call
// (spec §4.4/§9, "owned-by batching").
func (i *identityResolver) OwnedBy(ctx context.Context) (*identityResolver, error) {
	if !i.id.Platform.IsOwnable() {
		return nil, nil
	}
	if loader := ownedByLoaderFromContext(ctx); loader != nil {
		id, err := loader.Load(i.id.PrimaryKey(), domain.PlatformEthereum)
		if err != nil || id == nil {
			return nil, err
		}
		return i.r.newIdentityResolver(*id), nil
	}
	id, err := i.r.svc.OwnedBy(ctx, i.id.Platform, i.id.Identity, domain.PlatformEthereum)
	if err != nil || id == nil {
		return nil, err
	}
	return i.r.newIdentityResolver(*id), nil
}

type nftArgs struct {
	Category *[]string
	Limit    *int32
	Offset   *int32
}

func (i *identityResolver) Nft(ctx context.Context, args nftArgs) ([]*holdResolver, error) {
	limit, offset := 20, 0
	if args.Limit != nil {
		limit = int(*args.Limit)
	}
	if args.Offset != nil {
		offset = int(*args.Offset)
	}
	var categories []domain.ContractCategory
	if args.Category != nil {
		for _, c := range *args.Category {
			categories = append(categories, domain.ContractCategory(c))
		}
	}
	holds, err := i.r.svc.NFTs(ctx, i.id.Platform, i.id.Identity, categories, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*holdResolver, 0, len(holds))
	for _, h := range holds {
		out = append(out, &holdResolver{h: h})
	}
	return out, nil
}

type neighborResolver struct {
	r *resolver
	n store.Neighbor
}

func (n *neighborResolver) Identity() *identityResolver { return n.r.newIdentityResolver(n.n.Identity) }
func (n *neighborResolver) Sources() []string {
	out := make([]string, len(n.n.Sources))
	for i, s := range n.n.Sources {
		out[i] = string(s)
	}
	return out
}
func (n *neighborResolver) Reverse() *bool { return n.n.Reverse }

type holdResolver struct{ h domain.Hold }

func (h *holdResolver) Uuid() string         { return h.h.UUID.String() }
func (h *holdResolver) From() string         { return h.h.From }
func (h *holdResolver) To() string           { return h.h.To }
func (h *holdResolver) Source() string       { return string(h.h.Source) }
func (h *holdResolver) Id() string           { return h.h.ID }
func (h *holdResolver) Transaction() *string { return strPtr(h.h.Transaction) }

// proofResolver backs the Proof member of the EdgeUnion union, which
// is a distinct GraphQL type from ProofRecord even though both wrap a
// domain.Proof (the original keeps EdgeUnion's Proof member and
// ProofRecord as two separate async-graphql types for the same
// reason: one is a raw traversal edge, the other a hydrated query
// result with resolved endpoints).
type proofResolver struct{ p domain.Proof }

func (p *proofResolver) Uuid() string      { return p.p.UUID.String() }
func (p *proofResolver) From() string      { return p.p.From }
func (p *proofResolver) To() string        { return p.p.To }
func (p *proofResolver) Source() string    { return string(p.p.Source) }
func (p *proofResolver) RecordId() *string { return strPtr(p.p.RecordID) }
func (p *proofResolver) UpdatedAt() string { return p.p.UpdatedAt.Format(time.RFC3339) }

type resolveEdgeResolver struct{ rs domain.Resolve }

func (r *resolveEdgeResolver) Uuid() string      { return r.rs.UUID.String() }
func (r *resolveEdgeResolver) From() string      { return r.rs.From }
func (r *resolveEdgeResolver) To() string        { return r.rs.To }
func (r *resolveEdgeResolver) Source() string    { return string(r.rs.Source) }
func (r *resolveEdgeResolver) System() string    { return string(r.rs.System) }
func (r *resolveEdgeResolver) Name() string      { return r.rs.Name }
func (r *resolveEdgeResolver) Reverse() bool     { return r.rs.Reverse }
func (r *resolveEdgeResolver) UpdatedAt() string { return r.rs.UpdatedAt.Format(time.RFC3339) }

// edgeUnionResolver implements graph-gophers/graphql-go's union
// convention: one To<MemberName>() (*Resolver, bool) method per
// possible member, called in schema declaration order until one
// reports true.
type edgeUnionResolver struct{ e store.EdgeUnion }

func (u *edgeUnionResolver) ToProof() (*proofResolver, bool) {
	if u.e.Proof == nil {
		return nil, false
	}
	return &proofResolver{p: *u.e.Proof}, true
}

func (u *edgeUnionResolver) ToHold() (*holdResolver, bool) {
	if u.e.Hold == nil {
		return nil, false
	}
	return &holdResolver{h: *u.e.Hold}, true
}

func (u *edgeUnionResolver) ToResolveEdge() (*resolveEdgeResolver, bool) {
	if u.e.Resolve == nil {
		return nil, false
	}
	return &resolveEdgeResolver{rs: *u.e.Resolve}, true
}

// proofRecordResolver backs the `proof(uuid)` query's plain,
// Proof-edge-only result type, with its endpoints hydrated into full
// Identity resolvers rather than left as bare vertex ids.
type proofRecordResolver struct {
	r    *resolver
	p    domain.Proof
	from domain.Identity
	to   domain.Identity
}

func (p *proofRecordResolver) Uuid() string   { return p.p.UUID.String() }
func (p *proofRecordResolver) Source() string { return string(p.p.Source) }
func (p *proofRecordResolver) RecordId() *string {
	return strPtr(p.p.RecordID)
}

func (p *proofRecordResolver) CreatedAt() *string {
	if p.p.CreatedAt == nil {
		return nil
	}
	s := p.p.CreatedAt.Format(time.RFC3339)
	return &s
}

func (p *proofRecordResolver) UpdatedAt() string { return p.p.UpdatedAt.Format(time.RFC3339) }
func (p *proofRecordResolver) Fetcher() string   { return string(p.p.Fetcher) }
func (p *proofRecordResolver) From() *identityResolver {
	return p.r.newIdentityResolver(p.from)
}
func (p *proofRecordResolver) To() *identityResolver {
	return p.r.newIdentityResolver(p.to)
}

type ensResolver struct{ r query.EnsResolve }

func (e *ensResolver) Resolved() *string { return strPtr(e.r.Resolved) }
func (e *ensResolver) Owner() *string    { return strPtr(e.r.Owner) }

type dotbitResolver struct{ r query.DotbitResolve }

func (d *dotbitResolver) Owner() *string { return strPtr(d.r.Owner) }

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
