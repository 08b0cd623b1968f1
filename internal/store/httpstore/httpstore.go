// Package httpstore implements the remote graph database's wire
// protocol (spec §6): GET /query/{graph}/{queryName} with query-string
// parameters for traversals, and POST /graph/{graph} carrying a JSON
// payload with per-attribute operator hints for upserts. It is the
// production counterpart to sqlitestore — same GraphStore contract,
// backed by a real graph database instead of an emulation.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/store"
)

func parseUUID(s string) (uuid.UUID, error) { return uuid.Parse(s) }

// Store is an HTTP client for the remote graph database.
type Store struct {
	baseURL string
	graph   string
	token   string
	http    *http.Client
}

var _ store.GraphStore = (*Store)(nil)

func New(baseURL, graph, token string, timeout time.Duration) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		graph:   graph,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (s *Store) authHeader(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

// wireAttr mirrors the JSON shape the remote store expects for one
// attribute: a value plus the operator controlling how it merges with
// whatever the store already holds.
type wireAttr struct {
	Value any    `json:"value"`
	Op    string `json:"op"`
}

func opName(op store.Op) string {
	switch op {
	case store.OpIgnoreIfExists:
		return "ignore_if_exists"
	case store.OpMax:
		return "max"
	default:
		return "default"
	}
}

type wireVertex struct {
	VertexType string              `json:"vertex_type"`
	ID         string              `json:"id"`
	Attrs      map[string]wireAttr `json:"attrs"`
}

type wireEdge struct {
	EdgeType      string              `json:"edge_type"`
	From          string              `json:"from"`
	To            string              `json:"to"`
	Discriminator string              `json:"discriminator"`
	Attrs         map[string]wireAttr `json:"attrs"`
}

type upsertPayload struct {
	Vertices []wireVertex `json:"vertices"`
	Edges    []wireEdge   `json:"edges"`
}

func toWireAttrs(attrs map[string]store.Attr) map[string]wireAttr {
	out := make(map[string]wireAttr, len(attrs))
	for k, a := range attrs {
		out[k] = wireAttr{Value: a.Value, Op: opName(a.Op)}
	}
	return out
}

func (s *Store) UpsertGraph(ctx context.Context, vertices []store.VertexUpsert, edges []store.EdgeUpsert) error {
	payload := upsertPayload{
		Vertices: make([]wireVertex, len(vertices)),
		Edges:    make([]wireEdge, len(edges)),
	}
	for i, v := range vertices {
		payload.Vertices[i] = wireVertex{VertexType: v.VertexType, ID: v.ID, Attrs: toWireAttrs(v.Attrs)}
	}
	for i, e := range edges {
		payload.Edges[i] = wireEdge{EdgeType: e.EdgeType, From: e.From, To: e.To, Discriminator: e.Discriminator, Attrs: toWireAttrs(e.Attrs)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal upsert payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/graph/%s", s.baseURL, s.graph), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	s.authHeader(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "upsert graph request")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("upsert graph: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// query issues GET /query/{graph}/{queryName}?params and decodes the
// JSON response body into out.
func (s *Store) query(ctx context.Context, queryName string, params url.Values, out any) error {
	u := fmt.Sprintf("%s/query/%s/%s?%s", s.baseURL, s.graph, queryName, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	s.authHeader(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "query %s request", queryName)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return errors.Errorf("query %s: unexpected status %d", queryName, resp.StatusCode)
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decode query %s response", queryName)
}

type wireIdentity struct {
	UUID        string `json:"uuid"`
	Platform    string `json:"platform"`
	Identity    string `json:"identity"`
	Uid         string `json:"uid"`
	DisplayName string `json:"display_name"`
	ProfileURL  string `json:"profile_url"`
	AvatarURL   string `json:"avatar_url"`
	CreatedAt   *int64 `json:"created_at"`
	AddedAt     int64  `json:"added_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

func (w *wireIdentity) toDomain() domain.Identity {
	id := domain.Identity{
		Platform:    domain.Platform(w.Platform),
		Identity:    w.Identity,
		Uid:         w.Uid,
		DisplayName: w.DisplayName,
		ProfileURL:  w.ProfileURL,
		AvatarURL:   w.AvatarURL,
		AddedAt:     time.Unix(w.AddedAt, 0).UTC(),
		UpdatedAt:   time.Unix(w.UpdatedAt, 0).UTC(),
	}
	if w.CreatedAt != nil {
		t := time.Unix(*w.CreatedAt, 0).UTC()
		id.CreatedAt = &t
	}
	if u, err := parseUUID(w.UUID); err == nil {
		id.UUID = u
	}
	return id
}

func (s *Store) FindVertexByPlatformIdentity(ctx context.Context, platform domain.Platform, identity string) (*domain.Identity, error) {
	var out *wireIdentity
	params := url.Values{"platform": {string(platform)}, "identity": {identity}}
	if err := s.query(ctx, "identity_by_platform_identity", params, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	id := out.toDomain()
	return &id, nil
}

func (s *Store) FindVertexByPrimaryKey(ctx context.Context, vertexType, id string) (*store.VertexUpsert, error) {
	var raw map[string]any
	params := url.Values{"vertex_type": {vertexType}, "p": {id}}
	if err := s.query(ctx, "vertex_by_primary_key", params, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	attrs := make(map[string]store.Attr, len(raw))
	for k, v := range raw {
		attrs[k] = store.Attr{Value: v}
	}
	return &store.VertexUpsert{VertexType: vertexType, ID: id, Attrs: attrs}, nil
}

type wireEdgeResult struct {
	EdgeType string         `json:"edge_type"`
	Raw      map[string]any `json:"attrs"`
}

func (s *Store) FindEdgeByUUID(ctx context.Context, edgeType, uuidStr string) (*store.EdgeUnion, error) {
	var out *wireEdgeResult
	params := url.Values{"edge_type": {edgeType}, "uuid": {uuidStr}}
	if err := s.query(ctx, "edge_by_uuid", params, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return edgeUnionFromRaw(edgeType, out.Raw), nil
}

func (s *Store) DeleteVertexAndIncidentEdges(ctx context.Context, vID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/graph/%s/delete?p=%s", s.baseURL, s.graph, url.QueryEscape(vID)), nil)
	if err != nil {
		return err
	}
	s.authHeader(req)
	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "delete vertex request")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("delete vertex: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type wireNeighbor struct {
	Identity wireIdentity `json:"identity"`
	Sources  []string     `json:"sources"`
	Reverse  *bool        `json:"reverse"`
}

func (s *Store) Neighbors(ctx context.Context, vID string, depth int, filter store.NeighborFilter) ([]store.Neighbor, error) {
	var out []wireNeighbor
	params := url.Values{"p": {vID}, "depth": {strconv.Itoa(depth)}, "reverse_flag": {strconv.Itoa(int(filter))}}
	if err := s.query(ctx, "neighbors", params, &out); err != nil {
		return nil, err
	}
	result := make([]store.Neighbor, len(out))
	for i, n := range out {
		sources := make([]domain.DataSource, len(n.Sources))
		for j, src := range n.Sources {
			sources[j] = domain.DataSource(src)
		}
		result[i] = store.Neighbor{Identity: n.Identity.toDomain(), Sources: sources, Reverse: n.Reverse}
	}
	return result, nil
}

type wireTraversalEdge struct {
	EdgeType string         `json:"edge_type"`
	Attrs    map[string]any `json:"attrs"`
}

func (s *Store) NeighborsWithTraversal(ctx context.Context, vID string, depth int) ([]store.EdgeUnion, error) {
	var out []wireTraversalEdge
	params := url.Values{"p": {vID}, "depth": {strconv.Itoa(depth)}}
	if err := s.query(ctx, "neighbors_with_traversal", params, &out); err != nil {
		return nil, err
	}
	result := make([]store.EdgeUnion, 0, len(out))
	for _, e := range out {
		if u := edgeUnionFromRaw(e.EdgeType, e.Attrs); u != nil {
			result = append(result, *u)
		}
	}
	return result, nil
}

func (s *Store) IdentityBySource(ctx context.Context, vID string, source domain.DataSource) ([]domain.Identity, error) {
	var out []wireIdentity
	params := url.Values{"p": {vID}, "source": {string(source)}}
	if err := s.query(ctx, "identity_by_source", params, &out); err != nil {
		return nil, err
	}
	result := make([]domain.Identity, len(out))
	for i, w := range out {
		result[i] = w.toDomain()
	}
	return result, nil
}

type wireResolve struct {
	UUID      string `json:"uuid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Source    string `json:"source"`
	Fetcher   string `json:"fetcher"`
	System    string `json:"system"`
	Name      string `json:"name"`
	Reverse   bool   `json:"reverse"`
	UpdatedAt int64  `json:"updated_at"`
}

func (w wireResolve) toDomain() domain.Resolve {
	r := domain.Resolve{
		From: w.From, To: w.To,
		Source: domain.DataSource(w.Source), Fetcher: domain.DataFetcher(w.Fetcher),
		System: domain.DomainNameSystem(w.System), Name: w.Name, Reverse: w.Reverse,
		UpdatedAt: time.Unix(w.UpdatedAt, 0).UTC(),
	}
	if u, err := parseUUID(w.UUID); err == nil {
		r.UUID = u
	}
	return r
}

func (s *Store) ReverseDomains(ctx context.Context, vID string) ([]domain.Resolve, error) {
	var out []wireResolve
	params := url.Values{"p": {vID}}
	if err := s.query(ctx, "reverse_domains", params, &out); err != nil {
		return nil, err
	}
	result := make([]domain.Resolve, len(out))
	for i, w := range out {
		result[i] = w.toDomain()
	}
	return result, nil
}

// ResolveByNameAndSystem queries the store's `resolve_by_name`
// traversal (spec §6: `ens`/`dotbit` top-level queries need "what
// does this name resolve to", not a vertex-rooted traversal).
func (s *Store) ResolveByNameAndSystem(ctx context.Context, system domain.DomainNameSystem, name string) (*domain.Resolve, error) {
	var out *wireResolve
	params := url.Values{"system": {string(system)}, "name": {name}}
	if err := s.query(ctx, "resolve_by_name", params, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	r := out.toDomain()
	return &r, nil
}

func (s *Store) IdentityOwnedBy(ctx context.Context, vID string, platform domain.Platform) (*domain.Identity, error) {
	var out *wireIdentity
	params := url.Values{"p": {vID}, "platform": {string(platform)}}
	if err := s.query(ctx, "identity_owned_by", params, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	id := out.toDomain()
	return &id, nil
}

// OwnedByVertexID queries the lightweight owner-vertex-id endpoint the
// batch coalescer uses instead of IdentityOwnedBy's full hydration
// (see store.GraphStore.OwnedByVertexID).
func (s *Store) OwnedByVertexID(ctx context.Context, vID string, platform domain.Platform) (string, bool, error) {
	var out *struct {
		VertexID string `json:"vertex_id"`
	}
	params := url.Values{"p": {vID}, "platform": {string(platform)}}
	if err := s.query(ctx, "owned_by_vertex_id", params, &out); err != nil {
		return "", false, err
	}
	if out == nil || out.VertexID == "" {
		return "", false, nil
	}
	return out.VertexID, true, nil
}

func (s *Store) IsReversePrimary(ctx context.Context, vID string) (bool, error) {
	var out *struct {
		Primary bool `json:"primary"`
	}
	params := url.Values{"p": {vID}}
	if err := s.query(ctx, "is_reverse_primary", params, &out); err != nil {
		return false, err
	}
	return out != nil && out.Primary, nil
}

type wireHold struct {
	UUID        string `json:"uuid"`
	From        string `json:"from"`
	To          string `json:"to"`
	Source      string `json:"source"`
	Fetcher     string `json:"fetcher"`
	ID          string `json:"id"`
	Transaction string `json:"transaction"`
	UpdatedAt   int64  `json:"updated_at"`
}

func (w wireHold) toDomain() domain.Hold {
	h := domain.Hold{
		From: w.From, To: w.To,
		Source: domain.DataSource(w.Source), Fetcher: domain.DataFetcher(w.Fetcher),
		ID: w.ID, Transaction: w.Transaction,
		UpdatedAt: time.Unix(w.UpdatedAt, 0).UTC(),
	}
	if u, err := parseUUID(w.UUID); err == nil {
		h.UUID = u
	}
	return h
}

func (s *Store) NFTs(ctx context.Context, vID string, categories []domain.ContractCategory, limit, offset int) ([]domain.Hold, error) {
	cats := make([]string, len(categories))
	for i, c := range categories {
		cats[i] = string(c)
	}
	var out []wireHold
	params := url.Values{
		"p":      {vID},
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	if len(cats) > 0 {
		params["category"] = []string{strings.Join(cats, ",")}
	}
	if err := s.query(ctx, "nfts", params, &out); err != nil {
		return nil, err
	}
	result := make([]domain.Hold, len(out))
	for i, w := range out {
		result[i] = w.toDomain()
	}
	return result, nil
}

func (s *Store) IdentitiesByIDs(ctx context.Context, vIDs []string) (map[string]domain.Identity, error) {
	var out []wireIdentity
	params := url.Values{"ids": {strings.Join(vIDs, ",")}}
	if err := s.query(ctx, "identities_by_ids", params, &out); err != nil {
		return nil, err
	}
	result := make(map[string]domain.Identity, len(out))
	for _, w := range out {
		id := w.toDomain()
		result[id.PrimaryKey()] = id
	}
	return result, nil
}

func edgeUnionFromRaw(edgeType string, raw map[string]any) *store.EdgeUnion {
	body, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	switch edgeType {
	case domain.EdgeTypeProof:
		var w struct {
			UUID      string `json:"uuid"`
			From      string `json:"from"`
			To        string `json:"to"`
			Source    string `json:"source"`
			Fetcher   string `json:"fetcher"`
			RecordID  string `json:"record_id"`
			UpdatedAt int64  `json:"updated_at"`
		}
		if json.Unmarshal(body, &w) != nil {
			return nil
		}
		p := domain.Proof{
			From: w.From, To: w.To,
			Source: domain.DataSource(w.Source), Fetcher: domain.DataFetcher(w.Fetcher),
			RecordID: w.RecordID, UpdatedAt: time.Unix(w.UpdatedAt, 0).UTC(),
		}
		if u, err := parseUUID(w.UUID); err == nil {
			p.UUID = u
		}
		return &store.EdgeUnion{Proof: &p}
	case domain.EdgeTypeHold:
		var w wireHold
		if json.Unmarshal(body, &w) != nil {
			return nil
		}
		h := w.toDomain()
		return &store.EdgeUnion{Hold: &h}
	case domain.EdgeTypeResolve:
		var w wireResolve
		if json.Unmarshal(body, &w) != nil {
			return nil
		}
		r := w.toDomain()
		return &store.EdgeUnion{Resolve: &r}
	}
	return nil
}
