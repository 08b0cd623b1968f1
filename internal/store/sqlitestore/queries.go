package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/store"
)

func unixToTime(v any) time.Time {
	if i, ok := v.(int64); ok && i != 0 {
		return time.Unix(i, 0).UTC()
	}
	return time.Time{}
}

func unixToTimePtr(v any) *time.Time {
	if i, ok := v.(int64); ok && i != 0 {
		t := time.Unix(i, 0).UTC()
		return &t
	}
	return nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func scanIdentityRow(row map[string]any) domain.Identity {
	id := domain.Identity{
		Platform:    domain.Platform(asString(row["platform"])),
		Identity:    asString(row["identity"]),
		Uid:         asString(row["uid"]),
		DisplayName: asString(row["display_name"]),
		ProfileURL:  asString(row["profile_url"]),
		AvatarURL:   asString(row["avatar_url"]),
		CreatedAt:   unixToTimePtr(row["created_at"]),
		AddedAt:     unixToTime(row["added_at"]),
		UpdatedAt:   unixToTime(row["updated_at"]),
	}
	if u, err := uuid.Parse(asString(row["uuid"])); err == nil {
		id.UUID = u
	}
	return id
}

func (s *Store) FindVertexByPrimaryKey(ctx context.Context, vertexType, id string) (*store.VertexUpsert, error) {
	table, err := vertexTable(vertexType)
	if err != nil {
		return nil, err
	}
	row, err := loadRow(ctx, s.db, table, "v_id", id)
	if err != nil {
		return nil, errors.Wrap(err, "find vertex")
	}
	if row == nil {
		return nil, nil
	}
	attrs := map[string]store.Attr{}
	for k, v := range row {
		attrs[k] = store.Attr{Value: v}
	}
	return &store.VertexUpsert{VertexType: vertexType, ID: id, Attrs: attrs}, nil
}

func (s *Store) FindVertexByPlatformIdentity(ctx context.Context, platform domain.Platform, identity string) (*domain.Identity, error) {
	vID := fmt.Sprintf("%s,%s", platform, identity)
	row, err := loadRow(ctx, s.db, "identities", "v_id", vID)
	if err != nil {
		return nil, errors.Wrap(err, "find identity")
	}
	if row == nil {
		return nil, nil
	}
	id := scanIdentityRow(row)
	return &id, nil
}

func (s *Store) FindEdgeByUUID(ctx context.Context, edgeType, uuidStr string) (*store.EdgeUnion, error) {
	table, err := edgeTable(edgeType)
	if err != nil {
		return nil, err
	}
	row, err := loadRow(ctx, s.db, table, "uuid", uuidStr)
	if err != nil {
		return nil, errors.Wrap(err, "find edge")
	}
	if row == nil {
		return nil, nil
	}
	return rowToEdgeUnion(table, row), nil
}

func rowToEdgeUnion(table string, row map[string]any) *store.EdgeUnion {
	u, _ := uuid.Parse(asString(row["uuid"]))
	switch table {
	case "proofs":
		return &store.EdgeUnion{Proof: &domain.Proof{
			UUID: u, From: asString(row["from_id"]), To: asString(row["to_id"]),
			Source: domain.DataSource(asString(row["source"])), Fetcher: domain.DataFetcher(asString(row["fetcher"])),
			RecordID: asString(row["record_id"]), CreatedAt: unixToTimePtr(row["created_at"]), UpdatedAt: unixToTime(row["updated_at"]),
		}}
	case "holds":
		return &store.EdgeUnion{Hold: &domain.Hold{
			UUID: u, From: asString(row["from_id"]), To: asString(row["to_id"]),
			Source: domain.DataSource(asString(row["source"])), Fetcher: domain.DataFetcher(asString(row["fetcher"])),
			ID: asString(row["id"]), Transaction: asString(row["transaction"]),
			CreatedAt: unixToTimePtr(row["created_at"]), UpdatedAt: unixToTime(row["updated_at"]),
			ExpiredAt: unixToTimePtr(row["expired_at"]),
		}}
	case "resolves":
		reverse := false
		if i, ok := row["reverse"].(int64); ok && i != 0 {
			reverse = true
		}
		return &store.EdgeUnion{Resolve: &domain.Resolve{
			UUID: u, From: asString(row["from_id"]), To: asString(row["to_id"]),
			Source: domain.DataSource(asString(row["source"])), Fetcher: domain.DataFetcher(asString(row["fetcher"])),
			System: domain.DomainNameSystem(asString(row["system"])), Name: asString(row["name"]),
			Reverse: reverse, UpdatedAt: unixToTime(row["updated_at"]),
		}}
	}
	return nil
}

func (s *Store) DeleteVertexAndIncidentEdges(ctx context.Context, vID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	for _, t := range []string{"identities", "contracts"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE v_id = ?`, t), vID); err != nil {
			return err
		}
	}
	for _, t := range []string{"proofs", "holds", "resolves"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE from_id = ? OR to_id = ?`, t), vID, vID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// touchingEdge is one row of the union of proofs/holds/resolves that
// touch a given vertex, used by the BFS traversals below.
type touchingEdge struct {
	from, to  string
	source    domain.DataSource
	isResolve bool
	reverse   bool
}

func (s *Store) edgesTouching(ctx context.Context, vID string) ([]touchingEdge, error) {
	const q = `
		SELECT from_id, to_id, source, 0 AS is_resolve, 0 AS reverse FROM proofs WHERE from_id = ? OR to_id = ?
		UNION ALL
		SELECT from_id, to_id, source, 0 AS is_resolve, 0 AS reverse FROM holds WHERE from_id = ? OR to_id = ?
		UNION ALL
		SELECT from_id, to_id, source, 1 AS is_resolve, reverse FROM resolves WHERE from_id = ? OR to_id = ?
	`
	rows, err := s.db.QueryContext(ctx, q, vID, vID, vID, vID, vID, vID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []touchingEdge
	for rows.Next() {
		var from, to, src string
		var isResolve, reverse int64
		if err := rows.Scan(&from, &to, &src, &isResolve, &reverse); err != nil {
			return nil, err
		}
		out = append(out, touchingEdge{from: from, to: to, source: domain.DataSource(src), isResolve: isResolve != 0, reverse: reverse != 0})
	}
	return out, rows.Err()
}

func (s *Store) vertexKind(ctx context.Context, vID string) (isIdentity, isContract bool, err error) {
	row, err := loadRow(ctx, s.db, "identities", "v_id", vID)
	if err != nil {
		return false, false, err
	}
	if row != nil {
		return true, false, nil
	}
	row, err = loadRow(ctx, s.db, "contracts", "v_id", vID)
	if err != nil {
		return false, false, err
	}
	return false, row != nil, nil
}

func passesFilter(e touchingEdge, filter store.NeighborFilter) bool {
	switch filter {
	case store.NeighborFilterReverseOnly:
		return e.isResolve && e.reverse
	case store.NeighborFilterNonReverseOnly:
		return !(e.isResolve && e.reverse)
	default:
		return true
	}
}

// Neighbors performs a bounded BFS over Proof/Hold/Resolve edges,
// returning every Identity reachable within depth hops (excluding the
// origin), annotated with the union of sources seen and, for the
// direct resolve hop, the reverse flag (spec §4.1).
func (s *Store) Neighbors(ctx context.Context, vID string, depth int, filter store.NeighborFilter) ([]store.Neighbor, error) {
	visited := map[string]bool{vID: true}
	sourceUnion := map[string]map[domain.DataSource]bool{}
	reverseFlag := map[string]*bool{}
	frontier := []string{vID}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, cur := range frontier {
			edges, err := s.edgesTouching(ctx, cur)
			if err != nil {
				return nil, errors.Wrap(err, "neighbors traversal")
			}
			for _, e := range edges {
				if !passesFilter(e, filter) {
					continue
				}
				other := e.to
				if other == cur {
					other = e.from
				}
				if other == vID {
					continue
				}
				if sourceUnion[other] == nil {
					sourceUnion[other] = map[domain.DataSource]bool{}
				}
				sourceUnion[other][e.source] = true
				for src := range sourceUnion[cur] {
					sourceUnion[other][src] = true
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				next = append(next, other)
				if e.isResolve {
					rv := e.reverse
					reverseFlag[other] = &rv
				}
			}
		}
		frontier = next
	}

	var result []store.Neighbor
	for vid, sources := range sourceUnion {
		isIdentity, _, err := s.vertexKind(ctx, vid)
		if err != nil {
			return nil, err
		}
		if !isIdentity {
			continue
		}
		row, err := loadRow(ctx, s.db, "identities", "v_id", vid)
		if err != nil || row == nil {
			continue
		}
		var srcList []domain.DataSource
		for src := range sources {
			srcList = append(srcList, src)
		}
		result = append(result, store.Neighbor{
			Identity: scanIdentityRow(row),
			Sources:  srcList,
			Reverse:  reverseFlag[vid],
		})
	}
	return result, nil
}

// NeighborsWithTraversal returns the raw edge list reachable within
// depth hops so callers can reconstruct subgraph topology.
func (s *Store) NeighborsWithTraversal(ctx context.Context, vID string, depth int) ([]store.EdgeUnion, error) {
	visited := map[string]bool{vID: true}
	seenEdge := map[string]bool{}
	var out []store.EdgeUnion
	frontier := []string{vID}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, cur := range frontier {
			edges, err := s.edgesTouching(ctx, cur)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				key := fmt.Sprintf("%s|%s|%s|%v", e.from, e.to, e.source, e.isResolve)
				if seenEdge[key] {
					continue
				}
				seenEdge[key] = true
				other := e.to
				if other == cur {
					other = e.from
				}
				if !visited[other] {
					visited[other] = true
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids)*2)
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
		args[i+len(ids)] = id
	}
	inClause := strings.Join(placeholders, ",")
	for _, table := range []string{"proofs", "holds", "resolves"} {
		q := fmt.Sprintf(`SELECT * FROM %s WHERE from_id IN (%s) OR to_id IN (%s)`, table, inClause, inClause)
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		cols, _ := rows.Columns()
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return nil, err
			}
			row := make(map[string]any, len(cols))
			for i, c := range cols {
				row[c] = vals[i]
			}
			out = append(out, *rowToEdgeUnion(table, row))
		}
		rows.Close()
	}
	return out, nil
}

func (s *Store) IdentityBySource(ctx context.Context, vID string, source domain.DataSource) ([]domain.Identity, error) {
	edges, err := s.edgesTouching(ctx, vID)
	if err != nil {
		return nil, err
	}
	var out []domain.Identity
	seen := map[string]bool{}
	for _, e := range edges {
		if e.source != source {
			continue
		}
		other := e.to
		if other == vID {
			other = e.from
		}
		if seen[other] || other == vID {
			continue
		}
		seen[other] = true
		row, err := loadRow(ctx, s.db, "identities", "v_id", other)
		if err != nil || row == nil {
			continue
		}
		out = append(out, scanIdentityRow(row))
	}
	return out, nil
}

func (s *Store) ReverseDomains(ctx context.Context, vID string) ([]domain.Resolve, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT * FROM resolves WHERE from_id = ? AND reverse = 1`, vID)
	if err != nil {
		return nil, errors.Wrap(err, "reverse domains")
	}
	defer rows.Close()
	cols, _ := rows.Columns()
	var out []domain.Resolve
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		u := rowToEdgeUnion("resolves", row)
		out = append(out, *u.Resolve)
	}
	return out, rows.Err()
}

// OwnedByVertexID scans the holds edges pointing at vID for the first
// holder whose own vertex id is on platform, without hydrating the
// full identity row (see store.GraphStore.OwnedByVertexID).
func (s *Store) OwnedByVertexID(ctx context.Context, vID string, platform domain.Platform) (string, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_id FROM holds WHERE to_id = ?`, vID)
	if err != nil {
		return "", false, errors.Wrap(err, "owned by vertex id")
	}
	defer rows.Close()
	prefix := string(platform) + ","
	for rows.Next() {
		var from string
		if err := rows.Scan(&from); err != nil {
			return "", false, err
		}
		if strings.HasPrefix(from, prefix) {
			return from, true, nil
		}
	}
	return "", false, rows.Err()
}

func (s *Store) IdentityOwnedBy(ctx context.Context, vID string, platform domain.Platform) (*domain.Identity, error) {
	ownerID, found, err := s.OwnedByVertexID(ctx, vID, platform)
	if err != nil || !found {
		return nil, err
	}
	row, err := loadRow(ctx, s.db, "identities", "v_id", ownerID)
	if err != nil || row == nil {
		return nil, err
	}
	id := scanIdentityRow(row)
	return &id, nil
}

// IsReversePrimary reports whether any wallet has asserted vID as its
// primary domain (see store.GraphStore.IsReversePrimary).
func (s *Store) IsReversePrimary(ctx context.Context, vID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM resolves WHERE to_id = ? AND reverse = 1 LIMIT 1`, vID)
	var x int
	switch err := row.Scan(&x); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, errors.Wrap(err, "is reverse primary")
	}
}

func (s *Store) NFTs(ctx context.Context, vID string, categories []domain.ContractCategory, limit, offset int) ([]domain.Hold, error) {
	idRow, err := loadRow(ctx, s.db, "identities", "v_id", vID)
	if err != nil {
		return nil, err
	}
	if idRow == nil || domain.Platform(asString(idRow["platform"])) != domain.PlatformEthereum {
		return nil, nil
	}

	q := `SELECT h.* FROM holds h JOIN contracts c ON h.to_id = c.v_id WHERE h.from_id = ?`
	args := []any{vID}
	if len(categories) > 0 {
		ph := make([]string, len(categories))
		for i, cat := range categories {
			ph[i] = "?"
			args = append(args, string(cat))
		}
		q += fmt.Sprintf(` AND c.category IN (%s)`, strings.Join(ph, ","))
	}
	q += ` ORDER BY h.updated_at DESC, h.uuid LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "nfts")
	}
	defer rows.Close()
	cols, _ := rows.Columns()
	var out []domain.Hold
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		u := rowToEdgeUnion("holds", row)
		out = append(out, *u.Hold)
	}
	return out, rows.Err()
}

// ResolveByNameAndSystem returns the forward (non-reverse) Resolve
// edge for name within system, or nil if no upstream has asserted one
// yet (spec §6's `ens`/`dotbit` entry points).
func (s *Store) ResolveByNameAndSystem(ctx context.Context, system domain.DomainNameSystem, name string) (*domain.Resolve, error) {
	rows, qerr := s.db.QueryContext(ctx, `SELECT * FROM resolves WHERE system = ? AND name = ? AND reverse = 0 ORDER BY updated_at DESC LIMIT 1`, string(system), name)
	if qerr != nil {
		return nil, errors.Wrap(qerr, "resolve by name")
	}
	defer rows.Close()
	cols, _ := rows.Columns()
	if !rows.Next() {
		return nil, rows.Err()
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	resultRow := make(map[string]any, len(cols))
	for i, c := range cols {
		resultRow[c] = vals[i]
	}
	u := rowToEdgeUnion("resolves", resultRow)
	return u.Resolve, nil
}

func (s *Store) IdentitiesByIDs(ctx context.Context, vIDs []string) (map[string]domain.Identity, error) {
	out := make(map[string]domain.Identity, len(vIDs))
	if len(vIDs) == 0 {
		return out, nil
	}
	ph := make([]string, len(vIDs))
	args := make([]any, len(vIDs))
	for i, id := range vIDs {
		ph[i] = "?"
		args[i] = id
	}
	q := fmt.Sprintf(`SELECT * FROM identities WHERE v_id IN (%s)`, strings.Join(ph, ","))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "identities by ids")
	}
	defer rows.Close()
	cols, _ := rows.Columns()
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
			if c == "v_id" {
				row["v_id"] = vals[i]
			}
		}
		vID, _ := row["v_id"].(string)
		out[vID] = scanIdentityRow(row)
	}
	return out, rows.Err()
}
