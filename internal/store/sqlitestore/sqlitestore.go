// Package sqlitestore is an embedded GraphStore backend for local
// development and tests, grounded on the indexer pattern in
// DanDo385-solidity-edu's geth-17-indexer (ethclient logs decoded and
// persisted to a modernc.org/sqlite database). It exists to exercise
// spec §4.1's per-attribute upsert-operator emulation — "implementations
// lacking per-field operators must emulate them with read-modify-write
// guarded by updated_at" — which a production remote graph database
// would otherwise provide natively.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	v_id TEXT PRIMARY KEY,
	uuid TEXT, platform TEXT, identity TEXT, uid TEXT,
	display_name TEXT, profile_url TEXT, avatar_url TEXT,
	created_at INTEGER, added_at INTEGER, updated_at INTEGER
);
CREATE TABLE IF NOT EXISTS contracts (
	v_id TEXT PRIMARY KEY,
	uuid TEXT, category TEXT, chain TEXT, address TEXT, symbol TEXT,
	updated_at INTEGER
);
CREATE TABLE IF NOT EXISTS proofs (
	uuid TEXT PRIMARY KEY,
	discriminator TEXT UNIQUE,
	from_id TEXT, to_id TEXT, source TEXT, fetcher TEXT, record_id TEXT,
	created_at INTEGER, updated_at INTEGER
);
CREATE TABLE IF NOT EXISTS holds (
	uuid TEXT PRIMARY KEY,
	discriminator TEXT UNIQUE,
	from_id TEXT, to_id TEXT, source TEXT, fetcher TEXT, id TEXT,
	"transaction" TEXT, created_at INTEGER, updated_at INTEGER, expired_at INTEGER
);
CREATE TABLE IF NOT EXISTS resolves (
	uuid TEXT PRIMARY KEY,
	discriminator TEXT UNIQUE,
	from_id TEXT, to_id TEXT, source TEXT, fetcher TEXT, system TEXT,
	name TEXT, reverse INTEGER, updated_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_proofs_from ON proofs(from_id);
CREATE INDEX IF NOT EXISTS idx_proofs_to ON proofs(to_id);
CREATE INDEX IF NOT EXISTS idx_holds_from ON holds(from_id);
CREATE INDEX IF NOT EXISTS idx_holds_to ON holds(to_id);
CREATE INDEX IF NOT EXISTS idx_resolves_from ON resolves(from_id);
CREATE INDEX IF NOT EXISTS idx_resolves_to ON resolves(to_id);
`

// Store is a sql.DB-backed GraphStore. A single mutex serializes
// writes so the read-modify-write operator emulation cannot race with
// itself; reads are otherwise unserialized (spec §4.1: "snapshot-
// inconsistent ... callers must assume eventual consistency").
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

var _ store.GraphStore = (*Store)(nil)

// Open creates/migrates the sqlite database at dsn. Use ":memory:"
// for ephemeral test instances.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate sqlite schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func vertexTable(vertexType string) (string, error) {
	switch vertexType {
	case domain.VertexTypeIdentity:
		return "identities", nil
	case domain.VertexTypeContract:
		return "contracts", nil
	default:
		return "", errors.Errorf("unknown vertex type %q", vertexType)
	}
}

func edgeTable(edgeType string) (string, error) {
	switch edgeType {
	case domain.EdgeTypeProof:
		return "proofs", nil
	case domain.EdgeTypeHold:
		return "holds", nil
	case domain.EdgeTypeResolve:
		return "resolves", nil
	default:
		return "", errors.Errorf("unknown edge type %q", edgeType)
	}
}

// normalize converts domain-level Go values into the scalar forms
// sqlite stores (unix seconds for time.Time, 0/1 for bool).
func normalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Unix()
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func maxScalar(a, b any) any {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		if bi > ai {
			return bi
		}
		return ai
	}
	return b
}

// loadRow returns the existing column->value map for a primary-key
// row, or nil if no row exists.
func loadRow(ctx context.Context, ex interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, table, pkCol, pkVal string) (map[string]any, error) {
	rows, err := ex.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s WHERE %s = ?`, table, pkCol), pkVal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		out[c] = vals[i]
	}
	return out, nil
}

func mergeAttrs(existing map[string]any, attrs map[string]store.Attr) map[string]any {
	merged := make(map[string]any, len(existing)+len(attrs))
	for k, v := range existing {
		merged[k] = v
	}
	for k, a := range attrs {
		nv := normalize(a.Value)
		switch a.Op {
		case store.OpIgnoreIfExists:
			if cur, ok := merged[k]; !ok || cur == nil {
				merged[k] = nv
			}
		case store.OpMax:
			if cur, ok := merged[k]; ok && cur != nil {
				merged[k] = maxScalar(cur, nv)
			} else {
				merged[k] = nv
			}
		default: // OpDefault
			merged[k] = nv
		}
	}
	return merged
}

func upsertRow(ctx context.Context, tx *sql.Tx, table, pkCol, pkVal string, attrs map[string]store.Attr) error {
	existing, err := loadRow(ctx, tx, table, pkCol, pkVal)
	if err != nil {
		return err
	}
	merged := mergeAttrs(existing, attrs)
	merged[pkCol] = pkVal

	cols := make([]string, 0, len(merged))
	for c := range merged {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	vals := make([]any, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		vals[i] = merged[c]
		quoted[i] = quoteIdent(c)
	}
	q := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`,
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	_, err = tx.ExecContext(ctx, q, vals...)
	return err
}

func quoteIdent(c string) string {
	if c == "transaction" {
		return `"transaction"`
	}
	return c
}

func (s *Store) UpsertGraph(ctx context.Context, vertices []store.VertexUpsert, edges []store.EdgeUpsert) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	for _, v := range vertices {
		table, err := vertexTable(v.VertexType)
		if err != nil {
			return err
		}
		if err := upsertRow(ctx, tx, table, "v_id", v.ID, v.Attrs); err != nil {
			return errors.Wrapf(err, "upsert vertex %s", v.ID)
		}
	}
	for _, e := range edges {
		table, err := edgeTable(e.EdgeType)
		if err != nil {
			return err
		}
		uuidVal, _ := e.Attrs["uuid"].Value.(string)
		existing, err := loadRow(ctx, tx, table, "discriminator", e.Discriminator)
		if err != nil {
			return err
		}
		pk := uuidVal
		if existing != nil {
			if v, ok := existing["uuid"].(string); ok && v != "" {
				pk = v
			}
		}
		attrs := map[string]store.Attr{}
		for k, a := range e.Attrs {
			attrs[k] = a
		}
		attrs["discriminator"] = store.Attr{Value: e.Discriminator, Op: store.OpIgnoreIfExists}
		attrs["from_id"] = store.Attr{Value: e.From, Op: store.OpIgnoreIfExists}
		attrs["to_id"] = store.Attr{Value: e.To, Op: store.OpIgnoreIfExists}
		if err := upsertRow(ctx, tx, table, "uuid", pk, attrs); err != nil {
			return errors.Wrapf(err, "upsert edge %s", e.Discriminator)
		}
	}
	return tx.Commit()
}
