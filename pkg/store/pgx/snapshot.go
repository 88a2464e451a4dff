// Package pgx stores graph snapshots in PostgreSQL.
package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// SnapshotStorage keeps one snapshot row per name in the graph_snapshots
// table created by the migrations in internal/db.
type SnapshotStorage struct {
	conn pgxIConn
	name string
}

type SnapshotStorageOption func(*SnapshotStorage)

// WithName selects the snapshot row. Separate names hold separate graphs.
func WithName(name string) SnapshotStorageOption {
	return func(s *SnapshotStorage) {
		if name != "" {
			s.name = name
		}
	}
}

// NewSnapshotStorage creates a store on an existing connection or pool.
func NewSnapshotStorage(conn pgxIConn, opts ...SnapshotStorageOption) *SnapshotStorage {
	s := &SnapshotStorage{conn: conn, name: store.DefaultName}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func (s *SnapshotStorage) SaveSnapshot(ctx context.Context, snap common.Snapshot) error {
	data, err := store.Encode(snap)
	if err != nil {
		return err
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	_, err = s.conn.Exec(ctx, upsertSnapshotSQL, s.name, snap.Version, len(snap.Nodes), len(snap.Edges), savedAt, data)
	if err != nil {
		return fmt.Errorf("saving snapshot %q: %w", s.name, err)
	}
	return nil
}

func (s *SnapshotStorage) LoadSnapshot(ctx context.Context) (common.Snapshot, error) {
	var data []byte
	err := s.conn.QueryRow(ctx, selectSnapshotSQL, s.name).Scan(&data)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Snapshot{}, store.ErrNoSnapshot
	}
	if err != nil {
		return common.Snapshot{}, fmt.Errorf("loading snapshot %q: %w", s.name, err)
	}
	return store.Decode(data)
}

const upsertSnapshotSQL = `
INSERT INTO graph_snapshots (name, version, node_count, edge_count, saved_at, data)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name) DO UPDATE
SET version    = EXCLUDED.version,
    node_count = EXCLUDED.node_count,
    edge_count = EXCLUDED.edge_count,
    saved_at   = EXCLUDED.saved_at,
    data       = EXCLUDED.data;
`

const selectSnapshotSQL = `
SELECT data FROM graph_snapshots WHERE name = $1;
`
