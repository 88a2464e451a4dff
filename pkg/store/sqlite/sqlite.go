// Package sqlite stores graph snapshots in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/store"

	_ "modernc.org/sqlite"
)

// SnapshotStorage keeps one snapshot row per name in a SQLite database.
type SnapshotStorage struct {
	conn *sql.DB
	name string
	Path string
}

// Open opens (or creates) the database at path with WAL mode enabled and
// makes sure the snapshot table exists.
func Open(ctx context.Context, path string, name string) (*SnapshotStorage, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := conn.ExecContext(ctx, createTableSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating snapshot table: %w", err)
	}

	if name == "" {
		name = store.DefaultName
	}
	return &SnapshotStorage{conn: conn, name: name, Path: path}, nil
}

// Close closes the database connection.
func (s *SnapshotStorage) Close() error {
	return s.conn.Close()
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

	_, err = s.conn.ExecContext(ctx, upsertSQL,
		s.name, snap.Version, len(snap.Nodes), len(snap.Edges), savedAt.Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("saving snapshot %q: %w", s.name, err)
	}
	return nil
}

func (s *SnapshotStorage) LoadSnapshot(ctx context.Context) (common.Snapshot, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx, selectSQL, s.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return common.Snapshot{}, store.ErrNoSnapshot
	}
	if err != nil {
		return common.Snapshot{}, fmt.Errorf("loading snapshot %q: %w", s.name, err)
	}
	return store.Decode(data)
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS graph_snapshots (
    name       TEXT PRIMARY KEY,
    version    INTEGER NOT NULL,
    node_count INTEGER NOT NULL,
    edge_count INTEGER NOT NULL,
    saved_at   TEXT NOT NULL,
    data       BLOB NOT NULL
)`

const upsertSQL = `
INSERT INTO graph_snapshots (name, version, node_count, edge_count, saved_at, data)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE
SET version    = excluded.version,
    node_count = excluded.node_count,
    edge_count = excluded.edge_count,
    saved_at   = excluded.saved_at,
    data       = excluded.data`

const selectSQL = `SELECT data FROM graph_snapshots WHERE name = ?`
