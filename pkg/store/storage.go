package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/graph"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"
)

// ErrNoSnapshot is returned by LoadSnapshot when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// DefaultName is the snapshot key used when a backend is given none.
const DefaultName = "default"

// SnapshotStorage persists whole-graph snapshots. Implementations keep one
// snapshot per name and overwrite it on every save.
type SnapshotStorage interface {
	SaveSnapshot(ctx context.Context, snap common.Snapshot) error
	LoadSnapshot(ctx context.Context) (common.Snapshot, error)
}

// Encode serialises snap for storage.
func Encode(snap common.Snapshot) ([]byte, error) {
	if snap.Version == 0 {
		snap.Version = common.SnapshotVersion
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a stored snapshot. Snapshots written by a newer build are
// rejected.
func Decode(data []byte) (common.Snapshot, error) {
	var snap common.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return common.Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version > common.SnapshotVersion {
		return common.Snapshot{}, fmt.Errorf("snapshot version %d is newer than supported version %d", snap.Version, common.SnapshotVersion)
	}
	return snap, nil
}

// RestoreGraph loads the latest snapshot from s into g. It reports false
// when no snapshot exists yet.
func RestoreGraph(ctx context.Context, s SnapshotStorage, g *graph.Store) (bool, error) {
	snap, err := s.LoadSnapshot(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		logger.Info("[Store] No snapshot found, starting with an empty graph")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	g.Restore(snap)
	logger.Info("[Store] Restored snapshot", "nodes", len(snap.Nodes), "edges", len(snap.Edges), "saved_at", snap.SavedAt)
	return true, nil
}
