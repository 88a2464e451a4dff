package graph

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"
)

// Snapshot returns a deep copy of the graph in its serialisable form.
func (s *Store) Snapshot() common.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]common.Node, 0, len(s.order))
	for _, id := range s.order {
		nodes = append(nodes, cloneNode(s.nodes[id]))
	}
	return common.Snapshot{
		Version: common.SnapshotVersion,
		SavedAt: time.Now().UTC(),
		Nodes:   nodes,
		Edges:   slices.Clone(s.edges),
	}
}

// Restore replaces the whole graph with snap. It does not schedule a write.
func (s *Store) Restore(snap common.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]common.Node, len(snap.Nodes))
	s.order = s.order[:0]
	s.edges = nil
	s.out = make(map[string][]int)
	s.in = make(map[string][]int)

	for _, n := range snap.Nodes {
		if n.ID == "" {
			continue
		}
		s.putLocked(prepareNode(n))
	}
	for _, e := range snap.Edges {
		s.appendEdgeLocked(e)
	}
}

func (s *Store) markDirty() {
	if s.snapshotter == nil {
		return
	}
	s.pending.Store(true)
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Flush writes a snapshot now if a mutation happened since the last
// successful write. A failed write leaves the store marked dirty.
func (s *Store) Flush(ctx context.Context) error {
	if s.snapshotter == nil {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if !s.pending.Swap(false) {
		return nil
	}
	snap := s.Snapshot()
	if err := s.snapshotter.SaveSnapshot(ctx, snap); err != nil {
		s.pending.Store(true)
		return fmt.Errorf("saving graph snapshot: %w", err)
	}
	logger.Debug("[Graph] Snapshot saved", "nodes", len(snap.Nodes), "edges", len(snap.Edges))
	return nil
}

// RunSnapshots persists the graph after mutations, waiting debounce after the
// first change so that bursts of writes produce one snapshot. When ctx ends it
// flushes once more with a fresh deadline and returns.
func (s *Store) RunSnapshots(ctx context.Context, debounce time.Duration) {
	if s.snapshotter == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			s.finalFlush()
			return
		case <-s.dirty:
		}

		if debounce > 0 {
			timer := time.NewTimer(debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.finalFlush()
				return
			case <-timer.C:
			}
		}

		if err := s.Flush(ctx); err != nil {
			logger.Error("[Graph] Snapshot write failed", "err", err)
		}
	}
}

func (s *Store) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		logger.Error("[Graph] Final snapshot write failed", "err", err)
	}
}
