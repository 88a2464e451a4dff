package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/graph"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/store"
)

func openTemp(t *testing.T, name string) *SnapshotStorage {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "graph.db"), name)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadSnapshot_Empty(t *testing.T) {
	s := openTemp(t, "")
	if _, err := s.LoadSnapshot(context.Background()); !errors.Is(err, store.ErrNoSnapshot) {
		t.Fatalf("got %v, want ErrNoSnapshot", err)
	}
}

func TestSnapshot_RoundTripAndOverwrite(t *testing.T) {
	s := openTemp(t, "papers")
	ctx := context.Background()

	g := graph.NewStore()
	g.AddNode(common.Node{ID: "p1", Title: "Attention Is All You Need", CitationCount: 50000, Fields: []string{"ml"}})
	g.AddNode(common.Node{ID: "p2", Title: "Deep Residual Learning"})
	g.AddEdge("p1", "p2", "cites")

	if err := s.SaveSnapshot(ctx, g.Snapshot()); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	g.AddNode(common.Node{ID: "p3", Title: "BERT"})
	if err := s.SaveSnapshot(ctx, g.Snapshot()); err != nil {
		t.Fatalf("second SaveSnapshot() error = %v", err)
	}

	restored := graph.NewStore()
	ok, err := store.RestoreGraph(ctx, s, restored)
	if err != nil || !ok {
		t.Fatalf("RestoreGraph() = %v, %v", ok, err)
	}
	if st := restored.Stats(); st.Nodes != 3 || st.Edges != 1 {
		t.Fatalf("got %+v, want 3 nodes and 1 edge", st)
	}
	n, _ := restored.GetNode("p1")
	if n.CitationCount != 50000 || len(n.Fields) != 1 {
		t.Fatalf("node fields lost: %+v", n)
	}
}

func TestSnapshot_NamesAreIndependent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	path := filepath.Join(dir, "graph.db")

	a, err := Open(ctx, path, "a")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer a.Close()
	b, err := Open(ctx, path, "b")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	if err := a.SaveSnapshot(ctx, common.Snapshot{Nodes: []common.Node{{ID: "x", Title: "X"}}}); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if _, err := b.LoadSnapshot(ctx); !errors.Is(err, store.ErrNoSnapshot) {
		t.Fatalf("got %v, want ErrNoSnapshot for an unrelated name", err)
	}
}

func TestSnapshot_AsGraphSnapshotter(t *testing.T) {
	s := openTemp(t, "")
	g := graph.NewStore(graph.WithSnapshotter(s))
	g.AddNode(common.Node{ID: "p1", Title: "Attention Is All You Need"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	snap, err := s.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(snap.Nodes) != 1 || snap.Nodes[0].ID != "p1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
