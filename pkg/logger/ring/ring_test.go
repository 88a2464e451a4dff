package ring

import (
	"fmt"
	"strings"
	"testing"
)

func TestRingLogger_KeepsMostRecentLines(t *testing.T) {
	r := NewRingLogger(3)
	for i := 0; i < 5; i++ {
		r.Info(fmt.Sprintf("line %d", i))
	}

	if got := r.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	lines := r.Lines(0)
	if !strings.Contains(lines[0], "line 2") || !strings.Contains(lines[2], "line 4") {
		t.Fatalf("unexpected ring contents: %q", lines)
	}
}

func TestRingLogger_LinesLimit(t *testing.T) {
	r := NewRingLogger(10)
	r.Info("first")
	r.Warn("second", "node", "p1")
	r.Error("third")

	lines := r.Lines(2)
	if len(lines) != 2 {
		t.Fatalf("Lines(2) returned %d lines", len(lines))
	}
	if !strings.Contains(lines[0], "second") || !strings.Contains(lines[0], "node=p1") {
		t.Fatalf("expected keyvals in rendered line, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "third") {
		t.Fatalf("expected newest line last, got %q", lines[1])
	}
}

func TestRingLogger_FatalDoesNotExit(t *testing.T) {
	r := NewRingLogger(0)
	r.Fatal("boom")
	if r.Len() != 1 {
		t.Fatalf("expected fatal to be recorded once, got %d lines", r.Len())
	}
}
