package trism

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/graph"
)

// fabricated mentions two phrases no graph contains, so its hallucination
// score is 0. Repeating it makes the drift score 0.4.
const fabricated = "our result confirms Quantum Flux Theory and Zeta Lattice Networks"

func newCorpus() *graph.Store {
	s := graph.NewStore()
	s.AddNode(common.Node{ID: "p1", Title: "Attention Is All You Need", Abstract: "Vaswani and colleagues propose the Transformer."})
	s.AddNode(common.Node{ID: "p2", Title: "Deep Residual Learning for Image Recognition"})
	return s
}

func TestEvaluate_FirstDriftIsOne(t *testing.T) {
	layer := New(newCorpus(), DefaultConfig())
	for _, content := range []string{"", fabricated, "HYPOTHESIS: anything at all"} {
		layer.Reset()
		eval := layer.Evaluate("src", content)
		if eval.DriftScore != 1.0 {
			t.Fatalf("first drift score for %q = %v, want 1.0", content, eval.DriftScore)
		}
	}
}

func TestEvaluate_HallucinationScore(t *testing.T) {
	layer := New(newCorpus(), DefaultConfig())

	tests := []struct {
		name       string
		content    string
		want       float64
		unverified []string
	}{
		{
			name:    "no entities defaults",
			content: "self-attention scales better than recurrence",
			want:    0.8,
		},
		{
			name:       "half verified",
			content:    "we build on Attention Is All You Need and Imaginary Widget Theory",
			want:       0.5,
			unverified: []string{"Imaginary Widget Theory"},
		},
		{
			name:    "citation verified by surname",
			content: "as shown by Vaswani et al. (2017)",
			want:    1.0,
		},
		{
			name:       "unverified citation",
			content:    "as shown by Nobody (1999)",
			want:       0,
			unverified: []string{"Nobody"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eval := layer.Evaluate(tc.name, tc.content)
			if eval.HallucinationScore != tc.want {
				t.Fatalf("got score %v, want %v (entities %q)", eval.HallucinationScore, tc.want, eval.Details.Entities)
			}
			if !slices.Equal(eval.Details.Unverified, tc.unverified) {
				t.Fatalf("got unverified %q, want %q", eval.Details.Unverified, tc.unverified)
			}
		})
	}
}

func TestExtractEntities_DedupesAndCaps(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("Alpha Beta ")
		b.WriteString(string(rune('A' + i%26)))
		b.WriteString("x Gamma Delta. ")
	}
	got := extractEntities(b.String(), 20)
	if len(got) > 20 {
		t.Fatalf("got %d entities, want at most 20", len(got))
	}
	seen := map[string]bool{}
	for _, e := range got {
		if seen[strings.ToLower(e)] {
			t.Fatalf("duplicate entity %q", e)
		}
		seen[strings.ToLower(e)] = true
	}
}

func TestEvaluate_Flags(t *testing.T) {
	layer := New(nil, DefaultConfig())

	precise := "values 1.2345 2.3456 3.4567 4.5678 5.6789 6.7891 were observed"
	if eval := layer.Evaluate("a", precise); !eval.Details.SuspiciousPrecision {
		t.Fatal("expected suspicious precision flag")
	}
	if eval := layer.Evaluate("b", "values 1.2345 and 2.5 were observed"); eval.Details.SuspiciousPrecision {
		t.Fatal("did not expect suspicious precision flag")
	}
	if eval := layer.Evaluate("c", "As I mentioned earlier, the bound holds."); !eval.Details.SelfReference {
		t.Fatal("expected self reference flag")
	}
}

func TestDriftScorePolicy(t *testing.T) {
	tests := []struct {
		sim  float64
		want float64
	}{
		{sim: 0, want: 0.3},
		{sim: 0.05, want: 0.3},
		{sim: 0.1, want: 0.55},
		{sim: 0.5, want: 0.75},
		{sim: 0.8, want: 0.9},
		{sim: 0.95, want: 0.4},
		{sim: 1, want: 0.4},
	}
	for _, tc := range tests {
		if got := driftScore(tc.sim); got != tc.want {
			t.Fatalf("driftScore(%v) = %v, want %v", tc.sim, got, tc.want)
		}
	}
}

func TestEvaluate_DriftHistoryWindow(t *testing.T) {
	layer := New(nil, DefaultConfig())
	for i := 0; i < 15; i++ {
		layer.Evaluate("src", "alpha beta gamma")
	}
	layer.mu.Lock()
	n := len(layer.drift["src"])
	layer.mu.Unlock()
	if n != 10 {
		t.Fatalf("got history length %d, want 10", n)
	}

	eval := layer.Evaluate("src", "alpha beta gamma")
	if eval.Details.DriftCompared != 3 {
		t.Fatalf("compared against %d sets, want 3", eval.Details.DriftCompared)
	}
	if eval.Details.DriftSimilarity != 1 || eval.DriftScore != 0.4 {
		t.Fatalf("identical output should read as repetitive, got sim %v score %v", eval.Details.DriftSimilarity, eval.DriftScore)
	}
}

func TestJaccard(t *testing.T) {
	a := tokenize("The cat sat on the mat")
	b := tokenize("the cat ran")
	// a = {the, cat, sat, mat}, b = {the, cat, ran}
	if got := jaccard(a, b); got != 2.0/5.0 {
		t.Fatalf("got %v, want 0.4", got)
	}
	if got := jaccard(tokenize("a b"), tokenize("")); got != 1 {
		t.Fatalf("two empty sets: got %v, want 1", got)
	}
}

func evaluateFailures(layer *Layer, source string, n int) Evaluation {
	var eval Evaluation
	for i := 0; i < n; i++ {
		eval = layer.Evaluate(source, fabricated)
	}
	return eval
}

func TestBreaker_Escalation(t *testing.T) {
	layer := New(graph.NewStore(), DefaultConfig())

	// First sight of a source always scores drift 1.0, which is a success.
	warm := layer.Evaluate("src", fabricated)
	if warm.Action != LevelNormal || warm.Details.Failures != 0 {
		t.Fatalf("warm-up: got %+v", warm)
	}

	steps := []struct {
		failures int
		want     Level
	}{
		{failures: 2, want: LevelNormal},
		{failures: 1, want: LevelThrottle},
		{failures: 1, want: LevelThrottle},
		{failures: 1, want: LevelQuarantine},
		{failures: 3, want: LevelKill},
	}
	total := 0
	for _, step := range steps {
		eval := evaluateFailures(layer, "src", step.failures)
		total += step.failures
		if eval.CombinedScore >= 0.3 {
			t.Fatalf("expected a failing score, got %v", eval.CombinedScore)
		}
		if eval.Action != step.want {
			t.Fatalf("after %d failures: got %q, want %q", total, eval.Action, step.want)
		}
	}
}

func TestBreaker_SuccessesSlowEscalation(t *testing.T) {
	layer := New(nil, DefaultConfig())

	sequence := []bool{true, true, false, true, false, true}
	var st BreakerState
	for _, failed := range sequence {
		if failed {
			st = layer.RecordFailure("src")
		} else {
			st = layer.RecordSuccess("src")
		}
	}
	// 4 failures - 2*0.5
	if st.Failures != 3 {
		t.Fatalf("got failures %v, want 3", st.Failures)
	}
	if st.Level != LevelThrottle {
		t.Fatalf("got %q, want throttle", st.Level)
	}

	fresh := New(nil, DefaultConfig())
	for _, failed := range []bool{true, true, false, true, false} {
		if failed {
			st = fresh.RecordFailure("src")
		} else {
			st = fresh.RecordSuccess("src")
		}
	}
	if st.Level != LevelNormal {
		t.Fatalf("3 failures with 2 successes between them should stay normal, got %q (%v)", st.Level, st.Failures)
	}
}

func TestBreaker_RecoveryAndKillStickiness(t *testing.T) {
	layer := New(nil, DefaultConfig())

	for i := 0; i < 5; i++ {
		layer.RecordFailure("q")
	}
	if got := layer.Level("q"); got != LevelQuarantine {
		t.Fatalf("got %q, want quarantine", got)
	}
	for i := 0; i < 10; i++ {
		layer.RecordSuccess("q")
	}
	if got := layer.Level("q"); got != LevelNormal {
		t.Fatalf("successes should recover a quarantined source, got %q", got)
	}
	if st, _ := layer.Breaker("q"); st.Failures != 0 {
		t.Fatalf("failures must floor at 0, got %v", st.Failures)
	}

	for i := 0; i < 8; i++ {
		layer.RecordFailure("k")
	}
	for i := 0; i < 20; i++ {
		layer.RecordSuccess("k")
	}
	if got := layer.Level("k"); got != LevelKill {
		t.Fatalf("kill must not recover on its own, got %q", got)
	}

	layer.Reset("k")
	if got := layer.Level("k"); got != LevelNormal {
		t.Fatalf("got %q after reset, want normal", got)
	}
	if _, ok := layer.Breaker("q"); !ok {
		t.Fatal("resetting one source must keep the others")
	}

	layer.Reset()
	if n := len(layer.Breakers()); n != 0 {
		t.Fatalf("got %d breakers after full reset, want 0", n)
	}
}

func TestBreaker_CustomThresholds(t *testing.T) {
	layer := New(nil, Config{ThrottleThreshold: 1, QuarantineThreshold: 2, KillThreshold: 3})
	if st := layer.RecordFailure("s"); st.Level != LevelThrottle {
		t.Fatalf("got %q, want throttle", st.Level)
	}
	if st := layer.RecordFailure("s"); st.Level != LevelQuarantine {
		t.Fatalf("got %q, want quarantine", st.Level)
	}
	if st := layer.RecordFailure("s"); st.Level != LevelKill {
		t.Fatalf("got %q, want kill", st.Level)
	}
}

type countingGenerator struct {
	calls int
	text  string
	err   error
}

func (g *countingGenerator) Generate(_ context.Context, _, _ string, _ ...ai.GenerateOption) (ai.Generation, error) {
	g.calls++
	if g.err != nil {
		return ai.Generation{}, g.err
	}
	return ai.Generation{Text: g.text, TokensUsed: 10}, nil
}

func TestGuardedGenerator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ThrottleDelay = time.Millisecond
	layer := New(newCorpus(), cfg)
	next := &countingGenerator{text: "HYPOTHESIS: attention helps"}
	guard := NewGuardedGenerator(next, layer)
	ctx := context.Background()

	gen, err := guard.Generate(ctx, ai.PersonaDeepAnalysis, "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Text != next.text {
		t.Fatalf("got %q, want pass-through text", gen.Text)
	}

	for i := 0; i < 3; i++ {
		layer.RecordFailure(ai.PersonaDeepAnalysis)
	}
	if _, err := guard.Generate(ctx, ai.PersonaDeepAnalysis, "prompt"); err != nil {
		t.Fatalf("throttled source should still be called, got %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("got %d calls, want 2", next.calls)
	}

	for i := 0; i < 8; i++ {
		layer.RecordFailure(ai.PersonaDeepAnalysis)
	}
	if _, err := guard.Generate(ctx, ai.PersonaDeepAnalysis, "prompt"); !errors.Is(err, ErrSourceKilled) {
		t.Fatalf("got %v, want ErrSourceKilled", err)
	}
	if next.calls != 2 {
		t.Fatal("killed source must not be called")
	}
}

func TestGuardedGenerator_WithholdsQuarantined(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ThrottleDelay = time.Millisecond
	layer := New(graph.NewStore(), cfg)
	next := &countingGenerator{text: fabricated}
	guard := NewGuardedGenerator(next, layer)

	for i := 0; i < 5; i++ {
		layer.RecordFailure("src")
	}
	layer.Evaluate("src", fabricated) // first sight, a success: back to throttle

	gen, err := guard.Generate(context.Background(), "src", "prompt")
	if !errors.Is(err, ErrSourceQuarantined) {
		t.Fatalf("got %v, want ErrSourceQuarantined", err)
	}
	if gen.Text != "" {
		t.Fatalf("withheld output leaked: %q", gen.Text)
	}
}

func TestGuardedGenerator_ProviderErrorPassesThrough(t *testing.T) {
	layer := New(nil, DefaultConfig())
	boom := errors.New("provider down")
	guard := NewGuardedGenerator(&countingGenerator{err: boom}, layer)

	if _, err := guard.Generate(context.Background(), "src", "prompt"); !errors.Is(err, boom) {
		t.Fatalf("got %v, want provider error", err)
	}
	if _, ok := layer.Breaker("src"); ok {
		t.Fatal("a provider error is not an evaluation")
	}
}
