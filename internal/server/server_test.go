package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mid "github.com/Meugenn/knowledge-graph-sub001/internal/server/middleware"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/graph"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/republic"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/trism"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	masterKey = "master-secret"
	jwtSecret = "jwt-secret"
)

func newTestServer(t *testing.T) (*echo.Echo, *mid.App) {
	t.Helper()

	g := graph.NewStore()
	g.AddNode(common.Node{ID: "a", Title: "Paper A", CitationCount: 10})
	g.AddNode(common.Node{ID: "b", Title: "Paper B"})
	g.AddNode(common.Node{ID: "c", Title: "Paper C"})
	g.AddEdge("a", "b", "cites")
	g.AddEdge("b", "c", "cites")
	g.AddEdge("c", "a", "cites")

	layer := trism.New(g, trism.DefaultConfig())
	gen := ai.GeneratorFunc(func(context.Context, string, string, ...ai.GenerateOption) (ai.Generation, error) {
		return ai.Generation{}, nil
	})

	cfg := republic.DefaultConfig()
	cfg.ReasonerStart, cfg.InvestigatorStart, cfg.PricerStart = time.Hour, time.Hour, time.Hour
	engine, err := republic.NewEngine(republic.NewEngineParams{
		Graph:     g,
		Generator: trism.NewGuardedGenerator(gen, layer),
		Config:    cfg,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	app := &mid.App{
		Graph:        g,
		Engine:       engine,
		Trism:        layer,
		BaseContext:  context.Background(),
		MasterAPIKey: masterKey,
		MasterUserID: "master",
		KeyFunc: func(*jwt.Token) (any, error) {
			return []byte(jwtSecret), nil
		},
	}
	t.Cleanup(func() { engine.Sleep(context.Background()) })
	return New(app), app
}

func do(e *echo.Echo, method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func TestReadRoutes(t *testing.T) {
	e, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{name: "health", target: "/health", want: http.StatusOK},
		{name: "node", target: "/api/nodes/a", want: http.StatusOK},
		{name: "missing node", target: "/api/nodes/zzz", want: http.StatusNotFound},
		{name: "neighbourhood", target: "/api/nodes/a/neighbourhood?depth=2", want: http.StatusOK},
		{name: "depth too large", target: "/api/nodes/a/neighbourhood?depth=9", want: http.StatusBadRequest},
		{name: "density", target: "/api/nodes/a/density", want: http.StatusOK},
		{name: "rings", target: "/api/rings", want: http.StatusOK},
		{name: "ring length too small", target: "/api/rings?min_length=1", want: http.StatusBadRequest},
		{name: "status", target: "/api/status?log_lines=5", want: http.StatusOK},
		{name: "queue", target: "/api/queues/reasoner", want: http.StatusOK},
		{name: "unknown caste", target: "/api/queues/philosopher", want: http.StatusBadRequest},
		{name: "artifacts", target: "/api/artifacts/hypothesis", want: http.StatusOK},
		{name: "unknown artifact", target: "/api/artifacts/poem", want: http.StatusBadRequest},
		{name: "markets", target: "/api/markets", want: http.StatusOK},
		{name: "breakers", target: "/api/trism/breakers", want: http.StatusOK},
		{name: "unknown breaker", target: "/api/trism/breakers/nobody", want: http.StatusNotFound},
		{name: "graph", target: "/api/graph", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodGet, tt.target, "", "")
			if rec.Code != tt.want {
				t.Fatalf("got %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRings_Unique(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, http.MethodGet, "/api/rings?unique=true", "", "")
	var res struct {
		Count int        `json:"count"`
		Rings [][]string `json:"rings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if res.Count != 1 || len(res.Rings) != 1 {
		t.Fatalf("got %+v, want one unique ring", res)
	}
}

func TestNodes_Search(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, http.MethodGet, "/api/nodes?q=paper%20b", "", "")
	var nodes []common.Node
	if err := json.Unmarshal(rec.Body.Bytes(), &nodes); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != "b" {
		t.Fatalf("got %+v", nodes)
	}

	rec = do(e, http.MethodGet, "/api/nodes?limit=2", "", "")
	nodes = nil
	json.Unmarshal(rec.Body.Bytes(), &nodes)
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
}

func TestCreatePaper_Auth(t *testing.T) {
	e, app := newTestServer(t)
	body := `{"title":"Attention Is All You Need","citation_count":50000}`

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "no token", token: "", want: http.StatusUnauthorized},
		{name: "bad token", token: "nonsense", want: http.StatusUnauthorized},
		{name: "user without permission", token: signToken(t, jwt.MapClaims{"id": "u1", "role": "user"}), want: http.StatusForbidden},
		{name: "user with permission", token: signToken(t, jwt.MapClaims{"sub": "u2", "permissions": []string{"graph.write"}}), want: http.StatusCreated},
		{name: "admin", token: signToken(t, jwt.MapClaims{"id": float64(7), "role": "admin"}), want: http.StatusCreated},
		{name: "master key", token: masterKey, want: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/papers", tt.token, body)
			if rec.Code != tt.want {
				t.Fatalf("got %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if got := app.Graph.Stats().Nodes; got != 6 {
		t.Fatalf("got %d nodes, want 3 seeded plus 3 created", got)
	}
}

func TestCreatePaper_Validation(t *testing.T) {
	e, app := newTestServer(t)

	for _, body := range []string{
		`{"abstract":"no title"}`,
		`{"title":"   "}`,
		`{"title":"X","year":-1}`,
		`{"title":"X","url":"not a url"}`,
		`{"title":`,
	} {
		rec := do(e, http.MethodPost, "/api/papers", masterKey, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: got %d, want 400", body, rec.Code)
		}
	}

	rec := do(e, http.MethodPost, "/api/papers", masterKey, `{"id":"p1","title":"Attention Is All You Need"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if q := app.Engine.Queue(republic.Pricer); len(q) != 1 || q[0] != "p1" {
		t.Fatalf("created paper not queued: %v", q)
	}
}

func TestAwakenSleep(t *testing.T) {
	e, app := newTestServer(t)

	if rec := do(e, http.MethodPost, "/api/awaken", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/awaken", masterKey, ""); rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if !app.Engine.Alive() {
		t.Fatal("expected engine to be alive")
	}
	if rec := do(e, http.MethodPost, "/api/sleep", masterKey, ""); rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if app.Engine.Alive() {
		t.Fatal("expected engine to be asleep")
	}
}

func TestTrismRoutes(t *testing.T) {
	e, app := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/trism/evaluate", masterKey, `{"source_id":"worker-1","content":"Paper A extends Paper B."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	var ev trism.Evaluation
	if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil {
		t.Fatalf("decoding evaluation: %v", err)
	}
	if ev.SourceID != "worker-1" || ev.DriftScore != 1 {
		t.Fatalf("unexpected evaluation %+v", ev)
	}

	if rec := do(e, http.MethodGet, "/api/trism/breakers/worker-1", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}

	if rec := do(e, http.MethodPost, "/api/trism/reset", masterKey, `{"source_ids":["worker-1"]}`); rec.Code != http.StatusNoContent {
		t.Fatalf("got %d, want 204", rec.Code)
	}
	if _, ok := app.Trism.Breaker("worker-1"); ok {
		t.Fatal("breaker should be cleared")
	}
}
