package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
)

func TestGenerate_SendsPersonaAndReadsUsage(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 0,
			"model": "test-model",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "HYPOTHESIS: attention suffices"}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer srv.Close()

	client := NewGenerationClient(NewGenerationClientParams{
		Model:                 "test-model",
		ChatURL:               srv.URL + "/v1/",
		ChatKey:               "test",
		MaxConcurrentRequests: 1,
		MaxRetries:            0,
	})

	gen, err := client.Generate(context.Background(), ai.PersonaDeepAnalysis, "Paper: Attention")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Text != "HYPOTHESIS: attention suffices" {
		t.Fatalf("got text %q", gen.Text)
	}
	if gen.TokensUsed != 17 {
		t.Fatalf("got %d tokens, want 17", gen.TokensUsed)
	}

	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want system + user", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != ai.DeepAnalysisPrompt {
		t.Fatalf("first message is not the persona prompt: %v", first)
	}

	m := client.GetMetrics()
	if m.Requests != 1 || m.TotalTokens != 17 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestGenerate_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad request", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := NewGenerationClient(NewGenerationClientParams{
		Model:      "test-model",
		ChatURL:    srv.URL + "/v1/",
		ChatKey:    "test",
		MaxRetries: 0,
	})

	if _, err := client.Generate(context.Background(), ai.PersonaCriticalReview, "x"); err == nil {
		t.Fatal("expected an error from a 400 response")
	}
	if m := client.GetMetrics(); m.Failures != 1 {
		t.Fatalf("got %d failures, want 1", m.Failures)
	}
}
