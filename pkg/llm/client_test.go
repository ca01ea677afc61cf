package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	var gotAuth string
	var gotReq openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello there"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{Model: "gpt-test", APIKey: "sk-test", APIURL: server.URL, MaxTokens: 256})
	got, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, CompleteOptions{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Text != "hello there" {
		t.Errorf("expected text %q, got %q", "hello there", got.Text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if gotReq.Model != "gpt-test" {
		t.Errorf("expected model gpt-test, got %q", gotReq.Model)
	}
	if gotReq.MaxTokens != 256 {
		t.Errorf("expected max_tokens 256, got %d", gotReq.MaxTokens)
	}
}

func TestOpenAICompleteToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "lookup" {
			t.Errorf("expected one tool named lookup, got %+v", req.Tools)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"q\":\"docs\"}"}}]}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{Model: "gpt-test", APIURL: server.URL})
	got, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, CompleteOptions{
		Tools: []Tool{{Name: "lookup", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(got.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(got.ToolCalls))
	}
	if got.ToolCalls[0].Name != "lookup" || got.ToolCalls[0].ID != "call_1" {
		t.Errorf("unexpected tool call %+v", got.ToolCalls[0])
	}
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{Model: "gpt-test", APIURL: server.URL})
	if _, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, CompleteOptions{}); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestOpenAICompleteRetriesServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"recovered"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{Model: "gpt-test", APIURL: server.URL})
	got, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, CompleteOptions{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Text != "recovered" {
		t.Errorf("expected recovered response, got %q", got.Text)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestOpenAICompleteGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{Model: "gpt-test", APIURL: server.URL})
	if _, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, CompleteOptions{}); err == nil {
		t.Error("expected error after exhausting retries")
	}
	if attempts != maxHTTPAttempts {
		t.Errorf("expected %d attempts, got %d", maxHTTPAttempts, attempts)
	}
}

func TestOllamaComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected stream:false")
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"local answer"},"done":true}`))
	}))
	defer server.Close()

	client := NewOllamaClient(Config{Model: "llama3", APIURL: server.URL})
	got, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, CompleteOptions{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Text != "local answer" {
		t.Errorf("expected %q, got %q", "local answer", got.Text)
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	if _, err := NewClient(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestOpenAIEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		// Return out of order to verify index-based placement.
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0.5,0.5]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(Config{Model: "embed-test", APIURL: server.URL})
	vectors, err := embedder.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 1 || vectors[1][0] != 0.5 {
		t.Errorf("vectors not placed by index: %v", vectors)
	}
}

func TestOpenAIEmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(Config{Model: "embed-test", APIURL: server.URL})
	if _, err := embedder.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error on vector count mismatch")
	}
}

func TestOllamaEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(Config{Model: "nomic-embed-text", APIURL: server.URL})
	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 || len(vectors[0]) != 2 {
		t.Errorf("unexpected vectors %v", vectors)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	embedder := NewOpenAIEmbedder(Config{Model: "embed-test"})
	vectors, err := embedder.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil vectors for empty input, got %v", vectors)
	}
}
