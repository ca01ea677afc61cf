package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTavilySearch(t *testing.T) {
	t.Parallel()

	errCh := make(chan error, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			errCh <- fmt.Errorf("expected POST, got %s", r.Method)
			return
		}
		var req tavilyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errCh <- fmt.Errorf("decode request: %w", err)
			return
		}
		if req.APIKey != "test-key" {
			errCh <- fmt.Errorf("expected api_key test-key, got %q", req.APIKey)
			return
		}
		if req.MaxResults != 2 {
			errCh <- fmt.Errorf("expected max_results 2, got %d", req.MaxResults)
			return
		}

		resp := tavilyResponse{
			Results: []tavilyResult{
				{
					Title:      "Example",
					URL:        "https://example.com",
					Content:    "snippet",
					RawContent: "full content",
					Score:      0.99,
				},
			},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			errCh <- fmt.Errorf("encode response: %w", err)
			return
		}
	}))
	defer server.Close()

	provider, err := NewTavilyProvider("test-key", server.URL)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	results, err := provider.Search(context.Background(), "query", Options{Limit: 2, Depth: "advanced"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("handler error: %v", err)
	default:
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Content != "full content" {
		t.Fatalf("expected raw content, got %q", results[0].Content)
	}
}

func TestTavilyRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := NewTavilyProvider("", ""); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestSearxngSearch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("expected format=json, got %q", got)
		}
		if got := r.URL.Query().Get("count"); got != "3" {
			t.Errorf("expected count=3, got %q", got)
		}
		_, _ = w.Write([]byte(`{"results":[{"title":"Doc","url":"https://docs.example.com","content":" trimmed ","score":1.5}]}`))
	}))
	defer server.Close()

	provider, err := NewSearxngProvider(server.URL + "/")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	results, err := provider.Search(context.Background(), "query", Options{Limit: 3})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Content != "trimmed" {
		t.Errorf("expected trimmed content, got %q", results[0].Content)
	}
}

func TestBraveSearch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "brave-key" {
			t.Errorf("expected subscription token header, got %q", got)
		}
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"Hit","url":"https://example.org","description":"desc","score":0.5}]}}`))
	}))
	defer server.Close()

	provider, err := NewBraveProvider("brave-key", server.URL)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	results, err := provider.Search(context.Background(), "query", Options{Limit: 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Hit" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestNewProviderUnsupported(t *testing.T) {
	t.Parallel()

	if _, err := NewProvider(Config{Provider: "yellow-pages"}); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}
