package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docent/pkg/logging"
)

// hashEmbedder is a deterministic bag-of-words embedder. Identical texts get
// identical vectors, so exact-match queries rank first under cosine.
type hashEmbedder struct {
	failSubstring string
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if e.failSubstring != "" && strings.Contains(text, e.failSubstring) {
			return nil, errors.New("embedding service rejected input")
		}
		vec := make([]float32, 32)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			var h uint32
			for _, r := range word {
				h = h*31 + uint32(r)
			}
			vec[h%32]++
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func newTestRepository(t *testing.T, embedder *hashEmbedder) *Repository {
	t.Helper()
	repo, err := NewRepository(embedder, RepositoryOptions{
		Root:              t.TempDir(),
		DefaultCollection: "wiki",
		ChunkSize:         8,
		ChunkOverlap:      2,
	}, logging.NewLogger())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return repo
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	return path
}

func TestIngestAndQueryExactChunk(t *testing.T) {
	repo := newTestRepository(t, &hashEmbedder{})
	docs := t.TempDir()
	writeDoc(t, docs, "refunds.md", "Refunds are processed within 14 days. Contact support for escalations and enterprise billing questions beyond that window.")

	report, err := repo.Ingest(context.Background(), docs)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(report.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", report.Failures)
	}
	if len(report.Ingested) != 1 {
		t.Fatalf("expected 1 ingested file, got %d", len(report.Ingested))
	}

	// The first chunk is exactly the first eight words of the document.
	exactChunk := "Refunds are processed within 14 days. Contact support"
	results, err := repo.Query(context.Background(), "refunds", exactChunk, 3, ModeSimilarity)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if !strings.Contains(results[0], "Refunds are processed within 14 days") {
		t.Errorf("expected exact chunk as top result, got %q", results[0])
	}
}

func TestIngestBatchIsolation(t *testing.T) {
	repo := newTestRepository(t, &hashEmbedder{failSubstring: "POISON"})
	docs := t.TempDir()
	writeDoc(t, docs, "good.md", "The setup guide explains installation and first-run configuration in detail.")
	bad := writeDoc(t, docs, "bad.md", "POISON content that the embedding service rejects outright.")

	report, err := repo.Ingest(context.Background(), docs)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(report.Ingested) != 1 {
		t.Errorf("expected 1 ingested file, got %v", report.Ingested)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %+v", report.Failures)
	}
	if report.Failures[0].Path != bad {
		t.Errorf("expected failure for %s, got %s", bad, report.Failures[0].Path)
	}
	if report.Failures[0].Err == "" {
		t.Error("expected failure to carry the error message")
	}

	// The good file is still queryable by its own collection name.
	if _, err := repo.Query(context.Background(), "good", "setup guide", 2, ModeSimilarity); err != nil {
		t.Errorf("query good collection: %v", err)
	}
	// The poisoned file never created a collection.
	if _, err := repo.Query(context.Background(), "bad", "anything", 2, ModeSimilarity); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound for failed file, got %v", err)
	}
}

func TestQueryUnknownCollection(t *testing.T) {
	repo := newTestRepository(t, &hashEmbedder{})
	_, err := repo.Query(context.Background(), "never-ingested", "anything", 3, ModeSimilarity)
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestQueryEmptyCollection(t *testing.T) {
	repo := newTestRepository(t, &hashEmbedder{})
	if err := repo.saveCollection("empty", nil); err != nil {
		t.Fatalf("save empty collection: %v", err)
	}
	results, err := repo.Query(context.Background(), "empty", "anything", 3, ModeSimilarity)
	if err != nil {
		t.Fatalf("expected nil error for empty collection, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result, got %v", results)
	}
}

func TestIngestReplacesNotAppends(t *testing.T) {
	repo := newTestRepository(t, &hashEmbedder{})
	docs := t.TempDir()
	writeDoc(t, docs, "policy.md", "Returns are accepted for 30 days with an original receipt attached to the claim.")

	for i := 0; i < 2; i++ {
		if _, err := repo.Ingest(context.Background(), docs); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	chunks, err := repo.loadCollection("policy")
	if err != nil {
		t.Fatalf("load collection: %v", err)
	}
	wiki, err := repo.loadCollection("wiki")
	if err != nil {
		t.Fatalf("load default collection: %v", err)
	}
	if len(wiki) != len(chunks) {
		t.Errorf("aggregate should replace by source, want %d chunks, got %d", len(chunks), len(wiki))
	}
}

func TestCollectionsListAndNameEncoding(t *testing.T) {
	repo := newTestRepository(t, &hashEmbedder{})
	if err := repo.saveCollection("release notes/v2", nil); err != nil {
		t.Fatalf("save collection: %v", err)
	}
	if err := repo.saveCollection("faq", nil); err != nil {
		t.Fatalf("save collection: %v", err)
	}

	names, err := repo.Collections()
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	want := map[string]bool{"release notes/v2": true, "faq": true}
	for _, name := range names {
		delete(want, name)
	}
	if len(want) != 0 {
		t.Errorf("missing collections %v in %v", want, names)
	}

	// The encoded directory never contains a path separator.
	entries, err := os.ReadDir(repo.root)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	for _, entry := range entries {
		if strings.ContainsRune(entry.Name(), os.PathSeparator) {
			t.Errorf("collection dir %q leaks a path separator", entry.Name())
		}
	}
}

func TestQueryEmbeddingCache(t *testing.T) {
	embedder := &countingEmbedder{inner: &hashEmbedder{}}
	repo, err := NewRepository(embedder, RepositoryOptions{
		Root:      t.TempDir(),
		ChunkSize: 8,
	}, logging.NewLogger())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	if err := repo.saveCollection("wiki", []Chunk{{Text: "alpha", SourceID: "s", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("save collection: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := repo.Query(context.Background(), "wiki", "alpha", 1, ModeSimilarity); err != nil {
			t.Fatalf("query %d: %v", i, err)
		}
	}
	if embedder.calls != 1 {
		t.Errorf("expected 1 embedding call for repeated query, got %d", embedder.calls)
	}
}

type countingEmbedder struct {
	inner *hashEmbedder
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	return e.inner.Embed(ctx, texts)
}

func TestChunkerOverlap(t *testing.T) {
	chunker := NewChunker(4, 1)
	words := make([]string, 10)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	chunks := chunker.Split(strings.Join(words, " "))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "w0 w1 w2 w3" {
		t.Errorf("unexpected first chunk %q", chunks[0])
	}
	if chunks[1] != "w3 w4 w5 w6" {
		t.Errorf("expected one-word overlap, got %q", chunks[1])
	}
	if chunks[2] != "w6 w7 w8 w9" {
		t.Errorf("unexpected last chunk %q", chunks[2])
	}
}

func TestRerankKeywordBoost(t *testing.T) {
	chunks := []Chunk{
		{Text: "completely unrelated text about gardening", Similarity: 0.9},
		{Text: "refund policy details and timelines", Similarity: 0.89},
	}
	reranked := Rerank("refund policy", chunks)
	if !strings.Contains(reranked[0].Text, "refund") {
		t.Errorf("expected keyword match promoted, got %q", reranked[0].Text)
	}
}
