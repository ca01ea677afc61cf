package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"docent/pkg/llm"
	"docent/pkg/logging"
)

// ErrCollectionNotFound is returned when a query names a collection with no
// persisted storage. This is distinct from a collection that exists but
// matches nothing, which returns an empty result.
var ErrCollectionNotFound = errors.New("collection not found")

// Mode selects the ranking strategy for Query.
type Mode int

const (
	// ModeSimilarity ranks by cosine similarity alone.
	ModeSimilarity Mode = iota
	// ModeRetriever additionally fuses a keyword ranking and drops results
	// below the minimum similarity threshold.
	ModeRetriever
)

// Chunk is one indexed slice of a source document.
type Chunk struct {
	Text      string    `json:"text"`
	SourceID  string    `json:"source_id"`
	Embedding []float32 `json:"embedding"`

	// Similarity is populated during Query ranking; never persisted.
	Similarity float64 `json:"-"`
}

// IngestFailure records one source file that failed during a batch ingest.
type IngestFailure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// IngestReport summarizes one Ingest run. Failures never abort the batch.
type IngestReport struct {
	Ingested []string        `json:"ingested"`
	Failures []IngestFailure `json:"failures"`
}

// Repository owns named collections of embedded document chunks, persisted
// one directory per collection under a root directory.
type Repository struct {
	root              string
	embedder          llm.Embedder
	chunker           Chunker
	defaultCollection string
	minSimilarity     float64
	logger            logging.Logger

	mu         sync.Mutex
	queryCache map[string][]float32
}

type RepositoryOptions struct {
	Root              string
	DefaultCollection string
	ChunkSize         int
	ChunkOverlap      int
	MinSimilarity     float64
}

func NewRepository(embedder llm.Embedder, opts RepositoryOptions, logger logging.Logger) (*Repository, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if opts.Root == "" {
		return nil, errors.New("collection root is required")
	}
	if opts.DefaultCollection == "" {
		opts.DefaultCollection = "wiki"
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create collection root: %w", err)
	}
	return &Repository{
		root:              opts.Root,
		embedder:          embedder,
		chunker:           NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		defaultCollection: opts.DefaultCollection,
		minSimilarity:     opts.MinSimilarity,
		logger:            logger,
		queryCache:        make(map[string][]float32),
	}, nil
}

// DefaultCollection returns the name of the aggregate collection every
// ingested file is folded into.
func (r *Repository) DefaultCollection() string {
	return r.defaultCollection
}

// Ingest walks every regular file under sourceDir, chunks and embeds each
// one, and replaces the collection named after the file. All chunks are also
// folded into the default aggregate collection, replacing prior chunks from
// the same source. Per-file failures are reported and skipped; they never
// abort the rest of the batch.
func (r *Repository) Ingest(ctx context.Context, sourceDir string) (IngestReport, error) {
	var report IngestReport

	var paths []string
	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("walk source dir: %w", err)
	}

	aggregate := make(map[string][]Chunk)
	for _, path := range paths {
		sourceID := collectionNameForFile(path)
		chunks, ingestErr := r.ingestFile(ctx, path, sourceID)
		if ingestErr != nil {
			r.logger.WithFields(logging.Fields{
				"path":  path,
				"error": ingestErr.Error(),
			}).Warn("Skipping source file")
			report.Failures = append(report.Failures, IngestFailure{Path: path, Err: ingestErr.Error()})
			ingestFilesTotal.WithLabelValues("error").Inc()
			continue
		}
		report.Ingested = append(report.Ingested, path)
		aggregate[sourceID] = chunks
		ingestFilesTotal.WithLabelValues("success").Inc()
		ingestChunksTotal.Add(float64(len(chunks)))
	}

	if len(aggregate) > 0 {
		if err := r.foldIntoDefault(aggregate); err != nil {
			return report, fmt.Errorf("update default collection: %w", err)
		}
	}
	return report, nil
}

func (r *Repository) ingestFile(ctx context.Context, path, sourceID string) ([]Chunk, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	texts := r.chunker.Split(string(raw))
	if len(texts) == 0 {
		return nil, errors.New("file produced no chunks")
	}

	start := time.Now()
	vectors, err := r.embedder.Embed(ctx, texts)
	embedDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding mismatch: %d chunks, %d vectors", len(texts), len(vectors))
	}

	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{Text: text, SourceID: sourceID, Embedding: vectors[i]}
	}
	if err := r.saveCollection(sourceID, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// foldIntoDefault replaces, per source id, the aggregate collection's chunks
// with the freshly ingested ones. Chunks from sources not part of this batch
// are preserved.
func (r *Repository) foldIntoDefault(batch map[string][]Chunk) error {
	existing, err := r.loadCollection(r.defaultCollection)
	if err != nil && !errors.Is(err, ErrCollectionNotFound) {
		return err
	}

	var merged []Chunk
	for _, chunk := range existing {
		if _, replaced := batch[chunk.SourceID]; !replaced {
			merged = append(merged, chunk)
		}
	}
	sources := make([]string, 0, len(batch))
	for sourceID := range batch {
		sources = append(sources, sourceID)
	}
	sort.Strings(sources)
	for _, sourceID := range sources {
		merged = append(merged, batch[sourceID]...)
	}
	return r.saveCollection(r.defaultCollection, merged)
}

// Query embeds the query text (or reuses a cached embedding), ranks the named
// collection's chunks by cosine similarity, and returns the top-k chunk texts
// most-relevant first. ModeRetriever applies rank fusion and a minimum
// similarity filter on top. A collection with no persisted storage fails with
// ErrCollectionNotFound; an existing collection with no chunks returns an
// empty slice.
func (r *Repository) Query(ctx context.Context, collection, query string, topK int, mode Mode) ([]string, error) {
	if collection == "" {
		collection = r.defaultCollection
	}
	if topK <= 0 {
		topK = 4
	}

	chunks, err := r.loadCollection(collection)
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		return nil, err
	}
	if len(chunks) == 0 {
		return []string{}, nil
	}

	queryVec, err := r.queryEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		chunks[i].Similarity = cosineSimilarity(queryVec, chunks[i].Embedding)
	}
	sort.SliceStable(chunks, func(a, b int) bool {
		return chunks[a].Similarity > chunks[b].Similarity
	})

	if mode == ModeRetriever {
		chunks = filterMinSimilarity(chunks, r.minSimilarity)
		chunks = Rerank(query, chunks)
	}

	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	queryResultsCount.Observe(float64(len(chunks)))

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	return texts, nil
}

// Collections lists the names of every persisted collection.
func (r *Repository) Collections() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("read collection root: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, err := decodeCollectionDir(entry.Name())
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Repository) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	r.mu.Lock()
	cached, ok := r.queryCache[query]
	r.mu.Unlock()
	if ok {
		queryEmbeddingCache.WithLabelValues("hit").Inc()
		return cached, nil
	}
	queryEmbeddingCache.WithLabelValues("miss").Inc()

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("no query embedding returned")
	}

	r.mu.Lock()
	r.queryCache[query] = vectors[0]
	r.mu.Unlock()
	return vectors[0], nil
}

// collectionDir maps a collection name to its storage directory. The percent
// encoding is injective so two different names never alias the same path.
func (r *Repository) collectionDir(name string) string {
	return filepath.Join(r.root, url.PathEscape(name))
}

func decodeCollectionDir(dir string) (string, error) {
	return url.PathUnescape(dir)
}

func collectionNameForFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (r *Repository) loadCollection(name string) ([]Chunk, error) {
	dir := r.collectionDir(name)
	raw, err := os.ReadFile(filepath.Join(dir, "chunks.json"))
	if err != nil {
		if os.IsNotExist(err) {
			if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
				return nil, ErrCollectionNotFound
			}
			return nil, nil
		}
		return nil, fmt.Errorf("read collection %s: %w", name, err)
	}
	var chunks []Chunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", name, err)
	}
	return chunks, nil
}

func (r *Repository) saveCollection(name string, chunks []Chunk) error {
	dir := r.collectionDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create collection dir: %w", err)
	}
	raw, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", name, err)
	}

	// Write-then-rename so a crash never leaves a half-written collection.
	tmp := filepath.Join(dir, "chunks.json.tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write collection %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, "chunks.json")); err != nil {
		return fmt.Errorf("persist collection %s: %w", name, err)
	}
	return nil
}

func filterMinSimilarity(chunks []Chunk, minimum float64) []Chunk {
	if minimum <= 0 {
		return chunks
	}
	filtered := chunks[:0]
	for _, chunk := range chunks {
		if chunk.Similarity >= minimum {
			filtered = append(filtered, chunk)
		}
	}
	return filtered
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
