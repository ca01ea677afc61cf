package knowledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docent",
			Name:      "ingest_files_total",
			Help:      "Source files processed during ingestion",
		},
		[]string{"status"},
	)

	ingestChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docent",
			Name:      "ingest_chunks_total",
			Help:      "Chunks written during ingestion",
		},
	)

	embedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docent",
			Name:      "embed_duration_seconds",
			Help:      "Duration of embedding calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	queryResultsCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docent",
			Name:      "query_results_count",
			Help:      "Number of chunks returned per collection query",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 15, 20},
		},
	)

	queryEmbeddingCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docent",
			Name:      "query_embedding_cache_total",
			Help:      "Query embedding cache lookups",
		},
		[]string{"result"},
	)
)
