package search

import "context"

// Provider is a pluggable web search backend.
type Provider interface {
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Result is one search hit, normalized across providers.
type Result struct {
	Title   string
	URL     string
	Content string
	Score   float64
}

// Options controls a single search call.
type Options struct {
	Limit int
	Depth string
}
