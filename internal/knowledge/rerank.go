package knowledge

import (
	"sort"
	"strings"
)

const rrfK = 60 // standard Reciprocal Rank Fusion constant

// Rerank fuses the vector-similarity ranking with a keyword-overlap ranking
// using Reciprocal Rank Fusion. RRF is rank-based, so it is immune to score
// scale differences between the two signals.
// score(d) = 1/(k + vectorRank) + 1/(k + keywordRank), k=60.
func Rerank(query string, chunks []Chunk) []Chunk {
	if len(chunks) == 0 {
		return chunks
	}

	queryTerms := uniqueLowerTerms(query)
	if len(queryTerms) == 0 {
		return chunks
	}

	n := len(chunks)

	kwScores := make([]float64, n)
	for i, c := range chunks {
		kwScores[i] = keywordOverlap(queryTerms, c.Text)
	}

	vectorRank := rankDescending(n, func(a, b int) bool {
		return chunks[a].Similarity > chunks[b].Similarity
	})
	kwRank := rankDescending(n, func(a, b int) bool {
		return kwScores[a] > kwScores[b]
	})

	type scored struct {
		chunk Chunk
		score float64
	}
	items := make([]scored, n)
	for i, c := range chunks {
		score := 1.0/float64(rrfK+vectorRank[i]) + 1.0/float64(rrfK+kwRank[i])
		items[i] = scored{chunk: c, score: score}
	}
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].score > items[b].score
	})

	result := make([]Chunk, n)
	for i, item := range items {
		result[i] = item.chunk
	}
	return result
}

// rankDescending returns each index's 1-based rank under less.
func rankDescending(n int, less func(a, b int) bool) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return less(order[a], order[b])
	})
	ranks := make([]int, n)
	for rank, idx := range order {
		ranks[idx] = rank + 1
	}
	return ranks
}

// keywordOverlap returns the fraction of query terms found in the text.
func keywordOverlap(queryTerms map[string]struct{}, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for term := range queryTerms {
		if strings.Contains(lower, term) {
			found++
		}
	}
	return float64(found) / float64(len(queryTerms))
}

func uniqueLowerTerms(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	terms := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) >= 3 {
			terms[w] = struct{}{}
		}
	}
	return terms
}
