package knowledge

import "strings"

// Chunker splits source documents into fixed-size overlapping word windows.
// Size and overlap are measured in words.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return Chunker{size: size, overlap: overlap}
}

// Split returns the overlapping windows of content. Whitespace runs collapse
// to single spaces inside each chunk. Empty or whitespace-only content yields
// no chunks.
func (c Chunker) Split(content string) []string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
