package ai

import "strings"

// Chunking defaults: roughly 1.3 tokens per word against an 8000-token
// budget, with a 500-token overlap between consecutive windows.
const (
	DefaultMaxTokens = 8000
	DefaultOverlap   = 500
)

// ChunkText splits text into overlapping word-count windows sized to fit
// the extraction service's input budget. Boundaries fall on whitespace.
func ChunkText(text string, maxTokens, overlap int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}

	words := strings.Fields(text)
	wordsPerChunk := int(float64(maxTokens) / 1.3)
	stride := wordsPerChunk - overlap
	if stride <= 0 {
		stride = wordsPerChunk
	}

	var chunks []string
	for i := 0; i < len(words); i += stride {
		end := i + wordsPerChunk
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	if chunks == nil {
		chunks = []string{""}
	}
	return chunks
}
