// Package ingestion implements the file attachment ingestion pipeline.
// A background worker claims pending attachments from the metadata store,
// chunks their content, embeds each chunk with the active embedding model,
// and upserts the results into the vector store. The file is then marked
// completed (or failed) so retrieval knows whether to include it.
package ingestion

import "strings"

// Chunker splits attachment text into overlapping fixed-size chunks.
type Chunker struct {
	// size is the maximum number of characters per chunk.
	size int

	// overlap is the number of characters shared between consecutive chunks.
	overlap int
}

// NewChunker constructs a Chunker. A non-positive size defaults to 1000
// characters; an overlap that is negative or not smaller than the size
// defaults to a tenth of the size.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split divides text into overlapping chunks. Whitespace-only input yields
// no chunks.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(text); start += c.size - c.overlap {
		end := start + c.size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}
