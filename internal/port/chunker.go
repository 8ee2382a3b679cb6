package port

import "regrag/internal/domain"

// Chunker splits extracted text into token-bounded, overlapping chunks.
// Output is deterministic for identical inputs.
type Chunker interface {
	Chunk(documentID, text string, params domain.ChunkingParams) ([]domain.Chunk, error)
}
