package retriever

import (
	"fmt"
	"log/slog"

	"regrag/internal/adapter/store"
	"regrag/internal/domain"
	"regrag/internal/port"
)

// oversample is the multiplier applied to k when a document filter is
// set: the index has no per-document partitioning, so filtering happens
// at the chunk level after an oversampled scan.
const oversample = 4

// Options control one semantic search.
type Options struct {
	TopK       int
	Threshold  float64
	DocumentID string
}

// SemanticRetriever embeds the query, searches the vector index and
// hydrates the ranked chunks from the store.
type SemanticRetriever struct {
	index    port.VectorIndex
	embedder port.Embedder
	store    *store.BoltStore
	logger   *slog.Logger
}

func NewSemanticRetriever(index port.VectorIndex, embedder port.Embedder, st *store.BoltStore, logger *slog.Logger) *SemanticRetriever {
	return &SemanticRetriever{
		index:    index,
		embedder: embedder,
		store:    st,
		logger:   logger,
	}
}

func (r *SemanticRetriever) Search(query string, opts Options) ([]domain.SearchResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	embeddings, err := r.embedder.Embed([]string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding returned empty result")
	}

	fetch := opts.TopK
	if opts.DocumentID != "" {
		fetch = opts.TopK * oversample
		if fetch < 20 {
			fetch = 20
		}
	}

	hits, err := r.index.Search(embeddings[0], fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < opts.Threshold {
			// Hits are sorted descending, nothing past this clears
			// the threshold.
			break
		}

		chunk, err := r.store.GetChunk(hit.ChunkID)
		if err != nil {
			r.logger.Warn("indexed chunk missing from store",
				slog.String("chunk_id", hit.ChunkID),
				slog.String("error", err.Error()))
			continue
		}
		if opts.DocumentID != "" && chunk.DocumentID != opts.DocumentID {
			continue
		}

		results = append(results, domain.SearchResult{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Score:      hit.Score,
			Text:       chunk.Text,
			TokenCount: chunk.TokenCount,
		})
		if len(results) == opts.TopK {
			break
		}
	}

	r.logger.Debug("semantic search",
		slog.String("query", truncate(query, 100)),
		slog.Int("results", len(results)),
		slog.String("document_filter", opts.DocumentID))

	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
