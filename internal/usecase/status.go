package usecase

import (
	"regrag/internal/adapter/store"
	"regrag/internal/domain"
	"regrag/internal/port"
)

// StatusUseCase reports the pipeline's stored state.
type StatusUseCase struct {
	store *store.BoltStore
	index port.VectorIndex
}

func NewStatusUseCase(st *store.BoltStore, index port.VectorIndex) *StatusUseCase {
	return &StatusUseCase{store: st, index: index}
}

func (u *StatusUseCase) Status() (domain.Status, error) {
	docs, err := u.store.ListDocuments()
	if err != nil {
		return domain.Status{}, err
	}

	status := domain.Status{
		TotalVectors: u.index.Count(),
		Dimension:    u.index.Dimension(),
	}

	for _, doc := range docs {
		stats := domain.DocumentStats{Document: doc}
		if entry, found, err := u.store.GetCacheEntry(doc.ID); err == nil && found {
			stats.ChunkCount = entry.ChunkCount
			stats.TokenTotal = entry.TokenTotal
			stats.Embedded = entry.EmbeddingsGenerated
			stats.ProcessedAt = entry.ProcessedAt
		}
		status.TotalChunks += stats.ChunkCount
		status.Documents = append(status.Documents, stats)
	}

	return status, nil
}
