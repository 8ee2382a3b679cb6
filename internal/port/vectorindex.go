package port

// VectorHit is one ranked result of a nearest-neighbor search.
type VectorHit struct {
	ChunkID string
	Score   float64
}

// VectorIndex maintains an exact nearest-neighbor similarity index.
// The ordinal id mapping and the vector storage are updated together
// inside Upsert; they are never mutated independently.
type VectorIndex interface {
	// Upsert adds or replaces vectors. len(ids) must equal len(vectors)
	// and every vector must match the index dimension.
	Upsert(ids []string, vectors [][]float32) error

	// Search returns the k nearest vectors by cosine similarity,
	// descending. Vectors are normalized on insert, so inner product
	// equals cosine similarity.
	Search(query []float32, k int) ([]VectorHit, error)

	// Delete removes vectors by chunk id.
	Delete(ids []string) error

	// Count returns the number of stored vectors.
	Count() int

	// Contains reports whether a chunk id has a stored vector.
	Contains(id string) bool

	// Dimension returns the index vector dimension.
	Dimension() int

	// Save persists the index to durable storage via atomic replace.
	Save() error
}
