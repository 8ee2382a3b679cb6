package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"regrag/internal/domain"
	"regrag/internal/port"
)

// Binary blob format, little endian:
//
//	magic "RGIX" | uint32 version | uint32 dim | uint32 count
//	count × (uint32 idLen | id bytes | dim × float32)
const (
	blobMagic   = "RGIX"
	blobVersion = 1
)

// FlatIndex is an exact nearest-neighbor index over L2-normalized
// vectors, so inner product equals cosine similarity. The id mapping
// and vector storage are only ever mutated together under one lock,
// by a single writer at a time.
type FlatIndex struct {
	path string
	dim  int

	mu      sync.RWMutex
	ids     []string
	pos     map[string]int
	vectors [][]float32
}

// Open loads the index blob at path, or starts empty when the file
// does not exist. A file that fails to parse, or whose dimension
// disagrees with dim, yields domain.ErrIndexCorrupt.
func Open(path string, dim int) (*FlatIndex, error) {
	idx := &FlatIndex{
		path: path,
		dim:  dim,
		pos:  make(map[string]int),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index blob: %w", err)
	}

	if err := idx.decode(data); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexCorrupt, err)
	}
	return idx, nil
}

func (x *FlatIndex) decode(data []byte) error {
	r := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != blobMagic {
		return fmt.Errorf("bad magic")
	}

	var version, dim, count uint32
	for _, v := range []*uint32{&version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("truncated header: %v", err)
		}
	}
	if version != blobVersion {
		return fmt.Errorf("unsupported blob version %d", version)
	}
	if int(dim) != x.dim {
		return fmt.Errorf("dimension mismatch: blob %d, index %d", dim, x.dim)
	}

	ids := make([]string, 0, count)
	vectors := make([][]float32, 0, count)
	pos := make(map[string]int, count)

	for i := 0; i < int(count); i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("truncated record %d: %v", i, err)
		}
		// The declared length must fit in what is left of the blob
		// before any allocation sized by it.
		if int64(idLen) > int64(r.Len()) {
			return fmt.Errorf("record %d: id length %d exceeds remaining %d bytes", i, idLen, r.Len())
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return fmt.Errorf("truncated id %d: %v", i, err)
		}
		vec := make([]float32, x.dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("truncated vector %d: %v", i, err)
		}

		id := string(idBytes)
		pos[id] = len(ids)
		ids = append(ids, id)
		vectors = append(vectors, vec)
	}

	x.ids = ids
	x.vectors = vectors
	x.pos = pos
	return nil
}

// Upsert adds or replaces vectors. Normalization happens here so every
// stored vector is unit length.
func (x *FlatIndex) Upsert(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids/vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for i, vec := range vectors {
		if len(vec) != x.dim {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", x.dim, len(vec))
		}
		normalized := normalize(vec)

		if at, ok := x.pos[ids[i]]; ok {
			x.vectors[at] = normalized
			continue
		}
		x.pos[ids[i]] = len(x.ids)
		x.ids = append(x.ids, ids[i])
		x.vectors = append(x.vectors, normalized)
	}

	return nil
}

// Search scans all vectors and returns the k best hits, descending by
// cosine similarity.
func (x *FlatIndex) Search(query []float32, k int) ([]port.VectorHit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", x.dim, len(query))
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.vectors) == 0 || k <= 0 {
		return nil, nil
	}

	q := normalize(query)
	hits := make([]port.VectorHit, len(x.vectors))
	for i, vec := range x.vectors {
		var dot float64
		for j := range vec {
			dot += float64(q[j]) * float64(vec[j])
		}
		hits[i] = port.VectorHit{ChunkID: x.ids[i], Score: dot}
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Delete removes vectors by chunk id, compacting both structures.
func (x *FlatIndex) Delete(ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	keptIDs := x.ids[:0]
	keptVectors := x.vectors[:0]
	pos := make(map[string]int, len(x.ids))

	for i, id := range x.ids {
		if _, gone := drop[id]; gone {
			continue
		}
		pos[id] = len(keptIDs)
		keptIDs = append(keptIDs, id)
		keptVectors = append(keptVectors, x.vectors[i])
	}

	x.ids = keptIDs
	x.vectors = keptVectors
	x.pos = pos
	return nil
}

func (x *FlatIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

func (x *FlatIndex) Dimension() int {
	return x.dim
}

// Contains reports whether a chunk id has a stored vector.
func (x *FlatIndex) Contains(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.pos[id]
	return ok
}

// Save writes the blob to a temp file and renames it into place, so a
// crash mid-write never leaves a partially written index on disk.
func (x *FlatIndex) Save() error {
	x.mu.RLock()
	data := x.encode()
	x.mu.RUnlock()

	dir := filepath.Dir(x.path)
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write index blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp index file: %w", err)
	}

	if err := os.Rename(tmpPath, x.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace index blob: %w", err)
	}
	return nil
}

func (x *FlatIndex) encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(blobMagic)
	binary.Write(&buf, binary.LittleEndian, uint32(blobVersion))
	binary.Write(&buf, binary.LittleEndian, uint32(x.dim))
	binary.Write(&buf, binary.LittleEndian, uint32(len(x.ids)))

	for i, id := range x.ids {
		binary.Write(&buf, binary.LittleEndian, uint32(len(id)))
		buf.WriteString(id)
		binary.Write(&buf, binary.LittleEndian, x.vectors[i])
	}
	return buf.Bytes()
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out
	}
	inv := 1.0 / math.Sqrt(norm)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) * inv)
	}
	return out
}
