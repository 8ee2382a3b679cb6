package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"regrag/internal/domain"
)

var (
	bucketDocs      = []byte("docs")
	bucketChunks    = []byte("chunks")
	bucketBlobs     = []byte("blobs")
	bucketDocChunks = []byte("doc_chunks")
	bucketCache     = []byte("cache")
	bucketSources   = []byte("sources")
	bucketMeta      = []byte("meta")
)

// BoltStore persists document metadata, chunk metadata and processing
// cache entries. Chunk text lives in a separate blobs bucket keyed by
// chunk id and is hydrated on retrieval.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketDocs, bucketChunks, bucketBlobs, bucketDocChunks, bucketCache, bucketSources, bucketMeta}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type docMeta struct {
	Title      string            `json:"title"`
	Type       string            `json:"type"`
	SourceURI  string            `json:"source_uri"`
	PageCount  int               `json:"page_count"`
	TokenTotal int               `json:"token_total"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type chunkMeta struct {
	DocumentID  string `json:"document_id"`
	Index       int    `json:"index"`
	TokenCount  int    `json:"token_count"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

type cacheEntry struct {
	DocumentID          string `json:"document_id"`
	ContentHash         string `json:"content_hash"`
	ChunkCount          int    `json:"chunk_count"`
	TokenTotal          int    `json:"token_total"`
	ChunkSize           int    `json:"chunk_size"`
	ChunkOverlap        int    `json:"chunk_overlap"`
	ProcessedAt         int64  `json:"processed_at"`
	EmbeddingsGenerated bool   `json:"embeddings_generated"`
}

func (s *BoltStore) PutDocument(doc domain.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta := docMeta{
			Title:      doc.Title,
			Type:       doc.Type,
			SourceURI:  doc.SourceURI,
			PageCount:  doc.PageCount,
			TokenTotal: doc.TokenTotal,
			Metadata:   doc.Metadata,
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocs).Put([]byte(doc.ID), data)
	})
}

func (s *BoltStore) GetDocument(id string) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document not found: %s", id)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		doc = docFromMeta(id, meta)
		return nil
	})
	return doc, err
}

func (s *BoltStore) ListDocuments() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			docs = append(docs, docFromMeta(string(k), meta))
			return nil
		})
	})
	return docs, err
}

// DeleteDocument removes the document, its chunks, its blobs and its
// cache entry in one transaction.
func (s *BoltStore) DeleteDocument(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteChunksTx(tx, id); err != nil {
			return err
		}
		if err := tx.Bucket(bucketCache).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketDocs).Delete([]byte(id))
	})
}

// ReplaceChunks deletes every stored chunk of the document and writes
// the new set in the same transaction, so chunks from two different
// parameterizations never coexist.
func (s *BoltStore) ReplaceChunks(documentID string, chunks []domain.Chunk) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteChunksTx(tx, documentID); err != nil {
			return err
		}

		chunkBucket := tx.Bucket(bucketChunks)
		blobBucket := tx.Bucket(bucketBlobs)

		ids := make([]string, 0, len(chunks))
		for _, chunk := range chunks {
			meta := chunkMeta{
				DocumentID:  chunk.DocumentID,
				Index:       chunk.Index,
				TokenCount:  chunk.TokenCount,
				StartOffset: chunk.StartOffset,
				EndOffset:   chunk.EndOffset,
			}
			data, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			if err := chunkBucket.Put([]byte(chunk.ID), data); err != nil {
				return err
			}
			if err := blobBucket.Put([]byte(chunk.ID), []byte(chunk.Text)); err != nil {
				return err
			}
			ids = append(ids, chunk.ID)
		}

		idsData, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocChunks).Put([]byte(documentID), idsData)
	})
}

func (s *BoltStore) GetChunk(id string) (domain.Chunk, error) {
	var chunk domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("chunk not found: %s", id)
		}
		var meta chunkMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		text := tx.Bucket(bucketBlobs).Get([]byte(id))
		chunk = chunkFromMeta(id, meta, text)
		return nil
	})
	return chunk, err
}

func (s *BoltStore) GetChunksByDocument(documentID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		ids, err := chunkIDsTx(tx, documentID)
		if err != nil || ids == nil {
			return err
		}
		chunkBucket := tx.Bucket(bucketChunks)
		blobBucket := tx.Bucket(bucketBlobs)
		for _, id := range ids {
			data := chunkBucket.Get([]byte(id))
			if data == nil {
				continue
			}
			var meta chunkMeta
			if err := json.Unmarshal(data, &meta); err != nil {
				continue
			}
			chunks = append(chunks, chunkFromMeta(id, meta, blobBucket.Get([]byte(id))))
		}
		return nil
	})
	return chunks, err
}

func (s *BoltStore) ChunkIDsByDocument(documentID string) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		ids, err = chunkIDsTx(tx, documentID)
		return err
	})
	return ids, err
}

func (s *BoltStore) DeleteChunksByDocument(documentID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return deleteChunksTx(tx, documentID)
	})
}

// RecordRun writes the cache entry for a completed processing stage.
func (s *BoltStore) RecordRun(entry domain.CacheEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		stored := cacheEntry{
			DocumentID:          entry.DocumentID,
			ContentHash:         entry.ContentHash,
			ChunkCount:          entry.ChunkCount,
			TokenTotal:          entry.TokenTotal,
			ChunkSize:           entry.ChunkSize,
			ChunkOverlap:        entry.ChunkOverlap,
			ProcessedAt:         entry.ProcessedAt.Unix(),
			EmbeddingsGenerated: entry.EmbeddingsGenerated,
		}
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCache).Put([]byte(entry.DocumentID), data)
	})
}

func (s *BoltStore) GetCacheEntry(documentID string) (domain.CacheEntry, bool, error) {
	var entry domain.CacheEntry
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCache).Get([]byte(documentID))
		if data == nil {
			return nil
		}
		var stored cacheEntry
		if err := json.Unmarshal(data, &stored); err != nil {
			return err
		}
		entry = domain.CacheEntry{
			DocumentID:          stored.DocumentID,
			ContentHash:         stored.ContentHash,
			ChunkCount:          stored.ChunkCount,
			TokenTotal:          stored.TokenTotal,
			ChunkSize:           stored.ChunkSize,
			ChunkOverlap:        stored.ChunkOverlap,
			ProcessedAt:         time.Unix(stored.ProcessedAt, 0),
			EmbeddingsGenerated: stored.EmbeddingsGenerated,
		}
		found = true
		return nil
	})
	return entry, found, err
}

// IsCurrent reports whether the document was already fully processed
// with this exact content hash and chunking parameterization.
func (s *BoltStore) IsCurrent(documentID, contentHash string, params domain.ChunkingParams) (bool, error) {
	entry, found, err := s.GetCacheEntry(documentID)
	if err != nil || !found {
		return false, err
	}
	return entry.Current(contentHash, params), nil
}

// Invalidate drops the cache entry so the next run reprocesses the
// document in full.
func (s *BoltStore) Invalidate(documentID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCache).Delete([]byte(documentID))
	})
}

// DocumentIDForSource returns the document currently derived from a
// source object, if any. Used to supersede documents whose source
// content changed.
func (s *BoltStore) DocumentIDForSource(sourceURI string) (string, error) {
	var id string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketSources).Get([]byte(sourceURI)); v != nil {
			id = string(v)
		}
		return nil
	})
	return id, err
}

func (s *BoltStore) SetDocumentIDForSource(sourceURI, documentID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSources).Put([]byte(sourceURI), []byte(documentID))
	})
}

func deleteChunksTx(tx *bbolt.Tx, documentID string) error {
	ids, err := chunkIDsTx(tx, documentID)
	if err != nil {
		return err
	}
	chunkBucket := tx.Bucket(bucketChunks)
	blobBucket := tx.Bucket(bucketBlobs)
	for _, id := range ids {
		if err := chunkBucket.Delete([]byte(id)); err != nil {
			return err
		}
		if err := blobBucket.Delete([]byte(id)); err != nil {
			return err
		}
	}
	return tx.Bucket(bucketDocChunks).Delete([]byte(documentID))
}

func chunkIDsTx(tx *bbolt.Tx, documentID string) ([]string, error) {
	data := tx.Bucket(bucketDocChunks).Get([]byte(documentID))
	if data == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func docFromMeta(id string, meta docMeta) domain.Document {
	return domain.Document{
		ID:         id,
		Title:      meta.Title,
		Type:       meta.Type,
		SourceURI:  meta.SourceURI,
		PageCount:  meta.PageCount,
		TokenTotal: meta.TokenTotal,
		Metadata:   meta.Metadata,
	}
}

func chunkFromMeta(id string, meta chunkMeta, text []byte) domain.Chunk {
	return domain.Chunk{
		ID:          id,
		DocumentID:  meta.DocumentID,
		Index:       meta.Index,
		Text:        string(text),
		TokenCount:  meta.TokenCount,
		StartOffset: meta.StartOffset,
		EndOffset:   meta.EndOffset,
	}
}
