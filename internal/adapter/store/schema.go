package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the storage format version. Increment on
// breaking changes so older caches are rebuilt instead of mis-loaded.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// SchemaInfo holds the stored format version and the hash of the
// index-relevant configuration the data was built with.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

func (s *BoltStore) GetSchemaInfo() (SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}
		if data := b.Get(keySchemaVersion); data != nil {
			if err := json.Unmarshal(data, &info.Version); err != nil {
				info.Version = 0
			}
		}
		if data := b.Get(keyConfigHash); data != nil {
			info.ConfigHash = string(data)
		}
		return nil
	})
	return info, err
}

func (s *BoltStore) SetSchemaInfo(info SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		data, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, data); err != nil {
			return err
		}
		return b.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// ComputeConfigHash hashes the parameters that invalidate stored chunks
// and embeddings when changed.
func ComputeConfigHash(chunkSize, chunkOverlap int, embeddingModel string, dimension int) string {
	relevant := struct {
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap int    `json:"chunk_overlap"`
		Model        string `json:"model"`
		Dimension    int    `json:"dimension"`
	}{chunkSize, chunkOverlap, embeddingModel, dimension}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// NeedsRebuild reports whether the stored data must be discarded:
// either the schema version moved or the index configuration changed.
func (s *BoltStore) NeedsRebuild(configHash string) (bool, string, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return false, "", fmt.Errorf("failed to get schema info: %w", err)
	}

	if info.Version != 0 && info.Version != CurrentSchemaVersion {
		return true, fmt.Sprintf("schema version changed (v%d -> v%d)", info.Version, CurrentSchemaVersion), nil
	}
	if info.ConfigHash != "" && info.ConfigHash != configHash {
		return true, "index configuration changed", nil
	}
	return false, "", nil
}

// Clear removes all stored data except the schema info, for rebuilds.
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketDocs, bucketChunks, bucketBlobs, bucketDocChunks, bucketCache, bucketSources}
		for _, name := range buckets {
			b := tx.Bucket(name)
			if b == nil {
				continue
			}
			c := b.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
