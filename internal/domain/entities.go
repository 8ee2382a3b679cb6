package domain

import (
	"fmt"
	"time"
)

// Document is an immutable, content-addressed source document.
// The ID is derived from the extracted text, so a changed source
// yields a new Document rather than a mutated one.
type Document struct {
	ID         string
	Title      string
	Type       string
	SourceURI  string
	PageCount  int
	TokenTotal int
	Metadata   map[string]string
}

// Chunk is a retrievable slice of one document's extracted text.
// StartOffset and EndOffset are byte offsets into that text.
type Chunk struct {
	ID          string
	DocumentID  string
	Index       int
	Text        string
	TokenCount  int
	StartOffset int
	EndOffset   int
}

// ChunkID builds the canonical chunk identifier for a document position.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:%d", documentID, index)
}

// ChunkingParams are the parameters a document was chunked with.
// A cache entry is only current when these match the requested run.
type ChunkingParams struct {
	Size    int
	Overlap int
}

// CacheEntry records a completed processing run for one document.
// It is the single source of truth for "already processed".
type CacheEntry struct {
	DocumentID          string
	ContentHash         string
	ChunkCount          int
	TokenTotal          int
	ChunkSize           int
	ChunkOverlap        int
	ProcessedAt         time.Time
	EmbeddingsGenerated bool
}

// Current reports whether the entry matches the requested hash and params.
func (e CacheEntry) Current(contentHash string, params ChunkingParams) bool {
	return e.ContentHash == contentHash &&
		e.ChunkSize == params.Size &&
		e.ChunkOverlap == params.Overlap &&
		e.EmbeddingsGenerated
}

// SearchResult is a transient, per-query ranked hit.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
	TokenCount int     `json:"token_count"`
}

// SourceRef identifies a document chunk that grounded an answer.
type SourceRef struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

// Confidence levels for a synthesized answer.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"
)

// Answer is a grounded answer with its supporting sources.
type Answer struct {
	Text          string      `json:"answer"`
	Sources       []SourceRef `json:"sources"`
	ContextTokens int         `json:"context_tokens"`
	Confidence    string      `json:"confidence"`
	Model         string      `json:"model,omitempty"`
}

// BatchError pairs a failed document with its reason.
type BatchError struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// BatchResult summarizes a full processing run.
type BatchResult struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Errors    []BatchError `json:"errors,omitempty"`
}

// PageText is the extracted text of a single readable page.
type PageText struct {
	PageNumber int
	Text       string
	TokenCount int
}

// Extraction is the output of text extraction for one document binary.
type Extraction struct {
	FullText  string
	Pages     []PageText
	PageCount int
}

// ObjectInfo describes one object in a document source.
type ObjectInfo struct {
	Name      string
	Size      int64
	UpdatedAt time.Time
}

// DocumentStats is a per-document view for status reporting.
type DocumentStats struct {
	Document    Document  `json:"document"`
	ChunkCount  int       `json:"chunk_count"`
	TokenTotal  int       `json:"token_total"`
	Embedded    bool      `json:"embedded"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Status is the overall pipeline state for status reporting.
type Status struct {
	Documents    []DocumentStats `json:"documents"`
	TotalChunks  int             `json:"total_chunks"`
	TotalVectors int             `json:"total_vectors"`
	Dimension    int             `json:"dimension"`
}
