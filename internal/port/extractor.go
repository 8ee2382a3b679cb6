package port

import "regrag/internal/domain"

// Extractor converts a document binary into plain text plus per-page
// metadata. Unreadable pages are skipped; a document with zero readable
// pages fails with domain.ErrExtractionEmpty.
type Extractor interface {
	Extract(name string, data []byte) (domain.Extraction, error)
}
