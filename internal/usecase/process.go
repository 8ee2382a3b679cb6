package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"regrag/internal/adapter/extractor"
	"regrag/internal/adapter/store"
	"regrag/internal/domain"
	"regrag/internal/port"
	"regrag/internal/telemetry"
)

// ProgressFunc reports batch progress to the caller.
type ProgressFunc func(done, total int, name string)

// ProcessUseCase runs the write path: list source objects, extract,
// chunk, embed and index each one. Extraction and embedding run on a
// fixed worker pool; all store and index mutations go through a single
// committer, one mutation in flight at a time.
type ProcessUseCase struct {
	source     port.ObjectSource
	extractors *extractor.Registry
	chunker    port.Chunker
	embedder   port.Embedder
	store      *store.BoltStore
	index      port.VectorIndex
	telemetry  *telemetry.Middleware
	logger     *slog.Logger
	params     domain.ChunkingParams
	workers    int
}

func NewProcessUseCase(
	source port.ObjectSource,
	extractors *extractor.Registry,
	chunker port.Chunker,
	embedder port.Embedder,
	st *store.BoltStore,
	index port.VectorIndex,
	tel *telemetry.Middleware,
	logger *slog.Logger,
	params domain.ChunkingParams,
	workers int,
) *ProcessUseCase {
	if workers < 1 {
		workers = 1
	}
	return &ProcessUseCase{
		source:     source,
		extractors: extractors,
		chunker:    chunker,
		embedder:   embedder,
		store:      st,
		index:      index,
		telemetry:  tel,
		logger:     logger,
		params:     params,
		workers:    workers,
	}
}

// prepared is a fully extracted, chunked and embedded document waiting
// to be committed.
type prepared struct {
	name    string
	doc     domain.Document
	hash    string
	chunks  []domain.Chunk
	vectors [][]float32
	skipped bool
	err     error
}

// ProcessAll processes every supported source object. One document's
// failure is recorded and the batch continues.
func (u *ProcessUseCase) ProcessAll(ctx context.Context, progress ProgressFunc) (domain.BatchResult, error) {
	objects, err := u.source.List()
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("failed to list documents: %w", err)
	}

	supported := objects[:0]
	for _, obj := range objects {
		if u.extractors.Supported(obj.Name) {
			supported = append(supported, obj)
		}
	}

	result := domain.BatchResult{Total: len(supported)}
	if len(supported) == 0 {
		return result, nil
	}

	jobs := make(chan domain.ObjectInfo)
	out := make(chan prepared)

	for i := 0; i < u.workers; i++ {
		go func() {
			for obj := range jobs {
				out <- u.prepare(ctx, obj)
			}
		}()
	}

	// The commit loop waits for exactly one result per supported object,
	// so cancellation must still produce a result for every job that was
	// never handed to a worker.
	go func() {
		defer close(jobs)
		for _, obj := range supported {
			select {
			case jobs <- obj:
			case <-ctx.Done():
				out <- prepared{name: obj.Name, err: ctx.Err()}
			}
		}
	}()

	// Single-writer commit loop: index and store updates for each
	// document happen here, never concurrently.
	done := 0
	pending := len(supported)
	for pending > 0 {
		p := <-out
		pending--
		done++

		switch {
		case p.err != nil:
			result.Failed++
			result.Errors = append(result.Errors, domain.BatchError{
				Name:   p.name,
				Reason: p.err.Error(),
			})
			u.logger.Warn("document failed",
				slog.String("document", p.name),
				slog.String("error", p.err.Error()))
		case p.skipped:
			result.Skipped++
		default:
			if err := u.commit(p); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, domain.BatchError{
					Name:   p.name,
					Reason: err.Error(),
				})
			} else {
				result.Succeeded++
			}
		}

		if progress != nil {
			progress(done, len(supported), p.name)
		}
	}

	return result, nil
}

// prepare runs the per-document pipeline stages that have no shared
// mutable state: read, extract, cache check, chunk, embed.
func (u *ProcessUseCase) prepare(ctx context.Context, obj domain.ObjectInfo) prepared {
	p := prepared{name: obj.Name}

	if err := ctx.Err(); err != nil {
		p.err = err
		return p
	}

	data, err := u.source.Read(obj.Name)
	if err != nil {
		p.err = err
		return p
	}

	ex, err := u.extractors.For(obj.Name)
	if err != nil {
		p.err = err
		return p
	}

	var extraction domain.Extraction
	err = u.telemetry.Observe("extract", func() error {
		var err error
		extraction, err = ex.Extract(obj.Name, data)
		return err
	})
	if err != nil {
		p.err = err
		return p
	}

	p.hash = contentHash(extraction.FullText)
	docID := p.hash

	current, err := u.store.IsCurrent(docID, p.hash, u.params)
	if err != nil {
		p.err = err
		return p
	}
	if current && u.index.Contains(domain.ChunkID(docID, 0)) {
		p.skipped = true
		return p
	}

	tokenTotal := 0
	for _, page := range extraction.Pages {
		tokenTotal += page.TokenCount
	}

	p.doc = domain.Document{
		ID:         docID,
		Title:      titleFromName(obj.Name),
		Type:       classify(obj.Name),
		SourceURI:  obj.Name,
		PageCount:  extraction.PageCount,
		TokenTotal: tokenTotal,
	}

	err = u.telemetry.Observe("chunk", func() error {
		var err error
		p.chunks, err = u.chunker.Chunk(docID, extraction.FullText, u.params)
		return err
	})
	if err != nil {
		p.err = err
		return p
	}
	if len(p.chunks) == 0 {
		p.err = fmt.Errorf("%s: %w", obj.Name, domain.ErrExtractionEmpty)
		return p
	}

	texts := make([]string, len(p.chunks))
	for i, c := range p.chunks {
		texts[i] = c.Text
	}
	err = u.telemetry.Observe("embed", func() error {
		var err error
		p.vectors, err = u.embedder.Embed(texts)
		return err
	})
	if err != nil {
		p.err = err
		return p
	}
	if len(p.vectors) != len(p.chunks) {
		p.err = fmt.Errorf("embedder returned %d vectors for %d chunks", len(p.vectors), len(p.chunks))
		return p
	}

	return p
}

// commit applies one document's mutations: supersede the previous
// document for the same source, replace chunks, upsert vectors, save
// the index blob, and only then mark the cache entry current. A run
// cancelled or crashed before the final step leaves the document
// not-current, never half-marked.
func (u *ProcessUseCase) commit(p prepared) error {
	prevID, err := u.store.DocumentIDForSource(p.doc.SourceURI)
	if err != nil {
		return err
	}
	if prevID != "" {
		staleIDs, err := u.store.ChunkIDsByDocument(prevID)
		if err != nil {
			return err
		}
		if err := u.index.Delete(staleIDs); err != nil {
			return err
		}
		if prevID != p.doc.ID {
			if err := u.store.DeleteDocument(prevID); err != nil {
				return err
			}
		}
	}

	if err := u.store.PutDocument(p.doc); err != nil {
		return err
	}
	if err := u.store.ReplaceChunks(p.doc.ID, p.chunks); err != nil {
		return err
	}
	if err := u.store.SetDocumentIDForSource(p.doc.SourceURI, p.doc.ID); err != nil {
		return err
	}

	ids := make([]string, len(p.chunks))
	for i, c := range p.chunks {
		ids[i] = c.ID
	}
	if err := u.index.Upsert(ids, p.vectors); err != nil {
		return err
	}
	if err := u.index.Save(); err != nil {
		return err
	}

	tokenTotal := 0
	for _, c := range p.chunks {
		tokenTotal += c.TokenCount
	}

	entry := domain.CacheEntry{
		DocumentID:          p.doc.ID,
		ContentHash:         p.hash,
		ChunkCount:          len(p.chunks),
		TokenTotal:          tokenTotal,
		ChunkSize:           u.params.Size,
		ChunkOverlap:        u.params.Overlap,
		ProcessedAt:         time.Now(),
		EmbeddingsGenerated: true,
	}
	if err := u.store.RecordRun(entry); err != nil {
		return err
	}

	u.logger.Info("document processed",
		slog.String("document", p.doc.SourceURI),
		slog.String("id", p.doc.ID),
		slog.Int("chunks", len(p.chunks)),
		slog.Int("pages", p.doc.PageCount))
	return nil
}

// RebuildIndex re-embeds every cached chunk into the index. Used when
// the persisted blob is missing or corrupt: chunk text is cheap to
// re-embed, so the blob is never a single point of failure.
func (u *ProcessUseCase) RebuildIndex(ctx context.Context) error {
	docs, err := u.store.ListDocuments()
	if err != nil {
		return err
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunks, err := u.store.GetChunksByDocument(doc.ID)
		if err != nil || len(chunks) == 0 {
			continue
		}

		texts := make([]string, len(chunks))
		ids := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
			ids[i] = c.ID
		}

		vectors, err := u.embedder.Embed(texts)
		if err != nil {
			return fmt.Errorf("failed to re-embed %s: %w", doc.SourceURI, err)
		}
		if err := u.index.Upsert(ids, vectors); err != nil {
			return err
		}
	}

	return u.index.Save()
}

func contentHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:8])
}

func titleFromName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// classify assigns a free-text document type from the source name.
func classify(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "lgpd") || strings.Contains(lower, "gdpr") || strings.Contains(lower, "privacy"):
		return "data-protection"
	case strings.Contains(lower, "sla") || strings.Contains(lower, "contract") || strings.Contains(lower, "agreement"):
		return "contract"
	case strings.Contains(lower, "compliance") || strings.Contains(lower, "regulation") || strings.Contains(lower, "regulatory"):
		return "regulatory"
	default:
		return "general"
	}
}
