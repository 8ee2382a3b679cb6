package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"regrag/internal/adapter/analyzer"
	"regrag/internal/adapter/chunker"
	"regrag/internal/adapter/extractor"
	"regrag/internal/adapter/index"
	"regrag/internal/adapter/store"
	"regrag/internal/domain"
	"regrag/internal/telemetry"
)

// memSource serves documents from memory.
type memSource struct {
	files map[string][]byte
}

func (s *memSource) List() ([]domain.ObjectInfo, error) {
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)

	objects := make([]domain.ObjectInfo, len(names))
	for i, name := range names {
		objects[i] = domain.ObjectInfo{Name: name, Size: int64(len(s.files[name]))}
	}
	return objects, nil
}

func (s *memSource) Read(name string) ([]byte, error) {
	data, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", name)
	}
	return data, nil
}

// countingEmbedder produces deterministic vectors and counts calls, so
// tests can assert that cached documents are never re-embedded.
type countingEmbedder struct {
	dim   int
	calls int32
}

func (e *countingEmbedder) Embed(texts []string) ([][]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dim)
		for j, r := range text {
			vec[j%e.dim] += float32(r) / 1000.0
		}
		out[i] = vec
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int    { return e.dim }
func (e *countingEmbedder) ModelName() string { return "counting" }

func (e *countingEmbedder) callCount() int {
	return int(atomic.LoadInt32(&e.calls))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func docText(topic string, sentences int) []byte {
	text := ""
	for i := 0; i < sentences; i++ {
		text += fmt.Sprintf("This is sentence %d about %s and its obligations. ", i, topic)
	}
	return []byte(text)
}

type testPipeline struct {
	process  *ProcessUseCase
	store    *store.BoltStore
	index    *index.FlatIndex
	embedder *countingEmbedder
	source   *memSource
}

func newTestPipeline(t *testing.T, files map[string][]byte, params domain.ChunkingParams) *testPipeline {
	t.Helper()

	dir := t.TempDir()
	st, err := store.NewBoltStore(filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	idx, err := index.Open(filepath.Join(dir, "index.bin"), 8)
	if err != nil {
		t.Fatal(err)
	}

	return rewire(t, &testPipeline{store: st, index: idx, source: &memSource{files: files}}, params)
}

// rewire builds a fresh ProcessUseCase over the pipeline's existing
// store and index, as happens when the binary restarts.
func rewire(t *testing.T, p *testPipeline, params domain.ChunkingParams) *testPipeline {
	t.Helper()

	tokenizer := analyzer.NewTokenizer()
	registry := extractor.NewRegistry()
	registry.Register(extractor.NewPlainTextExtractor(tokenizer), ".txt", ".md")

	logger := testLogger()
	if p.embedder == nil {
		p.embedder = &countingEmbedder{dim: 8}
	}
	p.process = NewProcessUseCase(
		p.source,
		registry,
		chunker.NewTokenChunker(tokenizer),
		p.embedder,
		p.store,
		p.index,
		telemetry.NewMiddleware(logger),
		logger,
		params,
		2,
	)
	return p
}

func pageWords(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s_%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

// flakyPageExtractor simulates a document whose middle page is
// unreadable: pages 1 and 3 extract, page 2 yields nothing.
type flakyPageExtractor struct{}

func (e *flakyPageExtractor) Extract(name string, data []byte) (domain.Extraction, error) {
	page1 := pageWords("p1", 40)
	page3 := pageWords("p3", 60)
	return domain.Extraction{
		FullText: page1 + "\n" + page3,
		Pages: []domain.PageText{
			{PageNumber: 1, Text: page1, TokenCount: 40},
			{PageNumber: 3, Text: page3, TokenCount: 60},
		},
		PageCount: 3,
	}, nil
}

func TestProcessPartiallyReadableDocument(t *testing.T) {
	files := map[string][]byte{"scan.fake": []byte("binary")}
	p := newTestPipeline(t, files, domain.ChunkingParams{Size: 50, Overlap: 10})

	// Replace the registry wiring with the fake page-skipping extractor.
	tokenizer := analyzer.NewTokenizer()
	registry := extractor.NewRegistry()
	registry.Register(&flakyPageExtractor{}, ".fake")
	logger := testLogger()
	p.process = NewProcessUseCase(
		p.source, registry, chunker.NewTokenChunker(tokenizer), p.embedder,
		p.store, p.index, telemetry.NewMiddleware(logger), logger,
		domain.ChunkingParams{Size: 50, Overlap: 10}, 2,
	)

	result, err := p.process.ProcessAll(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("expected success despite unreadable page, got %+v", result)
	}

	docs, _ := p.store.ListDocuments()
	if len(docs) != 1 {
		t.Fatal("document not stored")
	}
	doc := docs[0]
	if doc.PageCount != 3 {
		t.Errorf("expected page count 3, got %d", doc.PageCount)
	}
	if doc.TokenTotal != 100 {
		t.Errorf("expected 100 extractable tokens, got %d", doc.TokenTotal)
	}

	// Every chunk carries readable text and the set spans both pages.
	chunks, err := p.store.GetChunksByDocument(doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks from 100 tokens at size 50, got %d", len(chunks))
	}
	foundFirst, foundLast := false, false
	for _, c := range chunks {
		if c.StartOffset == 0 {
			foundFirst = true
		}
		if c.EndOffset > 0 && c.Index == len(chunks)-1 {
			foundLast = true
		}
	}
	if !foundFirst || !foundLast {
		t.Error("chunks do not span the extracted text")
	}
}

func TestProcessAllBatch(t *testing.T) {
	files := map[string][]byte{
		"contracts/sla.txt":     docText("service levels", 40),
		"policies/lgpd.txt":     docText("data protection", 40),
		"policies/gdpr.md":      docText("european privacy", 40),
		"notes/renewal.txt":     docText("contract renewal", 40),
		"broken/whitespace.txt": []byte("   \n\t  "),
	}
	p := newTestPipeline(t, files, domain.ChunkingParams{Size: 50, Overlap: 10})

	result, err := p.process.ProcessAll(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.Total != 5 {
		t.Errorf("expected total 5, got %d", result.Total)
	}
	if result.Succeeded != 4 {
		t.Errorf("expected 4 succeeded, got %d", result.Succeeded)
	}
	if result.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", result.Failed)
	}
	if len(result.Errors) != 1 || result.Errors[0].Name != "broken/whitespace.txt" {
		t.Errorf("unexpected errors: %+v", result.Errors)
	}

	docs, err := p.store.ListDocuments()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 4 {
		t.Errorf("expected 4 stored documents, got %d", len(docs))
	}
	for _, doc := range docs {
		if !p.index.Contains(domain.ChunkID(doc.ID, 0)) {
			t.Errorf("document %s has no vectors in the index", doc.SourceURI)
		}
		if current, _ := p.store.IsCurrent(doc.ID, doc.ID, domain.ChunkingParams{Size: 50, Overlap: 10}); !current {
			t.Errorf("document %s not marked current after processing", doc.SourceURI)
		}
	}
	if p.index.Count() == 0 {
		t.Error("index is empty after processing")
	}
}

func TestProcessProgressReported(t *testing.T) {
	files := map[string][]byte{
		"a.txt": docText("alpha", 30),
		"b.txt": docText("beta", 30),
	}
	p := newTestPipeline(t, files, domain.ChunkingParams{Size: 50, Overlap: 10})

	var last int
	_, err := p.process.ProcessAll(context.Background(), func(done, total int, name string) {
		if total != 2 {
			t.Errorf("expected total 2, got %d", total)
		}
		last = done
	})
	if err != nil {
		t.Fatal(err)
	}
	if last != 2 {
		t.Errorf("expected final progress 2, got %d", last)
	}
}

func TestProcessSkipsUnchanged(t *testing.T) {
	files := map[string][]byte{
		"a.txt": docText("alpha", 60),
		"b.txt": docText("beta", 60),
	}
	params := domain.ChunkingParams{Size: 50, Overlap: 10}
	p := newTestPipeline(t, files, params)

	if _, err := p.process.ProcessAll(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	embedsAfterFirst := p.embedder.callCount()
	if embedsAfterFirst == 0 {
		t.Fatal("expected embedding calls on first run")
	}

	result, err := p.process.ProcessAll(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.Skipped != 2 || result.Succeeded != 0 {
		t.Errorf("expected all skipped on rerun, got %+v", result)
	}
	if p.embedder.callCount() != embedsAfterFirst {
		t.Errorf("unchanged documents were re-embedded: %d -> %d",
			embedsAfterFirst, p.embedder.callCount())
	}
}

func TestProcessParamsChangeReprocesses(t *testing.T) {
	files := map[string][]byte{
		"a.txt": docText("alpha", 60),
	}
	p := newTestPipeline(t, files, domain.ChunkingParams{Size: 50, Overlap: 10})

	if _, err := p.process.ProcessAll(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	p = rewire(t, p, domain.ChunkingParams{Size: 20, Overlap: 5})
	result, err := p.process.ProcessAll(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.Succeeded != 1 || result.Skipped != 0 {
		t.Errorf("expected full reprocess after parameter change, got %+v", result)
	}
}

func TestProcessSupersedesChangedSource(t *testing.T) {
	files := map[string][]byte{
		"a.txt": docText("alpha original", 60),
	}
	params := domain.ChunkingParams{Size: 50, Overlap: 10}
	p := newTestPipeline(t, files, params)

	if _, err := p.process.ProcessAll(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	oldID, err := p.store.DocumentIDForSource("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	oldChunkIDs, err := p.store.ChunkIDsByDocument(oldID)
	if err != nil {
		t.Fatal(err)
	}

	files["a.txt"] = docText("alpha heavily revised", 80)
	result, err := p.process.ProcessAll(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("expected changed document to be reprocessed, got %+v", result)
	}

	newID, err := p.store.DocumentIDForSource("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if newID == oldID {
		t.Fatal("changed content must yield a new document id")
	}

	docs, _ := p.store.ListDocuments()
	if len(docs) != 1 {
		t.Errorf("expected the old document to be superseded, got %d documents", len(docs))
	}
	if _, err := p.store.GetDocument(oldID); err == nil {
		t.Error("superseded document still stored")
	}
	for _, id := range oldChunkIDs {
		if p.index.Contains(id) {
			t.Errorf("stale vector %s still indexed", id)
		}
	}
	if !p.index.Contains(domain.ChunkID(newID, 0)) {
		t.Error("new document vectors missing from index")
	}
}

// slowEmbedder delays every call so a batch can be cancelled mid-flight.
type slowEmbedder struct {
	inner *countingEmbedder
	delay time.Duration
}

func (e *slowEmbedder) Embed(texts []string) ([][]float32, error) {
	time.Sleep(e.delay)
	return e.inner.Embed(texts)
}

func (e *slowEmbedder) Dimension() int    { return e.inner.Dimension() }
func (e *slowEmbedder) ModelName() string { return e.inner.ModelName() }

func TestProcessAllCancellation(t *testing.T) {
	files := map[string][]byte{
		"a.txt": docText("alpha", 40),
		"b.txt": docText("beta", 40),
		"c.txt": docText("gamma", 40),
	}
	p := newTestPipeline(t, files, domain.ChunkingParams{Size: 50, Overlap: 10})

	// One worker and a slow embedder keep jobs queued behind the first
	// document when the context is cancelled.
	tokenizer := analyzer.NewTokenizer()
	registry := extractor.NewRegistry()
	registry.Register(extractor.NewPlainTextExtractor(tokenizer), ".txt")
	logger := testLogger()
	p.process = NewProcessUseCase(
		p.source, registry, chunker.NewTokenChunker(tokenizer),
		&slowEmbedder{inner: p.embedder, delay: 300 * time.Millisecond},
		p.store, p.index, telemetry.NewMiddleware(logger), logger,
		domain.ChunkingParams{Size: 50, Overlap: 10}, 1,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	done := make(chan domain.BatchResult, 1)
	go func() {
		result, err := p.process.ProcessAll(ctx, nil)
		if err != nil {
			t.Error(err)
		}
		done <- result
	}()

	var result domain.BatchResult
	select {
	case result = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ProcessAll did not return after context cancellation")
	}

	if result.Total != 3 {
		t.Errorf("expected total 3, got %d", result.Total)
	}
	if result.Succeeded+result.Skipped+result.Failed != result.Total {
		t.Errorf("result does not account for every document: %+v", result)
	}
	if result.Failed == 0 {
		t.Error("expected cancelled documents to be recorded as failures")
	}

	// Documents that never committed must not be stored or marked
	// current.
	docs, err := p.store.ListDocuments()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != result.Succeeded {
		t.Errorf("stored %d documents but %d succeeded", len(docs), result.Succeeded)
	}
	for _, doc := range docs {
		if current, _ := p.store.IsCurrent(doc.ID, doc.ID, domain.ChunkingParams{Size: 50, Overlap: 10}); !current {
			t.Errorf("committed document %s not marked current", doc.SourceURI)
		}
	}
}

func TestProcessIgnoresUnsupported(t *testing.T) {
	files := map[string][]byte{
		"a.txt":     docText("alpha", 30),
		"image.png": {0x89, 0x50, 0x4e, 0x47},
	}
	p := newTestPipeline(t, files, domain.ChunkingParams{Size: 50, Overlap: 10})

	result, err := p.process.ProcessAll(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 {
		t.Errorf("unsupported objects must not count, got total %d", result.Total)
	}
}

func TestProcessEmptySource(t *testing.T) {
	p := newTestPipeline(t, map[string][]byte{}, domain.ChunkingParams{Size: 50, Overlap: 10})

	result, err := p.process.ProcessAll(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 0 || result.Succeeded != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestRebuildIndex(t *testing.T) {
	files := map[string][]byte{
		"a.txt": docText("alpha", 60),
		"b.txt": docText("beta", 60),
	}
	params := domain.ChunkingParams{Size: 50, Overlap: 10}
	p := newTestPipeline(t, files, params)

	if _, err := p.process.ProcessAll(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	want := p.index.Count()

	// Simulate a lost blob: fresh empty index over the same store.
	fresh, err := index.Open(filepath.Join(t.TempDir(), "index.bin"), 8)
	if err != nil {
		t.Fatal(err)
	}
	p.index = fresh
	p = rewire(t, p, params)

	if err := p.process.RebuildIndex(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fresh.Count() != want {
		t.Errorf("rebuild restored %d vectors, want %d", fresh.Count(), want)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"policies/lgpd_v2.txt", "data-protection"},
		{"gdpr-notice.md", "data-protection"},
		{"privacy.txt", "data-protection"},
		{"contracts/sla_2026.txt", "contract"},
		{"master_agreement.txt", "contract"},
		{"compliance_report.txt", "regulatory"},
		{"meeting_notes.txt", "general"},
	}
	for _, c := range cases {
		if got := classify(c.name); got != c.want {
			t.Errorf("classify(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestTitleFromName(t *testing.T) {
	if got := titleFromName("policies/privacy_policy.pdf"); got != "privacy_policy" {
		t.Errorf("unexpected title %q", got)
	}
	if got := titleFromName("plain.txt"); got != "plain" {
		t.Errorf("unexpected title %q", got)
	}
}
