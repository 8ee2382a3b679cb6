package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"regrag/internal/adapter/retriever"
	"regrag/internal/adapter/store"
	"regrag/internal/domain"
	"regrag/internal/port"
)

// fallbackPreviewLength bounds the raw-context preview returned when
// the completion service is unavailable.
const fallbackPreviewLength = 1000

const systemPrompt = `You are an assistant specialized in analyzing regulatory, legal and compliance documents.
Answer questions based exclusively on the provided document context.
If the information is not in the context, state clearly that it could not be found in the provided documents.
Always cite the source document titles you used.
Be precise and objective.`

// QueryOptions control one question-answering run.
type QueryOptions struct {
	DocumentFilter string
	TopK           int
	Threshold      float64
}

// AnswerUseCase runs the read path: semantic search, token-budgeted
// context assembly in ranked order, and grounded answer synthesis with
// a deterministic fallback when the completion service fails.
type AnswerUseCase struct {
	retriever        *retriever.SemanticRetriever
	completer        port.Completer // nil disables generation, fallback only
	store            *store.BoltStore
	logger           *slog.Logger
	maxContextTokens int
	maxAnswerTokens  int
	temperature      float64
	timeout          time.Duration
}

func NewAnswerUseCase(
	r *retriever.SemanticRetriever,
	completer port.Completer,
	st *store.BoltStore,
	logger *slog.Logger,
	maxContextTokens, maxAnswerTokens int,
	temperature float64,
	timeout time.Duration,
) *AnswerUseCase {
	return &AnswerUseCase{
		retriever:        r,
		completer:        completer,
		store:            st,
		logger:           logger,
		maxContextTokens: maxContextTokens,
		maxAnswerTokens:  maxAnswerTokens,
		temperature:      temperature,
		timeout:          timeout,
	}
}

// Answer answers a question from indexed documents. It returns
// domain.ErrNoRelevantContext when nothing clears the similarity
// threshold; generation failures never surface as errors.
func (u *AnswerUseCase) Answer(ctx context.Context, question string, opts QueryOptions) (domain.Answer, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	docID := ""
	if opts.DocumentFilter != "" {
		var err error
		docID, err = u.resolveDocument(opts.DocumentFilter)
		if err != nil {
			return domain.Answer{}, err
		}
	}

	results, err := u.retriever.Search(question, retriever.Options{
		TopK:       opts.TopK,
		Threshold:  opts.Threshold,
		DocumentID: docID,
	})
	if err != nil {
		return domain.Answer{}, err
	}
	if len(results) == 0 {
		return domain.Answer{}, domain.ErrNoRelevantContext
	}

	// Chunks enter the context whole, in ranked order, until the next
	// one would overflow the budget.
	var included []domain.SearchResult
	contextTokens := 0
	for _, r := range results {
		if contextTokens+r.TokenCount > u.maxContextTokens {
			break
		}
		included = append(included, r)
		contextTokens += r.TokenCount
	}
	if len(included) == 0 {
		// Even the best chunk exceeds the budget; fall back to its
		// bounded preview rather than truncating it into the prompt.
		top := results[:1]
		fb := u.fallback(top, 0)
		fb.Sources = sourceRefs(top, u.documentTitles(top))
		return fb, nil
	}

	titles := u.documentTitles(included)
	answer := domain.Answer{
		Sources:       sourceRefs(included, titles),
		ContextTokens: contextTokens,
		Confidence:    domain.ConfidenceHigh,
	}

	if u.completer == nil {
		fb := u.fallback(included, contextTokens)
		fb.Sources = answer.Sources
		return fb, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	text, err := u.completer.Complete(callCtx, systemPrompt, u.buildUserPrompt(question, included, titles), u.maxAnswerTokens, u.temperature)
	if err != nil {
		if !errors.Is(err, domain.ErrAnswerService) {
			err = fmt.Errorf("%w: %v", domain.ErrAnswerService, err)
		}
		u.logger.Warn("answer generation failed, using grounded fallback",
			slog.String("error", err.Error()))
		fb := u.fallback(included, contextTokens)
		fb.Sources = answer.Sources
		return fb, nil
	}

	answer.Text = strings.TrimSpace(text)
	answer.Model = u.completer.ModelName()

	u.logger.Info("answer generated",
		slog.Int("context_tokens", contextTokens),
		slog.Int("sources", len(included)))
	return answer, nil
}

func (u *AnswerUseCase) buildUserPrompt(question string, included []domain.SearchResult, titles map[string]string) string {
	var b strings.Builder
	b.WriteString("Document context:\n")
	for _, r := range included {
		title := titles[r.DocumentID]
		if title == "" {
			title = r.DocumentID
		}
		fmt.Fprintf(&b, "\n[Document: %s]\n%s\n", title, r.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n\nAnswer:", question)
	return b.String()
}

// fallback returns the top-ranked chunk's text, bounded to a fixed
// preview length, with lowered confidence.
func (u *AnswerUseCase) fallback(results []domain.SearchResult, contextTokens int) domain.Answer {
	preview := results[0].Text
	if len(preview) > fallbackPreviewLength {
		preview = preview[:fallbackPreviewLength] + "..."
	}
	return domain.Answer{
		Text:          "Based on the analyzed documents, the most relevant passage found was:\n\n" + preview,
		ContextTokens: contextTokens,
		Confidence:    domain.ConfidenceLow,
	}
}

func (u *AnswerUseCase) resolveDocument(filter string) (string, error) {
	return ResolveDocument(u.store, filter)
}

// ResolveDocument maps a user-facing filter (document id, title, source
// URI or file name) to a document id. Every query surface resolves
// filters through here so the accepted forms stay identical.
func ResolveDocument(st *store.BoltStore, filter string) (string, error) {
	docs, err := st.ListDocuments()
	if err != nil {
		return "", err
	}
	for _, doc := range docs {
		if doc.ID == filter || doc.Title == filter ||
			doc.SourceURI == filter || filepath.Base(doc.SourceURI) == filter {
			return doc.ID, nil
		}
	}
	return "", fmt.Errorf("document not found: %s", filter)
}

func (u *AnswerUseCase) documentTitles(results []domain.SearchResult) map[string]string {
	titles := make(map[string]string)
	for _, r := range results {
		if _, ok := titles[r.DocumentID]; ok {
			continue
		}
		doc, err := u.store.GetDocument(r.DocumentID)
		if err != nil {
			continue
		}
		titles[r.DocumentID] = doc.Title
	}
	return titles
}

func sourceRefs(included []domain.SearchResult, titles map[string]string) []domain.SourceRef {
	refs := make([]domain.SourceRef, 0, len(included))
	for _, r := range included {
		refs = append(refs, domain.SourceRef{
			DocumentID: r.DocumentID,
			Title:      titles[r.DocumentID],
			Score:      r.Score,
			ChunkIndex: chunkIndex(r.ChunkID),
		})
	}
	return refs
}

func chunkIndex(chunkID string) int {
	i := strings.LastIndex(chunkID, ":")
	if i < 0 {
		return 0
	}
	idx := 0
	fmt.Sscanf(chunkID[i+1:], "%d", &idx)
	return idx
}
