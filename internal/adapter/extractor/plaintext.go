package extractor

import (
	"fmt"
	"strings"

	"regrag/internal/adapter/analyzer"
	"regrag/internal/domain"
)

// PlainTextExtractor handles .txt and .md sources as single-page documents.
type PlainTextExtractor struct {
	tokenizer *analyzer.Tokenizer
}

func NewPlainTextExtractor(tokenizer *analyzer.Tokenizer) *PlainTextExtractor {
	return &PlainTextExtractor{tokenizer: tokenizer}
}

func (e *PlainTextExtractor) Extract(name string, data []byte) (domain.Extraction, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return domain.Extraction{}, fmt.Errorf("%s: %w", name, domain.ErrExtractionEmpty)
	}

	return domain.Extraction{
		FullText: text,
		Pages: []domain.PageText{{
			PageNumber: 1,
			Text:       text,
			TokenCount: e.tokenizer.CountTokens(text),
		}},
		PageCount: 1,
	}, nil
}
