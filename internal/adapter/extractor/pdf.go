package extractor

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"regrag/internal/adapter/analyzer"
	"regrag/internal/domain"
)

// PDFExtractor extracts plain text from PDF binaries page by page.
// A page that fails to decode is logged and skipped; only a document
// with zero readable pages fails.
type PDFExtractor struct {
	logger    *slog.Logger
	tokenizer *analyzer.Tokenizer
}

func NewPDFExtractor(logger *slog.Logger, tokenizer *analyzer.Tokenizer) *PDFExtractor {
	return &PDFExtractor{logger: logger, tokenizer: tokenizer}
}

func (e *PDFExtractor) Extract(name string, data []byte) (domain.Extraction, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("failed to open PDF %s: %w", name, err)
	}

	totalPages := reader.NumPage()
	var full strings.Builder
	var pages []domain.PageText

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		text, err := e.extractPage(reader, pageNum)
		if err != nil {
			e.logger.Warn("skipping unreadable page",
				slog.String("document", name),
				slog.Int("page", pageNum),
				slog.String("error", err.Error()))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		pages = append(pages, domain.PageText{
			PageNumber: pageNum,
			Text:       text,
			TokenCount: e.tokenizer.CountTokens(text),
		})
		if full.Len() > 0 {
			full.WriteString("\n")
		}
		full.WriteString(text)
	}

	if len(pages) == 0 {
		return domain.Extraction{}, fmt.Errorf("%s: %w", name, domain.ErrExtractionEmpty)
	}

	e.logger.Debug("extracted PDF text",
		slog.String("document", name),
		slog.Int("total_pages", totalPages),
		slog.Int("readable_pages", len(pages)),
		slog.Int("chars", full.Len()))

	return domain.Extraction{
		FullText:  full.String(),
		Pages:     pages,
		PageCount: totalPages,
	}, nil
}

// extractPage isolates per-page decoding, including panics from
// malformed page content streams, into an error.
func (e *PDFExtractor) extractPage(reader *pdf.Reader, pageNum int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page decode panic: %v", r)
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return "", fmt.Errorf("null page object")
	}
	return page.GetPlainText(nil)
}
