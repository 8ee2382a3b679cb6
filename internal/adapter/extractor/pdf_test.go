package extractor

import (
	"io"
	"log/slog"
	"testing"

	"regrag/internal/adapter/analyzer"
)

func TestPDFExtractInvalidData(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ex := NewPDFExtractor(logger, analyzer.NewTokenizer())

	if _, err := ex.Extract("broken.pdf", []byte("not a pdf")); err == nil {
		t.Error("expected error for invalid PDF data")
	}
}
