package chunker

import (
	"fmt"
	"strings"

	"regrag/internal/adapter/analyzer"
	"regrag/internal/domain"
)

// trimWindow is the trailing fraction of a window scanned for a
// sentence boundary to end the chunk on.
const trimWindow = 0.3

// TokenChunker slides a token window of params.Size tokens, advancing
// by Size-Overlap (minimum 1). Non-final windows are trimmed back to
// the last sentence boundary in the final 30% of the window, and the
// next window starts Overlap tokens before the trimmed end so the
// chunk spans cover the full text with no gaps.
type TokenChunker struct {
	tokenizer *analyzer.Tokenizer
}

func NewTokenChunker(tokenizer *analyzer.Tokenizer) *TokenChunker {
	return &TokenChunker{tokenizer: tokenizer}
}

func (c *TokenChunker) Chunk(documentID, text string, params domain.ChunkingParams) ([]domain.Chunk, error) {
	if params.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", params.Size)
	}
	if params.Overlap < 0 || params.Overlap >= params.Size {
		return nil, fmt.Errorf("overlap must be in [0, size), got %d for size %d", params.Overlap, params.Size)
	}

	tokens := c.tokenizer.Scan(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	var chunks []domain.Chunk
	start := 0
	for start < len(tokens) {
		end := start + params.Size
		final := false
		if end >= len(tokens) {
			end = len(tokens)
			final = true
		}

		if !final {
			end = trimToSentence(tokens, start, end)
		}

		startByte := tokens[start].Start
		endByte := tokens[end-1].End
		chunkText := strings.TrimSpace(text[startByte:endByte])

		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:          domain.ChunkID(documentID, idx),
			DocumentID:  documentID,
			Index:       idx,
			Text:        chunkText,
			TokenCount:  end - start,
			StartOffset: startByte,
			EndOffset:   endByte,
		})

		if final {
			break
		}

		// Step = window - overlap, relative to the trimmed end so no
		// tokens fall between consecutive chunks. Minimum step of one
		// token guarantees termination.
		next := end - params.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks, nil
}

// trimToSentence moves the window end back to just after the last
// sentence-ending token in the final 30% of the window. When no
// boundary exists there, the raw token boundary stands.
func trimToSentence(tokens []analyzer.Token, start, end int) int {
	floor := end - int(float64(end-start)*trimWindow)
	if floor <= start {
		floor = start + 1
	}
	for i := end - 1; i >= floor; i-- {
		if analyzer.EndsSentence(tokens[i]) {
			return i + 1
		}
	}
	return end
}
