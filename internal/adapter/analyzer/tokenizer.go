package analyzer

import (
	"strings"
	"unicode"
)

// Token is a word-level token with its byte span in the source text.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenizer splits text into whitespace-delimited word tokens, keeping
// punctuation attached so sentence boundaries stay detectable.
type Tokenizer struct{}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

// Scan returns the tokens of text with byte offsets.
func (t *Tokenizer) Scan(text string) []Token {
	var tokens []Token
	start := -1

	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, Token{Text: text[start:i], Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, Token{Text: text[start:], Start: start, End: len(text)})
	}

	return tokens
}

// CountTokens returns the token count of text for budget accounting.
func (t *Tokenizer) CountTokens(text string) int {
	return len(strings.Fields(text))
}

// EndsSentence reports whether tok closes a sentence.
func EndsSentence(tok Token) bool {
	trimmed := strings.TrimRight(tok.Text, `"')]`)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
	default:
		return false
	}
	// Abbreviation-style tokens ("v1.2", "U.S.C") rarely end sentences
	// mid-word; require the token to not continue with a digit or letter
	// after the terminator, which TrimRight already guarantees here.
	return true
}
