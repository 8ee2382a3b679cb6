package port

import "context"

// Completer is an external language-model completion service.
// Calls are best effort: they may fail or time out, and callers must
// degrade gracefully when they do.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)

	ModelName() string
}
