package domain

import "errors"

// Error taxonomy for the pipeline. Callers branch on these with
// errors.Is instead of parsing messages.
var (
	// ErrExtractionEmpty means no page of a document yielded any text.
	ErrExtractionEmpty = errors.New("extraction produced no readable text")

	// ErrParamsChanged signals that a document's cached chunking used
	// different parameters. Internal: it triggers reprocessing, never
	// surfaces to a caller as a failure.
	ErrParamsChanged = errors.New("chunking parameters changed")

	// ErrEmbeddingUnavailable means the embedding backend could not be
	// reached. Affected documents fail; the batch continues.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrIndexCorrupt means the persisted index blob failed to load.
	// The index is rebuilt from cached chunk text rather than failing.
	ErrIndexCorrupt = errors.New("persisted index is corrupt")

	// ErrAnswerService means the completion service failed or timed out.
	// Always absorbed by the deterministic fallback, never propagated.
	ErrAnswerService = errors.New("answer service failed")

	// ErrNoRelevantContext is the defined empty-result state of the query
	// interface: nothing cleared the similarity threshold.
	ErrNoRelevantContext = errors.New("no relevant context found")
)
