package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"regrag/config"
	"regrag/internal/adapter/analyzer"
	"regrag/internal/adapter/chunker"
	"regrag/internal/adapter/embedding"
	"regrag/internal/adapter/extractor"
	"regrag/internal/adapter/index"
	"regrag/internal/adapter/llm"
	"regrag/internal/adapter/retriever"
	"regrag/internal/adapter/source"
	"regrag/internal/adapter/store"
	"regrag/internal/domain"
	"regrag/internal/port"
	"regrag/internal/telemetry"
	"regrag/internal/usecase"
)

// pipeline bundles the wired components one CLI invocation works with.
type pipeline struct {
	store     *store.BoltStore
	index     *index.FlatIndex
	process   *usecase.ProcessUseCase
	retriever *retriever.SemanticRetriever
}

func (p *pipeline) Close() {
	p.store.Close()
}

// openPipeline wires the pipeline against the state directory under
// dir. Schema or configuration changes clear the stored data; a
// corrupt index blob is discarded and rebuilt from cached chunk text.
func openPipeline(dir string, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	if err := config.EnsureStateDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.NewBoltStore(config.StoreDBPath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	configHash := store.ComputeConfigHash(
		cfg.Chunking.ChunkTokens,
		cfg.Chunking.OverlapTokens,
		embedder.ModelName(),
		embedder.Dimension(),
	)

	blobPath := config.IndexBlobPath(dir)
	rebuild, reason, err := st.NeedsRebuild(configHash)
	if err != nil {
		st.Close()
		return nil, err
	}
	if rebuild {
		logger.Warn("stored data is stale, clearing", slog.String("reason", reason))
		if err := st.Clear(); err != nil {
			st.Close()
			return nil, err
		}
		os.Remove(blobPath)
	}
	if err := st.SetSchemaInfo(store.SchemaInfo{Version: store.CurrentSchemaVersion, ConfigHash: configHash}); err != nil {
		st.Close()
		return nil, err
	}

	idx, err := index.Open(blobPath, embedder.Dimension())
	reembed := false
	if errors.Is(err, domain.ErrIndexCorrupt) {
		logger.Warn("persisted index is corrupt, rebuilding from cached chunks",
			slog.String("error", err.Error()))
		os.Remove(blobPath)
		idx, err = index.Open(blobPath, embedder.Dimension())
		reembed = true
	}
	if err != nil {
		st.Close()
		return nil, err
	}

	tokenizer := analyzer.NewTokenizer()

	registry := extractor.NewRegistry()
	registry.Register(extractor.NewPDFExtractor(logger, tokenizer), ".pdf")
	registry.Register(extractor.NewPlainTextExtractor(tokenizer), ".txt", ".md")

	src := source.NewFilesystemSource(dir, cfg.Source.Includes, cfg.Source.Excludes)
	chk := chunker.NewTokenChunker(tokenizer)
	tel := telemetry.NewMiddleware(logger)

	params := domain.ChunkingParams{
		Size:    cfg.Chunking.ChunkTokens,
		Overlap: cfg.Chunking.OverlapTokens,
	}

	proc := usecase.NewProcessUseCase(src, registry, chk, embedder, st, idx, tel, logger, params, cfg.Workers)

	if reembed {
		if err := proc.RebuildIndex(context.Background()); err != nil {
			st.Close()
			return nil, fmt.Errorf("index rebuild failed: %w", err)
		}
	}

	return &pipeline{
		store:     st,
		index:     idx,
		process:   proc,
		retriever: retriever.NewSemanticRetriever(idx, embedder, st, logger),
	}, nil
}

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		if cfg.Embedding.BaseURL != "" {
			return embedding.NewOpenAICompatibleEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL)
		}
		return embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model)
	case "ollama":
		return embedding.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

func newAnswerUseCase(p *pipeline, cfg *config.Config, logger *slog.Logger) (*usecase.AnswerUseCase, error) {
	var completer port.Completer
	if cfg.Answer.Enabled {
		c, err := llm.NewOpenAIClient(cfg.Answer.APIKeyEnv, cfg.Answer.Model, cfg.Answer.BaseURL)
		if err != nil {
			// A missing API key disables generation; grounded fallback
			// answers still work.
			logger.Warn("answer generation disabled", slog.String("reason", err.Error()))
		} else {
			completer = c
		}
	}

	return usecase.NewAnswerUseCase(
		p.retriever,
		completer,
		p.store,
		logger,
		cfg.Answer.MaxContextTokens,
		cfg.Answer.MaxAnswerTokens,
		cfg.Answer.Temperature,
		time.Duration(cfg.Answer.TimeoutSeconds)*time.Second,
	), nil
}
