package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chunking.ChunkTokens != 1000 || cfg.Chunking.OverlapTokens != 200 {
		t.Errorf("unexpected chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Embedding.Provider != "openai" || cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("unexpected embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Retrieve.TopK != 5 {
		t.Errorf("unexpected top-k default: %d", cfg.Retrieve.TopK)
	}
	if cfg.Answer.MaxContextTokens != 3000 || cfg.Answer.MaxAnswerTokens != 1500 {
		t.Errorf("unexpected answer defaults: %+v", cfg.Answer)
	}
	if cfg.Workers != 4 {
		t.Errorf("unexpected workers default: %d", cfg.Workers)
	}
	if len(cfg.Source.Includes) == 0 {
		t.Error("expected default include patterns")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regrag.yaml")

	yaml := `chunking:
  chunk_tokens: 500
  overlap_tokens: 50
embedding:
  provider: ollama
  model: nomic-embed-text
retrieve:
  top_k: 8
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Chunking.ChunkTokens != 500 || cfg.Chunking.OverlapTokens != 50 {
		t.Errorf("yaml values not applied: %+v", cfg.Chunking)
	}
	if cfg.Embedding.Provider != "ollama" || cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("yaml embedding not applied: %+v", cfg.Embedding)
	}
	if cfg.Retrieve.TopK != 8 {
		t.Errorf("yaml top-k not applied: %d", cfg.Retrieve.TopK)
	}

	// Unset fields keep their defaults.
	if cfg.Workers != 4 {
		t.Errorf("default lost on partial yaml: workers=%d", cfg.Workers)
	}
	if cfg.Answer.MaxContextTokens != 3000 {
		t.Errorf("default lost on partial yaml: %+v", cfg.Answer)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.ChunkTokens != 1000 {
		t.Error("missing file should fall back to defaults")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REGRAG_CHUNK_TOKENS", "750")
	t.Setenv("REGRAG_EMBEDDING_PROVIDER", "mock")
	t.Setenv("REGRAG_WORKERS", "9")

	cfg, err := LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Chunking.ChunkTokens != 750 {
		t.Errorf("env override not applied: %d", cfg.Chunking.ChunkTokens)
	}
	if cfg.Embedding.Provider != "mock" {
		t.Errorf("env override not applied: %s", cfg.Embedding.Provider)
	}
	if cfg.Workers != 9 {
		t.Errorf("env override not applied: %d", cfg.Workers)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := "chunking:\n  chunk_tokens: 500\n"
	if err := os.WriteFile(filepath.Join(dir, "regrag.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("REGRAG_CHUNK_TOKENS", "321")

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.ChunkTokens != 321 {
		t.Errorf("env must win over yaml, got %d", cfg.Chunking.ChunkTokens)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regrag.yaml")

	cfg := DefaultConfig()
	cfg.Chunking.ChunkTokens = 640
	cfg.Retrieve.SimilarityThreshold = 0.4

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Chunking.ChunkTokens != 640 {
		t.Errorf("round trip lost chunk tokens: %d", loaded.Chunking.ChunkTokens)
	}
	if loaded.Retrieve.SimilarityThreshold != 0.4 {
		t.Errorf("round trip lost threshold: %f", loaded.Retrieve.SimilarityThreshold)
	}
}

func TestLoadFromDirNestedConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".regrag"), 0755); err != nil {
		t.Fatal(err)
	}
	yaml := "workers: 7\n"
	if err := os.WriteFile(filepath.Join(dir, ".regrag", "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 7 {
		t.Errorf("nested config not loaded: %d", cfg.Workers)
	}
}
