package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ziadkadry99/codectx/internal/catalog"
	"github.com/ziadkadry99/codectx/internal/chunker"
	"github.com/ziadkadry99/codectx/internal/config"
	"github.com/ziadkadry99/codectx/internal/embeddings"
	"github.com/ziadkadry99/codectx/internal/llm"
	"github.com/ziadkadry99/codectx/internal/progress"
	"github.com/ziadkadry99/codectx/internal/retrieval"
	"github.com/ziadkadry99/codectx/internal/vectordb"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `codectx init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildGateway assembles the embedding gateway from config. The local model
// runs behind a worker so concurrent callers never overlap inference; the
// remote embedder is rate limited when remote_rpm is set. A missing
// OPENAI_API_KEY just leaves the remote strategy unconfigured.
func buildGateway(cfg *config.Config) *embeddings.Gateway {
	var local embeddings.Embedder
	if cfg.LocalModel != "" {
		local = embeddings.NewWorker(
			embeddings.NewOllamaEmbedder(cfg.LocalModel, cfg.LocalDimensions, cfg.OllamaHost))
	}

	var remote embeddings.Embedder
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		remote = embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(cfg.RemoteModel))
		if cfg.RemoteRPM > 0 {
			remote = embeddings.NewRateLimitedEmbedder(remote, cfg.RemoteRPM)
		}
	}

	return embeddings.NewGateway(local, remote)
}

// buildStore opens the configured vector store.
func buildStore(cfg *config.Config) (vectordb.Store, error) {
	switch cfg.Store {
	case config.StoreQdrant:
		return vectordb.NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey), nil
	default:
		store, err := vectordb.NewPersistentChromemStore(filepath.Join(cfg.DataDir, "vectors"))
		if err != nil {
			return nil, fmt.Errorf("opening vector store: %w", err)
		}
		return store, nil
	}
}

// openCatalog opens the project catalog under the data dir.
func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.Open(filepath.Join(cfg.DataDir, "catalog.db"))
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	return cat, nil
}

// buildOrchestrator wires the full retrieval pipeline from config.
func buildOrchestrator(cfg *config.Config, reporter progress.Reporter) (*retrieval.Orchestrator, *catalog.Catalog, error) {
	store, err := buildStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return nil, nil, err
	}

	ch := chunker.New()
	ch.MaxLines = cfg.ChunkMaxLines
	ch.MinLines = cfg.ChunkMinLines

	opts := []retrieval.Option{
		retrieval.WithCatalog(cat),
		retrieval.WithChunker(ch),
	}
	if reporter != nil {
		opts = append(opts, retrieval.WithReporter(reporter))
	}

	return retrieval.New(buildGateway(cfg), store, opts...), cat, nil
}

// createLLMProviderFromConfig creates an LLM provider based on config settings.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	return llm.NewProvider(cfg.LLMProvider, cfg.LLMModel)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
