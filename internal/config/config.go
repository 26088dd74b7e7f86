package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultConfigPath is the conventional config file name, looked up in the
// working directory.
const DefaultConfigPath = ".codectx.yml"

// DefaultConfig returns a Config with sensible defaults: local embeddings
// through Ollama and the embedded vector store.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingStrategy: "local",
		LocalModel:        "all-minilm",
		LocalDimensions:   384,
		OllamaHost:        "http://localhost:11434",
		RemoteModel:       "text-embedding-3-small",
		RemoteRPM:         60,
		Store:             StoreChromem,
		DataDir:           ".codectx",
		QdrantURL:         "http://localhost:6333",
		LLMProvider:       "ollama",
		LLMModel:          "llama3",
		ChunkMaxLines:     50,
		ChunkMinLines:     10,
	}
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CODECTX_*). A missing file is not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: CODECTX_STORE -> store, etc.
	if err := k.Load(env.Provider("CODECTX_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "CODECTX_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLLMProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"ollama":    true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	switch c.EmbeddingStrategy {
	case "local", "remote":
	default:
		return fmt.Errorf("invalid embedding_strategy %q: must be local or remote", c.EmbeddingStrategy)
	}

	switch c.Store {
	case StoreChromem, StoreQdrant:
	default:
		return fmt.Errorf("invalid store %q: must be chromem or qdrant", c.Store)
	}
	if c.Store == StoreQdrant && c.QdrantURL == "" {
		return fmt.Errorf("qdrant_url is required when store is qdrant")
	}
	if c.Store == StoreChromem && c.DataDir == "" {
		return fmt.Errorf("data_dir is required when store is chromem")
	}

	if c.LLMProvider != "" && !validLLMProviders[c.LLMProvider] {
		return fmt.Errorf("invalid llm_provider %q: must be one of anthropic, openai, ollama", c.LLMProvider)
	}

	if c.ChunkMaxLines <= 0 {
		return fmt.Errorf("chunk_max_lines must be positive")
	}
	if c.ChunkMinLines <= 0 || c.ChunkMinLines >= c.ChunkMaxLines {
		return fmt.Errorf("chunk_min_lines must be positive and below chunk_max_lines")
	}

	if c.LocalDimensions <= 0 {
		return fmt.Errorf("local_dimensions must be positive")
	}
	if c.RemoteRPM < 0 {
		return fmt.Errorf("remote_rpm must be non-negative")
	}

	return nil
}
