package config

// StoreBackend identifies a vector store implementation.
type StoreBackend string

const (
	// StoreChromem is the embedded store persisted under the data dir.
	StoreChromem StoreBackend = "chromem"
	// StoreQdrant targets an external Qdrant server over REST.
	StoreQdrant StoreBackend = "qdrant"
)

// Config is the top-level codectx configuration, corresponding to .codectx.yml.
type Config struct {
	// Embedding pipeline.
	EmbeddingStrategy string `yaml:"embedding_strategy" koanf:"embedding_strategy"`
	LocalModel        string `yaml:"local_model" koanf:"local_model"`
	LocalDimensions   int    `yaml:"local_dimensions" koanf:"local_dimensions"`
	OllamaHost        string `yaml:"ollama_host" koanf:"ollama_host"`
	RemoteModel       string `yaml:"remote_model" koanf:"remote_model"`
	RemoteRPM         int    `yaml:"remote_rpm" koanf:"remote_rpm"`

	// Vector store.
	Store        StoreBackend `yaml:"store" koanf:"store"`
	DataDir      string       `yaml:"data_dir" koanf:"data_dir"`
	QdrantURL    string       `yaml:"qdrant_url" koanf:"qdrant_url"`
	QdrantAPIKey string       `yaml:"qdrant_api_key" koanf:"qdrant_api_key"`

	// Query answering.
	LLMProvider string `yaml:"llm_provider" koanf:"llm_provider"`
	LLMModel    string `yaml:"llm_model" koanf:"llm_model"`

	// Chunking.
	ChunkMaxLines int `yaml:"chunk_max_lines" koanf:"chunk_max_lines"`
	ChunkMinLines int `yaml:"chunk_min_lines" koanf:"chunk_min_lines"`

	// File selection.
	Include []string `yaml:"include" koanf:"include"`
	Exclude []string `yaml:"exclude" koanf:"exclude"`
}
