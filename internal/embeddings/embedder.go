package embeddings

import (
	"context"
	"errors"
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts, one vector per
	// input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}

var (
	// ErrNotConfigured is returned when no embedding strategy is available
	// for a request.
	ErrNotConfigured = errors.New("embeddings: no embedding provider configured")

	// ErrProvider is returned when every configured strategy failed for a
	// request.
	ErrProvider = errors.New("embeddings: provider request failed")
)
