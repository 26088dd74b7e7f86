package vectordb

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a collection (or point) does not exist.
	ErrNotFound = errors.New("vectordb: not found")

	// ErrDimensionMismatch is returned when a vector's dimension does not
	// match the dimension the collection was created with.
	ErrDimensionMismatch = errors.New("vectordb: vector dimension mismatch")
)

// DefaultCollection is the shared collection used for generic context
// retrieval, as opposed to the per-project collections.
const DefaultCollection = "code_embeddings"

// CollectionForProject returns the collection name for a project's index.
func CollectionForProject(projectID string) string {
	return "project_" + projectID
}

const defaultSearchLimit = 10

// Payload is the metadata stored alongside every vector. The field names are
// part of the stored schema and must not change.
type Payload struct {
	ProjectID string `json:"project_id"`
	FilePath  string `json:"file_path"`
	ChunkType string `json:"chunk_type"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
}

// Point is a vector plus its payload. When ID is empty the store assigns a
// fresh UUID, which means re-indexing without caller-supplied ids appends new
// points rather than overwriting; idempotent re-indexing requires the caller
// to derive stable ids (for example from project, file and chunk index).
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchResult pairs a stored point with its similarity score.
type SearchResult struct {
	ID      string
	Score   float32
	Payload Payload
}

// SearchOptions narrows a search. A nil ScoreThreshold disables threshold
// filtering; Filter is an exact-match conjunction over payload fields.
type SearchOptions struct {
	Limit          int
	ScoreThreshold *float32
	Filter         map[string]string
}

// CollectionInfo describes a collection. Dimension may be zero when the
// backing store does not expose it.
type CollectionInfo struct {
	Name      string
	Dimension int
	Points    int
}

// Store abstracts a vector database holding named, dimension-fixed
// collections of points. Implementations validate vector dimensions before
// every upsert and search and fail with ErrDimensionMismatch on conflict.
type Store interface {
	// EnsureCollection creates the collection if absent. Losing a creation
	// race to a concurrent caller is not an error.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert writes points into the collection. An empty slice is a no-op
	// that succeeds.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to opts.Limit results ordered by descending score,
	// each carrying its full payload and satisfying the score threshold
	// when one is set.
	Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]SearchResult, error)

	// BatchSearch runs one search per query vector and returns result lists
	// in query order.
	BatchSearch(ctx context.Context, collection string, vectors [][]float32, opts SearchOptions) ([][]SearchResult, error)

	// Delete removes points by id. Deleting a non-existent id is not an
	// error.
	Delete(ctx context.Context, collection string, ids []string) error

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// DeleteCollection removes a collection and all its points.
	DeleteCollection(ctx context.Context, name string) error

	// CollectionInfo describes a collection, or ErrNotFound.
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)
}

// pointID returns the caller-supplied id or a fresh UUID.
func pointID(p Point) string {
	if p.ID != "" {
		return p.ID
	}
	return uuid.NewString()
}
