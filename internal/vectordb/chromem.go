package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// dimsFile is the registry of collection dimensions kept next to the
// chromem data. chromem offers no way to read collection metadata back
// after reopening, so the store persists dimensions on its own.
const dimsFile = "dimensions.json"

// ChromemStore implements Store in-process using chromem-go. Vectors are
// always precomputed by the caller; the store never embeds text itself.
type ChromemStore struct {
	db *chromem.DB

	mu       sync.Mutex
	dims     map[string]int
	dimsPath string // empty for in-memory stores
}

// NewChromemStore creates an in-memory ChromemStore.
func NewChromemStore() *ChromemStore {
	return &ChromemStore{
		db:   chromem.NewDB(),
		dims: make(map[string]int),
	}
}

// NewPersistentChromemStore creates a ChromemStore persisted under dir.
// Collection dimensions recorded by a previous process are restored from
// the registry file.
func NewPersistentChromemStore(dir string) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(dir, true)
	if err != nil {
		return nil, fmt.Errorf("open persistent store at %s: %w", dir, err)
	}
	s := &ChromemStore{
		db:       db,
		dims:     make(map[string]int),
		dimsPath: filepath.Join(dir, dimsFile),
	}
	if err := s.loadDims(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChromemStore) loadDims() error {
	data, err := os.ReadFile(s.dimsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("vectordb: read dimension registry: %w", err)
	}
	if err := json.Unmarshal(data, &s.dims); err != nil {
		return fmt.Errorf("vectordb: parse dimension registry: %w", err)
	}
	return nil
}

// saveDims writes the dimension registry. Callers hold s.mu.
func (s *ChromemStore) saveDims() error {
	if s.dimsPath == "" {
		return nil
	}
	data, err := json.Marshal(s.dims)
	if err != nil {
		return fmt.Errorf("vectordb: encode dimension registry: %w", err)
	}
	if err := os.WriteFile(s.dimsPath, data, 0o644); err != nil {
		return fmt.Errorf("vectordb: write dimension registry: %w", err)
	}
	return nil
}

// noEmbedding guards against accidental text queries: every vector entering
// this store is computed by the embedding gateway, never by chromem.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("vectordb: collection requires precomputed vectors")
}

func (s *ChromemStore) EnsureCollection(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("vectordb: invalid dimension %d for collection %q", dimension, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.dims[name]; ok && existing != dimension {
		return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
			ErrDimensionMismatch, name, existing, dimension)
	}

	meta := map[string]string{"dimension": strconv.Itoa(dimension)}
	if _, err := s.db.GetOrCreateCollection(name, meta, noEmbedding); err != nil {
		return fmt.Errorf("vectordb: create collection %q: %w", name, err)
	}

	s.dims[name] = dimension
	return s.saveDims()
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	col := s.db.GetCollection(name, noEmbedding)
	if col == nil {
		return nil, fmt.Errorf("%w: collection %q", ErrNotFound, name)
	}
	return col, nil
}

// checkDimension validates an incoming vector length against the collection's
// recorded dimension. A collection with no record (created before the
// registry file existed) is fixed by the first vector seen.
func (s *ChromemStore) checkDimension(name string, got int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want, ok := s.dims[name]
	if !ok {
		s.dims[name] = got
		return s.saveDims()
	}
	if want != got {
		return fmt.Errorf("%w: collection %q expects dimension %d, got %d",
			ErrDimensionMismatch, name, want, got)
	}
	return nil
}

func (s *ChromemStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	if err := s.checkDimension(collection, len(points[0].Vector)); err != nil {
		return err
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		if len(p.Vector) != len(points[0].Vector) {
			return fmt.Errorf("%w: point %d has dimension %d, batch has %d",
				ErrDimensionMismatch, i, len(p.Vector), len(points[0].Vector))
		}
		docs[i] = chromem.Document{
			ID:        pointID(p),
			Embedding: p.Vector,
			Content:   p.Payload.Text,
			Metadata:  payloadMetadata(p.Payload),
		}
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("vectordb: upsert into %q: %w", collection, err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	if err := s.checkDimension(collection, len(vector)); err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	// chromem requires nResults <= collection size.
	if limit > count {
		limit = count
	}

	results, err := col.QueryEmbedding(ctx, vector, limit, opts.Filter, nil)
	if err != nil {
		return nil, fmt.Errorf("vectordb: search %q: %w", collection, err)
	}

	searchResults := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if opts.ScoreThreshold != nil && r.Similarity < *opts.ScoreThreshold {
			continue
		}
		searchResults = append(searchResults, SearchResult{
			ID:      r.ID,
			Score:   r.Similarity,
			Payload: metadataPayload(r.Content, r.Metadata),
		})
	}
	return searchResults, nil
}

func (s *ChromemStore) BatchSearch(ctx context.Context, collection string, vectors [][]float32, opts SearchOptions) ([][]SearchResult, error) {
	results := make([][]SearchResult, len(vectors))
	for i, vector := range vectors {
		r, err := s.Search(ctx, collection, vector, opts)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return results, nil
}

func (s *ChromemStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("vectordb: delete from %q: %w", collection, err)
	}
	return nil
}

func (s *ChromemStore) ListCollections(context.Context) ([]string, error) {
	collections := s.db.ListCollections()
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *ChromemStore) DeleteCollection(_ context.Context, name string) error {
	if s.db.GetCollection(name, noEmbedding) == nil {
		return fmt.Errorf("%w: collection %q", ErrNotFound, name)
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("vectordb: delete collection %q: %w", name, err)
	}

	s.mu.Lock()
	delete(s.dims, name)
	err := s.saveDims()
	s.mu.Unlock()
	return err
}

func (s *ChromemStore) CollectionInfo(_ context.Context, name string) (*CollectionInfo, error) {
	col, err := s.collection(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	dim := s.dims[name]
	s.mu.Unlock()

	return &CollectionInfo{
		Name:      name,
		Dimension: dim,
		Points:    col.Count(),
	}, nil
}

// payloadMetadata flattens a Payload into chromem metadata. The chunk text
// lives in the document content, not the metadata.
func payloadMetadata(p Payload) map[string]string {
	return map[string]string{
		"project_id": p.ProjectID,
		"file_path":  p.FilePath,
		"chunk_type": p.ChunkType,
		"start_line": strconv.Itoa(p.StartLine),
		"end_line":   strconv.Itoa(p.EndLine),
	}
}

func metadataPayload(content string, md map[string]string) Payload {
	startLine, _ := strconv.Atoi(md["start_line"])
	endLine, _ := strconv.Atoi(md["end_line"])
	return Payload{
		ProjectID: md["project_id"],
		FilePath:  md["file_path"],
		ChunkType: md["chunk_type"],
		StartLine: startLine,
		EndLine:   endLine,
		Text:      content,
	}
}
