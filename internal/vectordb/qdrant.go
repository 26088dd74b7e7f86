package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// QdrantStore implements Store against a Qdrant server's REST API.
type QdrantStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewQdrantStore creates a client for the Qdrant server at baseURL
// (for example http://localhost:6333). apiKey may be empty.
func NewQdrantStore(baseURL, apiKey string) *QdrantStore {
	return &QdrantStore{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// request sends a JSON request and decodes the response body into out when
// out is non-nil. It returns the HTTP status code so callers can distinguish
// expected statuses (404 for missing collections, 409 for creation races).
func (s *QdrantStore) request(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("vectordb: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("vectordb: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("vectordb: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("vectordb: decode response from %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

type qdrantCollectionInfo struct {
	Result struct {
		PointsCount int `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

func (s *QdrantStore) getCollection(ctx context.Context, name string) (*qdrantCollectionInfo, error) {
	var info qdrantCollectionInfo
	status, err := s.request(ctx, http.MethodGet, "/collections/"+url.PathEscape(name), nil, &info)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return &info, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: collection %q", ErrNotFound, name)
	default:
		return nil, fmt.Errorf("vectordb: get collection %q: status %d", name, status)
	}
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("vectordb: invalid dimension %d for collection %q", dimension, name)
	}

	info, err := s.getCollection(ctx, name)
	if err == nil {
		if got := info.Result.Config.Params.Vectors.Size; got != dimension {
			return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
				ErrDimensionMismatch, name, got, dimension)
		}
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, err := s.request(ctx, http.MethodPut, "/collections/"+url.PathEscape(name), body, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		// Lost a creation race; verify the winner's dimension matches.
		info, err := s.getCollection(ctx, name)
		if err != nil {
			return err
		}
		if got := info.Result.Config.Params.Vectors.Size; got != dimension {
			return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
				ErrDimensionMismatch, name, got, dimension)
		}
		return nil
	default:
		return fmt.Errorf("vectordb: create collection %q: status %d", name, status)
	}
}

type qdrantPoint struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	info, err := s.getCollection(ctx, collection)
	if err != nil {
		return err
	}
	want := info.Result.Config.Params.Vectors.Size
	for i, p := range points {
		if len(p.Vector) != want {
			return fmt.Errorf("%w: point %d has dimension %d, collection %q expects %d",
				ErrDimensionMismatch, i, len(p.Vector), collection, want)
		}
	}

	wire := make([]qdrantPoint, len(points))
	for i, p := range points {
		wire[i] = qdrantPoint{ID: pointID(p), Vector: p.Vector, Payload: p.Payload}
	}

	status, err := s.request(ctx, http.MethodPut,
		"/collections/"+url.PathEscape(collection)+"/points?wait=true",
		map[string]any{"points": wire}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("vectordb: upsert into %q: status %d", collection, status)
	}
	return nil
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

func buildFilter(filter map[string]string) *qdrantFilter {
	if len(filter) == 0 {
		return nil
	}
	f := &qdrantFilter{}
	for key, value := range filter {
		var cond qdrantCondition
		cond.Key = key
		cond.Match.Value = value
		f.Must = append(f.Must, cond)
	}
	return f
}

type qdrantSearchRequest struct {
	Vector         []float32     `json:"vector"`
	Limit          int           `json:"limit"`
	WithPayload    bool          `json:"with_payload"`
	ScoreThreshold *float32      `json:"score_threshold,omitempty"`
	Filter         *qdrantFilter `json:"filter,omitempty"`
}

type qdrantHit struct {
	ID      any     `json:"id"`
	Score   float32 `json:"score"`
	Payload Payload `json:"payload"`
}

func (h qdrantHit) id() string {
	switch v := h.ID.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}

func newSearchRequest(vector []float32, opts SearchOptions) qdrantSearchRequest {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return qdrantSearchRequest{
		Vector:         vector,
		Limit:          limit,
		WithPayload:    true,
		ScoreThreshold: opts.ScoreThreshold,
		Filter:         buildFilter(opts.Filter),
	}
}

func hitsToResults(hits []qdrantHit) []SearchResult {
	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{ID: h.id(), Score: h.Score, Payload: h.Payload}
	}
	return results
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	var resp struct {
		Result []qdrantHit `json:"result"`
	}
	status, err := s.request(ctx, http.MethodPost,
		"/collections/"+url.PathEscape(collection)+"/points/search",
		newSearchRequest(vector, opts), &resp)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return hitsToResults(resp.Result), nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: collection %q", ErrNotFound, collection)
	default:
		return nil, fmt.Errorf("vectordb: search %q: status %d", collection, status)
	}
}

func (s *QdrantStore) BatchSearch(ctx context.Context, collection string, vectors [][]float32, opts SearchOptions) ([][]SearchResult, error) {
	if len(vectors) == 0 {
		return nil, nil
	}

	searches := make([]qdrantSearchRequest, len(vectors))
	for i, vector := range vectors {
		searches[i] = newSearchRequest(vector, opts)
	}

	var resp struct {
		Result [][]qdrantHit `json:"result"`
	}
	status, err := s.request(ctx, http.MethodPost,
		"/collections/"+url.PathEscape(collection)+"/points/search/batch",
		map[string]any{"searches": searches}, &resp)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: collection %q", ErrNotFound, collection)
	default:
		return nil, fmt.Errorf("vectordb: batch search %q: status %d", collection, status)
	}

	if len(resp.Result) != len(vectors) {
		return nil, fmt.Errorf("vectordb: batch search %q: %d result lists for %d queries",
			collection, len(resp.Result), len(vectors))
	}
	results := make([][]SearchResult, len(resp.Result))
	for i, hits := range resp.Result {
		results[i] = hitsToResults(hits)
	}
	return results, nil
}

func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	status, err := s.request(ctx, http.MethodPost,
		"/collections/"+url.PathEscape(collection)+"/points/delete?wait=true",
		map[string]any{"points": ids}, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: collection %q", ErrNotFound, collection)
	default:
		return fmt.Errorf("vectordb: delete from %q: status %d", collection, status)
	}
}

func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	status, err := s.request(ctx, http.MethodGet, "/collections", nil, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("vectordb: list collections: status %d", status)
	}

	names := make([]string, len(resp.Result.Collections))
	for i, c := range resp.Result.Collections {
		names[i] = c.Name
	}
	return names, nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	status, err := s.request(ctx, http.MethodDelete, "/collections/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: collection %q", ErrNotFound, name)
	default:
		return fmt.Errorf("vectordb: delete collection %q: status %d", name, status)
	}
}

func (s *QdrantStore) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	info, err := s.getCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Name:      name,
		Dimension: info.Result.Config.Params.Vectors.Size,
		Points:    info.Result.PointsCount,
	}, nil
}
