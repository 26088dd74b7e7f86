package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeQdrant is a minimal in-memory Qdrant REST server covering the endpoints
// QdrantStore uses. It records requests for assertions.
type fakeQdrant struct {
	t *testing.T

	collections map[string]int // name -> dimension
	points      map[string][]qdrantPoint

	lastSearch map[string]any
	sawAPIKey  string
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	f := &fakeQdrant{
		t:           t,
		collections: make(map[string]int),
		points:      make(map[string][]qdrantPoint),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.sawAPIKey = r.Header.Get("api-key")

	var body map[string]any
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/collections":
		var names []map[string]string
		for name := range f.collections {
			names = append(names, map[string]string{"name": name})
		}
		writeJSON(w, map[string]any{"result": map[string]any{"collections": names}})

	case r.Method == http.MethodGet:
		name := collectionFromPath(r.URL.Path)
		dim, ok := f.collections[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"result": map[string]any{
			"points_count": len(f.points[name]),
			"config": map[string]any{"params": map[string]any{
				"vectors": map[string]any{"size": dim},
			}},
		}})

	case r.Method == http.MethodPut && pathSuffix(r.URL.Path) == "points":
		name := collectionFromPath(r.URL.Path)
		if r.URL.Query().Get("wait") != "true" {
			f.t.Error("upsert did not request wait=true")
		}
		raw, _ := json.Marshal(body["points"])
		var pts []qdrantPoint
		json.Unmarshal(raw, &pts)
		f.points[name] = append(f.points[name], pts...)
		writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}})

	case r.Method == http.MethodPut:
		name := collectionFromPath(r.URL.Path)
		if _, exists := f.collections[name]; exists {
			w.WriteHeader(http.StatusConflict)
			return
		}
		vectors := body["vectors"].(map[string]any)
		f.collections[name] = int(vectors["size"].(float64))
		writeJSON(w, map[string]any{"result": true})

	case r.Method == http.MethodPost && pathSuffix(r.URL.Path) == "batch":
		name := collectionFromPath(r.URL.Path)
		if _, ok := f.collections[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		searches := body["searches"].([]any)
		results := make([][]map[string]any, len(searches))
		for i := range searches {
			results[i] = f.hits(name)
		}
		writeJSON(w, map[string]any{"result": results})

	case r.Method == http.MethodPost && pathSuffix(r.URL.Path) == "search":
		name := collectionFromPath(r.URL.Path)
		if _, ok := f.collections[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.lastSearch = body
		writeJSON(w, map[string]any{"result": f.hits(name)})

	case r.Method == http.MethodPost && pathSuffix(r.URL.Path) == "delete":
		name := collectionFromPath(r.URL.Path)
		ids := body["points"].([]any)
		kept := f.points[name][:0]
		for _, p := range f.points[name] {
			deleted := false
			for _, id := range ids {
				if p.ID == id.(string) {
					deleted = true
				}
			}
			if !deleted {
				kept = append(kept, p)
			}
		}
		f.points[name] = kept
		writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}})

	case r.Method == http.MethodDelete:
		name := collectionFromPath(r.URL.Path)
		if _, ok := f.collections[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.collections, name)
		delete(f.points, name)
		writeJSON(w, map[string]any{"result": true})

	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeQdrant) hits(collection string) []map[string]any {
	var hits []map[string]any
	for i, p := range f.points[collection] {
		hits = append(hits, map[string]any{
			"id":      p.ID,
			"score":   0.9 - float64(i)*0.1,
			"payload": p.Payload,
		})
	}
	return hits
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func collectionFromPath(path string) string {
	// /collections/<name>[/points[...]]
	rest := path[len("/collections/"):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i]
		}
	}
	return rest
}

func pathSuffix(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func TestQdrantStore_EnsureCollection(t *testing.T) {
	f, srv := newFakeQdrant(t)
	s := NewQdrantStore(srv.URL, "secret")
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, "project_p1", 1536); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if f.collections["project_p1"] != 1536 {
		t.Errorf("created dimension = %d, want 1536", f.collections["project_p1"])
	}
	if f.sawAPIKey != "secret" {
		t.Errorf("api-key header = %q, want secret", f.sawAPIKey)
	}

	// Ensuring again with the same dimension is a no-op.
	if err := s.EnsureCollection(ctx, "project_p1", 1536); err != nil {
		t.Errorf("re-EnsureCollection: %v", err)
	}
	// A different dimension for the same collection is rejected.
	if err := s.EnsureCollection(ctx, "project_p1", 384); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("EnsureCollection with different dimension = %v, want ErrDimensionMismatch", err)
	}
}

func TestQdrantStore_UpsertAndSearch(t *testing.T) {
	f, srv := newFakeQdrant(t)
	s := NewQdrantStore(srv.URL, "")
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, "project_p1", 2); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	points := []Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: Payload{
			ProjectID: "p1", FilePath: "main.go", ChunkType: "code_block",
			StartLine: 1, EndLine: 50, Text: "package main",
		}},
		{Vector: []float32{0, 1}, Payload: Payload{ProjectID: "p1", Text: "second"}},
	}
	if err := s.Upsert(ctx, "project_p1", points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(f.points["project_p1"]) != 2 {
		t.Fatalf("server holds %d points, want 2", len(f.points["project_p1"]))
	}
	if f.points["project_p1"][1].ID == "" {
		t.Error("point without caller id was not assigned a uuid")
	}

	threshold := float32(0.7)
	results, err := s.Search(ctx, "project_p1", []float32{1, 0}, SearchOptions{
		Limit:          3,
		ScoreThreshold: &threshold,
		Filter:         map[string]string{"project_id": "p1"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "a" || results[0].Payload.Text != "package main" {
		t.Errorf("first result = %+v, want id a with original payload", results[0])
	}

	// The wire request carries limit, threshold and a must-match filter.
	if f.lastSearch["limit"].(float64) != 3 {
		t.Errorf("wire limit = %v, want 3", f.lastSearch["limit"])
	}
	if f.lastSearch["score_threshold"].(float64) != 0.7 {
		t.Errorf("wire score_threshold = %v, want 0.7", f.lastSearch["score_threshold"])
	}
	filter := f.lastSearch["filter"].(map[string]any)
	must := filter["must"].([]any)
	cond := must[0].(map[string]any)
	if cond["key"] != "project_id" {
		t.Errorf("filter key = %v, want project_id", cond["key"])
	}
}

func TestQdrantStore_UpsertDimensionMismatch(t *testing.T) {
	_, srv := newFakeQdrant(t)
	s := NewQdrantStore(srv.URL, "")
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, "c", 2); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	err := s.Upsert(ctx, "c", []Point{{Vector: []float32{1, 2, 3}}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Upsert error = %v, want ErrDimensionMismatch", err)
	}
}

func TestQdrantStore_BatchSearchOrder(t *testing.T) {
	_, srv := newFakeQdrant(t)
	s := NewQdrantStore(srv.URL, "")
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, "c", 2); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if err := s.Upsert(ctx, "c", []Point{{ID: "a", Vector: []float32{1, 0}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.BatchSearch(ctx, "c", [][]float32{{1, 0}, {0, 1}}, SearchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("BatchSearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d result lists, want 2", len(results))
	}

	empty, err := s.BatchSearch(ctx, "c", nil, SearchOptions{})
	if err != nil || empty != nil {
		t.Errorf("BatchSearch(nil) = %v, %v; want nil, nil", empty, err)
	}
}

func TestQdrantStore_Delete(t *testing.T) {
	f, srv := newFakeQdrant(t)
	s := NewQdrantStore(srv.URL, "")
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, "c", 2); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	points := []Point{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
	}
	if err := s.Upsert(ctx, "c", points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := s.Delete(ctx, "c", []string{"a"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(f.points["c"]) != 1 || f.points["c"][0].ID != "b" {
		t.Errorf("server points after delete = %+v, want only b", f.points["c"])
	}

	if err := s.Delete(ctx, "c", nil); err != nil {
		t.Errorf("Delete with no ids: %v", err)
	}
}

func TestQdrantStore_CollectionLifecycle(t *testing.T) {
	_, srv := newFakeQdrant(t)
	s := NewQdrantStore(srv.URL, "")
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, DefaultCollection, 1536); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	names, err := s.ListCollections(ctx)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(names) != 1 || names[0] != DefaultCollection {
		t.Errorf("ListCollections = %v, want [%s]", names, DefaultCollection)
	}

	info, err := s.CollectionInfo(ctx, DefaultCollection)
	if err != nil {
		t.Fatalf("CollectionInfo: %v", err)
	}
	if info.Dimension != 1536 || info.Points != 0 {
		t.Errorf("CollectionInfo = %+v, want dimension 1536 and 0 points", info)
	}

	if err := s.DeleteCollection(ctx, DefaultCollection); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if _, err := s.CollectionInfo(ctx, DefaultCollection); !errors.Is(err, ErrNotFound) {
		t.Errorf("CollectionInfo after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteCollection(ctx, DefaultCollection); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteCollection = %v, want ErrNotFound", err)
	}
}

func TestQdrantStore_SearchMissingCollection(t *testing.T) {
	_, srv := newFakeQdrant(t)
	s := NewQdrantStore(srv.URL, "")

	_, err := s.Search(context.Background(), "absent", []float32{1, 0}, SearchOptions{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Search error = %v, want ErrNotFound", err)
	}
}
