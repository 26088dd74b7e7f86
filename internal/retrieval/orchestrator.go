package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ziadkadry99/codectx/internal/catalog"
	"github.com/ziadkadry99/codectx/internal/chunker"
	"github.com/ziadkadry99/codectx/internal/embeddings"
	"github.com/ziadkadry99/codectx/internal/progress"
	"github.com/ziadkadry99/codectx/internal/vectordb"
	"github.com/ziadkadry99/codectx/internal/walker"
)

// Default retrieval parameters.
const (
	DefaultRetrieveLimit     = 3
	DefaultRetrieveThreshold = 0.7
)

// Orchestrator ties the pipeline together: it walks project files, chunks
// them, embeds the chunks through the gateway and stores the vectors, and
// answers retrieval queries against the stored index.
type Orchestrator struct {
	chunker  *chunker.Chunker
	gateway  *embeddings.Gateway
	store    vectordb.Store
	catalog  *catalog.Catalog
	reporter progress.Reporter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCatalog records projects and indexing runs in the given catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithReporter emits per-file progress during indexing.
func WithReporter(r progress.Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithChunker replaces the default chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(o *Orchestrator) { o.chunker = c }
}

// New creates an Orchestrator over the given gateway and store.
func New(gateway *embeddings.Gateway, store vectordb.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		chunker:  chunker.New(),
		gateway:  gateway,
		store:    store,
		reporter: progress.NullReporter{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// IndexRequest describes one indexing pass over a project directory.
type IndexRequest struct {
	ProjectID string
	RootDir   string
	Include   []string
	Exclude   []string
	Strategy  embeddings.Strategy
}

// IndexReport summarizes a completed indexing pass.
type IndexReport struct {
	Files    int           // Files successfully chunked and embedded.
	Chunks   int           // Chunks written to the vector store.
	Skipped  []string      // Relative paths of files that could not be read or embedded.
	Duration time.Duration
}

// IndexProject walks the project, chunks every file, embeds each file's
// chunks and writes the vectors to the project's collection. Files that
// cannot be read or embedded are skipped and reported, not fatal; the run
// succeeds iff the final upsert succeeds. The collection is created on
// first use with the active strategy's dimension.
func (o *Orchestrator) IndexProject(ctx context.Context, req IndexRequest) (*IndexReport, error) {
	if req.ProjectID == "" {
		return nil, errors.New("retrieval: project id is required")
	}

	started := time.Now()

	files, err := walker.Walk(walker.Config{
		RootDir: req.RootDir,
		Include: req.Include,
		Exclude: req.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: walk %s: %w", req.RootDir, err)
	}

	o.reporter.Start(len(files))
	defer o.reporter.Finish()

	report := &IndexReport{}
	var points []vectordb.Point

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.reporter.Update(i+1, file.RelPath)

		content, err := os.ReadFile(file.Path)
		if err != nil {
			report.Skipped = append(report.Skipped, file.RelPath)
			continue
		}

		fileChunks := o.chunker.Chunk(string(content), file.RelPath)
		texts := make([]string, len(fileChunks))
		for j := range fileChunks {
			fileChunks[j].ProjectID = req.ProjectID
			texts[j] = fileChunks[j].Text
		}

		vectors, err := o.gateway.EmbedBatch(ctx, texts, req.Strategy)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// One file's embedding failure must not sink the whole run.
			report.Skipped = append(report.Skipped, file.RelPath)
			continue
		}

		for j, c := range fileChunks {
			points = append(points, vectordb.Point{
				Vector: vectors[j],
				Payload: vectordb.Payload{
					ProjectID: c.ProjectID,
					FilePath:  c.FilePath,
					ChunkType: c.ChunkType,
					StartLine: c.StartLine,
					EndLine:   c.EndLine,
					Text:      c.Text,
				},
			})
		}
		report.Files++
	}

	dim, err := o.gateway.Dimension(req.Strategy)
	if err != nil {
		return nil, fmt.Errorf("retrieval: resolve dimension: %w", err)
	}

	collection := vectordb.CollectionForProject(req.ProjectID)
	if err := o.store.EnsureCollection(ctx, collection, dim); err != nil {
		return nil, fmt.Errorf("retrieval: ensure collection: %w", err)
	}

	if err := o.store.Upsert(ctx, collection, points); err != nil {
		return nil, fmt.Errorf("retrieval: store vectors: %w", err)
	}

	report.Chunks = len(points)
	report.Duration = time.Since(started)

	if o.catalog != nil {
		if err := o.recordRun(ctx, req, report); err != nil {
			return nil, err
		}
	}

	return report, nil
}

func (o *Orchestrator) recordRun(ctx context.Context, req IndexRequest, report *IndexReport) error {
	err := o.catalog.SaveProject(ctx, catalog.Project{
		ID:      req.ProjectID,
		Name:    req.ProjectID,
		RootDir: req.RootDir,
	})
	if err != nil {
		return fmt.Errorf("retrieval: record project: %w", err)
	}

	err = o.catalog.RecordRun(ctx, catalog.IndexRun{
		ProjectID: req.ProjectID,
		Files:     report.Files,
		Chunks:    report.Chunks,
		Skipped:   len(report.Skipped),
		Strategy:  string(req.Strategy.Resolve()),
		Duration:  report.Duration,
	})
	if err != nil {
		return fmt.Errorf("retrieval: record run: %w", err)
	}
	return nil
}

// SearchRequest describes a semantic search against a project's index. An
// empty ProjectID targets the shared default collection.
type SearchRequest struct {
	ProjectID string
	Query     string
	Limit     int
	Threshold *float32
	Strategy  embeddings.Strategy
}

func (r SearchRequest) collection() string {
	if r.ProjectID == "" {
		return vectordb.DefaultCollection
	}
	return vectordb.CollectionForProject(r.ProjectID)
}

// SearchProject embeds the query and returns the matching chunks with their
// scores and payloads.
func (o *Orchestrator) SearchProject(ctx context.Context, req SearchRequest) ([]vectordb.SearchResult, error) {
	if req.Query == "" {
		return nil, errors.New("retrieval: query is required")
	}

	vector, err := o.gateway.Embed(ctx, req.Query, req.Strategy)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultRetrieveLimit
	}

	results, err := o.store.Search(ctx, req.collection(), vector, vectordb.SearchOptions{
		Limit:          limit,
		ScoreThreshold: req.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}
	return results, nil
}

// RetrieveContext returns the text of the most relevant chunks joined by
// blank lines, for splicing into an LLM prompt. A zero Limit retrieves
// DefaultRetrieveLimit snippets and a nil Threshold applies
// DefaultRetrieveThreshold; results below the threshold are dropped. A
// project that was never indexed yields an empty context, not an error.
func (o *Orchestrator) RetrieveContext(ctx context.Context, req SearchRequest) (string, error) {
	if req.Limit <= 0 {
		req.Limit = DefaultRetrieveLimit
	}
	if req.Threshold == nil {
		threshold := float32(DefaultRetrieveThreshold)
		req.Threshold = &threshold
	}

	results, err := o.SearchProject(ctx, req)
	if errors.Is(err, vectordb.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Payload.Text
	}
	return strings.Join(texts, "\n\n"), nil
}

// DeleteProject removes a project's collection and its catalog entry.
func (o *Orchestrator) DeleteProject(ctx context.Context, projectID string) error {
	err := o.store.DeleteCollection(ctx, vectordb.CollectionForProject(projectID))
	if err != nil && !errors.Is(err, vectordb.ErrNotFound) {
		return fmt.Errorf("retrieval: delete collection: %w", err)
	}

	if o.catalog != nil {
		err := o.catalog.DeleteProject(ctx, projectID)
		if err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("retrieval: delete catalog entry: %w", err)
		}
	}
	return nil
}
