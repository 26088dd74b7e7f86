package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a project does not exist in the catalog.
var ErrNotFound = errors.New("catalog: project not found")

// Catalog records indexed projects and their indexing runs in SQLite, so the
// CLI can list what has been indexed without querying the vector store.
type Catalog struct {
	db *sql.DB
}

// Open creates or opens a catalog database at the given path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging catalog: %w", err)
	}

	c := &Catalog{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return c, nil
}

// OpenMemory creates an in-memory catalog (useful for testing).
func OpenMemory() (*Catalog, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory catalog: %w", err)
	}
	// Each pooled connection would otherwise see its own empty memory db.
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return c, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) migrate() error {
	_, err := c.db.Exec(schema)
	return err
}

// schema contains the full catalog schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    root_dir TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS index_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    files INTEGER NOT NULL DEFAULT 0,
    chunks INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    strategy TEXT NOT NULL DEFAULT 'local',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_index_runs_project ON index_runs(project_id, created_at);
`

// Project is an indexed codebase known to the catalog.
type Project struct {
	ID        string
	Name      string
	RootDir   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IndexRun records the outcome of one indexing pass over a project.
type IndexRun struct {
	ID        int64
	ProjectID string
	Files     int
	Chunks    int
	Skipped   int
	Strategy  string
	Duration  time.Duration
	CreatedAt time.Time
}

// SaveProject inserts the project or refreshes its name, root directory and
// updated_at timestamp if it already exists.
func (c *Catalog) SaveProject(ctx context.Context, p Project) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, root_dir) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			root_dir = excluded.root_dir,
			updated_at = datetime('now')`,
		p.ID, p.Name, p.RootDir)
	if err != nil {
		return fmt.Errorf("saving project %s: %w", p.ID, err)
	}
	return nil
}

// Project returns a single project by id, or ErrNotFound.
func (c *Catalog) Project(ctx context.Context, id string) (*Project, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, root_dir, created_at, updated_at
		FROM projects WHERE id = ?`, id)

	var p Project
	var createdTS, updatedTS string
	err := row.Scan(&p.ID, &p.Name, &p.RootDir, &createdTS, &updatedTS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", id, err)
	}
	p.CreatedAt = parseTimestamp(createdTS)
	p.UpdatedAt = parseTimestamp(updatedTS)
	return &p, nil
}

// parseTimestamp decodes SQLite's datetime('now') text format. ISO-8601 with
// a T separator is accepted too.
func parseTimestamp(ts string) time.Time {
	if t, err := time.Parse(time.DateTime, ts); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05Z", ts); err == nil {
		return t
	}
	return time.Time{}
}

// Projects returns all known projects ordered by most recently updated.
func (c *Catalog) Projects(ctx context.Context) ([]Project, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, root_dir, created_at, updated_at
		FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var (
			p                  Project
			createdTS, updatedTS string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.RootDir, &createdTS, &updatedTS); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		p.CreatedAt = parseTimestamp(createdTS)
		p.UpdatedAt = parseTimestamp(updatedTS)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// RecordRun stores the outcome of an indexing pass. The project must exist.
func (c *Catalog) RecordRun(ctx context.Context, run IndexRun) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO index_runs (project_id, files, chunks, skipped, strategy, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ProjectID, run.Files, run.Chunks, run.Skipped, run.Strategy,
		run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("recording run for %s: %w", run.ProjectID, err)
	}
	return nil
}

// Runs returns a project's indexing runs, most recent first.
func (c *Catalog) Runs(ctx context.Context, projectID string) ([]IndexRun, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, project_id, files, chunks, skipped, strategy, duration_ms, created_at
		FROM index_runs WHERE project_id = ? ORDER BY created_at DESC, id DESC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("listing runs for %s: %w", projectID, err)
	}
	defer rows.Close()

	var runs []IndexRun
	for rows.Next() {
		var (
			r          IndexRun
			durationMs int64
			createdTS  string
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Files, &r.Chunks, &r.Skipped,
			&r.Strategy, &durationMs, &createdTS); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.CreatedAt = parseTimestamp(createdTS)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Stats aggregates a project's indexing history.
type Stats struct {
	Runs        int
	TotalChunks int
	LastIndexed time.Time
}

// ProjectStats summarizes the indexing runs recorded for a project.
func (c *Catalog) ProjectStats(ctx context.Context, projectID string) (*Stats, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(chunks), 0), COALESCE(MAX(created_at), '0001-01-01 00:00:00')
		FROM index_runs WHERE project_id = ?`, projectID)

	var (
		s      Stats
		lastTS string
	)
	if err := row.Scan(&s.Runs, &s.TotalChunks, &lastTS); err != nil {
		return nil, fmt.Errorf("aggregating stats for %s: %w", projectID, err)
	}
	s.LastIndexed = parseTimestamp(lastTS)
	return &s, nil
}

// DeleteProject removes a project and, via cascade, its runs.
func (c *Catalog) DeleteProject(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
