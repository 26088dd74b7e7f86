package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/codectx/internal/embeddings"
	"github.com/ziadkadry99/codectx/internal/progress"
	"github.com/ziadkadry99/codectx/internal/retrieval"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a project directory for semantic retrieval",
	Long: `Walks the project directory, splits every source file into chunks,
embeds the chunks and stores the vectors in the project's collection.
Re-running index appends the current state of the code to the collection.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().String("project", "", "project id (defaults to the directory name)")
	indexCmd.Flags().String("strategy", "", "embedding strategy: local or remote (defaults to config)")
	indexCmd.Flags().StringSlice("include", nil, "glob patterns to include (defaults to config)")
	indexCmd.Flags().StringSlice("exclude", nil, "glob patterns to exclude")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rootDir := "."
	if len(args) == 1 {
		rootDir = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	projectID, _ := cmd.Flags().GetString("project")
	if projectID == "" {
		abs, err := filepath.Abs(rootDir)
		if err != nil {
			return fmt.Errorf("resolving project path: %w", err)
		}
		projectID = filepath.Base(abs)
	}

	strategy, _ := cmd.Flags().GetString("strategy")
	if strategy == "" {
		strategy = cfg.EmbeddingStrategy
	}

	include, _ := cmd.Flags().GetStringSlice("include")
	if len(include) == 0 {
		include = cfg.Include
	}
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	exclude = append(exclude, cfg.Exclude...)

	orch, cat, err := buildOrchestrator(cfg, progress.NewReporter())
	if err != nil {
		return err
	}
	defer cat.Close()

	report, err := orch.IndexProject(ctx, retrieval.IndexRequest{
		ProjectID: projectID,
		RootDir:   rootDir,
		Include:   include,
		Exclude:   exclude,
		Strategy:  embeddings.Strategy(strategy),
	})
	if err != nil {
		return fmt.Errorf("indexing %s: %w", projectID, err)
	}

	fmt.Printf("Indexed project %q: %d files, %d chunks in %s\n",
		projectID, report.Files, report.Chunks, report.Duration.Round(10*time.Millisecond))
	if len(report.Skipped) > 0 {
		fmt.Printf("Skipped %d unreadable files:\n  %s\n",
			len(report.Skipped), strings.Join(report.Skipped, "\n  "))
	}
	return nil
}
