package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/codectx/internal/embeddings"
	"github.com/ziadkadry99/codectx/internal/retrieval"
	"github.com/ziadkadry99/codectx/internal/vectordb"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantically search an indexed project",
	Long:  `Embeds the query and returns the most similar code chunks with their file locations and similarity scores.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().String("project", "", "project id (defaults to the shared collection)")
	searchCmd.Flags().Int("limit", 10, "maximum number of results")
	searchCmd.Flags().Float32("threshold", 0, "minimum similarity score (0 disables filtering)")
	searchCmd.Flags().String("strategy", "", "embedding strategy: local or remote (defaults to config)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	projectID, _ := cmd.Flags().GetString("project")
	limit, _ := cmd.Flags().GetInt("limit")
	threshold, _ := cmd.Flags().GetFloat32("threshold")
	strategy, _ := cmd.Flags().GetString("strategy")
	if strategy == "" {
		strategy = cfg.EmbeddingStrategy
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	orch, cat, err := buildOrchestrator(cfg, nil)
	if err != nil {
		return err
	}
	defer cat.Close()

	req := retrieval.SearchRequest{
		ProjectID: projectID,
		Query:     args[0],
		Limit:     limit,
		Strategy:  embeddings.Strategy(strategy),
	}
	if threshold > 0 {
		req.Threshold = &threshold
	}

	results, err := orch.SearchProject(ctx, req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if jsonOutput {
		return printSearchResultsJSON(results)
	}
	printSearchResultsTable(results)
	return nil
}

type searchResultJSON struct {
	Rank      int     `json:"rank"`
	Score     float32 `json:"score"`
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Text      string  `json:"text"`
}

func printSearchResultsJSON(results []vectordb.SearchResult) error {
	var out []searchResultJSON
	for i, r := range results {
		out = append(out, searchResultJSON{
			Rank:      i + 1,
			Score:     r.Score,
			FilePath:  r.Payload.FilePath,
			StartLine: r.Payload.StartLine,
			EndLine:   r.Payload.EndLine,
			Text:      r.Payload.Text,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printSearchResultsTable(results []vectordb.SearchResult) {
	fmt.Printf("Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Printf("  %d. [%.1f%%] %s:%d-%d\n",
			i+1, r.Score*100, r.Payload.FilePath, r.Payload.StartLine, r.Payload.EndLine)
		fmt.Printf("     %s\n\n", truncate(r.Payload.Text, 120))
	}
}
