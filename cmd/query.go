package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/codectx/internal/embeddings"
	"github.com/ziadkadry99/codectx/internal/llm"
	"github.com/ziadkadry99/codectx/internal/retrieval"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about an indexed project",
	Long: `Retrieves the most relevant code chunks for the question and asks the
configured LLM to answer using them as context.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("project", "", "project id (defaults to the shared collection)")
	queryCmd.Flags().Int("limit", 0, "number of context snippets (default 3)")
	queryCmd.Flags().Float32("threshold", 0, "minimum similarity for context snippets (default 0.7)")
	queryCmd.Flags().Bool("no-stream", false, "wait for the full answer instead of streaming")
	rootCmd.AddCommand(queryCmd)
}

const querySystemPrompt = `You are a code assistant. Answer the user's question using the
provided code context. If the context does not contain the answer, say so
instead of guessing. Reference file paths when relevant.`

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	projectID, _ := cmd.Flags().GetString("project")
	limit, _ := cmd.Flags().GetInt("limit")
	threshold, _ := cmd.Flags().GetFloat32("threshold")
	noStream, _ := cmd.Flags().GetBool("no-stream")

	orch, cat, err := buildOrchestrator(cfg, nil)
	if err != nil {
		return err
	}
	defer cat.Close()

	retrieveReq := retrieval.SearchRequest{
		ProjectID: projectID,
		Query:     question,
		Limit:     limit,
		Strategy:  embeddings.Strategy(cfg.EmbeddingStrategy),
	}
	if threshold > 0 {
		retrieveReq.Threshold = &threshold
	}

	codeContext, err := orch.RetrieveContext(ctx, retrieveReq)
	if err != nil {
		return fmt.Errorf("retrieving context: %w", err)
	}
	if codeContext == "" {
		fmt.Println("No relevant code found. Run `codectx index` first, or rephrase the question.")
		return nil
	}

	provider, err := createLLMProviderFromConfig(cfg)
	if err != nil {
		return err
	}

	req := llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: querySystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Code context:\n\n%s\n\nQuestion: %s", codeContext, question)},
		},
	}

	if noStream {
		resp, err := provider.Complete(ctx, req)
		if err != nil {
			return fmt.Errorf("completion failed: %w", err)
		}
		fmt.Println(resp.Content)
		return nil
	}

	err = provider.Stream(ctx, req, func(delta string) error {
		_, werr := fmt.Fprint(os.Stdout, delta)
		return werr
	})
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}
	fmt.Println()
	return nil
}
