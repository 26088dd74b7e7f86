package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "codectx",
	Short: "Semantic code indexing and retrieval",
	Long: `Codectx chunks your codebase, embeds the chunks locally or through a
hosted API, and stores the vectors in a searchable index. Use it to pull
the most relevant code context into prompts, or to ask questions about a
project and get answers grounded in its own source.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".codectx.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
