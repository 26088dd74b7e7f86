package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/codectx/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize codectx configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure codectx for your project and generates a .codectx.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
