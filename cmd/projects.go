package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List indexed projects",
	RunE:  runProjects,
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete [project]",
	Short: "Delete a project's index and catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsDelete,
}

func init() {
	projectsCmd.AddCommand(projectsDeleteCmd)
	rootCmd.AddCommand(projectsCmd)
}

func runProjects(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	projects, err := cat.Projects(ctx)
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}
	if len(projects) == 0 {
		fmt.Println("No indexed projects. Run `codectx index` first.")
		return nil
	}

	for _, p := range projects {
		stats, err := cat.ProjectStats(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("loading stats for %s: %w", p.ID, err)
		}
		fmt.Printf("  %-20s %s\n", p.ID, p.RootDir)
		fmt.Printf("    %d runs, %d chunks, last indexed %s\n",
			stats.Runs, stats.TotalChunks, stats.LastIndexed.Format("2006-01-02 15:04"))
	}
	return nil
}

func runProjectsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	projectID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, cat, err := buildOrchestrator(cfg, nil)
	if err != nil {
		return err
	}
	defer cat.Close()

	if err := orch.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("deleting project %s: %w", projectID, err)
	}

	fmt.Printf("Deleted project %q\n", projectID)
	return nil
}
