package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections in the vector store",
	RunE:  runCollections,
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a collection from the vector store",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsDelete,
}

func init() {
	collectionsCmd.AddCommand(collectionsDeleteCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func runCollections(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	names, err := store.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("No collections. Run `codectx index` to create one.")
		return nil
	}

	for _, name := range names {
		info, err := store.CollectionInfo(ctx, name)
		if err != nil {
			fmt.Printf("  %s\n", name)
			continue
		}
		fmt.Printf("  %-30s %6d points  dim %d\n", info.Name, info.Points, info.Dimension)
	}
	return nil
}

func runCollectionsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	if err := store.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}

	fmt.Printf("Deleted collection %q\n", name)
	return nil
}
