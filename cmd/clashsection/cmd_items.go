package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rogers-f/clash-section-engine/internal/domain"
)

var itemsFlags struct {
	tree string
}

var itemsCmd = &cobra.Command{
	Use:   "items <folder>",
	Short: "List the saved items of a top-level folder in order",
	Args:  cobra.ExactArgs(1),
	RunE:  runItems,
}

func init() {
	itemsCmd.Flags().StringVar(&itemsFlags.tree, "tree", domain.TreeViewpoints, "Saved item tree: viewpoints or selection_sets")
}

func runItems(cmd *cobra.Command, args []string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	items, err := s.bridge.FolderItems(context.Background(), itemsFlags.tree, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, it := range items {
		created := time.Unix(it.CreatedAt, 0).Format(time.DateTime)
		fmt.Fprintf(out, "%3d  %-13s %-40s %s\n", it.Position, it.Kind, it.DisplayName, created)
	}
	fmt.Fprintf(out, "%d items\n", len(items))
	return nil
}
