package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xhad/ragcore/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status <document-id>",
	Short: "Show the indexing status of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := requireOrg(); err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.indexer.GetIndexingStatus(cmd.Context(), args[0], orgID)
	if err != nil {
		return err
	}
	if status == nil {
		return fmt.Errorf("%w: no status for document %s", models.ErrNotFound, args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Document:  %s\n", status.DocumentID)
	fmt.Fprintf(out, "Status:    %s\n", status.Status)
	fmt.Fprintf(out, "Progress:  %d%%\n", status.Progress)
	fmt.Fprintf(out, "Chunks:    %d/%d\n", status.ProcessedChunks, status.TotalChunks)
	if status.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", status.ErrorMessage)
	}
	fmt.Fprintf(out, "Updated:   %s\n", status.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}
