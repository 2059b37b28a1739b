package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"github.com/xhad/ragcore/internal/models"
)

var (
	indexID         string
	indexFromSource bool
)

var indexCmd = &cobra.Command{
	Use:   "index [files...]",
	Short: "Index local files, or documents already held in storage",
	Long: `Index extracts, chunks and embeds each document and replaces any chunks
previously stored for it. Local files are identified by their base name
unless --id is given. With --from-source the arguments are document ids
fetched from object storage (or --docs-dir).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexID, "id", "", "document id (single file only)")
	indexCmd.Flags().BoolVar(&indexFromSource, "from-source", false, "treat arguments as document ids in storage")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if err := requireOrg(); err != nil {
		return err
	}
	if indexID != "" && len(args) > 1 {
		return fmt.Errorf("--id can only be used with a single file")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if indexFromSource {
		spinner := getSpinner("Indexing from storage...")
		statuses, err := a.indexer.BatchIndexDocuments(ctx, args, orgID)
		spinner.Finish()
		if err != nil {
			return err
		}
		printStatuses(cmd, statuses)
		return nil
	}

	bar := getProgressBar(len(args), "Indexing documents")
	statuses := make([]models.IndexingStatus, 0, len(args))
	for _, path := range args {
		docID := indexID
		if docID == "" {
			docID = documentID(path)
		}

		status, err := indexFile(cmd, a, path, docID)
		if status != nil {
			statuses = append(statuses, *status)
		} else if err != nil {
			statuses = append(statuses, models.IndexingStatus{
				DocumentID:   docID,
				Status:       models.StateFailed,
				ErrorMessage: err.Error(),
			})
		}
		if err != nil {
			log.WithError(err).WithField("document_id", docID).Warn("indexing failed")
		}
		bar.Add(1)
	}
	bar.Finish()
	fmt.Fprintln(cmd.OutOrStdout())

	printStatuses(cmd, statuses)
	return nil
}

func indexFile(cmd *cobra.Command, a *app, path, docID string) (*models.IndexingStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if a.blobs != nil {
		if err := a.blobs.Put(cmd.Context(), docID, orgID, contentType(data), data); err != nil {
			return nil, err
		}
	}
	return a.indexer.IndexDocument(cmd.Context(), docID, orgID, data)
}

func contentType(data []byte) string {
	return mimetype.Detect(data).String()
}

func documentID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func printStatuses(cmd *cobra.Command, statuses []models.IndexingStatus) {
	out := cmd.OutOrStdout()
	for _, s := range statuses {
		switch s.Status {
		case models.StateCompleted:
			fmt.Fprintf(out, "%s %s (%d chunks)\n", color.GreenString("✓"), s.DocumentID, s.TotalChunks)
		case models.StateFailed:
			fmt.Fprintf(out, "%s %s: %s\n", color.RedString("✗"), s.DocumentID, s.ErrorMessage)
		default:
			fmt.Fprintf(out, "- %s %s %d%%\n", s.DocumentID, s.Status, s.Progress)
		}
	}
}
