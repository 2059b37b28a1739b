package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/ragcore/internal/models"
)

var (
	searchLimit  int
	searchOffset int
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a hybrid lexical and semantic search",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 0, "maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "number of fused results to skip")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := requireOrg(); err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	results, total, err := a.search.Search(cmd.Context(), models.SearchQuery{
		Text:           strings.Join(args, " "),
		OrganizationID: orgID,
		Limit:          searchLimit,
		Offset:         searchOffset,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		if results == nil {
			results = []models.SearchResult{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"results": results, "total": total})
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%s %s %s\n", color.CyanString("%d.", searchOffset+i+1), color.New(color.Bold).Sprint(r.Title), color.YellowString("(%.3f)", r.Score))
		fmt.Fprintf(out, "   %s\n", preview(r.Content, 160))
	}
	fmt.Fprintf(out, "\n%d of %d results\n", len(results), total)
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
