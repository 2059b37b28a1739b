package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/ragcore/pkg/answer"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the organization's documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := requireOrg(); err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	spinner := getSpinner("Thinking...")
	resp, err := a.answer.Generate(cmd.Context(), answer.Request{
		Query:          strings.Join(args, " "),
		UserID:         userID,
		OrganizationID: orgID,
	})
	spinner.Finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s\n", resp.Content)
	printSources(cmd, resp.Sources)
	fmt.Fprintln(out, color.HiBlackString("tokens: %d prompt, %d completion, %d total",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens))
	return nil
}
