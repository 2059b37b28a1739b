package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/ragcore/internal/models"
	"github.com/xhad/ragcore/pkg/stream"
)

var serverURL string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running server over the streaming API",
	Long: `Chat opens an interactive session against a running "ragctl serve".
Answers are streamed as they are generated. Press Ctrl+C while an answer
is streaming to cancel it, or type 'exit' to quit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the API server")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	if err := requireOrg(); err != nil {
		return err
	}

	client := stream.NewClient(serverURL, userID, orgID)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			if client.Sessions().State() == stream.StateStreaming {
				client.Cancel()
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout())
			os.Exit(0)
		}
	}()

	color.Cyan("\nChat with your documents (type 'exit' to quit)")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		assistantPrompt("\nAssistant: ")
		msg, err := client.Stream(cmd.Context(), query, func(delta string) {
			fmt.Fprint(cmd.OutOrStdout(), delta)
		})
		fmt.Fprintln(cmd.OutOrStdout())

		var streamErr *stream.StreamError
		switch {
		case errors.Is(err, context.Canceled):
			color.Yellow("(cancelled)")
		case errors.As(err, &streamErr):
			color.Red("Error: %s", streamErr.Message)
		case err != nil:
			color.Red("Error: %v", err)
		default:
			printSources(cmd, msg.Sources)
		}
	}
	return scanner.Err()
}

func printSources(cmd *cobra.Command, sources []models.Source) {
	if len(sources) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, color.BlueString("\nSources:"))
	for i, s := range sources {
		fmt.Fprintf(out, "  [%d] %s %s\n", i+1, s.Title, color.HiBlackString("(%s, %.3f)", s.DocumentID, s.Score))
	}
}
