package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xhad/ragcore/server"
)

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Server.Addr
	if addrFlag != "" {
		addr = addrFlag
	}

	srv := server.New(server.Deps{
		Indexer:  a.indexer,
		Searcher: a.search,
		Answerer: a.answer,
		Checks:   a.checks,
	}, log)

	log.WithField("addr", addr).Info("starting server")
	return srv.Run(ctx, addr)
}
