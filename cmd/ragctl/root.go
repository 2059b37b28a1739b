package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	cfgPkg "github.com/xhad/ragcore/pkg/config"
	"github.com/xhad/ragcore/pkg/logging"
)

var (
	configPath string
	envFile    string
	orgID      string
	userID     string
	docsDir    string

	cfg *cfgPkg.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Index documents and ask questions about them",
	Long: `ragctl drives the retrieval pipeline: it indexes documents into an
organization's chunk store, runs hybrid search and answers questions
grounded in the indexed documents.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading config")
	rootCmd.PersistentFlags().StringVar(&orgID, "org", "", "organization id (required by most commands)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "cli", "user id recorded for usage metering")
	rootCmd.PersistentFlags().StringVar(&docsDir, "docs-dir", "documents", "document directory used when no object storage is configured")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}

	c, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if errs := c.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(cmd.ErrOrStderr(), e.Error())
		}
		return fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}

	cfg = c
	log = logging.New(c.Log.Level, c.Log.Format)
	return nil
}

func requireOrg() error {
	if orgID == "" {
		return errors.New("--org is required")
	}
	return nil
}
