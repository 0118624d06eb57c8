package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"example.com/gymlog/internal/config"
	"example.com/gymlog/internal/logging"
)

var (
	cfg    config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gymlogctl",
	Short: "Operator tooling for the gym log",
	Long: `gymlogctl performs maintenance tasks against the gym log store.

Configuration comes from the same environment variables (or .env file)
as the API process, e.g. STORE_DRIVER, POSTGRES_URL, SQLITE_PATH.

EXAMPLES:

  $ gymlogctl migrate
  $ gymlogctl update-password neil n3w-pa55
  $ gymlogctl dlq run --once
  $ gymlogctl token mint --subject ops --ttl 1h`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		logger = logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, "text")
		return nil
	},
}
