// Command orchestrator runs outreach campaigns: it executes campaigns from
// the CLI, serves the HTTP control plane, and consumes execution triggers
// from SQS.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/ignite/outreach-orchestrator/internal/config"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
)

var (
	configPath string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Paced outbound campaign orchestrator",
	Long: `orchestrator sends outreach campaigns one lead at a time, verifying
each address before sending and pacing sends with randomized delays.

Examples:
  orchestrator migrate
  orchestrator execute 3f0c... --wait
  orchestrator execute --all
  orchestrator serve
  orchestrator consume`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			lvl, err := zapcore.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			logger.SetLevel(lvl)
		}

		loaded, err := config.LoadFromEnv(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ORCHESTRATOR_CONFIG"), "Path to YAML config (defaults and env only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")

	rootCmd.AddCommand(executeCmd, serveCmd, consumeCmd, enqueueCmd, cleanupLocksCmd, migrateCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
