// Command kb queries, evaluates and imports a knowledge base without running
// the HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/kbassist/backend/internal/app"
	"github.com/kbassist/backend/pkg/config"
	"github.com/kbassist/backend/pkg/logger"
)

var (
	configPath string
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "kb",
	Short: "Query and evaluate a support knowledge base",
	Long: `kb builds the retrieval index from the configured knowledge base and
answers questions against it from the command line.

Examples:
  # Ask a question
  kb query "How do I configure automations?" -k 3

  # Show index statistics
  kb stats

  # Measure retrieval quality against a labelled dataset
  kb eval --dataset eval.json -k 3

  # Copy a directory of articles into the SQLite store
  kb import ./kb_articles`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (defaults to ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	if err := logger.Init(level, "console", "stderr"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readyApp wires the components and builds the index.
func readyApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Initialize(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	return a, nil
}
