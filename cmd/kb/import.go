package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kbassist/backend/internal/app"
	"github.com/kbassist/backend/internal/articles"
	"github.com/kbassist/backend/internal/ingestion"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Copy JSON, YAML and HTML articles into the SQLite store",
	Long: `Reads every article file under dir and upserts it into the configured
SQLite database, keeping the directory's order. Articles are keyed by a slug of
their title, so re-importing updates them in place. Set
knowledgeBase.source: sqlite to serve from the imported store.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	records, err := ingestion.NewDirSource(args[0]).Records(ctx)
	if err != nil {
		return err
	}
	// Refuse the whole import if any record would fail to index.
	loaded, err := articles.Load(records)
	if err != nil {
		return err
	}

	db, err := app.OpenSQLite(ctx, cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	slugs := ingestion.NewSlugger()
	for i, a := range loaded {
		if err := db.UpsertArticle(ctx, slugs.Slug(a.Title), i, records[i]); err != nil {
			return fmt.Errorf("failed to import %q: %w", a.Title, err)
		}
	}

	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	fmt.Fprintf(cmd.OutOrStdout(), "%s imported %d articles into %s\n", ok("✓"), len(loaded), cfg.SQLite.Path)
	return nil
}
