package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kbassist/backend/internal/evaluation"
)

var (
	datasetPath string
	evalK       int
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Measure retrieval quality against a labelled dataset",
	Long: `Runs every query in the dataset and reports hit rate and MRR for the
expected article titles. The dataset is a JSON array of
{"query": ..., "expected_title": ...} objects, optionally wrapped as
{"name": ..., "items": [...]}.`,
	Args: cobra.NoArgs,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Path to the evaluation dataset (required)")
	evalCmd.Flags().IntVarP(&evalK, "k", "k", 3, "Number of articles to retrieve per query")
	_ = evalCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(datasetPath)
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}
	dataset, err := evaluation.LoadDatasetFromJSON(data)
	if err != nil {
		return err
	}
	if dataset.Name == "" {
		dataset.Name = filepath.Base(datasetPath)
	}

	ctx := cmd.Context()
	a, err := readyApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var recorder evaluation.RunRecorder
	if a.SQLite != nil {
		recorder = a.SQLite
	}

	report, err := evaluation.NewEvaluator(a.Engine, recorder).RunDatasetEvaluation(ctx, dataset, evalK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprint(out, evaluation.GenerateReport(report))

	miss := color.New(color.FgRed).SprintFunc()
	hit := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintln(out)
	for _, item := range report.Items {
		switch {
		case item.Err != nil:
			fmt.Fprintf(out, "%s %q: %v\n", miss("ERR "), item.Query, item.Err)
		case item.Rank == 0:
			fmt.Fprintf(out, "%s %q: expected %q, got %q\n", miss("MISS"), item.Query, item.ExpectedTitle, item.TopTitle)
		default:
			fmt.Fprintf(out, "%s %q: rank %d\n", hit("HIT "), item.Query, item.Rank)
		}
	}
	return nil
}
