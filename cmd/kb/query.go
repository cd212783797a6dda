package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kbassist/backend/internal/answer"
	"github.com/kbassist/backend/internal/query"
)

var (
	queryK    int
	queryMode string
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer a question from the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "k", "k", 3, "Number of articles to retrieve")
	queryCmd.Flags().StringVarP(&queryMode, "mode", "m", "auto", "Answer mode: auto, extractive, generative")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	mode, err := answer.ParseMode(queryMode)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := readyApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Engine.Run(ctx, query.Request{
		Text: strings.Join(args, " "),
		K:    queryK,
		Mode: mode,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	printResponse(cmd, resp)
	return nil
}

func printResponse(cmd *cobra.Command, resp *query.Response) {
	out := cmd.OutOrStdout()
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(out, "%s %s\n\n", boldGreen("Answer"), faint(fmt.Sprintf("(%s, confidence %.2f)", resp.AnswerMode, resp.Confidence)))
	fmt.Fprintln(out, resp.Answer)
	if resp.Fallback {
		fmt.Fprintln(out, faint("generation unavailable; showing extractive answer"))
	}

	if resp.Count == 0 {
		return
	}

	fmt.Fprintf(out, "\n%s\n", boldCyan("Sources"))
	for _, r := range resp.Results {
		fmt.Fprintf(out, "  %d. %s %s\n", r.Rank, r.Title, faint(fmt.Sprintf("[%s] %.3f", r.Category, r.Score)))
	}
	fmt.Fprintf(out, "\n%s\n", faint(fmt.Sprintf("generation %d, %d ms", resp.Generation, resp.LatencyMS)))
}
