package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Build the index and print its statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := readyApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		stats := a.Engine.Stats()
		out := cmd.OutOrStdout()

		if jsonOutput {
			data, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "Articles:    %d\n", stats.ArticleCount)
		fmt.Fprintf(out, "Dimension:   %d\n", stats.IndexDimension)
		fmt.Fprintf(out, "Embedding:   %s\n", stats.Provider)
		fmt.Fprintf(out, "Generative:  %t\n", stats.GenerativeEnabled)
		fmt.Fprintf(out, "Generation:  %d\n", stats.Generation)
		fmt.Fprintf(out, "Built:       %s\n", stats.BuiltAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
