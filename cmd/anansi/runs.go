package main

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/anansi/internal/db"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent pipeline runs recorded in Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		pool, err := a.database(cmd.Context())
		if err != nil {
			return err
		}
		runs, err := db.NewRunStore(pool).ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Run", "Outcome", "Fetched", "Normalized", "New", "Shown", "Failed sources", "Duration", "Started At"})
		for _, r := range runs {
			duration := "Running..."
			if r.CompletedAt != nil {
				duration = r.Duration().Round(time.Second).String()
			}
			failed := 0
			for _, s := range r.Sources {
				if s.Error != "" {
					failed++
				}
			}
			t.AppendRow(table.Row{r.RunID[:8], r.Outcome, r.Fetched, r.Normalized, r.New, r.Shown, failed, duration, r.StartedAt.Format(time.DateTime)})
		}
		t.Render()
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}
