package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List registered sources with their effective options",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"ID", "Donor", "Strategy", "Enabled", "Since days", "OGP only", "Max items", "Needs deadline"})
		for _, s := range a.registry.Sources {
			t.AppendRow(table.Row{s.ID, s.Name, s.Strategy, !s.Disabled, s.SinceDays, s.OGPOnly, s.MaxItems, s.RequireDeadline})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
