package main

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/anansi/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or edit the seen-ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List fingerprints already published",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		store, err := a.ledgerStore(cmd.Context())
		if err != nil {
			return err
		}
		seen, err := store.Load(cmd.Context())
		if errors.Is(err, ledger.ErrCorrupt) {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		} else if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"#", "Fingerprint"})
		for i, id := range seen.IDs() {
			t.AppendRow(table.Row{i + 1, id})
		}
		t.AppendFooter(table.Row{"Total", len(seen)})
		t.Render()
		return nil
	},
}

var ledgerForgetCmd = &cobra.Command{
	Use:   "forget <fingerprint>...",
	Short: "Remove fingerprints so their items are announced again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		store, err := a.ledgerStore(cmd.Context())
		if err != nil {
			return err
		}
		if locker, ok := store.(ledger.Locker); ok {
			release, err := locker.Lock(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = release(cmd.Context()) }()
		}

		n, err := ledger.Forget(cmd.Context(), store, args...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d of %d fingerprints\n", n, len(args))
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerShowCmd, ledgerForgetCmd)
	rootCmd.AddCommand(ledgerCmd)
}
