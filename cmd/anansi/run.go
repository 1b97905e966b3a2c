package main

import (
	"github.com/spf13/cobra"

	"github.com/david/anansi/internal/logger"
)

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, deduplicate and publish new opportunities once",
	Long: `Runs one pass over every enabled source. Items already in the ledger are
skipped. The ledger is updated only after Slack accepted the digest, so a
failed delivery is retried in full on the next run.

--dry-run prints the digest and a preview table instead of publishing and
leaves the ledger untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		opts := a.runOptions()
		opts.DryRun = dryRun
		opts.Preview = cmd.OutOrStdout()

		ctx := cmd.Context()
		d, err := a.driver(ctx, nil, opts)
		if err != nil {
			return err
		}
		rep, err := d.Run(ctx)
		if err != nil {
			return err
		}
		a.log.Info("Run finished",
			logger.String("outcome", string(rep.Outcome)),
			logger.Int("new", rep.New),
			logger.Int("shown", rep.Shown))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "render without publishing or saving the ledger")
	rootCmd.AddCommand(runCmd)
}
