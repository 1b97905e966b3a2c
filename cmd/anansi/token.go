package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/david/anansi/internal/auth"
)

var (
	tokenTTL  time.Duration
	hashInput string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin bearer token, or hash an admin secret with --hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		if hashInput != "" {
			h, err := auth.HashSecret(hashInput)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		token, err := auth.NewService(a.cfg.Auth.JWTSecret, "").IssueToken(tokenTTL)
		if err != nil {
			return fmt.Errorf("issue token (set ANANSI_JWT_SECRET): %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().StringVar(&hashInput, "hash", "", "print the bcrypt hash of this secret for ANANSI_ADMIN_SECRET_HASH")
	rootCmd.AddCommand(tokenCmd)
}
