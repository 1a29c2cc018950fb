package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"stash/internal/config"
)

func newUsageCmd(cfg *config.Config) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show the storage usage of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("--email is required")
			}
			svc, err := openServices(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer svc.Close()

			user, err := svc.auth.LookupUserByEmail(cmd.Context(), email)
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("no user registered with %s", email)
			}
			usage, err := svc.files.UsageSummary(cmd.Context(), *user)
			if err != nil {
				return err
			}
			return writeOutput(usage)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email of the user")
	return cmd
}
