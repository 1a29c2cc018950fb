package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"stash/internal/config"
)

func newUsersCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect registered users",
	}
	cmd.AddCommand(newUsersListCmd(cfg))
	cmd.AddCommand(newUsersShowCmd(cfg))
	return cmd
}

func newUsersListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer svc.Close()

			users, err := svc.auth.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			return writeOutput(users)
		},
	}
}

func newUsersShowCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show <email>",
		Short: "Show the user registered with an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer svc.Close()

			user, err := svc.auth.LookupUserByEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("no user registered with %s", args[0])
			}
			return writeOutput(user)
		},
	}
}
