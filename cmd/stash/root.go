package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stash/internal/config"
	"stash/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var logLevel string
	var output string

	cmd := &cobra.Command{
		Use:           "stash",
		Short:         "Stash is a self-hosted file store with passwordless sign-in",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel, cfg.Log)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			formatter, err := format.New(output)
			if err != nil {
				return err
			}
			outputFormatter = formatter
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg),
		newConfigCmd(cfg),
		newUsersCmd(cfg),
		newUsageCmd(cfg),
		newRemoteCmd(cfg),
	)

	return cmd
}
