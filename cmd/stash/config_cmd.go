package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stash/internal/config"
)

const maskedValue = "********"

func newConfigCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(cfg))
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigSourcesCmd(cfg))
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			if value != "" && config.IsSecretKey(key) && !reveal {
				value = maskedValue
			}
			return writePlain("%s\n", value)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print secret values instead of masking them")
	return cmd
}

// newConfigSetCmd writes the global TOML file. The project file is YAML and
// is left for hand editing.
func newConfigSetCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value in the global config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			if path == "" {
				var err error
				path, err = config.GlobalPath()
				if err != nil {
					return err
				}
			}
			return config.SetKey(path, key, value)
		},
	}

	cmd.Flags().StringVar(&path, "file", "", "write to this TOML file instead of ~/.stash.toml")
	return cmd
}

func newConfigSourcesCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the config files that were applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, src := range cfg.Sources {
				if err := writePlain("%s\n", src); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
