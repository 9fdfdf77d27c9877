package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"lightup/internal/config"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Load and validate the config, then print the effective values",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.NewManager(opts.configPath).Load()
				if err != nil {
					return err
				}
				// The DSN may carry credentials.
				if cfg.Storage.DSN != "" {
					cfg.Storage.DSN = "***"
				}
				if cfg.Telegram.Token != "" {
					cfg.Telegram.Token = "***"
				}
				if cfg.HTTP.PprofToken != "" {
					cfg.HTTP.PprofToken = "***"
				}
				// Round trip through JSON so YAML output keeps the json key names.
				b, err := json.Marshal(cfg)
				if err != nil {
					return err
				}
				var tree map[string]any
				if err := yaml.Unmarshal(b, &tree); err != nil {
					return err
				}
				p := opts.printer(cmd)
				if p.format == "table" || p.format == "" {
					p.format = "yaml"
				}
				_, err = p.structured(tree)
				return err
			},
		},
		&cobra.Command{
			Use:   "env",
			Short: "List the environment variables that override the config",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprint(cmd.OutOrStdout(), config.EnvUsage())
				return err
			},
		},
	)
	return cmd
}
