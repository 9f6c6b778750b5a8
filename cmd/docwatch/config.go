package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/synthlane/docwatch/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Resolve the configuration the same way 'docwatch watch' would
(defaults, docwatch.yaml, environment) and print the result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.NewViper())
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}

		cmd.Print(string(out))
		return nil
	},
}
