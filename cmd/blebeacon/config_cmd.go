package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration run would use, as YAML: built-in defaults,
overlaid with the --config file. The output is a valid --config file.`,
		Args: cobra.NoArgs,
		RunE: runConfig,
	}
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	out, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
