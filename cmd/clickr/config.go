package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/clickr/internal/config"
)

var configOpts struct {
	init  bool
	force bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration clickr runs with, as TOML.

With --init the configuration is also written to the config file so it can
be edited. An existing file is only replaced with --force.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().BoolVar(&configOpts.init, "init", false,
		"Write the configuration to the config file")
	configCmd.Flags().BoolVar(&configOpts.force, "force", false,
		"Overwrite an existing config file with --init")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configOpts.init {
		path := globalOpts.configPath
		if path == "" {
			path = config.ConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !configOpts.force {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		logger.Info("config written", "path", path)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
