package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/corefork/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View the corefork configuration",
	Long: `View the corefork configuration.

Without arguments, displays the effective configuration: defaults, overlaid by
the config file, COREFORK_* environment variables and flags.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration as YAML",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/corefork/config.yaml.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	out := newPrinter(cmd.OutOrStdout())
	if used := viper.ConfigFileUsed(); used != "" {
		out.Printf("%s\n", out.muted.Render("# config file: "+used))
	} else {
		out.Printf("%s\n", out.muted.Render("# config file: (none - using defaults)"))
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	out.Printf("%s", data)
	return nil
}

const configHeader = `# corefork configuration
#
# app:       the application launched once per core
# topology:  how the usable core count is discovered (cores > 0 skips discovery)
# affinity:  how workers are pinned: taskset, syscall or none
# launch:    on_spawn_error is continue or abort
# logging:   supervisor log and worker sink rotation

`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configFile, append([]byte(configHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	newPrinter(cmd.OutOrStdout()).Printf("Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := newPrinter(cmd.OutOrStdout())

	if viper.ConfigFileUsed() != "" {
		out.Printf("Active config: %s\n", viper.ConfigFileUsed())
	} else {
		out.Printf("Default path: %s (not created)\n", config.ConfigFile())
	}

	out.Printf("\nSearch paths:\n")
	out.Printf("  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	out.Printf("  2. ./config.yaml (current directory)\n")
	out.Printf("\nEnvironment variables: COREFORK_* (e.g., COREFORK_LAUNCH_ON_SPAWN_ERROR)\n")
	return nil
}
