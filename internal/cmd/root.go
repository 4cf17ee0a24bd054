// Package cmd implements the corefork command line.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/corefork/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "corefork",
	Short: "Launch one pinned worker per CPU core",
	Long: `corefork discovers how many logical cores the machine has, launches one
copy of an application per core with its CPU affinity bound to that core, and
collects every worker's output and messages into per-stream log files.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/corefork/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("COREFORK")
	// Replace dots with underscores for nested keys in env vars
	// e.g., COREFORK_LAUNCH_ON_SPAWN_ERROR for launch.on_spawn_error
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
