// Package cmd implements the CLI commands for mtsgrab.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mtsgrab/internal/config"
	"mtsgrab/internal/logger"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// log is the process-wide logger, initialized before any command runs.
var log logger.Logger

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mtsgrab",
	Short: "Download and reconstruct MTS Link webinar recordings",
	Long: `mtsgrab downloads the media segments of an MTS Link webinar recording
and reconstructs them into a single continuous MP4, filling gaps between
segments with black video and silence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		initLogging()
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mtsgrab.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig reads in the config file and environment variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mtsgrab")
	}

	viper.SetEnvPrefix("MTSGRAB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging builds the logger from flags. --quiet (on the run command)
// raises the level to warn unless --log-level was set explicitly.
func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	format, _ := rootCmd.PersistentFlags().GetString("log-format")

	if quiet && !rootCmd.PersistentFlags().Changed("log-level") {
		level = "warn"
	}

	log = logger.NewLogger(level, format)
}
