package main

import (
	"fmt"
	"io"
	"os"

	"scrollgrab/config"
	"scrollgrab/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Global flags
	configFile string
	logLevel   string
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "scrollgrab",
	Short: "Save every image of a paged web gallery through a real browser",
	Long: `scrollgrab drives a Chrome instance through an image gallery the way a
reader would: it scrolls each page, waits out interstitial challenges,
exports every image through a canvas in a separate tab and follows the
"next" link until the gallery ends.

Files are numbered <prefix>_<n>.<ext>; a rerun into the same directory
continues after the highest existing number.`,
	Version:       config.VersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default .scrollgrab.yaml or ~/.config/scrollgrab/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file (default <user config dir>/scrollgrab/scrollgrab.log)")

	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.VersionString())
		},
	})
}

// changedFlags collects the flags the user actually set so defaults never
// override values from the environment or the config file.
func changedFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Value.Type() {
		case "bool":
			v, _ := cmd.Flags().GetBool(f.Name)
			flags[f.Name] = v
		default:
			flags[f.Name] = f.Value.String()
		}
	})
	return flags
}

// loadConfig merges defaults, config file, environment and changed flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, changedFlags(cmd))
	if err != nil {
		return nil, err
	}
	if cfg.Logging.File == "" {
		if path, err := logger.DefaultLogPath(); err == nil {
			cfg.Logging.File = path
		}
	}
	return cfg, nil
}

// setupLogging installs the process logger described by cfg
func setupLogging(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	log, closer, err := logger.Setup(logger.Options{
		Level:      cfg.Logging.Level,
		JSON:       cfg.Logging.JSON,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return log, closer, nil
}
