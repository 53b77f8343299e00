package main

import (
	"fmt"
	"os"
	"runtime"

	"collectordl/pkg/logger"
	"collectordl/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "collectordl",
	Short: "Bulk downloader for osu! collections",
	Long: `collectordl downloads every beatmapset of an osu!collector collection
as .osz archives into a local directory.

Features:
  - Bounded concurrency with a per-interval request budget
  - Automatic pause when a mirror rate limits, with retries that never give up on 429
  - Fallback to an alternate mirror for the last attempt
  - Skips beatmapsets that are already on disk
  - Run reports and --retry-failed to pick up where a run left off
  - Progress line, interactive terminal UI and Prometheus metrics`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Version = version

		if quiet {
			logLevel = "error"
		}

		// Don't show logo for quiet runs or plumbing commands
		if quiet || useTUI {
			return
		}
		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Name() != "show" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Red(err.Error()))
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.collectordl.yaml or ~/.config/collectordl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print one line per download event")

	// Version template
	rootCmd.SetVersionTemplate(`collectordl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags returns the persistent flags the user set, keyed the way
// config.MergeCommandLineFlags expects
func globalFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}
