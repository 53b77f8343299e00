package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"collectordl/pkg/config"
	"collectordl/pkg/ui"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage collectordl configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (COLLECTORDL_*, also read from .env)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.collectordl.yaml'
unless a different path is specified with the --config flag.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging all sources.

Mirror tokens are not part of the configuration; see 'collectordl auth list'.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value ranges
  - Mirror URL templates
  - Path accessibility`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# collectordl configuration file
#
# Every option can also be set through an environment variable prefixed
# with COLLECTORDL_, for example COLLECTORDL_CONCURRENCY=3.

download:
  # Number of downloads in flight at once (1-32)
  concurrency: 5

  # At most interval_cap downloads start within any interval
  interval_cap: 10
  interval: 1s

  # false downloads one beatmapset at a time
  parallel: true

  # Each collection gets a sub-directory named after it
  base_directory: "./downloads"

  # Timeout of a single archive request
  request_timeout: 2m

  # Retries after the first attempt; the last one uses the alternate mirror
  max_retries: 3

  # Pause after a mirror answers 429
  rate_limit_cooldown: 1m

mirrors:
  # URL templates, %d is replaced by the beatmapset id
  primary: "https://catboy.best/d/%d"
  alternate: "https://api.nerinyan.moe/d/%d"
  user_agent: "collectordl/1.0"

catalog:
  base_url: "https://osucollector.com"

notifications:
  enabled: true
  on_complete: true
  on_error: true
  on_rate_limit: true
  # terminal, desktop or none
  notification_type: "terminal"

logging:
  # debug, info, warn, error
  level: "info"
  # Log file path (optional), console output goes to stderr
  file: ""

metrics:
  # Serve Prometheus metrics on this address, empty disables
  listen_addr: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	// Determine config file path
	configPath := configFile
	if configPath == "" {
		configPath = ".collectordl.yaml"
	}

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Adjust mirrors and download limits in the file")
	fmt.Println("2. Run 'collectordl config validate' to check the configuration")
	fmt.Println("3. Start downloading with 'collectordl download <collection-id>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	fmt.Print(string(data))

	// Show configuration sources
	fmt.Println("\n# Configuration sources (in order of priority):")
	fmt.Println("# 1. Command line flags")
	fmt.Println("# 2. Environment variables (COLLECTORDL_*)")
	if path := resolveConfigPath(); path != "" {
		fmt.Printf("# 3. Configuration file: %s\n", path)
	} else {
		fmt.Println("# 3. Configuration file: (none found)")
	}
	fmt.Println("# 4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := resolveConfigPath()
	if path == "" {
		return errors.New("no configuration file found, specify one with --config")
	}

	ui.PrintInfo("Validating configuration", path)

	cfg, err := config.Load(path, nil)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	var problems []string

	// Check paths
	if err := os.MkdirAll(cfg.Download.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("Cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return errors.New("configuration is not usable")
	}

	if !cfg.Download.Parallel {
		ui.PrintWarning("Parallel downloads are disabled, concurrency is ignored")
	}

	ui.PrintSuccess("Configuration is valid")

	// Show summary
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Output directory: %s\n", cfg.Download.BaseDirectory)
	fmt.Printf("  Concurrency: %d\n", cfg.EffectiveConcurrency())
	fmt.Printf("  Rate window: %d per %s\n", cfg.Download.IntervalCap, cfg.Download.Interval)
	fmt.Printf("  Max retries: %d\n", cfg.Download.MaxRetries)
	fmt.Printf("  Primary mirror: %s\n", cfg.Mirrors.Primary)
	fmt.Printf("  Alternate mirror: %s\n", cfg.Mirrors.Alternate)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}

// resolveConfigPath returns --config or the first default location that exists
func resolveConfigPath() string {
	if configFile != "" {
		return configFile
	}
	for _, path := range config.DefaultLocations() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
