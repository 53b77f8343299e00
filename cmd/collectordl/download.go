package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"collectordl/internal/downloader"
	"collectordl/pkg/auth"
	"collectordl/pkg/catalog"
	"collectordl/pkg/checkpoint"
	"collectordl/pkg/config"
	"collectordl/pkg/logger"
	"collectordl/pkg/metrics"
	"collectordl/pkg/mirror"
	"collectordl/pkg/models"
	"collectordl/pkg/storage"
	"collectordl/pkg/ui"
	"collectordl/pkg/ui/tui"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var (
	// Download command flags
	outputDir   string
	ids         []int
	listName    string
	concurrency int
	intervalCap int
	interval    time.Duration
	sequential  bool
	retryFailed bool
	useTUI      bool
	metricsAddr string
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download [collection-id]",
	Short: "Download every beatmapset of a collection",
	Long: `Download every beatmapset of an osu!collector collection into
<output>/<collection name>/.

Beatmapsets whose id already starts a file name in that directory are
skipped. Each run writes a report; --retry-failed limits the next run to the
beatmapsets that failed last time.

Instead of a collection id, an explicit list of beatmapset ids can be given
with --ids.`,
	Example: `  # Download a collection with default settings
  collectordl download 1234

  # Download into ./songs with two downloads at a time
  collectordl download 1234 --output ./songs --concurrency 2

  # Retry only what failed in the previous run
  collectordl download 1234 --retry-failed

  # Download a few beatmapsets without a collection
  collectordl download --ids 39804,41823 --name favourites

  # Interactive UI and a Prometheus endpoint
  collectordl download 1234 --tui --metrics-addr :9090`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVarP(&outputDir, "output", "o", "", "base directory for downloads (default ./downloads)")
	downloadCmd.Flags().IntSliceVar(&ids, "ids", nil, "download these beatmapset ids instead of a collection")
	downloadCmd.Flags().StringVar(&listName, "name", "beatmapsets", "directory name for an --ids download")
	downloadCmd.Flags().IntVar(&concurrency, "concurrency", 5, "number of concurrent downloads")
	downloadCmd.Flags().IntVar(&intervalCap, "interval-cap", 10, "downloads started per interval")
	downloadCmd.Flags().DurationVar(&interval, "interval", time.Second, "length of the rate window")
	downloadCmd.Flags().BoolVar(&sequential, "sequential", false, "download one beatmapset at a time")
	downloadCmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "only retry targets that failed in the previous run")
	downloadCmd.Flags().BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
	downloadCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// downloadFlags returns the flags the user actually set
func downloadFlags(cmd *cobra.Command) map[string]interface{} {
	flags := globalFlags()
	set := cmd.Flags().Changed

	if set("output") {
		flags["output"] = outputDir
	}
	if set("concurrency") {
		flags["concurrency"] = concurrency
	}
	if set("interval-cap") {
		flags["interval-cap"] = intervalCap
	}
	if set("interval") {
		flags["interval"] = interval
	}
	if set("sequential") {
		flags["sequential"] = sequential
	}
	if set("metrics-addr") {
		flags["metrics-addr"] = metricsAddr
	}
	return flags
}

func runDownload(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && len(ids) == 0 {
		return errors.New("a collection id or --ids is required")
	}

	cfg, err := config.Load(configFile, downloadFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	interactive := useTUI && term.IsTerminal(int(os.Stdout.Fd()))
	if useTUI && !interactive {
		ui.PrintWarning("Standard output is not a terminal, falling back to the progress line")
	}
	// Console logs would tear the alternate screen
	if interactive && cfg.Logging.File == "" && cfg.Logging.Level != "debug" {
		cfg.Logging.Level = "error"
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.WithField("command", "download")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collection, err := resolveCollection(ctx, cfg, args, log)
	if err != nil {
		return err
	}

	reports, err := checkpoint.NewManager(reportKey(collection), log)
	if err != nil {
		return fmt.Errorf("failed to open run reports: %w", err)
	}
	if retryFailed {
		restricted, ok, err := reports.RestrictToFailed(collection)
		if err != nil {
			return fmt.Errorf("failed to read previous report: %w", err)
		}
		if !ok {
			ui.PrintWarning("No previous report found, downloading the whole collection")
		}
		collection = restricted
	}

	dest := filepath.Join(cfg.Download.BaseDirectory, collection.SanitizedName())
	if !quiet && !interactive {
		ui.PrintInfo("Collection", fmt.Sprintf("%s (%d beatmapsets)", collection.Name, len(collection.Targets)))
		ui.PrintInfo("Output", dest)
	}

	client := mirror.NewClient(mirror.Options{
		Primary:   cfg.Mirrors.Primary,
		Alternate: cfg.Mirrors.Alternate,
		UserAgent: cfg.Mirrors.UserAgent,
		Timeout:   cfg.Download.RequestTimeout,
		Tokens:    tokenSource(log),
	}, log)
	store := storage.NewManager(dest, log)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	registry := prometheus.NewRegistry()
	metricsObserver, err := metrics.NewObserver(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	var notifyOut io.Writer = os.Stdout
	observers := downloader.MultiObserver{metricsObserver}

	var terminal *tui.TUI
	switch {
	case interactive:
		terminal = tui.NewTUI(collection.Name, len(collection.Targets), cfg.Download.RateLimitCooldown, cancelRun)
		observers = append(observers, terminal)
		notifyOut = io.Discard
	case !quiet:
		observers = append(observers, ui.NewProgressDisplay(os.Stdout, collection, verbose, !noColor))
	default:
		notifyOut = io.Discard
	}
	observers = append(observers, ui.NewNotifier(cfg.Notifications, notifyOut))

	orchestrator := downloader.New(client, store, downloader.Options{
		Concurrency: cfg.EffectiveConcurrency(),
		IntervalCap: cfg.Download.IntervalCap,
		Interval:    cfg.Download.Interval,
		Cooldown:    cfg.Download.RateLimitCooldown,
		MaxRetries:  cfg.Download.MaxRetries,
	}, observers, log)

	var (
		result *models.RunResult
		runErr error
	)
	started := time.Now()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// Ending the run stops the UI and the metrics listener
		defer cancelRun()
		if terminal != nil {
			defer terminal.Stop()
		}
		result, runErr = orchestrator.Run(gctx, collection)
		return nil
	})

	if terminal != nil {
		g.Go(func() error {
			defer cancelRun()
			if err := terminal.Start(); err != nil {
				return fmt.Errorf("terminal UI failed: %w", err)
			}
			return nil
		})
	}

	if cfg.Metrics.ListenAddr != "" {
		server := metrics.NewServer(cfg.Metrics.ListenAddr, registry, log)
		g.Go(func() error {
			// Metrics are optional, a bind failure must not stop the run
			if err := server.Serve(gctx); err != nil {
				log.WithError(err).Warn("Metrics server stopped")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Download aborted")
	}

	if result == nil {
		if runErr != nil {
			return runErr
		}
		return errors.New("download did not produce a result")
	}

	cancelled := errors.Is(runErr, context.Canceled)
	report := checkpoint.NewReport(collection, result, dest, started, cancelled)
	if err := reports.Record(report); err != nil {
		log.WithError(err).Warn("Failed to write run report")
	}

	if terminal != nil {
		printResult(result)
	}

	switch {
	case cancelled:
		ui.PrintWarning("Download cancelled, report saved to", reports.Path())
		return errors.New("cancelled")
	case runErr != nil:
		return runErr
	case len(result.Failed) > 0:
		if !quiet {
			fmt.Println("\nRun 'collectordl download " + retryHint(args) + " --retry-failed' to try them again.")
		}
		return fmt.Errorf("%d of %d beatmapsets failed", len(result.Failed), result.Total)
	}
	return nil
}

// resolveCollection returns the targets of this run from --ids or the catalog
func resolveCollection(ctx context.Context, cfg *config.Config, args []string, log logger.Logger) (*models.Collection, error) {
	var collectionID int
	if len(args) > 0 {
		id, err := strconv.Atoi(args[0])
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid collection id %q", args[0])
		}
		collectionID = id
	}

	if len(ids) > 0 {
		collection := catalog.FromIDs(listName, ids)
		collection.ID = collectionID
		if len(collection.Targets) == 0 {
			return nil, errors.New("--ids contains no valid beatmapset id")
		}
		return collection, nil
	}

	client := catalog.NewClient(catalog.Options{
		BaseURL:    cfg.Catalog.BaseURL,
		UserAgent:  cfg.Mirrors.UserAgent,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
	}, log)

	collection, err := client.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection %d: %w", collectionID, err)
	}
	return collection, nil
}

// reportKey names the report file of a collection
func reportKey(collection *models.Collection) string {
	if collection.ID > 0 {
		return fmt.Sprintf("collection-%d", collection.ID)
	}
	return "ids-" + collection.SanitizedName()
}

// tokenSource opens the credential manager. Without one, requests go out
// unauthenticated.
func tokenSource(log logger.Logger) mirror.TokenSource {
	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Credential manager unavailable, mirror tokens disabled")
		return nil
	}
	return manager
}

// printResult prints the run summary after the terminal UI has closed
func printResult(result *models.RunResult) {
	ui.PrintSuccess(fmt.Sprintf("%d downloaded, %d skipped, %d failed of %d in %s",
		result.Downloaded, result.Skipped, len(result.Failed), result.Total, ui.FormatDuration(result.Duration)))
	for _, t := range result.Failed {
		ui.PrintError("  failed", t.String())
	}
}

func retryHint(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "--name " + listName + " --ids ..."
}
