package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-plants/config"
	"github.com/aluiziolira/go-scrape-plants/models"
	"github.com/aluiziolira/go-scrape-plants/pipeline"
	"github.com/aluiziolira/go-scrape-plants/scraper"
	"github.com/aluiziolira/go-scrape-plants/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type cliFlags struct {
	configPath      string
	verbose         bool
	concurrency     int
	maxRetries      int
	limit           int
	delayMin        time.Duration
	delayMax        time.Duration
	timeout         time.Duration
	batchDelay      time.Duration
	retryBackoff    time.Duration
	retryBackoffMax time.Duration
	retryJitter     time.Duration
	batchJitter     time.Duration
	outputDir       string
	outputPrefix    string
	stableFilenames bool
	jsonLines       bool
	sqlitePath      string
	respectRobots   bool
	metricsAddr     string
}

func main() {
	flags := &cliFlags{}

	rootCmd := &cobra.Command{
		Use:   "plantscraper",
		Short: "Scrape the ASPCA toxic plant lists",
		Long: `plantscraper reads the dog and cat toxic plant lists, merges them and
visits each plant page to build CSV and JSON datasets.`,
		SilenceUsage: true,
	}

	bindCommonFlags(rootCmd, flags)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape every plant and write the datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runScrape(cmd.Context(), cfg)
		},
	}
	bindRunFlags(runCmd, flags)

	referencesCmd := &cobra.Command{
		Use:   "references",
		Short: "Print the merged plant references as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return printReferences(cmd.Context(), cfg)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("plantscraper %s (%s, %s)\n", version, commit, buildDate)
		},
	}

	rootCmd.AddCommand(runCmd, referencesCmd, versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func bindCommonFlags(cmd *cobra.Command, flags *cliFlags) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	pf.IntVar(&flags.concurrency, "concurrency", 0, "Detail pages fetched per batch")
	pf.IntVar(&flags.maxRetries, "max-retries", 0, "Total attempts per URL")
	pf.DurationVar(&flags.delayMin, "delay-min", 0, "Minimum politeness delay before each request")
	pf.DurationVar(&flags.delayMax, "delay-max", 0, "Maximum politeness delay before each request")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Per-request timeout")
	pf.DurationVar(&flags.retryBackoff, "retry-backoff", 0, "Initial retry backoff")
	pf.DurationVar(&flags.retryBackoffMax, "retry-backoff-max", 0, "Maximum retry backoff (0 = uncapped)")
	pf.DurationVar(&flags.retryJitter, "retry-jitter", 0, "Maximum random jitter added to each retry backoff")
	pf.BoolVar(&flags.respectRobots, "respect-robots", false, "Respect robots.txt directives")
}

func bindRunFlags(cmd *cobra.Command, flags *cliFlags) {
	rf := cmd.Flags()
	rf.IntVar(&flags.limit, "limit", 0, "Only scrape the first N plants (0 = all)")
	rf.DurationVar(&flags.batchDelay, "batch-delay", 0, "Minimum pause between batches")
	rf.DurationVar(&flags.batchJitter, "batch-jitter", 0, "Maximum random pause added to batch-delay")
	rf.StringVarP(&flags.outputDir, "output-dir", "o", "", "Directory for output files")
	rf.StringVar(&flags.outputPrefix, "output-prefix", "", "Output file name prefix")
	rf.BoolVar(&flags.stableFilenames, "stable-filenames", false, "Write <prefix>.csv/.json instead of timestamped names")
	rf.BoolVar(&flags.jsonLines, "jsonl", false, "Also stream records to a .jsonl file")
	rf.StringVar(&flags.sqlitePath, "sqlite", "", "Also upsert records into this SQLite database")
	rf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
}

// loadConfig layers the YAML file, SCRAPER_* environment and explicitly set flags.
func loadConfig(cmd *cobra.Command, flags *cliFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	set := cmd.Flags().Changed
	if set("verbose") {
		cfg.Verbose = flags.verbose
	}
	if set("concurrency") {
		cfg.Concurrency = flags.concurrency
	}
	if set("max-retries") {
		cfg.MaxRetries = flags.maxRetries
	}
	if set("delay-min") {
		cfg.DelayMin = flags.delayMin
	}
	if set("delay-max") {
		cfg.DelayMax = flags.delayMax
	}
	if set("timeout") {
		cfg.Timeout = flags.timeout
	}
	if set("retry-backoff") {
		cfg.RetryBackoff = flags.retryBackoff
	}
	if set("retry-backoff-max") {
		cfg.RetryBackoffMax = flags.retryBackoffMax
	}
	if set("retry-jitter") {
		cfg.RetryJitter = flags.retryJitter
	}
	if set("respect-robots") {
		cfg.RespectRobotsTxt = flags.respectRobots
	}
	if set("limit") {
		cfg.Limit = flags.limit
	}
	if set("batch-delay") {
		cfg.BatchDelay = flags.batchDelay
	}
	if set("batch-jitter") {
		cfg.BatchJitter = flags.batchJitter
	}
	if set("output-dir") {
		cfg.OutputDir = flags.outputDir
	}
	if set("output-prefix") {
		cfg.OutputPrefix = flags.outputPrefix
	}
	if set("stable-filenames") {
		cfg.StableFilenames = flags.stableFilenames
	}
	if set("jsonl") {
		cfg.JSONLines = flags.jsonLines
	}
	if set("sqlite") {
		cfg.SQLitePath = flags.sqlitePath
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runScrape(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Verbose)
	logger = logger.With(slog.String("run_id", uuid.NewString()))
	slog.SetDefault(logger)

	paths := pipeline.NewOutputPaths(cfg.OutputDir, cfg.OutputPrefix, cfg.StableFilenames, time.Now())
	logger.Info("starting scrape",
		slog.Int("sources", len(cfg.Sources)),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Int("limit", cfg.Limit),
		slog.String("csv", paths.CSV),
		slog.String("json", paths.JSON),
	)

	s, err := scraper.NewScraper(cfg, logger)
	if err != nil {
		logger.Error("initialising scraper", slog.Any("error", err))
		return err
	}

	writer, err := createWriter(cfg, paths, logger)
	if err != nil {
		logger.Error("creating writer", slog.Any("error", err))
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("close writer", slog.Any("error", err))
		}
	}()

	_, stopMetrics, err := startMetricsServer(cfg.MetricsAddr, s.Metrics, logger)
	if err != nil {
		logger.Error("starting metrics server", slog.Any("error", err))
		return err
	}
	defer stopMetrics()

	p, err := pipeline.NewPipeline(writer, cfg, logger)
	if err != nil {
		logger.Error("creating pipeline", slog.Any("error", err))
		return err
	}
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, runErr := s.Run(ctx, p)
	if runErr != nil && result == nil {
		logger.Error("scraping failed", slog.Any("error", runErr))
		return runErr
	}
	if runErr != nil {
		logger.Warn("scrape interrupted, writing partial results", slog.Any("error", runErr))
	}

	if err := p.Close(); err != nil {
		logger.Error("pipeline shutdown failed", slog.Any("error", err))
	}
	if err := writer.Validate(); err != nil {
		logger.Error("output validation failed", slog.Any("error", err))
	}

	if err := pipeline.WriteJSONSnapshot(paths.JSON, result.Plants); err != nil {
		logger.Error("writing json snapshot", slog.String("path", paths.JSON), slog.Any("error", err))
		return err
	}

	printSummary(result, paths, p.GetMetrics())
	return runErr
}

// createWriter always opens the CSV sink; JSONL and SQLite are added when configured.
func createWriter(cfg *config.Config, paths pipeline.OutputPaths, logger *slog.Logger) (pipeline.OutputWriter, error) {
	csvWriter, err := pipeline.NewCSVWriter(paths.CSV)
	if err != nil {
		return nil, err
	}
	writers := []pipeline.OutputWriter{csvWriter}

	if cfg.JSONLines {
		jsonlWriter, err := pipeline.NewJSONLWriter(paths.JSONL)
		if err != nil {
			csvWriter.Close()
			return nil, err
		}
		writers = append(writers, jsonlWriter)
		logger.Info("jsonl output enabled", slog.String("path", paths.JSONL))
	}

	if cfg.SQLitePath != "" {
		db, err := store.Open(cfg.SQLitePath)
		if err != nil {
			for _, w := range writers {
				w.Close()
			}
			return nil, err
		}
		writers = append(writers, db)
		logger.Info("sqlite output enabled", slog.String("path", cfg.SQLitePath))
	}

	if len(writers) == 1 {
		return csvWriter, nil
	}
	return pipeline.NewMultiWriter(writers...), nil
}

// startMetricsServer serves the registry on addr and returns the bound address and
// a stop function. An empty addr serves nothing.
func startMetricsServer(addr string, metrics *scraper.Metrics, logger *slog.Logger) (string, func(), error) {
	if addr == "" || metrics == nil {
		return "", func() {}, nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	server := &http.Server{
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", listener.Addr().String()))

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
	return listener.Addr().String(), stop, nil
}

func printReferences(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Verbose)
	s, err := scraper.NewScraper(cfg, logger)
	if err != nil {
		return err
	}

	refs, failures := s.CollectReferences(ctx)
	for _, failure := range failures {
		logger.Error(failure)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(refs)
}

func printSummary(result *models.ScraperResult, paths pipeline.OutputPaths, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  References:    %d\n", result.References)
	fmt.Printf("  Saved plants:  %d\n", result.Saved)
	fmt.Printf("  Skipped:       %d\n", result.Skipped)
	fmt.Printf("  Duplicates:    %d\n", result.Duplicates)
	fmt.Printf("  Batches:       %d\n", result.Batches)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  CSV file:      %s\n", paths.CSV)
	fmt.Printf("  JSON file:     %s\n", paths.JSON)
	fmt.Printf("  Errors:        %d\n", len(result.Errors))
	for _, msg := range result.Errors {
		fmt.Printf("    - %s\n", msg)
	}
	fmt.Println(separator)
}

// newLogger logs to stderr; stdout carries command output.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
