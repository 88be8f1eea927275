// Package main implements the ingestbench-run binary, the factorial driver.
// It discovers deployed workload functions by name prefix, runs the configured
// trials against each of them and writes every invocation record.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ingestbench/ingestbench/internal/aggregator"
	"github.com/ingestbench/ingestbench/internal/config"
	"github.com/ingestbench/ingestbench/internal/driver"
	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
	"github.com/ingestbench/ingestbench/internal/invoker"
	"github.com/ingestbench/ingestbench/internal/logging"
	"github.com/ingestbench/ingestbench/internal/logsquery"
	"github.com/ingestbench/ingestbench/internal/report"
	"github.com/ingestbench/ingestbench/internal/results"
	"github.com/ingestbench/ingestbench/internal/storage"
	"github.com/ingestbench/ingestbench/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		showVersion bool
		showHelp    bool
	)
	flags := config.DefaultRunner()

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&flags.FunctionPrefix, "function-prefix", "", "Name prefix of the deployed workload functions (required)")
	flag.StringVar(&flags.Region, "region", flags.Region, "AWS region")
	flag.IntVar(&flags.Invocations, "invocations", flags.Invocations, "Invocations per trial")
	flag.IntVar(&flags.Trials, "trials", flags.Trials, "Trials per function")
	flag.IntVar(&flags.Parallelism, "parallelism", flags.Parallelism, "In-flight invocations per trial (1 = sequential)")
	flag.DurationVar(&flags.CallTimeout, "call-timeout", flags.CallTimeout, "Per-invocation timeout (0 = none)")
	flag.DurationVar(&flags.InterCallDelay, "delay", flags.InterCallDelay, "Delay between consecutive invocations")
	flag.IntVar(&flags.Budget, "budget", 0, "Maximum invocations for the whole run (0 = unlimited)")
	flag.StringVar(&flags.Output.RecordsPath, "output", "", "JSONL record file (.sz suffix = snappy framed)")
	flag.StringVar(&flags.Output.CSVPath, "csv", "", "Optional flat CSV of the run's records")
	flag.StringVar(&flags.Output.ResultsDB, "results-db", "", "Optional SQLite result store")
	flag.BoolVar(&flags.Logs.QueryAfterRun, "query-logs", false, "Query CloudWatch Logs Insights for every trial after the run")
	flag.BoolVar(&flags.Verify.Enabled, "verify", false, "Check that every reported object exists with the reported size")
	flag.StringVar(&flags.Verify.Bucket, "verify-bucket", "", "Bucket to verify against (default: the bucket each function reported)")
	flag.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "Log level: debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ingestbench-run - factorial S3 ingestion benchmark driver\n\n")
		fmt.Fprintf(os.Stderr, "Usage: ingestbench-run --function-prefix <prefix> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ingestbench-run --function-prefix ingest- --invocations 100 --trials 3\n")
		fmt.Fprintf(os.Stderr, "  ingestbench-run --config run.yaml --results-db results/results.db --query-logs\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  INGESTBENCH_FUNCTION_PREFIX   Function name prefix\n")
		fmt.Fprintf(os.Stderr, "  INGESTBENCH_REGION            AWS region\n")
		fmt.Fprintf(os.Stderr, "  INGESTBENCH_INVOCATIONS       Invocations per trial\n")
		fmt.Fprintf(os.Stderr, "  INGESTBENCH_TRIALS            Trials per function\n")
		fmt.Fprintf(os.Stderr, "  INGESTBENCH_OUTPUT_DIR        Output directory\n")
		fmt.Fprintf(os.Stderr, "  INGESTBENCH_RESULTS_DB        SQLite result store\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("ingestbench-run version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, flags, setFlags())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		flag.Usage()
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to create output directories: %v", err)
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Run failed: %v", err)
	}
}

// setFlags returns the names of flags given on the command line.
func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// loadConfig layers defaults, the config file, environment variables and
// finally the flags that were set explicitly.
func loadConfig(configFile string, flags *config.Runner, set map[string]bool) (*config.Runner, error) {
	var cfg *config.Runner
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultRunner()
	}

	config.LoadFromEnv(cfg)

	overrides := map[string]func(){
		"function-prefix": func() { cfg.FunctionPrefix = flags.FunctionPrefix },
		"region":          func() { cfg.Region = flags.Region },
		"invocations":     func() { cfg.Invocations = flags.Invocations },
		"trials":          func() { cfg.Trials = flags.Trials },
		"parallelism":     func() { cfg.Parallelism = flags.Parallelism },
		"call-timeout":    func() { cfg.CallTimeout = flags.CallTimeout },
		"delay":           func() { cfg.InterCallDelay = flags.InterCallDelay },
		"budget":          func() { cfg.Budget = flags.Budget },
		"output":          func() { cfg.Output.RecordsPath = flags.Output.RecordsPath },
		"csv":             func() { cfg.Output.CSVPath = flags.Output.CSVPath },
		"results-db":      func() { cfg.Output.ResultsDB = flags.Output.ResultsDB },
		"query-logs":      func() { cfg.Logs.QueryAfterRun = flags.Logs.QueryAfterRun },
		"verify":          func() { cfg.Verify.Enabled = flags.Verify.Enabled },
		"verify-bucket":   func() { cfg.Verify.Bucket = flags.Verify.Bucket },
		"log-level":       func() { cfg.LogLevel = flags.LogLevel },
	}
	for name, apply := range overrides {
		if set[name] {
			apply()
		}
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Runner) error {
	logger := logging.Component("runner")

	api, err := invoker.NewLambdaClient(ctx, cfg.Region)
	if err != nil {
		return err
	}

	sinks, err := openSinks(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				logger.Warn("failed to close result sink", "error", err)
			}
		}
	}()

	// Trials keep flowing to disk after an interrupt.
	writeCtx := context.WithoutCancel(ctx)
	onTrial := func(tr types.TrialResult) {
		for _, s := range sinks {
			if err := s.WriteTrial(writeCtx, &tr); err != nil {
				logger.Error("failed to persist trial", "run_id", tr.RunID, "error", err)
			}
		}
	}

	d, err := driver.New(api, driver.Config{
		Invocations:    cfg.Invocations,
		Trials:         cfg.Trials,
		Parallelism:    cfg.Parallelism,
		CallTimeout:    cfg.CallTimeout,
		InterCallDelay: cfg.InterCallDelay,
		Budget:         cfg.Budget,
		Region:         cfg.Region,
	}, driver.WithTrialCallback(onTrial))
	if err != nil {
		return err
	}

	started := time.Now()
	res, err := d.Run(ctx, cfg.FunctionPrefix)
	if err != nil {
		return err
	}
	records := res.Records()
	logger.Info("run finished",
		"functions", len(res.Endpoints),
		"trials", len(res.Trials),
		"records", len(records),
		"aborted", res.Aborted,
		"elapsed", time.Since(started).Round(time.Millisecond),
		"records_path", cfg.Output.RecordsPath)

	if cfg.Output.CSVPath != "" {
		if err := results.WriteCSV(cfg.Output.CSVPath, records); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}

	cost, err := aggregator.NewCostModel(cfg.Cost)
	if err != nil {
		return err
	}
	if err := report.WriteText(os.Stdout, aggregator.Summarize(records, aggregator.Options{Cost: cost})); err != nil {
		return err
	}

	// Post-run steps use a fresh context so an interrupted run still reports.
	postCtx := context.WithoutCancel(ctx)
	if cfg.Verify.Enabled {
		if err := verifyObjects(postCtx, cfg, records); err != nil {
			logger.Error("verification failed", "error", err)
		}
	}
	if cfg.Logs.QueryAfterRun {
		queryLogs(postCtx, cfg, res.Trials, started)
	}
	return nil
}

func openSinks(cfg *config.Runner) ([]results.Sink, error) {
	jsonl, err := results.NewJSONLWriter(cfg.Output.RecordsPath)
	if err != nil {
		return nil, fmt.Errorf("open record file: %w", err)
	}
	sinks := []results.Sink{jsonl}

	if cfg.Output.ResultsDB != "" {
		store, err := results.OpenSQLiteStore(cfg.Output.ResultsDB)
		if err != nil {
			jsonl.Close()
			return nil, err
		}
		sinks = append(sinks, store)
	}
	return sinks, nil
}

// verifyObjects stats every object a successful record reported.
func verifyObjects(ctx context.Context, cfg *config.Runner, records []types.InvocationRecord) error {
	store, err := storage.NewS3Storage(ctx, storage.S3Config{Region: cfg.Region})
	if err != nil {
		return err
	}

	var expected []storage.Expectation
	for i := range records {
		r := &records[i]
		if !r.Succeeded() || r.S3Key == "" {
			continue
		}
		bucket := r.S3Bucket
		if cfg.Verify.Bucket != "" {
			bucket = cfg.Verify.Bucket
		}
		if bucket == "" {
			continue
		}
		expected = append(expected, storage.Expectation{
			Destination: storage.Destination{Bucket: bucket, Key: r.S3Key},
			Bytes:       r.ObjectBytes,
		})
	}

	res := storage.NewVerifier(store, cfg.Verify.Concurrency).Verify(ctx, expected)
	logger := logging.Component("verify")
	for dest, size := range res.Mismatched {
		logger.Warn("object size mismatch", "object", dest.String(), "observed", size)
	}
	for dest, err := range res.Errors {
		logger.Warn("object check failed", "object", dest.String(), "error", err)
	}
	logger.Info("verification finished", "checked", res.Checked, "matched", res.Matched, "ok", res.OK())
	if !res.OK() {
		return fmt.Errorf("%d of %d objects did not verify", res.Checked-res.Matched, res.Checked)
	}
	return nil
}

// queryLogs runs the latency/throughput query for every trial. A failed
// query is logged and skipped.
func queryLogs(ctx context.Context, cfg *config.Runner, trials []types.TrialResult, started time.Time) {
	logger := logging.Component("logsquery")
	client, err := logsquery.NewCloudWatchClient(ctx, cfg.Region, logsquery.Config{
		PollInterval: cfg.Logs.PollInterval,
		Timeout:      cfg.Logs.QueryTimeout,
	})
	if err != nil {
		logger.Error("failed to create logs client", "error", err)
		return
	}

	for i := range trials {
		tr := &trials[i]
		rows, err := client.Run(ctx, logsquery.Query{
			LogGroups: logsquery.LogGroups(cfg.Logs.LogGroupPrefix, []string{tr.FunctionName}),
			Start:     started.Add(-cfg.Logs.Lookback),
			End:       time.Now(),
			Query:     logsquery.LatencyThroughput(tr.RunID),
		})
		if err != nil {
			if bencherrors.IsKind(err, bencherrors.KindQueryFailure) {
				logger.Warn("log query skipped", "run_id", tr.RunID, "code", bencherrors.GetCode(err), "error", err)
				continue
			}
			logger.Error("log query failed", "run_id", tr.RunID, "error", err)
			continue
		}
		for _, row := range rows {
			logger.Info("log query result",
				"function", tr.FunctionName,
				"run_id", tr.RunID,
				"p95_ms", row["p95_ms"],
				"throughput_obj_per_s", row["throughput_obj_per_s"],
				"bytes_sum", row["bytes_sum"])
		}
	}
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Runner) {
	log.Printf("╔═══════════════════════════════════════════════════════════╗")
	log.Printf("║                     INGESTBENCH                           ║")
	log.Printf("║        Factorial S3 Ingestion Benchmark Driver            ║")
	log.Printf("╚═══════════════════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Prefix:      %s", cfg.FunctionPrefix)
	log.Printf("  Region:      %s", cfg.Region)
	log.Printf("  Invocations: %d x %d trials", cfg.Invocations, cfg.Trials)
	log.Printf("  Parallelism: %d", cfg.Parallelism)
	log.Printf("  Timeout:     %v", cfg.CallTimeout)
	if cfg.Budget > 0 {
		log.Printf("  Budget:      %d calls", cfg.Budget)
	}
	log.Printf("")
	log.Printf("Output:")
	log.Printf("  Records: %s", cfg.Output.RecordsPath)
	if cfg.Output.CSVPath != "" {
		log.Printf("  CSV:     %s", cfg.Output.CSVPath)
	}
	if cfg.Output.ResultsDB != "" {
		log.Printf("  DB:      %s", cfg.Output.ResultsDB)
	}
	log.Printf("")
}
