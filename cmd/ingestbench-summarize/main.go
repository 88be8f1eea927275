// Package main implements the ingestbench-summarize binary. It loads
// invocation records from record files, a result database or CloudWatch Logs
// and writes the summary reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ingestbench/ingestbench/internal/aggregator"
	"github.com/ingestbench/ingestbench/internal/config"
	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
	"github.com/ingestbench/ingestbench/internal/logging"
	"github.com/ingestbench/ingestbench/internal/logsquery"
	"github.com/ingestbench/ingestbench/internal/report"
	"github.com/ingestbench/ingestbench/internal/results"
	"github.com/ingestbench/ingestbench/pkg/types"
)

type options struct {
	inputs    []string
	runIDs    []string
	logGroups []string
	region    string
	lookback  time.Duration
	queryWait time.Duration
	sources   []types.RecordSource

	summaryPath        string
	pivotPath          string
	p95Path            string
	parquetPath        string
	recordsParquetPath string
	compression        string

	cost config.CostConfig
}

func main() {
	var (
		inputs, runIDs, logGroups string
		sources                   string
		opts                      options
		logLevel                  string
	)
	opts.cost = config.DefaultCost()

	flag.StringVar(&inputs, "input", "", "Comma separated record inputs (.jsonl, .jsonl.sz, .db, .parquet)")
	flag.StringVar(&runIDs, "query-run-id", "", "Comma separated run ids to load from CloudWatch Logs")
	flag.StringVar(&logGroups, "log-group", "", "Comma separated log groups for --query-run-id")
	flag.StringVar(&opts.region, "region", "", "AWS region for log queries")
	flag.DurationVar(&opts.lookback, "lookback", 24*time.Hour, "How far back log queries search")
	flag.DurationVar(&opts.queryWait, "query-timeout", 5*time.Minute, "Maximum wait for one log query")
	flag.StringVar(&sources, "source", "", "Comma separated record sources to summarize (driver, handler, logs); empty keeps all")
	flag.StringVar(&opts.summaryPath, "output-summary", "", "Write the text summary to this file instead of stdout")
	flag.StringVar(&opts.pivotPath, "output-pivot", "", "Pivot CSV of p95 latency")
	flag.StringVar(&opts.p95Path, "output-p95", "", "Per-combination percentile CSV")
	flag.StringVar(&opts.parquetPath, "output-parquet", "", "Parquet file of summary rows")
	flag.StringVar(&opts.recordsParquetPath, "records-parquet", "", "Parquet file of the loaded records")
	flag.StringVar(&opts.compression, "parquet-compression", "zstd", "Parquet compression: zstd, snappy, gzip, none")
	flag.StringVar(&opts.cost.LambdaGBSecond, "price-gb-second", opts.cost.LambdaGBSecond, "Lambda price per GB-second (USD)")
	flag.StringVar(&opts.cost.LambdaRequest, "price-request", opts.cost.LambdaRequest, "Lambda price per request (USD)")
	flag.StringVar(&opts.cost.S3Put, "price-s3-put", opts.cost.S3Put, "S3 price per PUT-class request (USD)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	opts.inputs = splitList(inputs)
	opts.runIDs = splitList(runIDs)
	opts.logGroups = splitList(logGroups)
	for _, src := range splitList(sources) {
		switch types.RecordSource(src) {
		case types.SourceDriver, types.SourceHandler, types.SourceLogs:
			opts.sources = append(opts.sources, types.RecordSource(src))
		default:
			log.Fatalf("unknown --source %q", src)
		}
	}

	if len(opts.inputs) == 0 && len(opts.runIDs) == 0 {
		flag.Usage()
		log.Fatal("either --input or --query-run-id is required")
	}
	if len(opts.runIDs) > 0 && len(opts.logGroups) == 0 {
		log.Fatal("--query-run-id requires --log-group")
	}

	logging.Init(logging.ParseLevel(logLevel), false)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("Summarize failed: %v", err)
	}
}

func run(ctx context.Context, opts options) error {
	logger := logging.Component("summarize")

	var fetcher recordFetcher
	if len(opts.runIDs) > 0 {
		client, err := logsquery.NewCloudWatchClient(ctx, opts.region, logsquery.Config{Timeout: opts.queryWait})
		if err != nil {
			return err
		}
		fetcher = client
	}

	records, err := loadRecords(ctx, opts, fetcher, time.Now())
	if err != nil {
		return err
	}
	logger.Info("records loaded", "records", len(records))
	if len(opts.sources) == 0 && aggregator.MixedSources(records) {
		logger.Warn("inputs mix log-derived and recorded invocations; calls present in both are counted twice, pass --source to pick one")
	}

	cost, err := aggregator.NewCostModel(opts.cost)
	if err != nil {
		return err
	}
	summary := aggregator.Summarize(records, aggregator.Options{Cost: cost, Sources: opts.sources})

	if opts.summaryPath != "" {
		if err := report.WriteFile(opts.summaryPath, func(w io.Writer) error { return report.WriteText(w, summary) }); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	} else if err := report.WriteText(os.Stdout, summary); err != nil {
		return err
	}

	if opts.pivotPath != "" {
		if err := report.WriteFile(opts.pivotPath, func(w io.Writer) error { return report.WritePivotCSV(w, summary.Rows) }); err != nil {
			return fmt.Errorf("write pivot: %w", err)
		}
	}
	if opts.p95Path != "" {
		if err := report.WriteFile(opts.p95Path, func(w io.Writer) error { return report.WritePercentileCSV(w, summary.Rows) }); err != nil {
			return fmt.Errorf("write percentiles: %w", err)
		}
	}

	pq := results.ParquetOptions{Compression: opts.compression}
	if opts.parquetPath != "" {
		if err := results.WriteSummaryParquet(opts.parquetPath, summary.Rows, pq); err != nil {
			return fmt.Errorf("write summary parquet: %w", err)
		}
	}
	if opts.recordsParquetPath != "" {
		if err := results.WriteRecordsParquet(opts.recordsParquetPath, records, pq); err != nil {
			return fmt.Errorf("write records parquet: %w", err)
		}
	}
	return nil
}

// recordFetcher loads the log-derived records of one run.
type recordFetcher interface {
	FetchRecords(ctx context.Context, logGroups []string, runID string, start, end time.Time) ([]types.InvocationRecord, error)
}

// loadRecords reads every input file, then each queried run. A run whose log
// query fails is skipped so the records already loaded are still summarized.
func loadRecords(ctx context.Context, opts options, fetcher recordFetcher, end time.Time) ([]types.InvocationRecord, error) {
	records, err := results.LoadAll(ctx, opts.inputs)
	if err != nil {
		return nil, err
	}
	if len(opts.runIDs) == 0 || fetcher == nil {
		return records, nil
	}

	logger := logging.Component("summarize")
	for _, runID := range opts.runIDs {
		recs, err := fetcher.FetchRecords(ctx, opts.logGroups, runID, end.Add(-opts.lookback), end)
		if err != nil {
			if bencherrors.IsKind(err, bencherrors.KindQueryFailure) {
				logger.Warn("log query skipped", "run_id", runID, "code", bencherrors.GetCode(err), "error", err)
				continue
			}
			return nil, fmt.Errorf("query run %s: %w", runID, err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
