package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingestbench/ingestbench/internal/aggregator"
	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
	"github.com/ingestbench/ingestbench/internal/logsquery"
	"github.com/ingestbench/ingestbench/internal/results"
	"github.com/ingestbench/ingestbench/pkg/types"
)

// failingLogs accepts every query and reports it as failed on the first poll.
type failingLogs struct {
	started int
}

func (f *failingLogs) StartQuery(context.Context, *cloudwatchlogs.StartQueryInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error) {
	f.started++
	return &cloudwatchlogs.StartQueryOutput{QueryId: aws.String("q-1")}, nil
}

func (f *failingLogs) GetQueryResults(context.Context, *cloudwatchlogs.GetQueryResultsInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error) {
	return &cloudwatchlogs.GetQueryResultsOutput{Status: cwtypes.QueryStatusFailed}, nil
}

func (f *failingLogs) StopQuery(context.Context, *cloudwatchlogs.StopQueryInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StopQueryOutput, error) {
	return &cloudwatchlogs.StopQueryOutput{}, nil
}

// stubFetcher returns canned records or errors per run id.
type stubFetcher struct {
	records map[string][]types.InvocationRecord
	errs    map[string]error
	calls   []string
}

func (s *stubFetcher) FetchRecords(_ context.Context, _ []string, runID string, _, _ time.Time) ([]types.InvocationRecord, error) {
	s.calls = append(s.calls, runID)
	if err := s.errs[runID]; err != nil {
		return nil, err
	}
	return s.records[runID], nil
}

func int64p(v int64) *int64 { return &v }

func writeRecords(t *testing.T, runID string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.jsonl")
	w, err := results.NewJSONLWriter(path)
	require.NoError(t, err)

	base := types.InvocationRecord{
		Workload: types.WorkloadEvents, RunID: runID, FunctionName: "ingest-events-m512-b10-rc0",
		MemoryMB: 512, BatchEvents: 10, EventsGenerated: 10, ObjectBytes: 2048,
		Trial: 1, Source: types.SourceDriver,
	}
	first, second := base, base
	first.Invocation, first.TsStartMs, first.TsEndMs, first.LatencyMs = 1, 1000, 1100, int64p(100)
	second.Invocation, second.TsStartMs, second.TsEndMs, second.LatencyMs = 2, 1100, 1250, int64p(150)

	require.NoError(t, w.Write([]types.InvocationRecord{first, second}))
	require.NoError(t, w.Close())
	return path
}

func TestLoadRecords_QueryFailureKeepsFileRecords(t *testing.T) {
	ctx := context.Background()
	api := &failingLogs{}
	client := logsquery.NewClient(api, logsquery.Config{PollInterval: time.Millisecond, Timeout: time.Second})

	opts := options{
		inputs:    []string{writeRecords(t, "run-file")},
		runIDs:    []string{"run-a", "run-b"},
		logGroups: []string{"/aws/lambda/ingest-events-m512-b10-rc0"},
		lookback:  time.Hour,
	}
	records, err := loadRecords(ctx, opts, client, time.Now())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, api.started, "every run id is still queried")

	summary := aggregator.Summarize(records, aggregator.Options{})
	require.Len(t, summary.Rows, 1)
	assert.Equal(t, 2, summary.Rows[0].Successes)
	assert.Equal(t, 0, summary.Rows[0].Failures)
}

func TestLoadRecords_SkipsOnlyFailedRuns(t *testing.T) {
	fromLogs := types.InvocationRecord{
		Workload: types.WorkloadEvents, RunID: "run-ok", MemoryMB: 512, BatchEvents: 10,
		TsStartMs: 5000, TsEndMs: 5100, LatencyMs: int64p(100), Source: types.SourceLogs,
	}
	fetcher := &stubFetcher{
		records: map[string][]types.InvocationRecord{"run-ok": {fromLogs}},
		errs: map[string]error{
			"run-slow": bencherrors.NewQueryError(bencherrors.CodeQueryTimeout, "still running", nil),
		},
	}
	opts := options{runIDs: []string{"run-slow", "run-ok"}, logGroups: []string{"g"}, lookback: time.Hour}

	records, err := loadRecords(context.Background(), opts, fetcher, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"run-slow", "run-ok"}, fetcher.calls)
	require.Len(t, records, 1)
	assert.Equal(t, "run-ok", records[0].RunID)
}

func TestLoadRecords_OtherErrorsAbort(t *testing.T) {
	fetcher := &stubFetcher{errs: map[string]error{"run-a": errors.New("credentials expired")}}
	opts := options{runIDs: []string{"run-a"}, logGroups: []string{"g"}, lookback: time.Hour}

	_, err := loadRecords(context.Background(), opts, fetcher, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-a")
}

func TestLoadRecords_QueryWindow(t *testing.T) {
	end := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotStart, gotEnd time.Time
	fetcher := fetchFunc(func(_ context.Context, _ []string, _ string, start, stop time.Time) ([]types.InvocationRecord, error) {
		gotStart, gotEnd = start, stop
		return nil, nil
	})
	opts := options{runIDs: []string{"run-a"}, logGroups: []string{"g"}, lookback: 2 * time.Hour}

	_, err := loadRecords(context.Background(), opts, fetcher, end)
	require.NoError(t, err)
	assert.Equal(t, end.Add(-2*time.Hour), gotStart)
	assert.Equal(t, end, gotEnd)
}

type fetchFunc func(ctx context.Context, logGroups []string, runID string, start, end time.Time) ([]types.InvocationRecord, error)

func (f fetchFunc) FetchRecords(ctx context.Context, logGroups []string, runID string, start, end time.Time) ([]types.InvocationRecord, error) {
	return f(ctx, logGroups, runID, start, end)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Nil(t, splitList(""))
}
