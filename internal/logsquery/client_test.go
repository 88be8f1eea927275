package logsquery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
	"github.com/ingestbench/ingestbench/pkg/types"
)

type fakeLogs struct {
	mu       sync.Mutex
	startErr error
	statuses []cwtypes.QueryStatus
	results  [][]cwtypes.ResultField
	polls    int
	stopped  int
	lastIn   *cloudwatchlogs.StartQueryInput
}

func (f *fakeLogs) StartQuery(_ context.Context, in *cloudwatchlogs.StartQueryInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastIn = in
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &cloudwatchlogs.StartQueryOutput{QueryId: aws.String("q-1")}, nil
}

func (f *fakeLogs) GetQueryResults(_ context.Context, _ *cloudwatchlogs.GetQueryResultsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := cwtypes.QueryStatusRunning
	if f.polls < len(f.statuses) {
		status = f.statuses[f.polls]
	}
	f.polls++
	out := &cloudwatchlogs.GetQueryResultsOutput{Status: status}
	if status == cwtypes.QueryStatusComplete {
		out.Results = f.results
	}
	return out, nil
}

func (f *fakeLogs) StopQuery(context.Context, *cloudwatchlogs.StopQueryInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StopQueryOutput, error) {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
	return &cloudwatchlogs.StopQueryOutput{}, nil
}

func field(name, value string) cwtypes.ResultField {
	return cwtypes.ResultField{Field: aws.String(name), Value: aws.String(value)}
}

func testQuery() Query {
	end := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	return Query{LogGroups: []string{"/aws/lambda/fn"}, Start: end.Add(-time.Hour), End: end, Query: "fields @timestamp"}
}

func TestRun_PollsUntilComplete(t *testing.T) {
	api := &fakeLogs{
		statuses: []cwtypes.QueryStatus{cwtypes.QueryStatusScheduled, cwtypes.QueryStatusRunning, cwtypes.QueryStatusComplete},
		results: [][]cwtypes.ResultField{
			{field("p95_ms", "123.4"), field("@ptr", "xyz")},
		},
	}
	c := NewClient(api, Config{PollInterval: time.Millisecond, Timeout: time.Second})

	rows, err := c.Run(context.Background(), testQuery())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "123.4", rows[0]["p95_ms"])
	_, hasPtr := rows[0]["@ptr"]
	assert.False(t, hasPtr, "@ptr is dropped")
	assert.Equal(t, 3, api.polls)
	assert.Equal(t, testQuery().Start.Unix(), *api.lastIn.StartTime)
}

func TestRun_FailedStatus(t *testing.T) {
	api := &fakeLogs{statuses: []cwtypes.QueryStatus{cwtypes.QueryStatusFailed}}
	c := NewClient(api, Config{PollInterval: time.Millisecond, Timeout: time.Second})

	_, err := c.Run(context.Background(), testQuery())
	assert.True(t, bencherrors.IsKind(err, bencherrors.KindQueryFailure), "got %v", err)
	assert.Equal(t, bencherrors.CodeQueryFailure, bencherrors.GetCode(err))
}

func TestRun_Timeout(t *testing.T) {
	api := &fakeLogs{}
	c := NewClient(api, Config{PollInterval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond})

	_, err := c.Run(context.Background(), testQuery())
	assert.True(t, bencherrors.IsKind(err, bencherrors.KindQueryFailure))
	assert.Equal(t, bencherrors.CodeQueryTimeout, bencherrors.GetCode(err))
	assert.Equal(t, 1, api.stopped)
}

func TestRun_StartError(t *testing.T) {
	api := &fakeLogs{startErr: errors.New("AccessDenied")}
	c := NewClient(api, Config{})

	_, err := c.Run(context.Background(), testQuery())
	assert.True(t, bencherrors.IsKind(err, bencherrors.KindQueryFailure))
}

func TestRun_InvalidQuery(t *testing.T) {
	c := NewClient(&fakeLogs{}, Config{})

	q := testQuery()
	q.LogGroups = nil
	_, err := c.Run(context.Background(), q)
	assert.True(t, bencherrors.IsKind(err, bencherrors.KindInvalidParameter))
}

func TestFetchRecords(t *testing.T) {
	api := &fakeLogs{
		statuses: []cwtypes.QueryStatus{cwtypes.QueryStatusComplete},
		results: [][]cwtypes.ResultField{
			{
				field("ts_start_ms", "1700000000000"), field("ts_end_ms", "1700000000150"),
				field("latency_ms", "150"), field("workload", "batch"), field("run_id", "r1"),
				field("memory_mb", "2048"), field("multipart_part_mb", "32"), field("multipart_parts", "4"),
				field("object_bytes", "1.048576e+08"), field("is_cold_start", "1"),
			},
			{
				field("ts_start_ms", "1700000000200"), field("ts_end_ms", "1700000000300"),
				field("latency_ms", "100"), field("workload", "batch"), field("run_id", "r1"),
				field("memory_mb", "2048"), field("multipart_part_mb", "32"),
				field("error", "[STORAGE:WRITE_FAILURE] aborted"), field("error_code", "WRITE_FAILURE"),
			},
		},
	}
	c := NewClient(api, Config{PollInterval: time.Millisecond, Timeout: time.Second})

	end := time.Now()
	recs, err := c.FetchRecords(context.Background(), []string{"/aws/lambda/fn"}, "r1", end.Add(-time.Hour), end)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.True(t, recs[0].Succeeded())
	assert.Equal(t, int64(104857600), recs[0].ObjectBytes)
	assert.True(t, recs[0].ColdStart)
	assert.Equal(t, types.SourceLogs, recs[0].Source)
	assert.Equal(t, types.FactorCombination{Workload: types.WorkloadBatch, MemoryMB: 2048, Secondary: 32}, recs[0].Combination())

	assert.False(t, recs[1].Succeeded())
	assert.Equal(t, "WRITE_FAILURE", recs[1].ErrorCode)

	assert.Contains(t, *api.lastIn.QueryString, `run_id = "r1"`)
	assert.Equal(t, int32(maxRows), *api.lastIn.Limit)
}

func TestRecordsFromRows_Invalid(t *testing.T) {
	_, err := RecordsFromRows([]Row{{"ts_start_ms": "soon"}})
	assert.True(t, bencherrors.IsKind(err, bencherrors.KindQueryFailure))

	_, err = RecordsFromRows([]Row{{"ts_start_ms": "10", "ts_end_ms": "5"}})
	assert.Error(t, err, "inverted timestamps are rejected")
}

func TestQueries(t *testing.T) {
	q := LatencyThroughput(`we"ird`)
	assert.Contains(t, q, `run_id = "we\"ird"`)
	assert.Contains(t, q, "pct(latency_ms, 95)")

	dims := ByDimensions("r", Filter{Workload: types.WorkloadEvents, MemoryMB: 512})
	assert.Contains(t, dims, `workload = "events"`)
	assert.Contains(t, dims, "memory_mb = 512")
	assert.NotContains(t, dims, "reserved_concurrency =")

	assert.Contains(t, Errors("r"), "ispresent(error)")
	assert.Contains(t, Cost("r"), "gb_seconds")
	assert.Contains(t, Throughput("r"), "bytes_per_second")
	for _, f := range recordFields {
		assert.True(t, strings.Contains(Records("r"), f), "records query selects %s", f)
	}
}

func TestLogGroups(t *testing.T) {
	assert.Equal(t, []string{"/aws/lambda/a", "/aws/lambda/b"}, LogGroups("/aws/lambda/", []string{"a", "b"}))
}
