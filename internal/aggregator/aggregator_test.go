package aggregator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingestbench/ingestbench/internal/config"
	"github.com/ingestbench/ingestbench/pkg/types"
)

func success(c types.FactorCombination, startMs, latency int64) types.InvocationRecord {
	rec := types.InvocationRecord{
		Workload:            c.Workload,
		MemoryMB:            c.MemoryMB,
		ReservedConcurrency: c.Concurrency,
		ObjectBytes:         100,
		EventsGenerated:     c.Secondary,
	}
	if c.Workload == types.WorkloadBatch {
		rec.MultipartPartMB = c.Secondary
		rec.MultipartParts = 4
		rec.EventsGenerated = 0
	} else {
		rec.BatchEvents = c.Secondary
	}
	rec, err := rec.WithTiming(types.Timing{StartMs: startMs, EndMs: startMs + latency})
	if err != nil {
		panic(err)
	}
	return rec
}

func failure(c types.FactorCombination, startMs int64) types.InvocationRecord {
	rec := success(c, startMs, 0)
	return rec.WithFailure(nil, "THROTTLED", false)
}

var (
	events10 = types.FactorCombination{Workload: types.WorkloadEvents, MemoryMB: 1024, Secondary: 10, Concurrency: 0}
	batch8   = types.FactorCombination{Workload: types.WorkloadBatch, MemoryMB: 512, Secondary: 8, Concurrency: 10}
)

func TestPercentile(t *testing.T) {
	var vals []float64
	for v := 10.0; v <= 100; v += 10 {
		vals = append(vals, v)
	}

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{50, 55},
		{95, 95.5},
		{99, 99.1},
		{100, 100},
	}
	for _, tt := range tests {
		got, ok := Percentile(vals, tt.p)
		require.True(t, ok)
		assert.InDelta(t, tt.want, got, 1e-9, "p%v", tt.p)
	}

	_, ok := Percentile(nil, 50)
	assert.False(t, ok, "empty input has no percentile")
	_, ok = Percentile(vals, 101)
	assert.False(t, ok, "p above 100 is rejected")

	single, ok := Percentile([]float64{42}, 95)
	require.True(t, ok)
	assert.Equal(t, 42.0, single)
}

func TestSummarize_Statistics(t *testing.T) {
	var records []types.InvocationRecord
	for i, lat := range []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		records = append(records, success(events10, int64(i)*1000, lat))
	}
	records = append(records, failure(events10, 50_000))

	s := Summarize(records, Options{})
	require.Len(t, s.Rows, 1)
	row := s.Rows[0]

	assert.Equal(t, events10, row.Combination)
	assert.Equal(t, 11, row.Invocations)
	assert.Equal(t, 10, row.Successes)
	assert.Equal(t, 1, row.Failures)
	require.True(t, row.HasStats())
	assert.InDelta(t, 55, *row.P50Ms, 1e-9)
	assert.InDelta(t, 95.5, *row.P95Ms, 1e-9)
	assert.InDelta(t, 99.1, *row.P99Ms, 1e-9)
	assert.InDelta(t, 55, *row.MeanMs, 1e-9)
	assert.Equal(t, 100.0, *row.MaxMs)

	// successes span 0 .. 9000+100 ms; the failure at 50s is excluded
	assert.Equal(t, int64(0), row.FirstStartMs)
	assert.Equal(t, int64(9100), row.LastEndMs)
	require.NotNil(t, row.ThroughputPerSec)
	assert.InDelta(t, 10/9.1, *row.ThroughputPerSec, 1e-9)

	assert.Equal(t, int64(1000), row.BytesTotal)
	assert.Equal(t, int64(100), row.EventsTotal)
}

func TestSummarize_ZeroSuccesses(t *testing.T) {
	records := []types.InvocationRecord{failure(batch8, 0), failure(batch8, 10)}

	s := Summarize(records, Options{})
	require.Len(t, s.Rows, 1)
	row := s.Rows[0]

	assert.Equal(t, 0, row.Successes)
	assert.Equal(t, 2, row.Failures)
	assert.False(t, row.HasStats())
	assert.Nil(t, row.P50Ms)
	assert.Nil(t, row.MeanMs)
	assert.Nil(t, row.ThroughputPerSec)
	assert.Zero(t, row.BytesTotal)
}

func TestSummarize_ZeroSpanHasNoThroughput(t *testing.T) {
	records := []types.InvocationRecord{success(events10, 100, 0)}
	row := Summarize(records, Options{}).Rows[0]
	assert.True(t, row.HasStats())
	assert.Nil(t, row.ThroughputPerSec)
}

func TestSummarize_OrderingAndTotal(t *testing.T) {
	records := []types.InvocationRecord{
		success(events10, 0, 10),
		success(batch8, 0, 200),
		success(events10, 10, 20),
		failure(batch8, 5),
	}

	s := Summarize(records, Options{})
	require.Len(t, s.Rows, 2)
	assert.Equal(t, types.WorkloadBatch, s.Rows[0].Combination.Workload, "batch sorts before events")
	assert.Equal(t, types.WorkloadEvents, s.Rows[1].Combination.Workload)

	assert.Equal(t, 4, s.Total.Invocations)
	assert.Equal(t, 3, s.Total.Successes)
	assert.Equal(t, 1, s.Total.Failures)
	assert.Equal(t, 200.0, *s.Total.MaxMs)
}

func TestSummarize_SourceFilter(t *testing.T) {
	driver := success(events10, 0, 10)
	driver.Source = types.SourceDriver
	fromLogs := driver
	fromLogs.Source = types.SourceLogs
	records := []types.InvocationRecord{driver, fromLogs}

	assert.True(t, MixedSources(records))
	assert.False(t, MixedSources(records[:1]))

	all := Summarize(records, Options{})
	assert.Equal(t, 2, all.Total.Invocations, "no filter counts both copies")

	s := Summarize(records, Options{Sources: []types.RecordSource{types.SourceDriver}})
	require.Len(t, s.Rows, 1)
	assert.Equal(t, 1, s.Rows[0].Invocations)
	assert.Equal(t, 1, s.Total.Invocations)

	none := Summarize(records, Options{Sources: []types.RecordSource{types.SourceHandler}})
	assert.Empty(t, none.Rows)
	assert.Equal(t, 0, none.Total.Invocations)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, Options{})
	assert.Empty(t, s.Rows)
	assert.Equal(t, 0, s.Total.Invocations)
	assert.False(t, s.Total.HasStats())
}

func TestCostModel(t *testing.T) {
	m, err := NewCostModel(config.CostConfig{
		LambdaGBSecond: "0.0000166667",
		LambdaRequest:  "0.0000002",
		S3Put:          "0.000005",
	})
	require.NoError(t, err)

	// 1024 MB for 1000 ms = 1 GB-second
	ev := success(events10, 0, 1000)
	want := decimal.RequireFromString("0.0000166667").
		Add(decimal.RequireFromString("0.0000002")).
		Add(decimal.RequireFromString("0.000005"))
	assert.True(t, want.Equal(m.RecordCost(&ev)), "events cost = %s, want %s", m.RecordCost(&ev), want)

	// batch: 4 parts + create + complete = 6 PUT-class requests
	b := success(batch8, 0, 2000)
	assert.Equal(t, int64(6), PutRequests(&b))
	wantBatch := decimal.RequireFromString("0.0000166667").
		Add(decimal.RequireFromString("0.0000002")).
		Add(decimal.RequireFromString("0.00003"))
	assert.True(t, wantBatch.Equal(m.RecordCost(&b)), "batch cost = %s, want %s", m.RecordCost(&b), wantBatch)

	// driver-side failure never ran
	f := failure(events10, 0)
	assert.True(t, m.RecordCost(&f).IsZero())
}

func TestNewCostModel_Invalid(t *testing.T) {
	_, err := NewCostModel(config.CostConfig{LambdaGBSecond: "abc", LambdaRequest: "0", S3Put: "0"})
	assert.Error(t, err)
	_, err = NewCostModel(config.CostConfig{LambdaGBSecond: "-1", LambdaRequest: "0", S3Put: "0"})
	assert.Error(t, err)
}

func TestSummarize_WithCost(t *testing.T) {
	m, err := NewCostModel(config.DefaultCost())
	require.NoError(t, err)

	s := Summarize([]types.InvocationRecord{success(events10, 0, 500), success(events10, 600, 500)}, Options{Cost: m})
	assert.True(t, s.Rows[0].EstimatedCostUSD.IsPositive())
	assert.True(t, s.Rows[0].EstimatedCostUSD.Equal(s.Total.EstimatedCostUSD))
}

func TestByWorkload(t *testing.T) {
	p1, p2, tp := 100.0, 200.0, 5.0
	rows := []types.SummaryRow{
		{Combination: events10, Successes: 3, P95Ms: &p1, ThroughputPerSec: &tp, BytesTotal: 10},
		{Combination: types.FactorCombination{Workload: types.WorkloadEvents, MemoryMB: 2048, Secondary: 1}, Successes: 2, Failures: 1, P95Ms: &p2, BytesTotal: 5},
		{Combination: batch8, Failures: 4},
	}

	stats := ByWorkload(rows)
	require.Len(t, stats, 2)

	assert.Equal(t, types.WorkloadBatch, stats[0].Workload)
	assert.Equal(t, 4, stats[0].Failures)
	assert.Zero(t, stats[0].MeanP95Ms)

	ev := stats[1]
	assert.Equal(t, 2, ev.Combinations)
	assert.Equal(t, 5, ev.Successes)
	assert.InDelta(t, 150, ev.MeanP95Ms, 1e-9)
	assert.InDelta(t, 70.7106781, ev.StdP95Ms, 1e-6)
	assert.InDelta(t, 5, ev.MeanThroughput, 1e-9)
	assert.Equal(t, int64(15), ev.BytesTotal)
}
