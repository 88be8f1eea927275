package report

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingestbench/ingestbench/internal/aggregator"
	"github.com/ingestbench/ingestbench/pkg/types"
)

func f64(v float64) *float64 { return &v }

func sampleRows() []types.SummaryRow {
	return []types.SummaryRow{
		{
			Combination: types.FactorCombination{Workload: types.WorkloadBatch, MemoryMB: 1024, Secondary: 8},
			Invocations: 10, Successes: 10,
			P50Ms: f64(800), P95Ms: f64(950.5), P99Ms: f64(990), MeanMs: f64(820), MaxMs: f64(1000),
			ThroughputPerSec: f64(1.2), BytesTotal: 10 * 100 * mb, EstimatedCostUSD: decimal.RequireFromString("0.0003"),
		},
		{
			Combination: types.FactorCombination{Workload: types.WorkloadBatch, MemoryMB: 1024, Secondary: 32},
			Invocations: 10, Successes: 0, Failures: 10, EstimatedCostUSD: decimal.Zero,
		},
		{
			Combination: types.FactorCombination{Workload: types.WorkloadEvents, MemoryMB: 512, Secondary: 10, Concurrency: 10},
			Invocations: 10, Successes: 9, Failures: 1,
			P50Ms: f64(40), P95Ms: f64(55.25), P99Ms: f64(60), MeanMs: f64(42), MaxMs: f64(61),
			ThroughputPerSec: f64(20), BytesTotal: 9 * 2569, EventsTotal: 90, EstimatedCostUSD: decimal.Zero,
		},
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteText(t *testing.T) {
	rows := sampleRows()
	s := aggregator.Summary{
		Rows:  rows,
		Total: types.SummaryRow{Invocations: 30, Successes: 19, Failures: 11, P95Ms: f64(940), EstimatedCostUSD: decimal.Zero},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, s))
	out := buf.String()

	assert.Contains(t, out, "Invocations: 30  Successes: 19  Failures: 11")
	assert.Contains(t, out, "part_8mb")
	assert.Contains(t, out, "batch_10")
	assert.Contains(t, out, "950.50")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "BATCH:")
	assert.Contains(t, out, "EVENTS:")
	assert.Contains(t, out, "Mean P95 Latency: 55.25 ± 0.00 ms")
	assert.Contains(t, out, "Estimated Cost: $0.000300")
}

func TestWriteText_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, aggregator.Summary{}))
	assert.Contains(t, buf.String(), "Combinations: 0")
	assert.NotContains(t, buf.String(), "Performance by Workload")
}

func TestWritePivotCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePivotCSV(&buf, sampleRows()))
	rows := readCSV(t, buf.Bytes())

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"workload", "memory_mb", "reserved_concurrency", "part_8mb", "part_32mb", "batch_10"}, rows[0])
	assert.Equal(t, []string{"batch", "1024", "0", "950.50", "", ""}, rows[1])
	assert.Equal(t, []string{"events", "512", "10", "", "", "55.25"}, rows[2])
}

func TestWritePercentileCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePercentileCSV(&buf, sampleRows()))
	rows := readCSV(t, buf.Bytes())

	require.Len(t, rows, 4)
	assert.Equal(t, "p95_ms", rows[0][9])
	assert.Equal(t, "950.5", rows[1][9])
	assert.Equal(t, "", rows[2][9], "no successes leaves statistics empty")
	assert.Equal(t, "10", rows[2][7])
	assert.Equal(t, "0.0003", rows[1][16])
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "pivot.csv")
	require.NoError(t, WriteFile(path, func(w io.Writer) error { return WritePivotCSV(w, sampleRows()) }))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "workload,memory_mb"))
}
