package report

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/ingestbench/ingestbench/pkg/types"
)

// pivotKey is one pivot row.
type pivotKey struct {
	workload    types.WorkloadKind
	memoryMB    int
	concurrency int
}

// WritePivotCSV writes p95 latency with one row per workload, memory and
// concurrency and one column per secondary factor level. Cells without
// statistics are empty.
func WritePivotCSV(w io.Writer, rows []types.SummaryRow) error {
	type column struct {
		workload  types.WorkloadKind
		secondary int
		label     string
	}
	var (
		cols    []column
		seenCol = make(map[string]bool)
		keys    []pivotKey
		seenKey = make(map[pivotKey]bool)
		cells   = make(map[pivotKey]map[string]string)
	)

	for i := range rows {
		r := &rows[i]
		c := r.Combination
		label := c.SecondaryLabel()
		if !seenCol[label] {
			seenCol[label] = true
			cols = append(cols, column{c.Workload, c.Secondary, label})
		}
		k := pivotKey{c.Workload, c.MemoryMB, c.Concurrency}
		if !seenKey[k] {
			seenKey[k] = true
			keys = append(keys, k)
			cells[k] = make(map[string]string)
		}
		if r.P95Ms != nil {
			cells[k][label] = strconv.FormatFloat(*r.P95Ms, 'f', 2, 64)
		}
	}

	sort.Slice(cols, func(i, j int) bool {
		if cols[i].workload != cols[j].workload {
			return cols[i].workload < cols[j].workload
		}
		return cols[i].secondary < cols[j].secondary
	})
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.workload != b.workload {
			return a.workload < b.workload
		}
		if a.memoryMB != b.memoryMB {
			return a.memoryMB < b.memoryMB
		}
		return a.concurrency < b.concurrency
	})

	cw := csv.NewWriter(w)
	header := []string{"workload", "memory_mb", "reserved_concurrency"}
	for _, c := range cols {
		header = append(header, c.label)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, k := range keys {
		line := []string{string(k.workload), strconv.Itoa(k.memoryMB), strconv.Itoa(k.concurrency)}
		for _, c := range cols {
			line = append(line, cells[k][c.label])
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePercentileCSV writes one row per combination with every statistic.
func WritePercentileCSV(w io.Writer, rows []types.SummaryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"workload", "memory_mb", "secondary", "secondary_label", "reserved_concurrency",
		"invocations", "successes", "failures",
		"p50_ms", "p95_ms", "p99_ms", "mean_ms", "max_ms",
		"throughput_obj_per_s", "bytes_total", "events_total", "estimated_cost_usd",
	}); err != nil {
		return err
	}
	for i := range rows {
		r := &rows[i]
		c := r.Combination
		if err := cw.Write([]string{
			string(c.Workload),
			strconv.Itoa(c.MemoryMB),
			strconv.Itoa(c.Secondary),
			c.SecondaryLabel(),
			strconv.Itoa(c.Concurrency),
			strconv.Itoa(r.Invocations),
			strconv.Itoa(r.Successes),
			strconv.Itoa(r.Failures),
			csvFloat(r.P50Ms),
			csvFloat(r.P95Ms),
			csvFloat(r.P99Ms),
			csvFloat(r.MeanMs),
			csvFloat(r.MaxMs),
			csvFloat(r.ThroughputPerSec),
			strconv.FormatInt(r.BytesTotal, 10),
			strconv.FormatInt(r.EventsTotal, 10),
			r.EstimatedCostUSD.String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
