// Package report renders aggregator summaries as text tables and CSV files.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/ingestbench/ingestbench/internal/aggregator"
	"github.com/ingestbench/ingestbench/pkg/types"
)

const mb = 1024 * 1024

// WriteText renders the summary: one table row per combination, a TOTAL row,
// and per-workload roll-ups.
func WriteText(w io.Writer, s aggregator.Summary) error {
	fmt.Fprintln(w, "=== S3 Ingestion Performance Summary ===")
	fmt.Fprintf(w, "Combinations: %d  Invocations: %d  Successes: %d  Failures: %d\n\n",
		len(s.Rows), s.Total.Invocations, s.Total.Successes, s.Total.Failures)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"workload", "memory", "factor", "conc", "ok", "fail",
		"p50 ms", "p95 ms", "p99 ms", "mean ms", "max ms", "obj/s", "MB", "cost usd",
	})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoFormatHeaders(false)

	for i := range s.Rows {
		r := &s.Rows[i]
		c := r.Combination
		table.Append(append([]string{
			string(c.Workload),
			strconv.Itoa(c.MemoryMB),
			c.SecondaryLabel(),
			strconv.Itoa(c.Concurrency),
		}, statCells(r)...))
	}
	table.SetFooter(append([]string{"TOTAL", "", "", ""}, statCells(&s.Total)...))
	table.Render()

	byWorkload := aggregator.ByWorkload(s.Rows)
	if len(byWorkload) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\n=== Performance by Workload ===")
	for _, ws := range byWorkload {
		fmt.Fprintf(w, "%s:\n", strings.ToUpper(string(ws.Workload)))
		fmt.Fprintf(w, "  Mean P95 Latency: %.2f ± %.2f ms\n", ws.MeanP95Ms, ws.StdP95Ms)
		fmt.Fprintf(w, "  Mean Throughput: %.2f objects/sec\n", ws.MeanThroughput)
		fmt.Fprintf(w, "  Data Transferred: %.2f MB\n", float64(ws.BytesTotal)/mb)
		fmt.Fprintf(w, "  Success/Failure: %d/%d\n", ws.Successes, ws.Failures)
		if !ws.EstimatedCostUSD.IsZero() {
			fmt.Fprintf(w, "  Estimated Cost: $%s\n", ws.EstimatedCostUSD.StringFixed(6))
		}
	}
	return nil
}

func statCells(r *types.SummaryRow) []string {
	return []string{
		strconv.Itoa(r.Successes),
		strconv.Itoa(r.Failures),
		formatFloat(r.P50Ms),
		formatFloat(r.P95Ms),
		formatFloat(r.P99Ms),
		formatFloat(r.MeanMs),
		formatFloat(r.MaxMs),
		formatFloat(r.ThroughputPerSec),
		fmt.Sprintf("%.2f", float64(r.BytesTotal)/mb),
		r.EstimatedCostUSD.StringFixed(6),
	}
}

// formatFloat renders a statistic with two decimals, or "-" when missing.
func formatFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// WriteFile creates path and renders into it with fn.
func WriteFile(path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
