// Package aggregator turns invocation records into per-combination summary
// statistics. Only successful records contribute latency, throughput, bytes
// and events; failures are counted.
package aggregator

import (
	"math"
	"slices"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ingestbench/ingestbench/pkg/types"
)

// Options controls summarization.
type Options struct {
	// Cost, when set, fills EstimatedCostUSD
	Cost *CostModel
	// Sources, when non-empty, keeps only records produced by one of them.
	Sources []types.RecordSource
}

// Summary holds one row per combination plus a total over all records.
type Summary struct {
	Rows  []types.SummaryRow
	Total types.SummaryRow
}

// Summarize groups records by factor combination. Rows are ordered by
// workload, memory, secondary factor and concurrency.
func Summarize(records []types.InvocationRecord, opts Options) Summary {
	records = FilterSources(records, opts.Sources)

	groups := make(map[types.FactorCombination][]types.InvocationRecord)
	for _, r := range records {
		c := r.Combination()
		groups[c] = append(groups[c], r)
	}

	keys := make([]types.FactorCombination, 0, len(groups))
	for c := range groups {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	summary := Summary{Rows: make([]types.SummaryRow, 0, len(keys))}
	for _, c := range keys {
		summary.Rows = append(summary.Rows, summarizeGroup(c, groups[c], opts))
	}
	summary.Total = summarizeGroup(types.FactorCombination{}, records, opts)
	return summary
}

// FilterSources returns the records produced by one of sources. An empty
// list keeps everything.
func FilterSources(records []types.InvocationRecord, sources []types.RecordSource) []types.InvocationRecord {
	if len(sources) == 0 {
		return records
	}
	out := make([]types.InvocationRecord, 0, len(records))
	for _, r := range records {
		if slices.Contains(sources, r.Source) {
			out = append(out, r)
		}
	}
	return out
}

// MixedSources reports whether records holds both log-derived records and
// records written by the driver or handler. The same call then appears
// twice.
func MixedSources(records []types.InvocationRecord) bool {
	var logs, other bool
	for _, r := range records {
		if r.Source == types.SourceLogs {
			logs = true
		} else {
			other = true
		}
		if logs && other {
			return true
		}
	}
	return false
}

func summarizeGroup(c types.FactorCombination, records []types.InvocationRecord, opts Options) types.SummaryRow {
	row := types.SummaryRow{
		Combination:      c,
		Invocations:      len(records),
		EstimatedCostUSD: decimal.Zero,
	}

	latencies := make([]float64, 0, len(records))
	var firstStart, lastEnd int64 = math.MaxInt64, math.MinInt64

	for i := range records {
		r := &records[i]
		if !r.Succeeded() {
			row.Failures++
			continue
		}
		row.Successes++
		latencies = append(latencies, float64(*r.LatencyMs))
		row.BytesTotal += r.ObjectBytes
		row.EventsTotal += int64(r.EventsGenerated)
		if r.TsStartMs < firstStart {
			firstStart = r.TsStartMs
		}
		if r.TsEndMs > lastEnd {
			lastEnd = r.TsEndMs
		}
	}

	if opts.Cost != nil {
		row.EstimatedCostUSD = opts.Cost.Cost(records)
	}

	if len(latencies) == 0 {
		return row
	}

	sort.Float64s(latencies)
	row.P50Ms = percentilePtr(latencies, 50)
	row.P95Ms = percentilePtr(latencies, 95)
	row.P99Ms = percentilePtr(latencies, 99)

	var sum float64
	for _, l := range latencies {
		sum += l
	}
	mean := sum / float64(len(latencies))
	maxLat := latencies[len(latencies)-1]
	row.MeanMs = &mean
	row.MaxMs = &maxLat

	row.FirstStartMs = firstStart
	row.LastEndMs = lastEnd
	if span := lastEnd - firstStart; span > 0 {
		tp := float64(row.Successes) / (float64(span) / 1000)
		row.ThroughputPerSec = &tp
	}
	return row
}

func percentilePtr(sorted []float64, p float64) *float64 {
	v, ok := Percentile(sorted, p)
	if !ok {
		return nil
	}
	return &v
}

// WorkloadStats rolls rows up per workload kind.
type WorkloadStats struct {
	Workload     types.WorkloadKind
	Combinations int
	Successes    int
	Failures     int

	// MeanP95Ms and StdP95Ms are over the rows that have statistics
	MeanP95Ms        float64
	StdP95Ms         float64
	MeanThroughput   float64
	BytesTotal       int64
	EstimatedCostUSD decimal.Decimal
}

// ByWorkload summarizes rows per workload, ordered by workload name.
func ByWorkload(rows []types.SummaryRow) []WorkloadStats {
	idx := make(map[types.WorkloadKind]int)
	var out []WorkloadStats
	p95s := make(map[types.WorkloadKind][]float64)
	tps := make(map[types.WorkloadKind][]float64)

	for i := range rows {
		r := &rows[i]
		k := r.Combination.Workload
		j, ok := idx[k]
		if !ok {
			j = len(out)
			idx[k] = j
			out = append(out, WorkloadStats{Workload: k, EstimatedCostUSD: decimal.Zero})
		}
		ws := &out[j]
		ws.Combinations++
		ws.Successes += r.Successes
		ws.Failures += r.Failures
		ws.BytesTotal += r.BytesTotal
		ws.EstimatedCostUSD = ws.EstimatedCostUSD.Add(r.EstimatedCostUSD)
		if r.P95Ms != nil {
			p95s[k] = append(p95s[k], *r.P95Ms)
		}
		if r.ThroughputPerSec != nil {
			tps[k] = append(tps[k], *r.ThroughputPerSec)
		}
	}

	for i := range out {
		k := out[i].Workload
		out[i].MeanP95Ms, out[i].StdP95Ms = meanStd(p95s[k])
		out[i].MeanThroughput, _ = meanStd(tps[k])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Workload < out[j].Workload })
	return out
}

// meanStd returns the mean and sample standard deviation of vs.
func meanStd(vs []float64) (mean, std float64) {
	if len(vs) == 0 {
		return 0, 0
	}
	for _, v := range vs {
		mean += v
	}
	mean /= float64(len(vs))
	if len(vs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range vs {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(vs)-1))
}
