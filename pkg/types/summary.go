package types

import "github.com/shopspring/decimal"

// SummaryRow aggregates one factor combination's records. It is derived on
// every analysis pass and never persisted as the source of truth.
//
// Statistic pointers are nil when the combination has no successful records.
type SummaryRow struct {
	Combination FactorCombination `json:"combination"`

	Invocations int `json:"invocations"`
	Successes   int `json:"successes"`
	Failures    int `json:"failures"`

	P50Ms  *float64 `json:"p50_ms"`
	P95Ms  *float64 `json:"p95_ms"`
	P99Ms  *float64 `json:"p99_ms"`
	MeanMs *float64 `json:"mean_ms"`
	MaxMs  *float64 `json:"max_ms"`

	// ThroughputPerSec is successful objects per second of wall-clock span
	ThroughputPerSec *float64 `json:"throughput_obj_per_s"`

	BytesTotal  int64 `json:"bytes_total"`
	EventsTotal int64 `json:"events_total"`

	FirstStartMs int64 `json:"first_start_ms"`
	LastEndMs    int64 `json:"last_end_ms"`

	EstimatedCostUSD decimal.Decimal `json:"estimated_cost_usd"`
}

// HasStats reports whether latency statistics are available.
func (s *SummaryRow) HasStats() bool {
	return s.P95Ms != nil
}
