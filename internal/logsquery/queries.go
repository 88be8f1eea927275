package logsquery

import (
	"fmt"
	"strings"

	"github.com/ingestbench/ingestbench/pkg/types"
)

// quote renders s as a double-quoted Logs Insights string literal.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

const successFilter = "ispresent(latency_ms) and not ispresent(error)"

// LatencyThroughput computes p95 latency, throughput and bytes for one run
// over successful executions.
func LatencyThroughput(runID string) string {
	return fmt.Sprintf(`fields @timestamp, latency_ms, object_bytes
| filter run_id = %s and %s
| stats pct(latency_ms, 95) as p95_ms,
        count(*) / ((max(ts_end_ms) - min(ts_start_ms)) / 1000) as throughput_obj_per_s,
        sum(object_bytes) as bytes_sum
  by workload, memory_mb, batch_events, multipart_part_mb, reserved_concurrency`, quote(runID), successFilter)
}

// Filter narrows ByDimensions. Zero values are not filtered on.
type Filter struct {
	Workload    types.WorkloadKind
	MemoryMB    int
	Concurrency int
}

// ByDimensions lists the successful executions of a run, newest first.
func ByDimensions(runID string, f Filter) string {
	filters := []string{"run_id = " + quote(runID), "latency_ms > 0"}
	if f.Workload != "" {
		filters = append(filters, "workload = "+quote(string(f.Workload)))
	}
	if f.MemoryMB > 0 {
		filters = append(filters, fmt.Sprintf("memory_mb = %d", f.MemoryMB))
	}
	if f.Concurrency > 0 {
		filters = append(filters, fmt.Sprintf("reserved_concurrency = %d", f.Concurrency))
	}

	return fmt.Sprintf(`fields @timestamp, latency_ms, workload, memory_mb, reserved_concurrency, events_generated, object_bytes, multipart_parts, s3_key
| filter %s
| sort @timestamp desc`, strings.Join(filters, " and "))
}

// Errors lists failure records of a run.
func Errors(runID string) string {
	return fmt.Sprintf(`fields @timestamp, error, error_code, workload, memory_mb, reserved_concurrency, latency_ms
| filter run_id = %s and ispresent(error)
| sort @timestamp desc`, quote(runID))
}

// Cost aggregates the inputs of a cost estimate per combination.
func Cost(runID string) string {
	return fmt.Sprintf(`fields latency_ms, memory_mb, object_bytes, multipart_parts
| filter run_id = %s and latency_ms > 0
| stats avg(latency_ms) as avg_latency_ms,
        max(latency_ms) as max_latency_ms,
        count(*) as total_invocations,
        sum(object_bytes) as total_data_bytes,
        sum(latency_ms * memory_mb) / 1024000 as gb_seconds
  by workload, memory_mb, reserved_concurrency
| sort workload, memory_mb, reserved_concurrency`, quote(runID))
}

// Throughput computes per-second rates per combination.
func Throughput(runID string) string {
	return fmt.Sprintf(`fields @timestamp, object_bytes, events_generated
| filter run_id = %s and %s
| stats count(*) / (max(ts_end_ms) - min(ts_start_ms)) * 1000 as invocations_per_second,
        sum(object_bytes) / (max(ts_end_ms) - min(ts_start_ms)) * 1000 as bytes_per_second,
        sum(events_generated) / (max(ts_end_ms) - min(ts_start_ms)) * 1000 as events_per_second
  by workload, memory_mb, reserved_concurrency
| sort workload, memory_mb, reserved_concurrency`, quote(runID), successFilter)
}

// recordFields are the fields Records selects, in record order.
var recordFields = []string{
	"ts_start_ms", "ts_end_ms", "latency_ms", "workload", "run_id", "function_name",
	"region", "memory_mb", "reserved_concurrency", "batch_events", "events_generated",
	"object_bytes", "multipart_part_mb", "multipart_parts", "is_cold_start",
	"s3_bucket", "s3_key", "error", "error_code",
}

// Records selects the raw record fields of every execution of a run.
func Records(runID string) string {
	return fmt.Sprintf(`fields %s
| filter run_id = %s and ispresent(ts_start_ms)
| sort ts_start_ms asc`, strings.Join(recordFields, ", "), quote(runID))
}
