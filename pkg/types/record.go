// Package types provides the shared data model for ingestbench: invocation
// records, factor combinations, trial results and summary rows.
package types

import "fmt"

// WorkloadKind selects what a deployed function does per invocation.
type WorkloadKind string

const (
	// WorkloadEvents aggregates N small JSON events into one object (single PUT).
	WorkloadEvents WorkloadKind = "events"

	// WorkloadBatch streams one large object through a multipart upload.
	WorkloadBatch WorkloadKind = "batch"
)

// ParseWorkloadKind validates a workload kind string.
func ParseWorkloadKind(s string) (WorkloadKind, error) {
	switch WorkloadKind(s) {
	case WorkloadEvents, WorkloadBatch:
		return WorkloadKind(s), nil
	default:
		return "", fmt.Errorf("%w: %q (must be events or batch)", ErrUnknownWorkload, s)
	}
}

// RecordSource identifies who produced an InvocationRecord.
type RecordSource string

const (
	SourceHandler RecordSource = "handler"
	SourceDriver  RecordSource = "driver"
	SourceLogs    RecordSource = "logs"
)

// InvocationRecord is one structured line per workload execution.
// Records are built once and never mutated afterwards.
type InvocationRecord struct {
	// TsStartMs and TsEndMs are Unix timestamps in milliseconds
	TsStartMs int64 `json:"ts_start_ms" parquet:"ts_start_ms"`
	TsEndMs   int64 `json:"ts_end_ms" parquet:"ts_end_ms"`

	// LatencyMs is TsEndMs-TsStartMs; nil for calls that failed on the caller side
	LatencyMs *int64 `json:"latency_ms" parquet:"latency_ms,optional"`

	Workload            WorkloadKind `json:"workload" parquet:"workload"`
	RunID               string       `json:"run_id" parquet:"run_id"`
	FunctionName        string       `json:"function_name" parquet:"function_name"`
	Region              string       `json:"region" parquet:"region"`
	MemoryMB            int          `json:"memory_mb" parquet:"memory_mb"`
	ReservedConcurrency int          `json:"reserved_concurrency" parquet:"reserved_concurrency"`

	// BatchEvents is the configured events-per-object factor (events workload only)
	BatchEvents     int   `json:"batch_events" parquet:"batch_events"`
	EventsGenerated int   `json:"events_generated" parquet:"events_generated"`
	ObjectBytes     int64 `json:"object_bytes" parquet:"object_bytes"`
	MultipartPartMB int   `json:"multipart_part_mb" parquet:"multipart_part_mb"`
	MultipartParts  int   `json:"multipart_parts" parquet:"multipart_parts"`

	// ColdStart marks the first execution in a fresh runtime
	ColdStart bool `json:"is_cold_start" parquet:"is_cold_start"`

	S3Bucket string `json:"s3_bucket" parquet:"s3_bucket"`
	S3Key    string `json:"s3_key" parquet:"s3_key"`

	// Error is empty for successful executions
	Error     string `json:"error,omitempty" parquet:"error,optional"`
	ErrorCode string `json:"error_code,omitempty" parquet:"error_code,optional"`

	// Driver-side correlation
	Trial      int          `json:"trial,omitempty" parquet:"trial"`
	Invocation int          `json:"invocation,omitempty" parquet:"invocation"`
	Source     RecordSource `json:"source,omitempty" parquet:"source"`
}

// Timing is the start/end pair used to build a record.
type Timing struct {
	StartMs int64
	EndMs   int64
}

// Latency returns EndMs-StartMs, or an error if the pair is inverted.
func (t Timing) Latency() (int64, error) {
	if t.EndMs < t.StartMs {
		return 0, fmt.Errorf("%w: start=%d end=%d", ErrEndBeforeStart, t.StartMs, t.EndMs)
	}
	return t.EndMs - t.StartMs, nil
}

// WithTiming returns a copy of r with timestamps set and latency derived from them.
func (r InvocationRecord) WithTiming(t Timing) (InvocationRecord, error) {
	lat, err := t.Latency()
	if err != nil {
		return InvocationRecord{}, err
	}
	r.TsStartMs = t.StartMs
	r.TsEndMs = t.EndMs
	r.LatencyMs = &lat
	return r, nil
}

// WithFailure returns a copy of r marked failed. When keepLatency is false the
// latency is cleared, which is how the driver records calls it could not time
// against a response.
func (r InvocationRecord) WithFailure(cause error, code string, keepLatency bool) InvocationRecord {
	if cause != nil {
		r.Error = cause.Error()
	}
	if r.Error == "" {
		r.Error = "unknown failure"
	}
	r.ErrorCode = code
	if !keepLatency {
		r.LatencyMs = nil
	}
	return r
}

// Succeeded reports whether the record describes a successful execution
// with a usable latency.
func (r *InvocationRecord) Succeeded() bool {
	return r.Error == "" && r.LatencyMs != nil
}

// Combination derives the factor combination this record belongs to.
func (r *InvocationRecord) Combination() FactorCombination {
	c := FactorCombination{
		Workload:    r.Workload,
		MemoryMB:    r.MemoryMB,
		Concurrency: r.ReservedConcurrency,
	}
	switch r.Workload {
	case WorkloadEvents:
		c.Secondary = r.BatchEvents
	case WorkloadBatch:
		c.Secondary = r.MultipartPartMB
	}
	return c
}

// CheckInvariants verifies the timestamp/latency relationship.
func (r *InvocationRecord) CheckInvariants() error {
	if r.TsEndMs < r.TsStartMs {
		return fmt.Errorf("%w: start=%d end=%d", ErrEndBeforeStart, r.TsStartMs, r.TsEndMs)
	}
	if r.LatencyMs != nil && *r.LatencyMs != r.TsEndMs-r.TsStartMs {
		return fmt.Errorf("latency_ms %d does not match end-start %d", *r.LatencyMs, r.TsEndMs-r.TsStartMs)
	}
	return nil
}
