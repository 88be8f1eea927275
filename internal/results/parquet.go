package results

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/ingestbench/ingestbench/pkg/types"
)

// ParquetOptions configures Parquet exports.
type ParquetOptions struct {
	// Compression is "snappy", "zstd", "gzip" or "none"
	Compression string
}

// DefaultParquetOptions returns zstd compression.
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{Compression: "zstd"}
}

func codec(name string) compress.Codec {
	switch name {
	case "snappy":
		return &parquet.Snappy
	case "gzip":
		return &parquet.Gzip
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Zstd
	}
}

// RecordRow is an invocation record in Parquet form.
type RecordRow struct {
	RunID               string `parquet:"run_id,dict"`
	Trial               int32  `parquet:"trial"`
	Invocation          int32  `parquet:"invocation"`
	FunctionName        string `parquet:"function_name,dict"`
	Region              string `parquet:"region,dict"`
	Workload            string `parquet:"workload,dict"`
	MemoryMB            int32  `parquet:"memory_mb"`
	BatchEvents         int32  `parquet:"batch_events"`
	MultipartPartMB     int32  `parquet:"multipart_part_mb"`
	ReservedConcurrency int32  `parquet:"reserved_concurrency"`
	TsStartMs           int64  `parquet:"ts_start_ms,delta"`
	TsEndMs             int64  `parquet:"ts_end_ms,delta"`
	LatencyMs           *int64 `parquet:"latency_ms,optional"`
	ObjectBytes         int64  `parquet:"object_bytes"`
	EventsGenerated     int32  `parquet:"events_generated"`
	MultipartParts      int32  `parquet:"multipart_parts"`
	ColdStart           bool   `parquet:"is_cold_start"`
	S3Bucket            string `parquet:"s3_bucket,dict"`
	S3Key               string `parquet:"s3_key"`
	Error               string `parquet:"error,optional"`
	ErrorCode           string `parquet:"error_code,optional,dict"`
	Source              string `parquet:"source,dict"`
}

// RecordToRow converts a record.
func RecordToRow(r *types.InvocationRecord) RecordRow {
	row := RecordRow{
		RunID:               r.RunID,
		Trial:               int32(r.Trial),
		Invocation:          int32(r.Invocation),
		FunctionName:        r.FunctionName,
		Region:              r.Region,
		Workload:            string(r.Workload),
		MemoryMB:            int32(r.MemoryMB),
		BatchEvents:         int32(r.BatchEvents),
		MultipartPartMB:     int32(r.MultipartPartMB),
		ReservedConcurrency: int32(r.ReservedConcurrency),
		TsStartMs:           r.TsStartMs,
		TsEndMs:             r.TsEndMs,
		ObjectBytes:         r.ObjectBytes,
		EventsGenerated:     int32(r.EventsGenerated),
		MultipartParts:      int32(r.MultipartParts),
		ColdStart:           r.ColdStart,
		S3Bucket:            r.S3Bucket,
		S3Key:               r.S3Key,
		Error:               r.Error,
		ErrorCode:           r.ErrorCode,
		Source:              string(r.Source),
	}
	if r.LatencyMs != nil {
		v := *r.LatencyMs
		row.LatencyMs = &v
	}
	return row
}

// RowToRecord converts back.
func RowToRecord(row *RecordRow) types.InvocationRecord {
	r := types.InvocationRecord{
		RunID:               row.RunID,
		Trial:               int(row.Trial),
		Invocation:          int(row.Invocation),
		FunctionName:        row.FunctionName,
		Region:              row.Region,
		Workload:            types.WorkloadKind(row.Workload),
		MemoryMB:            int(row.MemoryMB),
		BatchEvents:         int(row.BatchEvents),
		MultipartPartMB:     int(row.MultipartPartMB),
		ReservedConcurrency: int(row.ReservedConcurrency),
		TsStartMs:           row.TsStartMs,
		TsEndMs:             row.TsEndMs,
		ObjectBytes:         row.ObjectBytes,
		EventsGenerated:     int(row.EventsGenerated),
		MultipartParts:      int(row.MultipartParts),
		ColdStart:           row.ColdStart,
		S3Bucket:            row.S3Bucket,
		S3Key:               row.S3Key,
		Error:               row.Error,
		ErrorCode:           row.ErrorCode,
		Source:              types.RecordSource(row.Source),
	}
	if row.LatencyMs != nil {
		v := *row.LatencyMs
		r.LatencyMs = &v
	}
	return r
}

// SummaryParquetRow is a summary row in Parquet form. Missing statistics are null.
type SummaryParquetRow struct {
	Workload            string   `parquet:"workload,dict"`
	MemoryMB            int32    `parquet:"memory_mb"`
	Secondary           int32    `parquet:"secondary"`
	SecondaryLabel      string   `parquet:"secondary_label,dict"`
	ReservedConcurrency int32    `parquet:"reserved_concurrency"`
	Invocations         int32    `parquet:"invocations"`
	Successes           int32    `parquet:"successes"`
	Failures            int32    `parquet:"failures"`
	P50Ms               *float64 `parquet:"p50_ms,optional"`
	P95Ms               *float64 `parquet:"p95_ms,optional"`
	P99Ms               *float64 `parquet:"p99_ms,optional"`
	MeanMs              *float64 `parquet:"mean_ms,optional"`
	MaxMs               *float64 `parquet:"max_ms,optional"`
	ThroughputPerSec    *float64 `parquet:"throughput_obj_per_s,optional"`
	BytesTotal          int64    `parquet:"bytes_total"`
	EventsTotal         int64    `parquet:"events_total"`
	EstimatedCostUSD    string   `parquet:"estimated_cost_usd"`
}

// SummaryToRow converts a summary row.
func SummaryToRow(s *types.SummaryRow) SummaryParquetRow {
	c := s.Combination
	return SummaryParquetRow{
		Workload:            string(c.Workload),
		MemoryMB:            int32(c.MemoryMB),
		Secondary:           int32(c.Secondary),
		SecondaryLabel:      c.SecondaryLabel(),
		ReservedConcurrency: int32(c.Concurrency),
		Invocations:         int32(s.Invocations),
		Successes:           int32(s.Successes),
		Failures:            int32(s.Failures),
		P50Ms:               s.P50Ms,
		P95Ms:               s.P95Ms,
		P99Ms:               s.P99Ms,
		MeanMs:              s.MeanMs,
		MaxMs:               s.MaxMs,
		ThroughputPerSec:    s.ThroughputPerSec,
		BytesTotal:          s.BytesTotal,
		EventsTotal:         s.EventsTotal,
		EstimatedCostUSD:    s.EstimatedCostUSD.String(),
	}
}

// ParquetWriter writes rows of type T to a Parquet file.
type ParquetWriter[T any] struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[T]
	rowCount int64
	closed   bool
}

// NewParquetWriter creates path and its parent directories.
func NewParquetWriter[T any](path string, opts ParquetOptions) (*ParquetWriter[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return &ParquetWriter[T]{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[T](f, parquet.Compression(codec(opts.Compression))),
	}, nil
}

// Write appends rows.
func (w *ParquetWriter[T]) Write(rows []T) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.rowCount += int64(n)
	return nil
}

// RowCount returns the number of rows written.
func (w *ParquetWriter[T]) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Close writes the footer and closes the file.
func (w *ParquetWriter[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

// WriteRecordsParquet exports records to path.
func WriteRecordsParquet(path string, records []types.InvocationRecord, opts ParquetOptions) error {
	w, err := NewParquetWriter[RecordRow](path, opts)
	if err != nil {
		return err
	}
	rows := make([]RecordRow, len(records))
	for i := range records {
		rows[i] = RecordToRow(&records[i])
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// WriteSummaryParquet exports summary rows to path.
func WriteSummaryParquet(path string, summary []types.SummaryRow, opts ParquetOptions) error {
	w, err := NewParquetWriter[SummaryParquetRow](path, opts)
	if err != nil {
		return err
	}
	rows := make([]SummaryParquetRow, len(summary))
	for i := range summary {
		rows[i] = SummaryToRow(&summary[i])
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadRecordsParquet reads a record export back.
func ReadRecordsParquet(path string) ([]types.InvocationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[RecordRow](f)
	defer reader.Close()

	rows := make([]RecordRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	out := make([]types.InvocationRecord, n)
	for i := 0; i < n; i++ {
		out[i] = RowToRecord(&rows[i])
	}
	return out, nil
}
