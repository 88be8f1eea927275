package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ingestbench/ingestbench/pkg/types"
)

var csvHeader = []string{
	"run_id", "trial", "invocation", "function_name", "workload", "memory_mb",
	"batch_events", "multipart_part_mb", "reserved_concurrency",
	"ts_start_ms", "ts_end_ms", "latency_ms", "object_bytes", "events_generated",
	"multipart_parts", "is_cold_start", "s3_key", "error_code", "error",
}

// WriteCSV writes records as a flat CSV file. A missing latency is an empty cell.
func WriteCSV(path string, records []types.InvocationRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if err := EncodeCSV(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeCSV writes the header and one row per record to w.
func EncodeCSV(w io.Writer, records []types.InvocationRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range records {
		r := &records[i]
		latency := ""
		if r.LatencyMs != nil {
			latency = strconv.FormatInt(*r.LatencyMs, 10)
		}
		row := []string{
			r.RunID,
			strconv.Itoa(r.Trial),
			strconv.Itoa(r.Invocation),
			r.FunctionName,
			string(r.Workload),
			strconv.Itoa(r.MemoryMB),
			strconv.Itoa(r.BatchEvents),
			strconv.Itoa(r.MultipartPartMB),
			strconv.Itoa(r.ReservedConcurrency),
			strconv.FormatInt(r.TsStartMs, 10),
			strconv.FormatInt(r.TsEndMs, 10),
			latency,
			strconv.FormatInt(r.ObjectBytes, 10),
			strconv.Itoa(r.EventsGenerated),
			strconv.Itoa(r.MultipartParts),
			strconv.FormatBool(r.ColdStart),
			r.S3Key,
			r.ErrorCode,
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
