package logsquery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
	"github.com/ingestbench/ingestbench/pkg/types"
)

// maxRows is the Logs Insights per-query row limit.
const maxRows = 10000

// FetchRecords returns the handler records of runID found in logGroups
// between start and end.
func (c *Client) FetchRecords(ctx context.Context, logGroups []string, runID string, start, end time.Time) ([]types.InvocationRecord, error) {
	rows, err := c.Run(ctx, Query{
		LogGroups: logGroups,
		Start:     start,
		End:       end,
		Query:     Records(runID),
		Limit:     maxRows,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == maxRows {
		c.log.Warn("record query hit the row limit; results are truncated", "run_id", runID, "rows", len(rows))
	}
	return RecordsFromRows(rows)
}

// RecordsFromRows converts result rows into records. Insights returns numbers
// as strings, sometimes with a fractional part.
func RecordsFromRows(rows []Row) ([]types.InvocationRecord, error) {
	out := make([]types.InvocationRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := recordFromRow(row)
		if err != nil {
			return nil, bencherrors.NewQueryError(bencherrors.CodeQueryFailure,
				fmt.Sprintf("row %d", i), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func recordFromRow(row Row) (types.InvocationRecord, error) {
	p := rowParser{row: row}
	rec := types.InvocationRecord{
		TsStartMs:           p.int64("ts_start_ms"),
		TsEndMs:             p.int64("ts_end_ms"),
		Workload:            types.WorkloadKind(row["workload"]),
		RunID:               row["run_id"],
		FunctionName:        row["function_name"],
		Region:              row["region"],
		MemoryMB:            int(p.int64("memory_mb")),
		ReservedConcurrency: int(p.int64("reserved_concurrency")),
		BatchEvents:         int(p.int64("batch_events")),
		EventsGenerated:     int(p.int64("events_generated")),
		ObjectBytes:         p.int64("object_bytes"),
		MultipartPartMB:     int(p.int64("multipart_part_mb")),
		MultipartParts:      int(p.int64("multipart_parts")),
		ColdStart:           row["is_cold_start"] == "1" || strings.EqualFold(row["is_cold_start"], "true"),
		S3Bucket:            row["s3_bucket"],
		S3Key:               row["s3_key"],
		Error:               row["error"],
		ErrorCode:           row["error_code"],
		Source:              types.SourceLogs,
	}
	if v, ok := row["latency_ms"]; ok && v != "" {
		lat := p.int64("latency_ms")
		rec.LatencyMs = &lat
	}
	if p.err != nil {
		return types.InvocationRecord{}, p.err
	}
	if err := rec.CheckInvariants(); err != nil {
		return types.InvocationRecord{}, err
	}
	return rec, nil
}

// rowParser keeps the first conversion error.
type rowParser struct {
	row Row
	err error
}

func (p *rowParser) int64(field string) int64 {
	v := p.row[field]
	if v == "" || p.err != nil {
		return 0
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.err = fmt.Errorf("field %s: %q is not a number", field, v)
		return 0
	}
	return int64(f)
}
