// Package metrics writes invocation records as CloudWatch Embedded Metric
// Format lines. The log pipeline turns each line into metric datapoints while
// the flat record fields stay queryable through Logs Insights.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ingestbench/ingestbench/pkg/types"
)

const (
	// DefaultNamespace is the CloudWatch namespace used when none is configured.
	DefaultNamespace = "LambdaS3Study"

	resolutionStandard = 60
	resolutionHigh     = 1
)

// Dimensions is the dimension set every datapoint is published under.
var Dimensions = []string{"workload", "function_name", "region", "run_id"}

// Config configures an Emitter.
type Config struct {
	Namespace      string
	HighResolution bool
}

type metricDefinition struct {
	Name              string `json:"Name"`
	Unit              string `json:"Unit"`
	StorageResolution int    `json:"StorageResolution"`
}

type metricDirective struct {
	Namespace  string             `json:"Namespace"`
	Dimensions [][]string         `json:"Dimensions"`
	Metrics    []metricDefinition `json:"Metrics"`
}

type metadata struct {
	Timestamp         int64             `json:"Timestamp"`
	CloudWatchMetrics []metricDirective `json:"CloudWatchMetrics"`
}

// line is the EMF envelope with the record fields flattened beside it.
type line struct {
	AWS metadata `json:"_aws"`
	types.InvocationRecord
}

// Emitter writes one EMF line per record to w.
type Emitter struct {
	mu        sync.Mutex
	w         io.Writer
	directive metricDirective
	now       func() time.Time
}

// NewEmitter creates an emitter writing to w.
func NewEmitter(w io.Writer, cfg Config) *Emitter {
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	res := resolutionStandard
	if cfg.HighResolution {
		res = resolutionHigh
	}

	return &Emitter{
		w: w,
		directive: metricDirective{
			Namespace:  ns,
			Dimensions: [][]string{Dimensions},
			Metrics: []metricDefinition{
				{Name: "latency_ms", Unit: "Milliseconds", StorageResolution: res},
				{Name: "object_bytes", Unit: "Bytes", StorageResolution: res},
				{Name: "events_generated", Unit: "Count", StorageResolution: res},
				{Name: "multipart_parts", Unit: "Count", StorageResolution: res},
			},
		},
		now: time.Now,
	}
}

// Emit writes rec as a single line. The EMF timestamp is the record's start
// time, or the current time for records without one.
func (e *Emitter) Emit(rec types.InvocationRecord) error {
	ts := rec.TsStartMs
	if ts == 0 {
		ts = e.now().UnixMilli()
	}

	data, err := json.Marshal(line{
		AWS: metadata{
			Timestamp:         ts,
			CloudWatchMetrics: []metricDirective{e.directive},
		},
		InvocationRecord: rec,
	})
	if err != nil {
		return fmt.Errorf("marshal emf line: %w", err)
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("write emf line: %w", err)
	}
	return nil
}

// Parse decodes a single EMF line back into its record, ignoring the envelope.
// It is used when records are read back from captured handler output.
func Parse(data []byte) (types.InvocationRecord, error) {
	var rec types.InvocationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.InvocationRecord{}, fmt.Errorf("parse emf line: %w", err)
	}
	return rec, nil
}
