package handler

import (
	"context"

	"github.com/ingestbench/ingestbench/internal/config"
	"github.com/ingestbench/ingestbench/internal/storage"
	"github.com/ingestbench/ingestbench/internal/workload"
	"github.com/ingestbench/ingestbench/pkg/types"
)

// result is what one workload execution produced.
type result struct {
	ObjectBytes     int64
	EventsGenerated int
	MultipartParts  int
	MultipartPartMB int
}

// variant is the per-deployment workload. The set is closed: the unexported
// method keeps other packages from adding variants.
type variant interface {
	kind() types.WorkloadKind
	extension() string
	run(ctx context.Context, w *storage.Writer, dest storage.Destination, runID string) (result, error)
}

// eventsWorkload aggregates BatchEvents fixed-size events into one object
// written with a single PUT.
type eventsWorkload struct {
	batch      int
	eventBytes int
}

func (eventsWorkload) kind() types.WorkloadKind { return types.WorkloadEvents }
func (eventsWorkload) extension() string        { return "jsonl" }

func (v eventsWorkload) run(ctx context.Context, w *storage.Writer, dest storage.Destination, runID string) (result, error) {
	events, err := workload.NewGenerator(runID).Events(v.batch, v.eventBytes)
	if err != nil {
		return result{}, err
	}
	data := workload.AggregateEvents(events, v.batch)

	out, err := w.WriteSingle(ctx, dest, data, storage.ContentTypeJSONLines)
	if err != nil {
		return result{}, err
	}
	return result{ObjectBytes: out.Bytes, EventsGenerated: len(events)}, nil
}

// batchWorkload streams one ObjectMB object through a multipart upload.
type batchWorkload struct {
	objectMB int
	partMB   int
}

func (batchWorkload) kind() types.WorkloadKind { return types.WorkloadBatch }
func (batchWorkload) extension() string        { return "bin" }

func (v batchWorkload) run(ctx context.Context, w *storage.Writer, dest storage.Destination, _ string) (result, error) {
	total := workload.MB(v.objectMB)
	src, err := workload.NewObjectReader(total)
	if err != nil {
		return result{}, err
	}

	out, err := w.WriteMultipart(ctx, dest, src, total, workload.MB(v.partMB))
	if err != nil {
		return result{}, err
	}
	return result{
		ObjectBytes:     out.Bytes,
		MultipartParts:  out.Parts,
		MultipartPartMB: v.partMB,
	}, nil
}

func selectVariant(cfg config.Handler) variant {
	if cfg.Workload == types.WorkloadBatch {
		return batchWorkload{objectMB: cfg.ObjectMB, partMB: cfg.MultipartMB}
	}
	return eventsWorkload{batch: cfg.BatchEvents, eventBytes: cfg.EventBytes}
}
