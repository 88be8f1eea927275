// Package handler implements one workload execution: generate the payload,
// write it to object storage, time the operation and emit exactly one record.
// The variant (events or batch) is fixed when the Handler is built.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ingestbench/ingestbench/internal/config"
	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
	"github.com/ingestbench/ingestbench/internal/logging"
	"github.com/ingestbench/ingestbench/internal/storage"
	"github.com/ingestbench/ingestbench/pkg/types"
)

// Emitter publishes one record per execution.
type Emitter interface {
	Emit(rec types.InvocationRecord) error
}

// Request is the invocation payload. RunID is optional.
type Request struct {
	RunID string `json:"run_id,omitempty"`
}

// Response is returned to the caller of a successful execution. The factor
// fields let the driver fill its own records without a second lookup.
type Response struct {
	OK              bool   `json:"ok"`
	RunID           string `json:"run_id"`
	LatencyMs       int64  `json:"latency_ms"`
	TsStartMs       int64  `json:"ts_start_ms"`
	TsEndMs         int64  `json:"ts_end_ms"`
	S3Bucket        string `json:"s3_bucket"`
	S3Key           string `json:"s3_key"`
	ObjectBytes     int64  `json:"object_bytes"`
	EventsGenerated int    `json:"events_generated"`
	MultipartParts  int    `json:"multipart_parts"`
	ColdStart       bool   `json:"is_cold_start"`

	Workload            types.WorkloadKind `json:"workload"`
	FunctionName        string             `json:"function_name"`
	Region              string             `json:"region"`
	MemoryMB            int                `json:"memory_mb"`
	ReservedConcurrency int                `json:"reserved_concurrency"`
	BatchEvents         int                `json:"batch_events"`
	MultipartPartMB     int                `json:"multipart_part_mb"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithKeySuffix replaces the random object key suffix generator.
func WithKeySuffix(fn func() string) Option {
	return func(h *Handler) { h.suffix = fn }
}

// Handler executes the configured workload.
type Handler struct {
	cfg     config.Handler
	variant variant
	writer  *storage.Writer
	emitter Emitter
	now     func() time.Time
	suffix  func() string
	invoked atomic.Bool
	log     *slog.Logger
}

// New validates cfg and builds a handler writing through store.
func New(cfg config.Handler, store storage.ObjectStorage, emitter Emitter, opts ...Option) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, bencherrors.NewConfigError(err.Error())
	}
	if store == nil || emitter == nil {
		return nil, bencherrors.NewInvalidParameter("store and emitter are required")
	}

	h := &Handler{
		cfg:     cfg,
		variant: selectVariant(cfg),
		writer:  storage.NewWriter(store, storage.WriterConfig{PartConcurrency: cfg.PartConcurrency}),
		emitter: emitter,
		now:     time.Now,
		suffix:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		log:     logging.Component("handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Config returns the deployment configuration.
func (h *Handler) Config() config.Handler {
	return h.cfg
}

// Handle runs one execution. On failure a failure record carrying the run id,
// the start time and the latency so far is emitted before the error returns.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	start := h.now()
	startMs := start.UnixMilli()
	cold := !h.invoked.Swap(true)

	runID := req.RunID
	if runID == "" {
		runID = DefaultRunID(start)
	}
	log := logging.WithContext(logging.ContextWithRunID(ctx, runID), h.log)

	dest := storage.Destination{
		Bucket: h.cfg.OutputBucket,
		Key:    ObjectKey(h.variant.kind(), runID, startMs, h.suffix(), h.variant.extension()),
	}

	rec := h.baseRecord(runID, cold)
	res, runErr := h.variant.run(ctx, h.writer, dest, runID)

	elapsed := h.now().Sub(start)
	timed, err := rec.WithTiming(types.Timing{StartMs: startMs, EndMs: startMs + elapsed.Milliseconds()})
	if err != nil {
		return Response{}, bencherrors.NewInvalidParameter(err.Error())
	}

	if runErr != nil {
		failed := timed.WithFailure(runErr, bencherrors.GetCode(runErr), true)
		if err := h.emitter.Emit(failed); err != nil {
			log.Error("emit failure record", "error", err)
		}
		log.Error("workload failed", "key", dest.Key, "latency_ms", *timed.LatencyMs, "error", runErr)
		return Response{}, fmt.Errorf("%s workload: %w", h.variant.kind(), runErr)
	}

	timed.S3Key = dest.Key
	timed.ObjectBytes = res.ObjectBytes
	timed.EventsGenerated = res.EventsGenerated
	timed.MultipartParts = res.MultipartParts
	timed.MultipartPartMB = res.MultipartPartMB

	if err := h.emitter.Emit(timed); err != nil {
		log.Error("emit record", "error", err)
	}
	log.Debug("workload complete",
		"key", dest.Key,
		"bytes", res.ObjectBytes,
		"latency_ms", *timed.LatencyMs,
		"cold_start", cold,
	)

	return Response{
		OK:                  true,
		RunID:               runID,
		LatencyMs:           *timed.LatencyMs,
		TsStartMs:           timed.TsStartMs,
		TsEndMs:             timed.TsEndMs,
		S3Bucket:            dest.Bucket,
		S3Key:               dest.Key,
		ObjectBytes:         res.ObjectBytes,
		EventsGenerated:     res.EventsGenerated,
		MultipartParts:      res.MultipartParts,
		ColdStart:           cold,
		Workload:            h.cfg.Workload,
		FunctionName:        h.cfg.FunctionName,
		Region:              h.cfg.Region,
		MemoryMB:            h.cfg.MemoryMB,
		ReservedConcurrency: h.cfg.ReservedConcurrency,
		BatchEvents:         timed.BatchEvents,
		MultipartPartMB:     res.MultipartPartMB,
	}, nil
}

func (h *Handler) baseRecord(runID string, cold bool) types.InvocationRecord {
	rec := types.InvocationRecord{
		Workload:            h.cfg.Workload,
		RunID:               runID,
		FunctionName:        h.cfg.FunctionName,
		Region:              h.cfg.Region,
		MemoryMB:            h.cfg.MemoryMB,
		ReservedConcurrency: h.cfg.ReservedConcurrency,
		ColdStart:           cold,
		S3Bucket:            h.cfg.OutputBucket,
		Source:              types.SourceHandler,
	}
	if h.cfg.Workload == types.WorkloadEvents {
		rec.BatchEvents = h.cfg.BatchEvents
	} else {
		// failure records still carry the configured part size so they group
		// with the successes of the same combination
		rec.MultipartPartMB = h.cfg.MultipartMB
	}
	return rec
}

// ObjectKey builds "<workload>/<run_id>/<ts_ms>-<suffix>.<ext>".
func ObjectKey(kind types.WorkloadKind, runID string, tsMs int64, suffix, ext string) string {
	return fmt.Sprintf("%s/%s/%d-%s.%s", kind, runID, tsMs, suffix, ext)
}

const runIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// DefaultRunID returns "run_<ms>_<6 random lowercase alphanumerics>".
func DefaultRunID(t time.Time) string {
	var b [6]byte
	for i := range b {
		b[i] = runIDAlphabet[rand.Intn(len(runIDAlphabet))]
	}
	return fmt.Sprintf("run_%d_%s", t.UnixMilli(), b[:])
}
