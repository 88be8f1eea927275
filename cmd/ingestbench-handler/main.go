// Package main implements the ingestbench-handler binary.
// Deployed as a Lambda function it serves one workload execution per
// invocation; run outside Lambda it executes a single invocation locally and
// prints the response.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/ingestbench/ingestbench/internal/config"
	"github.com/ingestbench/ingestbench/internal/handler"
	"github.com/ingestbench/ingestbench/internal/logging"
	"github.com/ingestbench/ingestbench/internal/metrics"
	"github.com/ingestbench/ingestbench/internal/storage"
)

func main() {
	runID := flag.String("run-id", "", "Run id for a local invocation")
	flag.Parse()

	cfg, err := config.HandlerFromEnv(os.Getenv)
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}
	if lambdacontext.FunctionName != "" {
		cfg.FunctionName = lambdacontext.FunctionName
	}

	// stdout carries EMF lines only
	logging.Init(logging.ParseLevel(cfg.LogLevel), true)

	ctx := context.Background()
	store, err := newStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	emitter := metrics.NewEmitter(os.Stdout, metrics.Config{
		Namespace:      cfg.Metrics.Namespace,
		HighResolution: cfg.Metrics.HighResolution,
	})

	h, err := handler.New(cfg, store, emitter)
	if err != nil {
		log.Fatalf("Invalid handler configuration: %v", err)
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") == "" {
		runLocal(ctx, h, *runID)
		return
	}

	lambda.Start(func(ctx context.Context, req handler.Request) (handler.Response, error) {
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			logging.Component("lambda").Debug("invocation", "request_id", lc.AwsRequestID, "run_id", req.RunID)
		}
		return h.Handle(ctx, req)
	})
}

func newStorage(ctx context.Context, cfg config.Handler) (storage.ObjectStorage, error) {
	switch cfg.Storage.Type {
	case config.StorageLocal:
		return storage.NewLocalStorage(cfg.Storage.Path)
	case config.StorageS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Region:       cfg.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func runLocal(ctx context.Context, h *handler.Handler, runID string) {
	resp, err := h.Handle(ctx, handler.Request{RunID: runID})
	if err != nil {
		log.Fatalf("Invocation failed: %v", err)
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode response: %v", err)
	}
	fmt.Fprintf(os.Stderr, "%s\n", out)
}
