package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ingestbench/ingestbench/pkg/types"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestHandlerFromEnv_Defaults(t *testing.T) {
	cfg, err := HandlerFromEnv(envMap(map[string]string{"OUTPUT_BUCKET": "bkt"}))
	if err != nil {
		t.Fatalf("HandlerFromEnv failed: %v", err)
	}
	if cfg.Workload != types.WorkloadEvents {
		t.Errorf("workload = %q, want events", cfg.Workload)
	}
	if cfg.EventBytes != 1024 || cfg.ObjectMB != 100 || cfg.MemoryMB != 1024 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.FunctionName != "local" {
		t.Errorf("function name = %q, want local", cfg.FunctionName)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults with bucket should validate: %v", err)
	}
}

func TestHandlerFromEnv_Overrides(t *testing.T) {
	cfg, err := HandlerFromEnv(envMap(map[string]string{
		"WORKLOAD":                 "batch",
		"OUTPUT_BUCKET":            "bkt",
		"MEMORY_MB":                "2048",
		"MULTIPART_MB":             "32",
		"RESERVED_CONCURRENCY":     "10",
		"OBJECT_MB":                "256",
		"AWS_REGION":               "eu-west-1",
		"AWS_LAMBDA_FUNCTION_NAME": "exp-batch-m2048-p32-c10",
		"METRICS_HIGH_RESOLUTION":  "true",
		"PART_CONCURRENCY":         "4",
	}))
	if err != nil {
		t.Fatalf("HandlerFromEnv failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	want := types.FactorCombination{Workload: types.WorkloadBatch, MemoryMB: 2048, Secondary: 32, Concurrency: 10}
	if got := cfg.Combination(); got != want {
		t.Errorf("combination = %+v, want %+v", got, want)
	}
	if !cfg.Metrics.HighResolution {
		t.Error("expected high resolution metrics")
	}
	if cfg.Region != "eu-west-1" || cfg.PartConcurrency != 4 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestHandlerFromEnv_BadInteger(t *testing.T) {
	_, err := HandlerFromEnv(envMap(map[string]string{"MEMORY_MB": "lots"}))
	if err == nil {
		t.Fatal("expected error for non-integer MEMORY_MB")
	}
}

func TestHandlerValidate(t *testing.T) {
	base := DefaultHandler()
	base.OutputBucket = "bkt"

	tests := []struct {
		name   string
		mutate func(*Handler)
		ok     bool
	}{
		{"valid events", func(h *Handler) {}, true},
		{"missing bucket", func(h *Handler) { h.OutputBucket = "" }, false},
		{"unknown workload", func(h *Handler) { h.Workload = "stream" }, false},
		{"bad batch events", func(h *Handler) { h.BatchEvents = 5 }, false},
		{"bad part size", func(h *Handler) { h.Workload = types.WorkloadBatch; h.MultipartMB = 16 }, false},
		{"valid batch", func(h *Handler) { h.Workload = types.WorkloadBatch; h.MultipartMB = 64 }, true},
		{"zero object", func(h *Handler) { h.Workload = types.WorkloadBatch; h.ObjectMB = 0 }, false},
		{"local without path", func(h *Handler) { h.Storage.Type = StorageLocal }, false},
		{"local with path", func(h *Handler) { h.Storage.Type = StorageLocal; h.Storage.Path = "/tmp/x" }, true},
		{"negative concurrency", func(h *Handler) { h.ReservedConcurrency = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := base
			tt.mutate(&h)
			err := h.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRunnerValidate(t *testing.T) {
	cfg := DefaultRunner()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without function prefix")
	}

	cfg.FunctionPrefix = "exp-"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Parallelism = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero parallelism")
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	content := `
function_prefix: exp-
invocations: 10
trials: 2
parallelism: 4
call_timeout: 30s
logs:
  query_after_run: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.FunctionPrefix != "exp-" || cfg.Invocations != 10 || cfg.Trials != 2 || cfg.Parallelism != 4 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.CallTimeout != 30*time.Second {
		t.Errorf("call timeout = %v, want 30s", cfg.CallTimeout)
	}
	if !cfg.Logs.QueryAfterRun {
		t.Error("expected query_after_run")
	}
	// Defaults survive for unset keys
	if cfg.Logs.LogGroupPrefix != "/aws/lambda/" {
		t.Errorf("log group prefix = %q", cfg.Logs.LogGroupPrefix)
	}
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestRunnerResolve(t *testing.T) {
	cfg := DefaultRunner()
	cfg.FunctionPrefix = "lambda-s3-exp-"
	cfg.Output.Dir = "out"
	cfg.Resolve()

	if filepath.Dir(cfg.Output.RecordsPath) != "out" {
		t.Errorf("records path %q not under output dir", cfg.Output.RecordsPath)
	}
	if filepath.Ext(cfg.Output.RecordsPath) != ".jsonl" {
		t.Errorf("records path %q should be .jsonl", cfg.Output.RecordsPath)
	}
}
