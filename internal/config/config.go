// Package config provides configuration for the ingestbench handler and the
// local runner tools. Configuration is read once at process start into plain
// structs that are passed by value to the components that need them.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ingestbench/ingestbench/pkg/types"
)

// Factor levels accepted by the handler.
var (
	AllowedBatchEvents = []int{1, 10, 100}
	AllowedMultipartMB = []int{8, 32, 64}
)

// StorageType selects the object storage backend.
type StorageType string

const (
	StorageS3    StorageType = "s3"
	StorageLocal StorageType = "local"
)

// Handler holds the deployment-time configuration of one workload variant.
// Every field is fixed per deployed function; only the run id comes from the
// invocation payload.
type Handler struct {
	// Workload selects events (single PUT) or batch (multipart) behaviour
	Workload types.WorkloadKind `json:"workload" yaml:"workload"`

	// OutputBucket is the destination bucket for generated objects
	OutputBucket string `json:"output_bucket" yaml:"output_bucket"`

	// MemoryMB is the memory allocation the function was deployed with
	MemoryMB int `json:"memory_mb" yaml:"memory_mb"`

	// BatchEvents is the number of events aggregated per object (1, 10 or 100)
	BatchEvents int `json:"batch_events" yaml:"batch_events"`

	// MultipartMB is the multipart part size in megabytes (8, 32 or 64)
	MultipartMB int `json:"multipart_mb" yaml:"multipart_mb"`

	// ReservedConcurrency is the reserved concurrency (0 = unreserved)
	ReservedConcurrency int `json:"reserved_concurrency" yaml:"reserved_concurrency"`

	// ObjectMB is the object size for the batch workload
	ObjectMB int `json:"object_mb" yaml:"object_mb"`

	// EventBytes is the size of one generated event
	EventBytes int `json:"event_bytes" yaml:"event_bytes"`

	// NamePrefix is the deployment name prefix (informational)
	NamePrefix string `json:"name_prefix" yaml:"name_prefix"`

	// Region is the AWS region the function runs in
	Region string `json:"region" yaml:"region"`

	// FunctionName is the deployed function name ("local" outside Lambda)
	FunctionName string `json:"function_name" yaml:"function_name"`

	// PartConcurrency is the number of parts uploaded concurrently (1 = sequential)
	PartConcurrency int `json:"part_concurrency" yaml:"part_concurrency"`

	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// LogLevel is debug, info, warn or error
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// MetricsConfig controls the embedded-metrics envelope.
type MetricsConfig struct {
	// Namespace is the CloudWatch metrics namespace
	Namespace string `json:"namespace" yaml:"namespace"`

	// HighResolution selects 1-second storage resolution instead of 60
	HighResolution bool `json:"high_resolution" yaml:"high_resolution"`
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	// Type is the storage type: s3, local
	Type StorageType `json:"type" yaml:"type"`

	// Path is the local storage root (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 client configuration.
type S3Config struct {
	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (MinIO, LocalStack)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultHandler returns the handler defaults used when a variable is unset.
func DefaultHandler() Handler {
	return Handler{
		Workload:        types.WorkloadEvents,
		MemoryMB:        1024,
		BatchEvents:     1,
		MultipartMB:     8,
		ObjectMB:        100,
		EventBytes:      1024,
		Region:          "us-east-1",
		FunctionName:    "local",
		PartConcurrency: 1,
		Metrics: MetricsConfig{
			Namespace: "LambdaS3Study",
		},
		Storage: StorageConfig{
			Type: StorageS3,
		},
		LogLevel: "info",
	}
}

// HandlerFromEnv reads the handler configuration from environment variables.
// lookup is normally os.Getenv.
func HandlerFromEnv(lookup func(string) string) (Handler, error) {
	cfg := DefaultHandler()

	if v := lookup("WORKLOAD"); v != "" {
		cfg.Workload = types.WorkloadKind(v)
	}
	cfg.OutputBucket = lookup("OUTPUT_BUCKET")
	cfg.NamePrefix = lookup("NAME_PREFIX")

	ints := []struct {
		name string
		dst  *int
	}{
		{"MEMORY_MB", &cfg.MemoryMB},
		{"BATCH_EVENTS", &cfg.BatchEvents},
		{"MULTIPART_MB", &cfg.MultipartMB},
		{"RESERVED_CONCURRENCY", &cfg.ReservedConcurrency},
		{"OBJECT_MB", &cfg.ObjectMB},
		{"EVENT_BYTES", &cfg.EventBytes},
		{"PART_CONCURRENCY", &cfg.PartConcurrency},
	}
	for _, iv := range ints {
		v := lookup(iv.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Handler{}, fmt.Errorf("%s must be an integer, got %q", iv.name, v)
		}
		*iv.dst = n
	}

	if v := lookup("AWS_REGION"); v != "" {
		cfg.Region = v
	} else if v := lookup("AWS_DEFAULT_REGION"); v != "" {
		cfg.Region = v
	}
	if v := lookup("AWS_LAMBDA_FUNCTION_NAME"); v != "" {
		cfg.FunctionName = v
	}

	if v := lookup("METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}
	if v := lookup("METRICS_HIGH_RESOLUTION"); v != "" {
		cfg.Metrics.HighResolution = parseBool(v)
	}

	if v := lookup("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = StorageType(v)
	}
	cfg.Storage.Path = lookup("LOCAL_STORAGE_PATH")
	cfg.Storage.S3.Endpoint = lookup("S3_ENDPOINT")
	if v := lookup("S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = parseBool(v)
	}
	if v := lookup("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// Validate validates the handler configuration.
func (c Handler) Validate() error {
	if _, err := types.ParseWorkloadKind(string(c.Workload)); err != nil {
		return fmt.Errorf("WORKLOAD: %w", err)
	}

	if c.OutputBucket == "" {
		return fmt.Errorf("OUTPUT_BUCKET is required")
	}

	if c.Storage.Type != StorageS3 && c.Storage.Type != StorageLocal {
		return fmt.Errorf("invalid storage type: %s (must be s3 or local)", c.Storage.Type)
	}
	if c.Storage.Type == StorageLocal && c.Storage.Path == "" {
		return fmt.Errorf("LOCAL_STORAGE_PATH is required when storage type is local")
	}

	if c.MemoryMB <= 0 {
		return fmt.Errorf("MEMORY_MB must be positive, got %d", c.MemoryMB)
	}
	if c.ReservedConcurrency < 0 {
		return fmt.Errorf("RESERVED_CONCURRENCY must not be negative, got %d", c.ReservedConcurrency)
	}
	if c.PartConcurrency < 1 {
		return fmt.Errorf("PART_CONCURRENCY must be at least 1, got %d", c.PartConcurrency)
	}

	switch c.Workload {
	case types.WorkloadEvents:
		if !contains(AllowedBatchEvents, c.BatchEvents) {
			return fmt.Errorf("BATCH_EVENTS must be 1, 10, or 100, got %d", c.BatchEvents)
		}
		if c.EventBytes <= 0 {
			return fmt.Errorf("EVENT_BYTES must be positive, got %d", c.EventBytes)
		}
	case types.WorkloadBatch:
		if !contains(AllowedMultipartMB, c.MultipartMB) {
			return fmt.Errorf("MULTIPART_MB must be 8, 32, or 64, got %d", c.MultipartMB)
		}
		if c.ObjectMB <= 0 {
			return fmt.Errorf("OBJECT_MB must be positive, got %d", c.ObjectMB)
		}
	}

	return nil
}

// Combination returns the factor combination this deployment represents.
func (c Handler) Combination() types.FactorCombination {
	fc := types.FactorCombination{
		Workload:    c.Workload,
		MemoryMB:    c.MemoryMB,
		Concurrency: c.ReservedConcurrency,
	}
	if c.Workload == types.WorkloadBatch {
		fc.Secondary = c.MultipartMB
	} else {
		fc.Secondary = c.BatchEvents
	}
	return fc
}

// Runner holds configuration for the local runner binaries.
type Runner struct {
	// Region is the AWS region of the deployed functions and log groups
	Region string `json:"region" yaml:"region"`

	// FunctionPrefix selects the deployed variants to invoke
	FunctionPrefix string `json:"function_prefix" yaml:"function_prefix"`

	// Invocations is the number of calls per trial
	Invocations int `json:"invocations" yaml:"invocations"`

	// Trials is the number of trials per function
	Trials int `json:"trials" yaml:"trials"`

	// Parallelism caps in-flight calls per trial (1 = sequential)
	Parallelism int `json:"parallelism" yaml:"parallelism"`

	// CallTimeout marks a call failed when exceeded (0 = no timeout)
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`

	// InterCallDelay is slept between sequential calls
	InterCallDelay time.Duration `json:"inter_call_delay" yaml:"inter_call_delay"`

	// Budget caps the total number of calls in a run (0 = unlimited)
	Budget int `json:"budget" yaml:"budget"`

	Output OutputConfig `json:"output" yaml:"output"`
	Logs   LogsConfig   `json:"logs" yaml:"logs"`
	Verify VerifyConfig `json:"verify" yaml:"verify"`
	Cost   CostConfig   `json:"cost" yaml:"cost"`

	// LogLevel is debug, info, warn or error
	LogLevel string `json:"log_level" yaml:"log_level"`

	// LogJSON switches the runner's own logs to JSON
	LogJSON bool `json:"log_json" yaml:"log_json"`
}

// OutputConfig holds the result destinations of the driver.
type OutputConfig struct {
	// Dir is where generated files go when paths are not given explicitly
	Dir string `json:"dir" yaml:"dir"`

	// RecordsPath is the JSONL record file (".sz" suffix = snappy framed)
	RecordsPath string `json:"records_path" yaml:"records_path"`

	// CSVPath is an optional flat CSV of driver records
	CSVPath string `json:"csv_path" yaml:"csv_path"`

	// ResultsDB is an optional SQLite result store
	ResultsDB string `json:"results_db" yaml:"results_db"`
}

// LogsConfig controls CloudWatch Logs Insights queries.
type LogsConfig struct {
	// QueryAfterRun runs the latency/throughput query for every trial run id
	QueryAfterRun bool `json:"query_after_run" yaml:"query_after_run"`

	// LogGroupPrefix is prepended to function names ("/aws/lambda/")
	LogGroupPrefix string `json:"log_group_prefix" yaml:"log_group_prefix"`

	// PollInterval is the GetQueryResults polling interval
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// QueryTimeout bounds one query from start to completion
	QueryTimeout time.Duration `json:"query_timeout" yaml:"query_timeout"`

	// Lookback is how far before the run start queries search
	Lookback time.Duration `json:"lookback" yaml:"lookback"`
}

// VerifyConfig controls post-run object verification.
type VerifyConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Bucket      string `json:"bucket" yaml:"bucket"`
	Concurrency int    `json:"concurrency" yaml:"concurrency"`
}

// CostConfig holds unit prices in USD as decimal strings.
type CostConfig struct {
	// LambdaGBSecond is the compute price per GB-second
	LambdaGBSecond string `json:"lambda_gb_second" yaml:"lambda_gb_second"`

	// LambdaRequest is the price of one invocation request
	LambdaRequest string `json:"lambda_request" yaml:"lambda_request"`

	// S3Put is the price of one PUT-class request
	S3Put string `json:"s3_put" yaml:"s3_put"`
}

// DefaultRunner returns the default runner configuration.
func DefaultRunner() *Runner {
	return &Runner{
		Region:         "eu-west-1",
		Invocations:    3000,
		Trials:         5,
		Parallelism:    1,
		CallTimeout:    2 * time.Minute,
		InterCallDelay: 100 * time.Millisecond,
		Output: OutputConfig{
			Dir: "./results",
		},
		Logs: LogsConfig{
			LogGroupPrefix: "/aws/lambda/",
			PollInterval:   2 * time.Second,
			QueryTimeout:   5 * time.Minute,
			Lookback:       5 * time.Minute,
		},
		Verify: VerifyConfig{
			Concurrency: 8,
		},
		Cost:     DefaultCost(),
		LogLevel: "info",
	}
}

// DefaultCost returns on-demand x86 Lambda and S3 Standard prices.
func DefaultCost() CostConfig {
	return CostConfig{
		LambdaGBSecond: "0.0000166667",
		LambdaRequest:  "0.0000002",
		S3Put:          "0.000005",
	}
}

// Resolve fills output paths that were left empty.
func (c *Runner) Resolve() {
	if c.Output.Dir == "" {
		c.Output.Dir = "./results"
	}
	if c.Output.RecordsPath == "" {
		stamp := time.Now().UTC().Format("20060102_150405")
		name := strings.TrimRight(strings.ReplaceAll(c.FunctionPrefix, "-", "_"), "_")
		c.Output.RecordsPath = filepath.Join(c.Output.Dir, fmt.Sprintf("results_%s_%s.jsonl", name, stamp))
	}
}

// Validate validates the runner configuration.
func (c *Runner) Validate() error {
	if c.FunctionPrefix == "" {
		return fmt.Errorf("function_prefix is required")
	}
	if c.Invocations <= 0 {
		return fmt.Errorf("invocations must be positive, got %d", c.Invocations)
	}
	if c.Trials <= 0 {
		return fmt.Errorf("trials must be positive, got %d", c.Trials)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism)
	}
	if c.Budget < 0 {
		return fmt.Errorf("budget must not be negative, got %d", c.Budget)
	}
	if c.CallTimeout < 0 || c.InterCallDelay < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.Logs.QueryAfterRun && c.Logs.QueryTimeout <= 0 {
		return fmt.Errorf("logs.query_timeout must be positive when querying logs")
	}
	if c.Verify.Enabled && c.Verify.Concurrency < 1 {
		return fmt.Errorf("verify.concurrency must be at least 1, got %d", c.Verify.Concurrency)
	}
	return nil
}

// EnsureDirectories creates the output directories.
func (c *Runner) EnsureDirectories() error {
	dirs := []string{c.Output.Dir, filepath.Dir(c.Output.RecordsPath)}
	if c.Output.CSVPath != "" {
		dirs = append(dirs, filepath.Dir(c.Output.CSVPath))
	}
	if c.Output.ResultsDB != "" {
		dirs = append(dirs, filepath.Dir(c.Output.ResultsDB))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LoadFromFile loads runner configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Runner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultRunner()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies environment overrides to cfg.
// Environment variables use the INGESTBENCH_ prefix.
func LoadFromEnv(cfg *Runner) {
	if v := os.Getenv("INGESTBENCH_REGION"); v != "" {
		cfg.Region = v
	}
	if v := os.Getenv("INGESTBENCH_FUNCTION_PREFIX"); v != "" {
		cfg.FunctionPrefix = v
	}
	if v := os.Getenv("INGESTBENCH_INVOCATIONS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Invocations)
	}
	if v := os.Getenv("INGESTBENCH_TRIALS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Trials)
	}
	if v := os.Getenv("INGESTBENCH_PARALLELISM"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Parallelism)
	}
	if v := os.Getenv("INGESTBENCH_BUDGET"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Budget)
	}
	if v := os.Getenv("INGESTBENCH_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CallTimeout = d
		}
	}
	if v := os.Getenv("INGESTBENCH_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("INGESTBENCH_RESULTS_DB"); v != "" {
		cfg.Output.ResultsDB = v
	}
	if v := os.Getenv("INGESTBENCH_QUERY_LOGS"); v != "" {
		cfg.Logs.QueryAfterRun = parseBool(v)
	}
	if v := os.Getenv("INGESTBENCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes"
}

func contains(levels []int, v int) bool {
	for _, l := range levels {
		if l == v {
			return true
		}
	}
	return false
}
