package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/ingestbench/ingestbench/pkg/types"
)

func sampleRecord() types.InvocationRecord {
	lat := int64(120)
	return types.InvocationRecord{
		TsStartMs:    1_700_000_000_000,
		TsEndMs:      1_700_000_000_120,
		LatencyMs:    &lat,
		Workload:     types.WorkloadEvents,
		RunID:        "run-1",
		FunctionName: "exp-events-m1024-b10-c5",
		Region:       "eu-west-1",
		MemoryMB:     1024,
		BatchEvents:  10,
		ObjectBytes:  10249,
	}
}

func TestEmit_SingleLineEnvelope(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, Config{})

	if err := e.Emit(sampleRecord()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	out := buf.String()
	if strings.Count(out, "\n") != 1 || !strings.HasSuffix(out, "\n") {
		t.Fatalf("expected exactly one newline-terminated line, got %q", out)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if doc["latency_ms"].(float64) != 120 {
		t.Errorf("latency_ms = %v, want 120", doc["latency_ms"])
	}
	if doc["function_name"] != "exp-events-m1024-b10-c5" {
		t.Errorf("function_name = %v", doc["function_name"])
	}

	aws := doc["_aws"].(map[string]any)
	if aws["Timestamp"].(float64) != 1_700_000_000_000 {
		t.Errorf("Timestamp = %v", aws["Timestamp"])
	}
	directive := aws["CloudWatchMetrics"].([]any)[0].(map[string]any)
	if directive["Namespace"] != DefaultNamespace {
		t.Errorf("Namespace = %v", directive["Namespace"])
	}
	dims := directive["Dimensions"].([]any)[0].([]any)
	if len(dims) != 4 || dims[0] != "workload" || dims[3] != "run_id" {
		t.Errorf("Dimensions = %v", dims)
	}
	metric := directive["Metrics"].([]any)[0].(map[string]any)
	if metric["Name"] != "latency_ms" || metric["Unit"] != "Milliseconds" || metric["StorageResolution"].(float64) != 60 {
		t.Errorf("first metric = %v", metric)
	}
}

func TestEmit_HighResolution(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, Config{Namespace: "Custom", HighResolution: true})
	if err := e.Emit(sampleRecord()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"StorageResolution":1`) {
		t.Errorf("expected high resolution metrics: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"Namespace":"Custom"`) {
		t.Errorf("expected custom namespace: %s", buf.String())
	}
}

func TestEmit_ConcurrentLinesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Emit(sampleRecord())
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 50 {
		t.Fatalf("lines = %d, want 50", len(lines))
	}
	for _, l := range lines {
		if _, err := Parse([]byte(l)); err != nil {
			t.Errorf("corrupt line %q: %v", l, err)
		}
	}
}

func TestParse_RoundTripsRecordFields(t *testing.T) {
	var buf bytes.Buffer
	rec := sampleRecord()
	rec.Error = "boom"
	if err := NewEmitter(&buf, Config{}).Emit(rec); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	got, err := Parse(bytes.TrimSpace(buf.Bytes()))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got.RunID != rec.RunID || got.Error != "boom" || *got.LatencyMs != 120 {
		t.Errorf("unexpected record: %+v", got)
	}
}
