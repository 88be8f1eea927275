package observability

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestTrialStats_Snapshot(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTrialStats("fn", 2, func() time.Time { return clock })

	for i := 1; i <= 100; i++ {
		s.RecordSuccess(float64(i))
	}
	s.RecordFailure("THROTTLED")
	s.RecordFailure("THROTTLED")
	s.RecordFailure("")

	clock = clock.Add(3 * time.Second)
	snap := s.Snapshot()

	if snap.Calls != 103 || snap.Successes != 100 || snap.Failures != 3 {
		t.Errorf("counts = %d/%d/%d", snap.Calls, snap.Successes, snap.Failures)
	}
	if snap.Elapsed != 3*time.Second {
		t.Errorf("elapsed = %v, want 3s", snap.Elapsed)
	}
	if snap.MeanMs != 50.5 || snap.MinMs != 1 || snap.MaxMs != 100 {
		t.Errorf("mean/min/max = %v/%v/%v", snap.MeanMs, snap.MinMs, snap.MaxMs)
	}
	// sketch quantiles are within the configured relative accuracy
	if math.Abs(snap.P95Ms-95)/95 > 0.03 {
		t.Errorf("p95 = %v, want about 95", snap.P95Ms)
	}
	if snap.FailureCodes["THROTTLED"] != 2 || snap.FailureCodes["UNKNOWN"] != 1 {
		t.Errorf("failure codes = %v", snap.FailureCodes)
	}
}

func TestTrialStats_EmptySnapshot(t *testing.T) {
	snap := NewTrialStats("fn", 1).Snapshot()
	if snap.Calls != 0 || snap.MeanMs != 0 || snap.MaxMs != 0 {
		t.Errorf("empty snapshot should be zero: %+v", snap)
	}
	args := snap.LogArgs()
	for i := 0; i < len(args); i += 2 {
		if args[i] == "p95_ms" {
			t.Error("empty snapshot should not log latency quantiles")
		}
	}
}

func TestTrialStats_Concurrent(t *testing.T) {
	s := NewTrialStats("fn", 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RecordSuccess(10)
				s.RecordFailure("TIMEOUT")
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	if snap.Calls != 1600 || snap.Successes != 800 || snap.FailureCodes["TIMEOUT"] != 800 {
		t.Errorf("unexpected counts: %+v", snap)
	}
}

func TestLogArgs_SortedFailureCodes(t *testing.T) {
	snap := TrialSnapshot{FailureCodes: map[string]int64{"TIMEOUT": 1, "THROTTLED": 2}}
	args := snap.LogArgs()
	var keys []string
	for i := 0; i < len(args); i += 2 {
		keys = append(keys, args[i].(string))
	}
	n := len(keys)
	if keys[n-2] != "failures_THROTTLED" || keys[n-1] != "failures_TIMEOUT" {
		t.Errorf("failure keys not sorted: %v", keys)
	}
}

func TestLogArgs_OmitsFunction(t *testing.T) {
	snap := NewTrialStats("fn", 2).Snapshot()
	args := snap.LogArgs()
	for i := 0; i < len(args); i += 2 {
		if args[i] == "function" {
			t.Errorf("function key should come from the context logger, got %v", args)
		}
	}
	if args[0] != "trial" || args[1] != 2 {
		t.Errorf("first pair = %v %v, want trial 2", args[0], args[1])
	}
}
