// Package observability tracks live progress statistics for running trials.
// Latency quantiles come from a DDSketch so a long trial can be summarized in
// constant memory while calls are still in flight; exact percentiles are
// computed afterwards by the aggregator.
package observability

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

const sketchAccuracy = 0.01

// TrialStats accumulates call outcomes for one trial. It is safe for
// concurrent use by the driver's workers.
type TrialStats struct {
	mu sync.Mutex

	function string
	trial    int
	started  time.Time
	now      func() time.Time

	calls     int64
	successes int64
	sum       float64
	min       float64
	max       float64
	codes     map[string]int64

	sketch *ddsketch.DDSketch
}

// TrialSnapshot is a point-in-time view of a TrialStats.
type TrialSnapshot struct {
	Function  string
	Trial     int
	Calls     int64
	Successes int64
	Failures  int64
	Elapsed   time.Duration

	// Latency statistics over successful calls; zero when there are none
	MeanMs float64
	MinMs  float64
	MaxMs  float64
	P50Ms  float64
	P95Ms  float64
	P99Ms  float64

	// FailureCodes counts failures by error code
	FailureCodes map[string]int64
}

// NewTrialStats creates a tracker for one trial of function.
func NewTrialStats(function string, trial int) *TrialStats {
	return newTrialStats(function, trial, time.Now)
}

func newTrialStats(function string, trial int, now func() time.Time) *TrialStats {
	s := &TrialStats{
		function: function,
		trial:    trial,
		started:  now(),
		now:      now,
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
		codes:    make(map[string]int64),
	}
	// NewDefaultDDSketch only fails for accuracy outside (0, 1)
	s.sketch, _ = ddsketch.NewDefaultDDSketch(sketchAccuracy)
	return s
}

// RecordSuccess adds a successful call with its latency.
func (s *TrialStats) RecordSuccess(latencyMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.successes++
	s.sum += latencyMs
	if latencyMs < s.min {
		s.min = latencyMs
	}
	if latencyMs > s.max {
		s.max = latencyMs
	}
	if s.sketch != nil {
		// negative latencies cannot occur; Add only rejects out-of-range values
		_ = s.sketch.Add(latencyMs)
	}
}

// RecordFailure adds a failed call under its error code.
func (s *TrialStats) RecordFailure(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if code == "" {
		code = "UNKNOWN"
	}
	s.codes[code]++
}

// Snapshot returns the current statistics.
func (s *TrialStats) Snapshot() TrialSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := TrialSnapshot{
		Function:     s.function,
		Trial:        s.trial,
		Calls:        s.calls,
		Successes:    s.successes,
		Failures:     s.calls - s.successes,
		Elapsed:      s.now().Sub(s.started),
		FailureCodes: make(map[string]int64, len(s.codes)),
	}
	for code, n := range s.codes {
		snap.FailureCodes[code] = n
	}

	if s.successes > 0 {
		snap.MeanMs = s.sum / float64(s.successes)
		snap.MinMs = s.min
		snap.MaxMs = s.max
		if s.sketch != nil {
			qs, err := s.sketch.GetValuesAtQuantiles([]float64{0.50, 0.95, 0.99})
			if err == nil {
				snap.P50Ms, snap.P95Ms, snap.P99Ms = qs[0], qs[1], qs[2]
			}
		}
	}
	return snap
}

// LogArgs flattens the snapshot into slog key/value pairs. The function
// name is left to the caller's context logger.
func (t TrialSnapshot) LogArgs() []any {
	args := []any{
		"trial", t.Trial,
		"calls", t.Calls,
		"successes", t.Successes,
		"failures", t.Failures,
		"elapsed", t.Elapsed.Round(time.Millisecond),
	}
	if t.Successes > 0 {
		args = append(args,
			"mean_ms", round2(t.MeanMs),
			"p50_ms", round2(t.P50Ms),
			"p95_ms", round2(t.P95Ms),
			"p99_ms", round2(t.P99Ms),
			"max_ms", t.MaxMs,
		)
	}

	codes := make([]string, 0, len(t.FailureCodes))
	for c := range t.FailureCodes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	for _, c := range codes {
		args = append(args, "failures_"+c, t.FailureCodes[c])
	}
	return args
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
