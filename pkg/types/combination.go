package types

import "fmt"

// FactorCombination identifies one point of the memory x secondary-factor x
// concurrency grid, i.e. one deployed workload variant.
type FactorCombination struct {
	Workload WorkloadKind `json:"workload"`
	MemoryMB int          `json:"memory_mb"`

	// Secondary is the batch event count for events workloads and the
	// multipart part size in MB for batch workloads.
	Secondary int `json:"secondary"`

	// Concurrency is the reserved concurrency (0 = unreserved)
	Concurrency int `json:"reserved_concurrency"`
}

// Key returns a stable string form, e.g. "events/m1024/b10/c5".
func (c FactorCombination) Key() string {
	return fmt.Sprintf("%s/m%d/%s%d/c%d", c.Workload, c.MemoryMB, c.SecondaryPrefix(), c.Secondary, c.Concurrency)
}

// SecondaryPrefix is "b" for batch-event counts and "p" for part sizes.
func (c FactorCombination) SecondaryPrefix() string {
	if c.Workload == WorkloadBatch {
		return "p"
	}
	return "b"
}

// SecondaryLabel names the secondary factor level for tables.
func (c FactorCombination) SecondaryLabel() string {
	if c.Workload == WorkloadBatch {
		return fmt.Sprintf("part_%dmb", c.Secondary)
	}
	return fmt.Sprintf("batch_%d", c.Secondary)
}

// Less orders combinations by workload, memory, secondary, concurrency.
func (c FactorCombination) Less(o FactorCombination) bool {
	if c.Workload != o.Workload {
		return c.Workload < o.Workload
	}
	if c.MemoryMB != o.MemoryMB {
		return c.MemoryMB < o.MemoryMB
	}
	if c.Secondary != o.Secondary {
		return c.Secondary < o.Secondary
	}
	return c.Concurrency < o.Concurrency
}

// TrialResult is the ordered outcome of one trial against one endpoint.
// Failed calls stay in Records with a nil latency and an error cause.
type TrialResult struct {
	FunctionName string             `json:"function_name"`
	Combination  FactorCombination  `json:"combination"`
	Trial        int                `json:"trial"`
	RunID        string             `json:"run_id"`
	Records      []InvocationRecord `json:"records"`

	// Aborted is set when the trial stopped issuing calls early
	Aborted bool `json:"aborted,omitempty"`
}

// Counts returns the number of successful and failed records.
func (t *TrialResult) Counts() (successes, failures int) {
	for i := range t.Records {
		if t.Records[i].Succeeded() {
			successes++
		} else {
			failures++
		}
	}
	return successes, failures
}
