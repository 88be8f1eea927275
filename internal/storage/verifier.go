package storage

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
)

// Expectation is an object the verifier should find with a given size.
type Expectation struct {
	Destination Destination
	Bytes       int64
}

// VerifyResult contains the outcome of a verification pass.
type VerifyResult struct {
	Checked    int
	Matched    int
	Mismatched map[Destination]int64 // observed size when it differs
	Errors     map[Destination]error
}

// OK reports whether every expected object was found with the expected size.
func (r *VerifyResult) OK() bool {
	return len(r.Mismatched) == 0 && len(r.Errors) == 0
}

// Verifier checks written objects against the sizes their writers reported.
type Verifier struct {
	storage     ObjectStorage
	concurrency int
}

// NewVerifier creates a verifier issuing at most concurrency stat calls at once.
func NewVerifier(storage ObjectStorage, concurrency int) *Verifier {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Verifier{storage: storage, concurrency: concurrency}
}

// Verify stats every expectation in parallel.
func (v *Verifier) Verify(ctx context.Context, expected []Expectation) *VerifyResult {
	result := &VerifyResult{
		Mismatched: make(map[Destination]int64),
		Errors:     make(map[Destination]error),
	}

	sem := semaphore.NewWeighted(int64(v.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, e := range expected {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[e.Destination] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(e Expectation) {
			defer sem.Release(1)
			defer wg.Done()

			info, err := v.storage.StatObject(ctx, e.Destination)

			mu.Lock()
			defer mu.Unlock()
			result.Checked++
			switch {
			case err != nil:
				result.Errors[e.Destination] = bencherrors.NewStatFailure(fmt.Sprintf("stat %s", e.Destination), err)
			case info.Size != e.Bytes:
				result.Mismatched[e.Destination] = info.Size
			default:
				result.Matched++
			}
		}(e)
	}

	wg.Wait()
	return result
}
