// Package factors maps deployed function names and metadata to factor
// combinations. Functions are named "<prefix>-<workload>-m<mem>-<b|p><n>-rc<conc>";
// the short "-c<conc>" suffix is accepted too. When a function's environment
// carries its factor settings those win over the name.
package factors

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ingestbench/ingestbench/internal/config"
	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
	"github.com/ingestbench/ingestbench/pkg/types"
)

// Source says where a resolved combination came from.
type Source string

const (
	SourceEnvironment Source = "environment"
	SourceName        Source = "name"
)

var namePattern = regexp.MustCompile(`(?:^|-)(events|batch)-m(\d+)-([bp])(\d+)-r?c(\d+)$`)

// Name returns the function name for a combination.
func Name(prefix string, c types.FactorCombination) string {
	suffix := fmt.Sprintf("%s-m%d-%s%d-rc%d", c.Workload, c.MemoryMB, c.SecondaryPrefix(), c.Secondary, c.Concurrency)
	prefix = strings.TrimRight(prefix, "-")
	if prefix == "" {
		return suffix
	}
	return prefix + "-" + suffix
}

// Parse extracts the combination encoded in a function name.
func Parse(name string) (types.FactorCombination, error) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return types.FactorCombination{}, bencherrors.NewInvalidParameter(
			fmt.Sprintf("function name %q does not encode factors", name))
	}

	kind := types.WorkloadKind(m[1])
	wantPrefix := types.FactorCombination{Workload: kind}.SecondaryPrefix()
	if m[3] != wantPrefix {
		return types.FactorCombination{}, bencherrors.NewInvalidParameter(
			fmt.Sprintf("function name %q: %s workload uses %q, not %q", name, kind, wantPrefix, m[3]))
	}

	// the pattern only admits digit runs, so Atoi fails only on overflow
	mem, err1 := strconv.Atoi(m[2])
	sec, err2 := strconv.Atoi(m[4])
	conc, err3 := strconv.Atoi(m[5])
	if err1 != nil || err2 != nil || err3 != nil {
		return types.FactorCombination{}, bencherrors.NewInvalidParameter(
			fmt.Sprintf("function name %q: factor out of range", name))
	}

	return types.FactorCombination{
		Workload:    kind,
		MemoryMB:    mem,
		Secondary:   sec,
		Concurrency: conc,
	}, nil
}

// Metadata is what the compute platform reports about a deployed function.
type Metadata struct {
	Name        string
	MemoryMB    int
	Environment map[string]string
}

// Resolve returns the combination of a deployed function. Environment
// variables are used when WORKLOAD is set; otherwise the name is parsed.
// Memory missing from the environment falls back to the configured size.
func Resolve(m Metadata) (types.FactorCombination, Source, error) {
	if m.Environment["WORKLOAD"] != "" {
		cfg, err := config.HandlerFromEnv(func(k string) string { return m.Environment[k] })
		if err != nil {
			return types.FactorCombination{}, "", bencherrors.NewInvalidParameter(
				fmt.Sprintf("function %s: %v", m.Name, err))
		}
		if m.Environment["MEMORY_MB"] == "" && m.MemoryMB > 0 {
			cfg.MemoryMB = m.MemoryMB
		}
		if _, err := types.ParseWorkloadKind(string(cfg.Workload)); err != nil {
			return types.FactorCombination{}, "", bencherrors.NewInvalidParameter(
				fmt.Sprintf("function %s: %v", m.Name, err))
		}
		return cfg.Combination(), SourceEnvironment, nil
	}

	c, err := Parse(m.Name)
	if err != nil {
		return types.FactorCombination{}, "", err
	}
	return c, SourceName, nil
}

// Grid returns the full factorial design for the given levels, ordered.
func Grid(memory, batchEvents, partMB, concurrency []int) []types.FactorCombination {
	var out []types.FactorCombination
	for _, kind := range []types.WorkloadKind{types.WorkloadBatch, types.WorkloadEvents} {
		secondary := batchEvents
		if kind == types.WorkloadBatch {
			secondary = partMB
		}
		for _, mem := range memory {
			for _, sec := range secondary {
				for _, conc := range concurrency {
					out = append(out, types.FactorCombination{
						Workload:    kind,
						MemoryMB:    mem,
						Secondary:   sec,
						Concurrency: conc,
					})
				}
			}
		}
	}
	return out
}

// DefaultGrid is the 3x3x3 design per workload with the stock factor levels.
func DefaultGrid() []types.FactorCombination {
	return Grid(
		[]int{512, 1024, 2048},
		config.AllowedBatchEvents,
		config.AllowedMultipartMB,
		[]int{0, 10, 30},
	)
}
