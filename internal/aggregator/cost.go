package aggregator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ingestbench/ingestbench/internal/config"
	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
	"github.com/ingestbench/ingestbench/pkg/types"
)

var (
	mbPerGB   = decimal.NewFromInt(1024)
	msPerSec  = decimal.NewFromInt(1000)
	costScale = int32(8)
)

// CostModel prices an experiment from unit prices in USD.
type CostModel struct {
	LambdaGBSecond decimal.Decimal
	LambdaRequest  decimal.Decimal
	S3Put          decimal.Decimal
}

// NewCostModel parses the configured unit prices.
func NewCostModel(cfg config.CostConfig) (*CostModel, error) {
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, bencherrors.NewInvalidParameter(fmt.Sprintf("cost %s: %q is not a decimal", name, v))
		}
		if d.IsNegative() {
			return decimal.Zero, bencherrors.NewInvalidParameter(fmt.Sprintf("cost %s must not be negative", name))
		}
		return d, nil
	}

	gbs, err := parse("lambda_gb_second", cfg.LambdaGBSecond)
	if err != nil {
		return nil, err
	}
	req, err := parse("lambda_request", cfg.LambdaRequest)
	if err != nil {
		return nil, err
	}
	put, err := parse("s3_put", cfg.S3Put)
	if err != nil {
		return nil, err
	}
	return &CostModel{LambdaGBSecond: gbs, LambdaRequest: req, S3Put: put}, nil
}

// PutRequests returns the PUT-class requests one successful execution issues:
// one PUT for events, create + parts + complete for batch.
func PutRequests(rec *types.InvocationRecord) int64 {
	if rec.Workload == types.WorkloadBatch {
		return int64(rec.MultipartParts) + 2
	}
	return 1
}

// RecordCost estimates the cost of one record. Compute is charged for every
// record with a latency (the function ran); storage requests only for
// successes. Caller-side latency overstates billed duration slightly.
func (m *CostModel) RecordCost(rec *types.InvocationRecord) decimal.Decimal {
	if rec.LatencyMs == nil {
		return decimal.Zero
	}

	gbSeconds := decimal.NewFromInt(int64(rec.MemoryMB)).Div(mbPerGB).
		Mul(decimal.NewFromInt(*rec.LatencyMs).Div(msPerSec))

	cost := gbSeconds.Mul(m.LambdaGBSecond).Add(m.LambdaRequest)
	if rec.Succeeded() {
		cost = cost.Add(m.S3Put.Mul(decimal.NewFromInt(PutRequests(rec))))
	}
	return cost
}

// Cost sums RecordCost over records, rounded to 8 decimal places.
func (m *CostModel) Cost(records []types.InvocationRecord) decimal.Decimal {
	total := decimal.Zero
	for i := range records {
		total = total.Add(m.RecordCost(&records[i]))
	}
	return total.Round(costScale)
}
