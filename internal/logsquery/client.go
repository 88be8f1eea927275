// Package logsquery runs CloudWatch Logs Insights queries over the records the
// handler emits and turns result rows back into invocation records.
package logsquery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
	"github.com/ingestbench/ingestbench/internal/logging"
)

// LogsAPI is the subset of the CloudWatch Logs client used here.
type LogsAPI interface {
	StartQuery(ctx context.Context, in *cloudwatchlogs.StartQueryInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error)
	GetQueryResults(ctx context.Context, in *cloudwatchlogs.GetQueryResultsInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error)
	StopQuery(ctx context.Context, in *cloudwatchlogs.StopQueryInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StopQueryOutput, error)
}

// Query is one Logs Insights query.
type Query struct {
	LogGroups []string
	Start     time.Time
	End       time.Time
	Query     string

	// Limit caps returned rows (0 = service default, maximum 10000)
	Limit int32
}

// Row is one result row keyed by field name.
type Row map[string]string

// Client runs queries and polls until they finish.
type Client struct {
	api          LogsAPI
	pollInterval time.Duration
	timeout      time.Duration
	log          *slog.Logger
}

// Config controls polling.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// NewClient wraps api.
func NewClient(api LogsAPI, cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Client{
		api:          api,
		pollInterval: cfg.PollInterval,
		timeout:      cfg.Timeout,
		log:          logging.Component("logsquery"),
	}
}

// NewCloudWatchClient builds a Client on the AWS SDK for region.
func NewCloudWatchClient(ctx context.Context, region string, cfg Config) (*Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRetryMaxAttempts(1)}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewClient(cloudwatchlogs.NewFromConfig(awsCfg), cfg), nil
}

// Run starts q and polls until it completes, fails or the client timeout
// elapses. Every failure is reported as a QueryFailure kind.
func (c *Client) Run(ctx context.Context, q Query) ([]Row, error) {
	if len(q.LogGroups) == 0 {
		return nil, bencherrors.NewInvalidParameter("at least one log group is required")
	}
	if q.End.Before(q.Start) {
		return nil, bencherrors.NewInvalidParameter("query end precedes start")
	}

	in := &cloudwatchlogs.StartQueryInput{
		LogGroupNames: q.LogGroups,
		StartTime:     aws.Int64(q.Start.Unix()),
		EndTime:       aws.Int64(q.End.Unix()),
		QueryString:   aws.String(q.Query),
	}
	if q.Limit > 0 {
		in.Limit = aws.Int32(q.Limit)
	}

	started, err := c.api.StartQuery(ctx, in)
	if err != nil {
		return nil, bencherrors.NewQueryError(bencherrors.CodeQueryFailure, "start query", err)
	}
	queryID := aws.ToString(started.QueryId)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		out, err := c.api.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{QueryId: aws.String(queryID)})
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.timedOut(queryID, ctx.Err())
			}
			return nil, bencherrors.NewQueryError(bencherrors.CodeQueryFailure, "get query results", err)
		}

		switch out.Status {
		case cwtypes.QueryStatusComplete:
			return toRows(out.Results), nil
		case cwtypes.QueryStatusFailed, cwtypes.QueryStatusCancelled, cwtypes.QueryStatusTimeout, cwtypes.QueryStatusUnknown:
			return nil, bencherrors.NewQueryError(bencherrors.CodeQueryFailure,
				fmt.Sprintf("query %s finished with status %s", queryID, out.Status), nil)
		}

		select {
		case <-ctx.Done():
			return nil, c.timedOut(queryID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// timedOut stops the query best-effort and returns a QUERY_TIMEOUT error.
func (c *Client) timedOut(queryID string, cause error) error {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := c.api.StopQuery(stopCtx, &cloudwatchlogs.StopQueryInput{QueryId: aws.String(queryID)}); err != nil {
		c.log.Debug("stop query failed", "query_id", queryID, "error", err)
	}
	return bencherrors.NewQueryError(bencherrors.CodeQueryTimeout,
		fmt.Sprintf("query %s did not complete", queryID), cause)
}

func toRows(results [][]cwtypes.ResultField) []Row {
	rows := make([]Row, 0, len(results))
	for _, fields := range results {
		row := make(Row, len(fields))
		for _, f := range fields {
			name := aws.ToString(f.Field)
			if name == "@ptr" {
				continue
			}
			row[name] = aws.ToString(f.Value)
		}
		rows = append(rows, row)
	}
	return rows
}

// LogGroups maps function names to their log group names.
func LogGroups(prefix string, functions []string) []string {
	groups := make([]string, len(functions))
	for i, fn := range functions {
		groups[i] = prefix + fn
	}
	return groups
}
