// Package invoker lists and invokes deployed workload functions.
package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
)

// Function describes one deployed function.
type Function struct {
	Name        string
	MemoryMB    int
	Environment map[string]string
}

// InvokeOutput is the synchronous response of one invocation.
type InvokeOutput struct {
	StatusCode int
	Payload    []byte
}

// FunctionAPI is the slice of the compute platform the driver needs.
type FunctionAPI interface {
	// ListFunctions returns every function whose name starts with prefix.
	ListFunctions(ctx context.Context, prefix string) ([]Function, error)

	// Invoke calls a function synchronously. Function errors, throttling and
	// missing functions are returned as classified errors.
	Invoke(ctx context.Context, name string, payload []byte) (InvokeOutput, error)
}

// LambdaClient implements FunctionAPI on AWS Lambda.
type LambdaClient struct {
	client *lambda.Client
}

// NewLambdaClient creates a client for region. The SDK retryer is limited to
// one attempt so throttles reach the caller as failures.
func NewLambdaClient(ctx context.Context, region string) (*LambdaClient, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMaxAttempts(1),
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &LambdaClient{client: lambda.NewFromConfig(awsCfg)}, nil
}

// NewLambdaClientWithClient wraps a pre-configured client.
func NewLambdaClientWithClient(client *lambda.Client) *LambdaClient {
	return &LambdaClient{client: client}
}

// ListFunctions pages through all functions and keeps those matching prefix.
func (c *LambdaClient) ListFunctions(ctx context.Context, prefix string) ([]Function, error) {
	var out []Function

	p := lambda.NewListFunctionsPaginator(c.client, &lambda.ListFunctionsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, Classify(err)
		}
		for _, fn := range page.Functions {
			name := aws.ToString(fn.FunctionName)
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			f := Function{
				Name:     name,
				MemoryMB: int(aws.ToInt32(fn.MemorySize)),
			}
			if fn.Environment != nil {
				f.Environment = fn.Environment.Variables
			}
			out = append(out, f)
		}
	}
	return out, nil
}

// Invoke issues a RequestResponse invocation.
func (c *LambdaClient) Invoke(ctx context.Context, name string, payload []byte) (InvokeOutput, error) {
	resp, err := c.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(name),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return InvokeOutput{}, Classify(err)
	}

	out := InvokeOutput{StatusCode: int(resp.StatusCode), Payload: resp.Payload}
	if resp.FunctionError != nil {
		return out, FunctionError(aws.ToString(resp.FunctionError), resp.Payload)
	}
	return out, nil
}

// Classify maps SDK and context errors onto the invocation error codes.
func Classify(err error) error {
	var (
		throttled *types.TooManyRequestsException
		notFound  *types.ResourceNotFoundException
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &throttled):
		return bencherrors.NewInvocationError(bencherrors.CodeThrottled, "invocation throttled", err)
	case errors.As(err, &notFound):
		return bencherrors.NewEndpointNotFound("function not found", err)
	case errors.Is(err, context.DeadlineExceeded):
		return bencherrors.NewInvocationError(bencherrors.CodeTimeout, "invocation timed out", err)
	case errors.Is(err, context.Canceled):
		return bencherrors.NewInvocationError(bencherrors.CodeInvocationFailure, "invocation cancelled", err)
	default:
		return bencherrors.NewInvocationError(bencherrors.CodeInvocationFailure, "invocation failed", err)
	}
}

// functionErrorPayload is the body the runtime returns for an unhandled error.
type functionErrorPayload struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorType    string `json:"errorType"`
}

// FunctionError builds the error for a response carrying a FunctionError
// header, using the runtime's error message when the payload has one.
func FunctionError(kind string, payload []byte) error {
	msg := kind
	var body functionErrorPayload
	if json.Unmarshal(payload, &body) == nil && body.ErrorMessage != "" {
		msg = fmt.Sprintf("%s: %s", kind, body.ErrorMessage)
	}
	return bencherrors.NewInvocationError(bencherrors.CodeFunctionError, msg, nil)
}
