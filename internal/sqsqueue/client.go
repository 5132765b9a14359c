// Package sqsqueue provides read-only AWS SQS inspection tools.
package sqsqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/smithy-go"
)

// Options configure AWS credential resolution. Static keys win over a
// named profile; with neither set the default credential chain applies
// (env vars, shared config, IAM roles).
type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Profile         string
}

// Client wraps the SQS API client.
type Client struct {
	api    *sqs.Client
	region string
	logger *slog.Logger
}

// NewClient builds an SQS client for the given region and credentials.
func NewClient(ctx context.Context, opts Options, logger *slog.Logger) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	} else if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Client{
		api:    sqs.NewFromConfig(cfg),
		region: opts.Region,
		logger: logger,
	}, nil
}

// Ping verifies that credentials work by listing a single queue.
func (c *Client) Ping(ctx context.Context) error {
	one := int32(1)
	if _, err := c.api.ListQueues(ctx, &sqs.ListQueuesInput{MaxResults: &one}); err != nil {
		return fmt.Errorf("sqs ping: %w", err)
	}
	return nil
}

// friendlyError rewrites credential and permission failures into
// actionable messages; everything else keeps its original text.
func friendlyError(err error, operation string) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException":
			return fmt.Sprintf("Access denied. Check IAM permissions for SQS: %s", apiErr.ErrorMessage())
		case "InvalidAddress":
			return fmt.Sprintf("Invalid queue URL or region: %s", apiErr.ErrorMessage())
		default:
			return fmt.Sprintf("AWS SQS error (%s): %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "credentials") {
		return "AWS credentials not configured. Please set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, configure the AWS CLI, or use IAM roles."
	}
	return fmt.Sprintf("failed to %s: %s", operation, err)
}

// queueNameFromURL extracts the queue name from a queue URL.
func queueNameFromURL(queueURL string) string {
	if i := strings.LastIndex(queueURL, "/"); i >= 0 {
		return queueURL[i+1:]
	}
	return queueURL
}
