package sqsqueue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/halverson/scout-sre-agent/internal/tools"
)

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Tools returns the read-only SQS tool set backed by the given client.
func Tools(c *Client, logger *slog.Logger) []*tools.Tool {
	return []*tools.Tool{
		{
			Name:        "sqs_list_queues",
			Description: "List AWS SQS queues. Use this to discover available queues or find a specific queue by name prefix.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"queue_name_prefix": map[string]any{
						"type":        "string",
						"description": "Filter queues by name prefix (optional)",
					},
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum number of queues to return (default: 100, max: 1000)",
					},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				maxResults := int32(clamp(intArg(args, "max_results", 100), 1, 1000))
				input := &sqs.ListQueuesInput{MaxResults: &maxResults}
				if prefix := stringArg(args, "queue_name_prefix"); prefix != "" {
					input.QueueNamePrefix = aws.String(prefix)
				}

				resp, err := c.api.ListQueues(ctx, input)
				if err != nil {
					return nil, errors.New(friendlyError(err, "list queues"))
				}

				queues := make([]map[string]any, 0, len(resp.QueueUrls))
				for _, u := range resp.QueueUrls {
					queues = append(queues, map[string]any{
						"url":  u,
						"name": queueNameFromURL(u),
					})
				}
				return map[string]any{
					"queues": queues,
					"count":  len(queues),
				}, nil
			},
		},
		{
			Name:        "sqs_get_queue_attributes",
			Description: "Get detailed queue attributes and statistics including message counts, age of oldest message, visibility timeout, and dead-letter queue configuration.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"queue_url": map[string]any{
						"type":        "string",
						"description": "SQS queue URL",
					},
				},
				"required": []string{"queue_url"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				queueURL := stringArg(args, "queue_url")
				resp, err := c.api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
					QueueUrl:       aws.String(queueURL),
					AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameAll},
				})
				if err != nil {
					return nil, errors.New(friendlyError(err, "get queue attributes"))
				}
				return shapeQueueAttributes(queueURL, resp.Attributes), nil
			},
		},
		{
			Name:        "sqs_peek_messages",
			Description: "Peek at messages in a queue WITHOUT removing them (read-only). Messages remain visible for other consumers. Use to inspect queue contents.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"queue_url": map[string]any{
						"type":        "string",
						"description": "SQS queue URL",
					},
					"max_messages": map[string]any{
						"type":        "integer",
						"description": "Maximum messages to peek at (1-10, default: 10)",
					},
					"wait_time_seconds": map[string]any{
						"type":        "integer",
						"description": "Long polling wait time in seconds (0-20, default: 0)",
					},
				},
				"required": []string{"queue_url"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				queueURL := stringArg(args, "queue_url")

				// VisibilityTimeout of zero keeps messages available to
				// other consumers; this is a peek, not a consume.
				resp, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
					QueueUrl:              aws.String(queueURL),
					MaxNumberOfMessages:   int32(clamp(intArg(args, "max_messages", 10), 1, 10)),
					WaitTimeSeconds:       int32(clamp(intArg(args, "wait_time_seconds", 0), 0, 20)),
					VisibilityTimeout:     0,
					MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
						sqstypes.MessageSystemAttributeNameAll,
					},
					MessageAttributeNames: []string{"All"},
				})
				if err != nil {
					return nil, errors.New(friendlyError(err, "peek messages"))
				}

				messages := make([]map[string]any, 0, len(resp.Messages))
				for _, msg := range resp.Messages {
					messages = append(messages, shapeMessage(msg))
				}
				return map[string]any{
					"queue_url":  queueURL,
					"queue_name": queueNameFromURL(queueURL),
					"messages":   messages,
					"count":      len(messages),
					"note":       "Messages peeked with visibility_timeout=0 (not removed from queue)",
				}, nil
			},
		},
		{
			Name:        "sqs_get_queue_url",
			Description: "Get the URL of a queue by its name. Useful when you know the queue name but need the full URL.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"queue_name": map[string]any{
						"type":        "string",
						"description": "Name of the SQS queue",
					},
					"account_id": map[string]any{
						"type":        "string",
						"description": "AWS account ID (optional, for cross-account access)",
					},
				},
				"required": []string{"queue_name"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				queueName := stringArg(args, "queue_name")
				input := &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)}
				if accountID := stringArg(args, "account_id"); accountID != "" {
					input.QueueOwnerAWSAccountId = aws.String(accountID)
				}

				resp, err := c.api.GetQueueUrl(ctx, input)
				if err != nil {
					return nil, errors.New(friendlyError(err, "get queue URL"))
				}
				return map[string]any{
					"queue_name": queueName,
					"queue_url":  aws.ToString(resp.QueueUrl),
				}, nil
			},
		},
	}
}

// shapeQueueAttributes converts the raw string attribute map into a
// structured summary with DLQ and FIFO details when present.
func shapeQueueAttributes(queueURL string, attrs map[string]string) map[string]any {
	atoi := func(key string) int {
		n, _ := strconv.Atoi(attrs[key])
		return n
	}

	metrics := map[string]any{
		"approximate_messages":             atoi("ApproximateNumberOfMessages"),
		"approximate_messages_delayed":     atoi("ApproximateNumberOfMessagesDelayed"),
		"approximate_messages_not_visible": atoi("ApproximateNumberOfMessagesNotVisible"),
	}
	if ageStr, ok := attrs["ApproximateAgeOfOldestMessage"]; ok {
		age, _ := strconv.Atoi(ageStr)
		metrics["oldest_message_age_seconds"] = age
		metrics["oldest_message_age_minutes"] = math.Round(float64(age)/60*100) / 100
		metrics["oldest_message_age_hours"] = math.Round(float64(age)/3600*100) / 100
	}

	result := map[string]any{
		"queue_url":  queueURL,
		"queue_name": queueNameFromURL(queueURL),
		"metrics":    metrics,
		"configuration": map[string]any{
			"visibility_timeout_seconds": atoi("VisibilityTimeout"),
			"message_retention_seconds":  atoi("MessageRetentionPeriod"),
			"max_message_size_bytes":     atoi("MaximumMessageSize"),
			"delay_seconds":              atoi("DelaySeconds"),
		},
		"timestamps": map[string]any{
			"created":       attrs["CreatedTimestamp"],
			"last_modified": attrs["LastModifiedTimestamp"],
		},
	}

	if policy, ok := attrs["RedrivePolicy"]; ok {
		var redrive struct {
			DeadLetterTargetArn string `json:"deadLetterTargetArn"`
			MaxReceiveCount     any    `json:"maxReceiveCount"`
		}
		if err := json.Unmarshal([]byte(policy), &redrive); err == nil {
			result["dead_letter_queue"] = map[string]any{
				"target_arn":        redrive.DeadLetterTargetArn,
				"max_receive_count": redrive.MaxReceiveCount,
			}
		}
	}

	isFifo := attrs["FifoQueue"] == "true"
	result["is_fifo"] = isFifo
	if isFifo {
		result["fifo_config"] = map[string]any{
			"content_based_deduplication": attrs["ContentBasedDeduplication"] == "true",
			"deduplication_scope":         attrs["DeduplicationScope"],
			"fifo_throughput_limit":       attrs["FifoThroughputLimit"],
		}
	}

	return result
}

// shapeMessage condenses one received message, parsing JSON bodies for
// readability and truncating the raw form.
func shapeMessage(msg sqstypes.Message) map[string]any {
	body := aws.ToString(msg.Body)

	var bodyParsed any = body
	var js any
	if err := json.Unmarshal([]byte(body), &js); err == nil {
		bodyParsed = js
	}

	bodyRaw := body
	if len(bodyRaw) > 1000 {
		bodyRaw = bodyRaw[:1000] + "..."
	}

	receiveCount, _ := strconv.Atoi(msg.Attributes["ApproximateReceiveCount"])

	msgAttrs := map[string]any{}
	for name, attr := range msg.MessageAttributes {
		if attr.StringValue != nil {
			msgAttrs[name] = aws.ToString(attr.StringValue)
		} else if attr.BinaryValue != nil {
			msgAttrs[name] = attr.BinaryValue
		}
	}

	return map[string]any{
		"message_id":                          aws.ToString(msg.MessageId),
		"body":                                bodyParsed,
		"body_raw":                            bodyRaw,
		"md5_of_body":                         aws.ToString(msg.MD5OfBody),
		"sent_timestamp":                      msg.Attributes["SentTimestamp"],
		"approximate_receive_count":           receiveCount,
		"approximate_first_receive_timestamp": msg.Attributes["ApproximateFirstReceiveTimestamp"],
		"sender_id":                           msg.Attributes["SenderId"],
		"message_attributes":                  msgAttrs,
	}
}
