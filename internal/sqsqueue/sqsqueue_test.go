package sqsqueue

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
)

func TestQueueNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://sqs.us-east-1.amazonaws.com/123456789012/orders", "orders"},
		{"https://sqs.us-east-1.amazonaws.com/123456789012/orders.fifo", "orders.fifo"},
		{"orders", "orders"},
	}
	for _, tt := range tests {
		if got := queueNameFromURL(tt.url); got != tt.want {
			t.Errorf("queueNameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestFriendlyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"access denied",
			&smithy.GenericAPIError{Code: "AccessDenied", Message: "user is not authorized"},
			"Access denied. Check IAM permissions for SQS: user is not authorized",
		},
		{
			"invalid address",
			&smithy.GenericAPIError{Code: "InvalidAddress", Message: "bad url"},
			"Invalid queue URL or region: bad url",
		},
		{
			"other api error",
			&smithy.GenericAPIError{Code: "Throttling", Message: "slow down"},
			"AWS SQS error (Throttling): slow down",
		},
		{
			// The SDK wraps API errors; errors.As must still find them.
			"wrapped api error",
			fmt.Errorf("operation error SQS: ListQueues: %w",
				&smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no sqs:ListQueues"}),
			"Access denied. Check IAM permissions for SQS: no sqs:ListQueues",
		},
		{
			"missing credentials",
			errors.New("failed to retrieve credentials: no EC2 IMDS role found"),
			"AWS credentials not configured. Please set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, configure the AWS CLI, or use IAM roles.",
		},
		{
			"plain error",
			errors.New("context deadline exceeded"),
			"failed to list queues: context deadline exceeded",
		},
	}
	for _, tt := range tests {
		if got := friendlyError(tt.err, "list queues"); got != tt.want {
			t.Errorf("%s: friendlyError = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestShapeQueueAttributes(t *testing.T) {
	attrs := map[string]string{
		"ApproximateNumberOfMessages":           "42",
		"ApproximateNumberOfMessagesDelayed":    "1",
		"ApproximateNumberOfMessagesNotVisible": "3",
		"ApproximateAgeOfOldestMessage":         "7200",
		"VisibilityTimeout":                     "30",
		"MessageRetentionPeriod":                "345600",
		"MaximumMessageSize":                    "262144",
		"DelaySeconds":                          "0",
		"CreatedTimestamp":                      "1700000000",
		"RedrivePolicy":                         `{"deadLetterTargetArn":"arn:aws:sqs:us-east-1:123:orders-dlq","maxReceiveCount":5}`,
	}

	result := shapeQueueAttributes("https://sqs.us-east-1.amazonaws.com/123/orders", attrs)

	if result["queue_name"] != "orders" {
		t.Errorf("queue_name = %v", result["queue_name"])
	}

	metrics := result["metrics"].(map[string]any)
	if metrics["approximate_messages"] != 42 {
		t.Errorf("approximate_messages = %v", metrics["approximate_messages"])
	}
	if metrics["oldest_message_age_hours"] != 2.0 {
		t.Errorf("oldest_message_age_hours = %v", metrics["oldest_message_age_hours"])
	}

	dlq, ok := result["dead_letter_queue"].(map[string]any)
	if !ok {
		t.Fatal("dead_letter_queue missing")
	}
	if dlq["target_arn"] != "arn:aws:sqs:us-east-1:123:orders-dlq" {
		t.Errorf("target_arn = %v", dlq["target_arn"])
	}

	if result["is_fifo"] != false {
		t.Errorf("is_fifo = %v, want false", result["is_fifo"])
	}
	if _, ok := result["fifo_config"]; ok {
		t.Error("fifo_config should be absent for standard queues")
	}
}

func TestShapeQueueAttributesFifo(t *testing.T) {
	attrs := map[string]string{
		"FifoQueue":                 "true",
		"ContentBasedDeduplication": "true",
		"DeduplicationScope":        "queue",
	}
	result := shapeQueueAttributes("https://sqs.us-east-1.amazonaws.com/123/orders.fifo", attrs)

	if result["is_fifo"] != true {
		t.Fatalf("is_fifo = %v, want true", result["is_fifo"])
	}
	fifo := result["fifo_config"].(map[string]any)
	if fifo["content_based_deduplication"] != true {
		t.Errorf("content_based_deduplication = %v", fifo["content_based_deduplication"])
	}

	metrics := result["metrics"].(map[string]any)
	if _, ok := metrics["oldest_message_age_seconds"]; ok {
		t.Error("oldest message age should be absent when not reported")
	}
}

func TestShapeMessageJSONBody(t *testing.T) {
	msg := sqstypes.Message{
		MessageId: aws.String("m-1"),
		Body:      aws.String(`{"event":"order_created","order_id":7}`),
		Attributes: map[string]string{
			"ApproximateReceiveCount": "3",
			"SenderId":                "AIDAEXAMPLE",
		},
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"source": {StringValue: aws.String("checkout")},
		},
	}

	shaped := shapeMessage(msg)

	body, ok := shaped["body"].(map[string]any)
	if !ok {
		t.Fatalf("JSON body should be parsed, got %T", shaped["body"])
	}
	if body["event"] != "order_created" {
		t.Errorf("body.event = %v", body["event"])
	}
	if shaped["approximate_receive_count"] != 3 {
		t.Errorf("approximate_receive_count = %v", shaped["approximate_receive_count"])
	}
	if shaped["message_attributes"].(map[string]any)["source"] != "checkout" {
		t.Errorf("message_attributes = %v", shaped["message_attributes"])
	}
}

func TestShapeMessageTruncatesRawBody(t *testing.T) {
	long := strings.Repeat("z", 2000)
	shaped := shapeMessage(sqstypes.Message{Body: aws.String(long)})

	raw := shaped["body_raw"].(string)
	if len(raw) != 1003 || !strings.HasSuffix(raw, "...") {
		t.Errorf("body_raw length = %d, want 1000 chars plus ellipsis", len(raw))
	}
	// Non-JSON body stays a plain string.
	if shaped["body"].(string) != long {
		t.Error("non-JSON body should be preserved as-is")
	}
}

func TestClamp(t *testing.T) {
	if clamp(15, 1, 10) != 10 {
		t.Error("clamp above range")
	}
	if clamp(0, 1, 10) != 1 {
		t.Error("clamp below range")
	}
	if clamp(5, 1, 10) != 5 {
		t.Error("clamp in range")
	}
}
