package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

// SQSAPI is the subset of the SQS client used by SQSSink.
type SQSAPI interface {
	SendMessage(ctx context.Context, input *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink enqueues notifications on an SQS queue.
type SQSSink struct {
	client   SQSAPI
	queueURL string
}

// SQSSinkOption configures an SQSSink.
type SQSSinkOption func(*SQSSink)

// WithSQSClient sets a custom SQS client.
func WithSQSClient(c SQSAPI) SQSSinkOption {
	return func(s *SQSSink) { s.client = c }
}

// NewSQSSink creates a new SQS sink. Without WithSQSClient the client is
// built from the default AWS configuration chain.
func NewSQSSink(ctx context.Context, queueURL string, opts ...SQSSinkOption) (*SQSSink, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("SQS queue URL required")
	}
	s := &SQSSink{queueURL: queueURL}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = sqs.NewFromConfig(cfg)
	}
	return s, nil
}

// Name returns the sink identifier.
func (s *SQSSink) Name() string { return "sqs" }

// Send enqueues the notification as JSON. On a FIFO queue, messages for one
// target share a group so consumers see them in order.
func (s *SQSSink) Send(ctx context.Context, n model.Notification) error {
	data, err := json.Marshal(newPayload(n))
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(data)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"repository": {DataType: aws.String("String"), StringValue: aws.String(n.Target.RepoFullName())},
			"branch":     {DataType: aws.String("String"), StringValue: aws.String(n.Target.Branch)},
			"status":     {DataType: aws.String("String"), StringValue: aws.String(string(n.Status))},
		},
	}
	if strings.HasSuffix(s.queueURL, ".fifo") {
		input.MessageGroupId = aws.String(n.Target.String())
		input.MessageDeduplicationId = aws.String(fmt.Sprintf("%d-%s-%s", n.RunID, n.Status, n.Conclusion))
	}

	if _, err := s.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sending to SQS: %w", err)
	}
	return nil
}
