package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSizeUnavailable means the queue's attribute query did not return a
	// usable ApproximateNumberOfMessages value.
	ErrSizeUnavailable = errors.New("approximate queue size unavailable")

	// ErrMissingField means an SQS response lacked a field this tool cannot
	// operate without, such as the MessageId of a received message.
	ErrMissingField = errors.New("missing field in SQS response")
)

type SQSClientInterface interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// QueueClient wraps the raw SQS API with the five operations the reader
// needs. Every failure is a hard error for the run; there is no retry layer
// beyond what the SDK does internally.
type QueueClient struct {
	sqsClient SQSClientInterface
}

func NewQueueClient(client SQSClientInterface) *QueueClient {
	return &QueueClient{sqsClient: client}
}

func (qc *QueueClient) ResolveQueueURL(ctx context.Context, name string) (string, error) {
	result, err := qc.sqsClient.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("fetching queue url for %s: %w", name, err)
	}
	if result.QueueUrl == nil {
		return "", fmt.Errorf("queue url response for %s: %w", name, ErrMissingField)
	}
	return *result.QueueUrl, nil
}

// Receive fetches at most one message, requesting all system attributes.
// visibilityTimeout is the lease in seconds; 0 leaves the message visible to
// other consumers.
func (qc *QueueClient) Receive(ctx context.Context, queueURL string, visibilityTimeout int32) ([]types.Message, error) {
	result, err := qc.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: 1,
		VisibilityTimeout:   visibilityTimeout,
		AttributeNames:      []types.QueueAttributeName{types.QueueAttributeNameAll},
	})
	if err != nil {
		return nil, fmt.Errorf("reading from queue %s: %w", queueURL, err)
	}
	return result.Messages, nil
}

func (qc *QueueClient) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := qc.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("deleting message from queue %s: %w", queueURL, err)
	}
	return nil
}

// Send publishes body to the destination queue and returns the queue's
// acknowledgment. Message attributes are not propagated.
func (qc *QueueClient) Send(ctx context.Context, queueURL, body string) (SendAck, error) {
	result, err := qc.sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return SendAck{}, fmt.Errorf("sending message to queue %s: %w", queueURL, err)
	}
	if result.MD5OfMessageBody == nil || result.MessageId == nil {
		return SendAck{}, fmt.Errorf("send response from queue %s: %w", queueURL, ErrMissingField)
	}
	return SendAck{
		MD5OfMessageBody: *result.MD5OfMessageBody,
		MessageId:        *result.MessageId,
	}, nil
}

// ApproximateSize reports the queue's ApproximateNumberOfMessages attribute.
// The value is a point-in-time estimate and inherently stale.
func (qc *QueueClient) ApproximateSize(ctx context.Context, queueURL string) (int, error) {
	result, err := qc.sqsClient.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("fetching queue attributes for %s: %w", queueURL, err)
	}

	raw, ok := result.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	if !ok {
		return 0, fmt.Errorf("%w: attribute not returned for %s", ErrSizeUnavailable, queueURL)
	}

	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot parse %q", ErrSizeUnavailable, raw)
	}

	log.Debug().Str("queue_url", queueURL).Int("approximate_size", size).Msg("Fetched queue size")
	return size, nil
}
