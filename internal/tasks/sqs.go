package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/ignite/creatorhub/internal/pkg/logger"
)

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSPublisher enqueues tasks onto an SQS queue.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

// NewSQSPublisher creates a publisher for queueURL.
func NewSQSPublisher(client SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// Enqueue sends the task as the message body. The send gets its own short
// deadline so a finished request context does not cancel it.
func (p *SQSPublisher) Enqueue(_ context.Context, t Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

// SQSConsumer long-polls the queue and dispatches each message. Messages are
// deleted on success, on permanent failure and when malformed; a retryable
// failure is left for SQS to redeliver after the visibility timeout.
type SQSConsumer struct {
	client     SQSAPI
	queueURL   string
	dispatcher *Dispatcher
	errBackoff time.Duration
	done       chan struct{}
}

// NewSQSConsumer creates a consumer.
func NewSQSConsumer(client SQSAPI, queueURL string, d *Dispatcher) *SQSConsumer {
	return &SQSConsumer{
		client:     client,
		queueURL:   queueURL,
		dispatcher: d,
		errBackoff: 5 * time.Second,
		done:       make(chan struct{}),
	}
}

// Start begins polling in the background.
func (c *SQSConsumer) Start(ctx context.Context) {
	logger.Info("SQS task consumer started", "queue", c.queueURL)
	go c.poll(ctx)
}

// Stop ends polling after the current batch.
func (c *SQSConsumer) Stop() {
	close(c.done)
}

func (c *SQSConsumer) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("SQS receive error", "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-time.After(c.errBackoff):
			}
		}
	}
}

// PollOnce receives and handles one batch.
func (c *SQSConsumer) PollOnce(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return err
	}

	for _, msg := range out.Messages {
		var t Task
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &t); err != nil {
			logger.Warn("SQS bad task message", "error", err.Error())
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}

		if err := c.dispatcher.Dispatch(ctx, t); err != nil && !IsPermanent(err) {
			continue
		}
		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
	return nil
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, handle *string) {
	if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	}); err != nil {
		logger.Warn("SQS delete failed", "error", err.Error())
	}
}
