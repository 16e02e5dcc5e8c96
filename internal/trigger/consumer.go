package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/outreach-orchestrator/internal/pkg/httpretry"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
	"github.com/ignite/outreach-orchestrator/internal/worker"
)

// Executor runs one campaign execution.
type Executor interface {
	Execute(ctx context.Context, campaignID string) worker.ExecutionResult
}

// ConsumerOptions configures a Consumer. Zero values use defaults.
type ConsumerOptions struct {
	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
	// RetryDelaySeconds is the visibility applied to a message whose run
	// failed with a retryable error, so it is redelivered sooner.
	RetryDelaySeconds int32
	// HeartbeatInterval is how often a message's visibility is extended
	// while its campaign runs. Defaults to a third of VisibilityTimeout.
	HeartbeatInterval time.Duration
	Backoff           httpretry.Backoff
}

// Consumer long-polls the trigger queue and executes each requested
// campaign. Messages for different campaigns in one batch run concurrently.
type Consumer struct {
	client   SQSAPI
	queueURL string
	executor Executor
	opts     ConsumerOptions
}

// NewConsumer creates a consumer.
func NewConsumer(client SQSAPI, queueURL string, executor Executor, opts ConsumerOptions) *Consumer {
	if opts.WaitTimeSeconds <= 0 || opts.WaitTimeSeconds > 20 {
		opts.WaitTimeSeconds = 20
	}
	if opts.MaxMessages <= 0 || opts.MaxMessages > 10 {
		opts.MaxMessages = 1
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 900
	}
	if opts.RetryDelaySeconds <= 0 {
		opts.RetryDelaySeconds = 60
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = time.Duration(opts.VisibilityTimeout) * time.Second / 3
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = httpretry.DefaultBackoff()
	}
	return &Consumer{client: client, queueURL: queueURL, executor: executor, opts: opts}
}

// Run polls until ctx is cancelled. Receive errors back off and retry.
func (c *Consumer) Run(ctx context.Context) error {
	logger.Info("trigger_consumer_started", "queue_url", c.queueURL, "max_messages", c.opts.MaxMessages)
	failures := 0
	for {
		if ctx.Err() != nil {
			logger.Info("trigger_consumer_stopped", "queue_url", c.queueURL)
			return nil
		}

		n, err := c.PollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			failures++
			delay := c.opts.Backoff.Delay(failures)
			logger.Warn("trigger_receive_failed", "error", err, "attempt", failures, "retry_in_ms", delay.Milliseconds())
			_ = httpretry.Sleep(ctx, delay)
			continue
		}
		failures = 0
		if n > 0 {
			logger.Debug("trigger_batch_handled", "messages", n)
		}
	}
}

// PollOnce receives one batch and handles every message in it. It returns
// the number of messages received.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: c.opts.MaxMessages,
		WaitTimeSeconds:     c.opts.WaitTimeSeconds,
		VisibilityTimeout:   c.opts.VisibilityTimeout,
	})
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, msg := range out.Messages {
		msg := msg
		g.Go(func() error {
			c.handle(gctx, msg)
			return nil
		})
	}
	_ = g.Wait()
	return len(out.Messages), nil
}

func (c *Consumer) handle(ctx context.Context, msg types.Message) {
	req, err := decodeRequest(aws.ToString(msg.Body))
	if err != nil {
		logger.Error("trigger_bad_message", "message_id", aws.ToString(msg.MessageId), "error", err)
		c.delete(ctx, msg)
		return
	}

	stop := c.keepInvisible(ctx, msg)
	res := c.executor.Execute(ctx, req.CampaignID)
	stop()
	logger.Info("trigger_execution_finished",
		"campaign_id", req.CampaignID,
		"status", string(res.Status),
		"processed", res.Processed,
		"retryable", res.Retryable,
	)

	if res.Status == worker.RunError && res.Retryable {
		// Leave the message on the queue for another attempt.
		c.retryLater(ctx, msg)
		return
	}
	c.delete(ctx, msg)
}

func decodeRequest(body string) (Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return req, err
	}
	req.CampaignID = strings.TrimSpace(req.CampaignID)
	if req.CampaignID == "" {
		return req, errors.New("campaign_id is required")
	}
	return req, nil
}

// keepInvisible extends the message's visibility every heartbeat interval
// until the returned func is called, so a long run is not redelivered to
// another consumer. The returned func waits for the heartbeat to exit.
func (c *Consumer) keepInvisible(ctx context.Context, msg types.Message) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_, err := c.client.ChangeMessageVisibility(context.WithoutCancel(ctx), &sqs.ChangeMessageVisibilityInput{
					QueueUrl:          aws.String(c.queueURL),
					ReceiptHandle:     msg.ReceiptHandle,
					VisibilityTimeout: c.opts.VisibilityTimeout,
				})
				if err != nil {
					logger.Warn("trigger_heartbeat_failed", "message_id", aws.ToString(msg.MessageId), "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// delete and retryLater use a context detached from cancellation so a
// shutdown does not leave a finished message on the queue.
func (c *Consumer) delete(ctx context.Context, msg types.Message) {
	_, err := c.client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		logger.Warn("trigger_delete_failed", "message_id", aws.ToString(msg.MessageId), "error", err)
	}
}

func (c *Consumer) retryLater(ctx context.Context, msg types.Message) {
	_, err := c.client.ChangeMessageVisibility(context.WithoutCancel(ctx), &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     msg.ReceiptHandle,
		VisibilityTimeout: c.opts.RetryDelaySeconds,
	})
	if err != nil {
		logger.Warn("trigger_visibility_failed", "message_id", aws.ToString(msg.MessageId), "error", err)
	}
}
