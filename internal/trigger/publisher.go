// Package trigger carries campaign execution requests over SQS. A
// scheduler or the CLI publishes a request; any number of workers consume
// them, and the campaign lock keeps runs of one campaign exclusive.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/outreach-orchestrator/internal/pkg/apperrors"
)

// Request asks a worker to execute one campaign.
type Request struct {
	CampaignID  string    `json:"campaign_id"`
	RequestedAt time.Time `json:"requested_at"`
	Source      string    `json:"source,omitempty"`
}

// SQSAPI is the subset of the SQS client used by this package.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Publisher enqueues execution requests.
type Publisher struct {
	client   SQSAPI
	queueURL string
	now      func() time.Time
}

// NewPublisher creates a publisher for queueURL.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL, now: time.Now}
}

// Publish enqueues a request for campaignID and returns the SQS message id.
func (p *Publisher) Publish(ctx context.Context, campaignID, source string) (string, error) {
	const op = "trigger.publish"
	if strings.TrimSpace(campaignID) == "" {
		return "", apperrors.Validation(op, "campaign id is required")
	}
	body, err := json.Marshal(Request{CampaignID: campaignID, RequestedAt: p.now().UTC(), Source: source})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return "", apperrors.External(op, "sqs_send", true, err)
	}
	return aws.ToString(out.MessageId), nil
}
