package ses

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/httpretry"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
)

// SendEmailAPI is the subset of the SES v2 client the sender uses.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Options configures a Sender. Zero values use defaults.
type Options struct {
	ConfigurationSet string
	MaxRetries       int
	Timeout          time.Duration
	Backoff          httpretry.Backoff
}

// Sender implements sending.Provider on SES.
type Sender struct {
	api        SendEmailAPI
	configSet  string
	maxRetries int
	timeout    time.Duration
	backoff    httpretry.Backoff
}

// NewSender creates an SES sender.
func NewSender(api SendEmailAPI, opts Options) *Sender {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = httpretry.DefaultBackoff()
	}
	return &Sender{
		api:        api,
		configSet:  opts.ConfigurationSet,
		maxRetries: opts.MaxRetries,
		timeout:    opts.Timeout,
		backoff:    opts.Backoff,
	}
}

func (s *Sender) buildInput(msg *domain.EmailMessage) *sesv2.SendEmailInput {
	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
			{Name: aws.String("lead_id"), Value: aws.String(msg.LeadID)},
		},
	}

	if msg.TextContent != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}
	for name, value := range msg.Headers {
		input.Content.Simple.Headers = append(input.Content.Simple.Headers,
			types.MessageHeader{Name: aws.String(name), Value: aws.String(value)})
	}
	return input
}

// Send delivers msg, retrying only classified-transient failures with
// exponential backoff. The outcome is always reported in the result; the
// error return is reserved for a nil message.
func (s *Sender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if msg == nil {
		return nil, fmt.Errorf("ses send: nil message")
	}
	input := s.buildInput(msg)

	res := &domain.SendResult{}
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		res.Attempts = attempt + 1

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		out, err := s.api.SendEmail(callCtx, input)
		cancel()

		if err == nil {
			res.Success = true
			res.MessageID = aws.ToString(out.MessageId)
			res.SentAt = time.Now()
			raw, _ := json.Marshal(map[string]interface{}{"message_id": res.MessageID, "attempts": res.Attempts})
			res.RawResponse = string(raw)
			logger.Debug("ses_sent", "email", msg.To, "message_id", res.MessageID, "attempts", res.Attempts)
			return res, nil
		}

		code, retryable := Classify(err)
		if ctx.Err() != nil {
			code, retryable = CodeCanceled, false
		}
		res.ErrorCode = code
		res.ErrorMessage = err.Error()
		res.IsRetryable = retryable
		res.RawResponse = err.Error()

		if !retryable || attempt == s.maxRetries {
			break
		}

		delay := s.backoff.Delay(attempt + 1)
		logger.Warn("ses_send_retry", "email", msg.To, "code", code, "attempt", attempt+1, "delay_ms", delay.Milliseconds())
		if err := httpretry.Sleep(ctx, delay); err != nil {
			res.ErrorCode, res.IsRetryable = CodeCanceled, false
			break
		}
	}

	logger.Warn("ses_send_failed", "email", msg.To, "code", res.ErrorCode, "retryable", res.IsRetryable, "attempts", res.Attempts)
	return res, nil
}
