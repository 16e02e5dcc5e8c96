package domain

import "time"

// EmailMessage is the fully-resolved message ready for the provider.
// By the time a message reaches this struct, spintax, variable substitution
// and the unsubscribe link are all resolved.
type EmailMessage struct {
	CampaignID  string            `json:"campaign_id"`
	LeadID      string            `json:"lead_id"`
	To          string            `json:"to"`
	FromName    string            `json:"from_name"`
	FromEmail   string            `json:"from_email"`
	ReplyTo     string            `json:"reply_to"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"html_content"`
	TextContent string            `json:"text_content"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// SendResult is returned by the provider after attempting delivery.
type SendResult struct {
	Success      bool      `json:"success"`
	MessageID    string    `json:"message_id,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	IsRetryable  bool      `json:"is_retryable"`
	Attempts     int       `json:"attempts"`
	RawResponse  string    `json:"raw_response,omitempty"`
	SentAt       time.Time `json:"sent_at"`
}

// Verification statuses reported by the verifier.
const (
	VerificationValid    = "valid"
	VerificationInvalid  = "invalid"
	VerificationCatchAll = "catch_all"
	VerificationUnknown  = "unknown"
)

// VerificationResult is the verifier's verdict on one address.
type VerificationResult struct {
	IsValid         bool    `json:"is_valid"`
	Status          string  `json:"status"`
	IsGreylisted    bool    `json:"is_greylisted"`
	RetryAfterHours float64 `json:"retry_after_hours,omitempty"`
	Diagnosis       string  `json:"diagnosis,omitempty"`
	RawResponse     string  `json:"raw_response,omitempty"`
}

// IsCatchAll reports whether the domain accepts every address.
func (r *VerificationResult) IsCatchAll() bool {
	return r.Status == VerificationCatchAll
}
