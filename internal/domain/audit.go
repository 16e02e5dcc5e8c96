package domain

import "time"

// Outcome classifies how a lead processing attempt ended.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// LogEntry is the audit record written once per lead processing attempt
// (and once per recovery action). It is the compliance source of truth.
type LogEntry struct {
	ID               string     `json:"id" db:"id"`
	CampaignID       string     `json:"campaign_id" db:"campaign_id"`
	LeadID           string     `json:"lead_id" db:"lead_id"`
	Email            string     `json:"email" db:"email"`
	Action           string     `json:"action" db:"action"`
	Outcome          Outcome    `json:"outcome" db:"outcome"`
	LeadStatus       LeadStatus `json:"lead_status" db:"lead_status"`
	Subject          string     `json:"subject,omitempty" db:"subject"`
	Body             string     `json:"body,omitempty" db:"body"`
	VerifierResponse string     `json:"verifier_response,omitempty" db:"verifier_response"`
	ProviderResponse string     `json:"provider_response,omitempty" db:"provider_response"`
	ErrorMessage     string     `json:"error_message,omitempty" db:"error_message"`
	DurationMs       int64      `json:"duration_ms" db:"duration_ms"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// Audit actions.
const (
	ActionProcess         = "lead.process"
	ActionRecoverSent     = "lead.recover.sent"
	ActionRecoverRollback = "lead.recover.rollback"
)

// MetricScopeGlobal is the scope for counters aggregated across campaigns.
const MetricScopeGlobal = "GLOBAL"

// CampaignScope returns the metric scope for a single campaign.
func CampaignScope(campaignID string) string {
	return "campaign:" + campaignID
}

// Metric counter names.
const (
	MetricSent      = "sent"
	MetricSkipped   = "skipped"
	MetricInvalid   = "invalid"
	MetricRisky     = "risky"
	MetricErrors    = "errors"
	MetricRecovered = "recovered"
)

// Metric is a named counter within a scope.
type Metric struct {
	Scope     string    `json:"scope" db:"scope"`
	Name      string    `json:"name" db:"name"`
	Value     int64     `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
