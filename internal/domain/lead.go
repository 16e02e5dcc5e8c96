package domain

import "time"

// LeadStatus enumerates the states a lead moves through during one
// processing attempt.
type LeadStatus string

const (
	LeadPendingImport LeadStatus = "PENDING_IMPORT"
	LeadQueued        LeadStatus = "QUEUED"
	LeadVerifying     LeadStatus = "VERIFYING"
	LeadVerified      LeadStatus = "VERIFIED"
	LeadRisky         LeadStatus = "RISKY"
	LeadInvalid       LeadStatus = "INVALID"
	LeadSending       LeadStatus = "SENDING"
	LeadSent          LeadStatus = "SENT"
	LeadError         LeadStatus = "ERROR"
	LeadUnsubscribed  LeadStatus = "UNSUBSCRIBED"
)

// QueueStatuses are the lead statuses the execution loop pulls from. VERIFIED
// leads are ones verified ahead of time (lookahead or a recovery rollback).
var QueueStatuses = []LeadStatus{LeadQueued, LeadVerified}

// IsTerminal returns true for statuses that end a processing attempt.
func (s LeadStatus) IsTerminal() bool {
	switch s {
	case LeadRisky, LeadInvalid, LeadSent, LeadError, LeadUnsubscribed:
		return true
	}
	return false
}

// Lead is a single recipient queued on a campaign.
type Lead struct {
	ID            string     `json:"id" db:"id"`
	CampaignID    string     `json:"campaign_id" db:"campaign_id"`
	Email         string     `json:"email" db:"email"`
	FullName      string     `json:"full_name" db:"full_name"`
	FirstName     string     `json:"first_name" db:"first_name"`
	LastName      string     `json:"last_name" db:"last_name"`
	Company       string     `json:"company" db:"company"`
	QueuePosition int64      `json:"queue_position" db:"queue_position"`
	Status        LeadStatus `json:"status" db:"status"`

	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty" db:"processing_started_at"`
	ProcessedAt         *time.Time `json:"processed_at,omitempty" db:"processed_at"`

	VerificationStatus string     `json:"verification_status,omitempty" db:"verification_status"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	RetryAfter         *time.Time `json:"retry_after,omitempty" db:"retry_after"`

	ProviderMessageID string `json:"provider_message_id,omitempty" db:"provider_message_id"`
	ErrorMessage      string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LeadUpdate holds the mutable fields for a single-document lead write.
// Nil fields are left untouched.
type LeadUpdate struct {
	Status              *LeadStatus
	FirstName           *string
	LastName            *string
	ProcessingStartedAt *time.Time
	ProcessedAt         *time.Time
	VerificationStatus  *string
	VerifiedAt          *time.Time
	RetryAfter          *time.Time
	ClearRetryAfter     bool
	ProviderMessageID   *string
	ErrorMessage        *string
}

// Apply copies the set fields of u onto l.
func (u LeadUpdate) Apply(l *Lead) {
	if u.Status != nil {
		l.Status = *u.Status
	}
	if u.FirstName != nil {
		l.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		l.LastName = *u.LastName
	}
	if u.ProcessingStartedAt != nil {
		l.ProcessingStartedAt = u.ProcessingStartedAt
	}
	if u.ProcessedAt != nil {
		l.ProcessedAt = u.ProcessedAt
	}
	if u.VerificationStatus != nil {
		l.VerificationStatus = *u.VerificationStatus
	}
	if u.VerifiedAt != nil {
		l.VerifiedAt = u.VerifiedAt
	}
	if u.RetryAfter != nil {
		l.RetryAfter = u.RetryAfter
	}
	if u.ClearRetryAfter {
		l.RetryAfter = nil
	}
	if u.ProviderMessageID != nil {
		l.ProviderMessageID = *u.ProviderMessageID
	}
	if u.ErrorMessage != nil {
		l.ErrorMessage = *u.ErrorMessage
	}
}
