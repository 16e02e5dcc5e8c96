package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignQueued    CampaignStatus = "QUEUED"
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignAborting  CampaignStatus = "ABORTING"
	CampaignAborted   CampaignStatus = "ABORTED"
	CampaignCompleted CampaignStatus = "COMPLETED"
)

// Campaign is an outbound sequence sent to a lead list at a randomized pace.
// The execution loop owns Status and the counters while it holds the
// campaign lock; everything else is edited by the control plane.
type Campaign struct {
	ID        string         `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	Status    CampaignStatus `json:"status" db:"status"`
	FromName  string         `json:"from_name" db:"from_name"`
	FromEmail string         `json:"from_email" db:"from_email"`
	ReplyTo   string         `json:"reply_to" db:"reply_to"`

	// Subject and body templates. Both may contain spintax ({a|b}) and
	// Liquid variables ({{ first_name }}).
	SubjectTemplate string `json:"subject_template" db:"subject_template"`
	BodyTemplate    string `json:"body_template" db:"body_template"`

	// Pacing bounds in milliseconds, with optional Gaussian overrides.
	MinDelayMs     int64    `json:"min_delay_ms" db:"min_delay_ms"`
	MaxDelayMs     int64    `json:"max_delay_ms" db:"max_delay_ms"`
	GaussianMean   *float64 `json:"gaussian_mean,omitempty" db:"gaussian_mean"`
	GaussianStdDev *float64 `json:"gaussian_std_dev,omitempty" db:"gaussian_std_dev"`

	AllowCatchAll bool `json:"allow_catch_all" db:"allow_catch_all"`

	ProcessedCount int `json:"processed_count" db:"processed_count"`
	SkippedCount   int `json:"skipped_count" db:"skipped_count"`
	ErrorCount     int `json:"error_count" db:"error_count"`

	ResumePosition *int64     `json:"resume_position,omitempty" db:"resume_position"`
	PausedAt       *time.Time `json:"paused_at,omitempty" db:"paused_at"`
	StartedAt      *time.Time `json:"started_at,omitempty" db:"started_at"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty" db:"last_activity_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign can never run again.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignAborted || c.Status == CampaignCompleted
}

// CounterDelta is an atomic increment applied to a campaign's counters.
type CounterDelta struct {
	Processed int
	Skipped   int
	Errors    int
}

// IsZero reports whether the delta changes nothing.
func (d CounterDelta) IsZero() bool {
	return d.Processed == 0 && d.Skipped == 0 && d.Errors == 0
}

// Add returns the sum of two deltas.
func (d CounterDelta) Add(o CounterDelta) CounterDelta {
	return CounterDelta{
		Processed: d.Processed + o.Processed,
		Skipped:   d.Skipped + o.Skipped,
		Errors:    d.Errors + o.Errors,
	}
}
