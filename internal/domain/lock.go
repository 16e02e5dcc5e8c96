package domain

import "time"

// Lock is the persisted record behind a campaign lock. ID is derived from
// the campaign id so at most one live record can exist per campaign.
type Lock struct {
	ID         string    `json:"id" db:"id" dynamodbav:"id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id" dynamodbav:"campaign_id"`
	InstanceID string    `json:"instance_id" db:"instance_id" dynamodbav:"instance_id"`
	AcquiredAt time.Time `json:"acquired_at" db:"acquired_at" dynamodbav:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at" dynamodbav:"expires_at"`
}

// Expired reports whether the lock's TTL has elapsed at now.
func (l *Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
