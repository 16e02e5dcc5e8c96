// Package distlock provides campaign-scoped distributed mutual exclusion.
//
// A lock is a persisted record whose key is derived from the campaign id, so
// two callers racing to create it cannot both succeed. Records carry an
// expiry; a record past its expiry is presumed abandoned by a crashed holder
// and may be deleted and re-created by anyone. The Manager layers acquire,
// refresh, release, stale cleanup and a scoped WithLock helper on top of a
// Store. Store backends: in-memory, PostgreSQL, DynamoDB and Redis.
package distlock

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

var (
	// ErrLockExists is returned by Store.Create when a record with the same
	// id already exists (another holder won the race).
	ErrLockExists = errors.New("distlock: lock already exists")
	// ErrLockNotFound is returned by Store.Get when no record exists.
	ErrLockNotFound = errors.New("distlock: lock not found")
	// ErrLockNotHeld is returned when a write is conditioned on ownership
	// and the record is missing or held by another instance.
	ErrLockNotHeld = errors.New("distlock: lock not held by this instance")
	// ErrLockLost is the cancellation cause of a WithLock context whose lock
	// was taken over or could not be extended before it expired.
	ErrLockLost = errors.New("distlock: lock lost")
)

// Store persists lock records. Every method must be a single atomic
// operation against the backend.
type Store interface {
	// Create inserts the record, failing with ErrLockExists if the id is taken.
	Create(ctx context.Context, lock *domain.Lock) error
	// Get returns the record or ErrLockNotFound.
	Get(ctx context.Context, id string) (*domain.Lock, error)
	// Extend moves ExpiresAt forward if instanceID still holds the record.
	Extend(ctx context.Context, id, instanceID string, expiresAt time.Time) error
	// Delete removes the record if instanceID still holds it.
	Delete(ctx context.Context, id, instanceID string) error
	// DeleteExpired removes the record only if it has expired at now.
	// Returns false when the record is gone or still live.
	DeleteExpired(ctx context.Context, id string, now time.Time) (bool, error)
	// ListExpired returns every record that has expired at now.
	ListExpired(ctx context.Context, now time.Time) ([]domain.Lock, error)
}

// LockID derives the lock record id for a campaign.
func LockID(campaignID string) string {
	return "lock_" + campaignID
}
