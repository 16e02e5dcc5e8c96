package distlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/apperrors"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
)

const (
	// DefaultTTL bounds how long a crashed holder can block other workers.
	DefaultTTL = 2 * time.Minute
	// DefaultRefreshInterval is how often WithLock extends a held lock.
	DefaultRefreshInterval = 30 * time.Second

	maxAcquireAttempts = 2
	releaseTimeout     = 10 * time.Second
)

// Options configures a Manager. Zero values use defaults.
type Options struct {
	InstanceID      string
	TTL             time.Duration
	RefreshInterval time.Duration
	Now             func() time.Time
}

// AcquireResult is the outcome of an acquisition attempt. Acquired=false with
// a nil error means another holder owns the lock; it is not a failure.
type AcquireResult struct {
	Acquired bool   `json:"acquired"`
	LockID   string `json:"lock_id,omitempty"`
	Message  string `json:"message"`
}

// Manager acquires and maintains campaign locks on behalf of one worker
// instance. Safe for concurrent use.
type Manager struct {
	store           Store
	instanceID      string
	ttl             time.Duration
	refreshInterval time.Duration
	now             func() time.Time
}

// NewManager creates a lock manager over the given store.
func NewManager(store Store, opts Options) *Manager {
	if opts.InstanceID == "" {
		opts.InstanceID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:           store,
		instanceID:      opts.InstanceID,
		ttl:             opts.TTL,
		refreshInterval: opts.RefreshInterval,
		now:             opts.Now,
	}
}

// InstanceID identifies this holder in lock records.
func (m *Manager) InstanceID() string { return m.instanceID }

// Acquire tries once (plus one retry after reclaiming a stale record) to take
// the campaign lock. It never waits for a live holder.
func (m *Manager) Acquire(ctx context.Context, campaignID string) (AcquireResult, error) {
	lockID := LockID(campaignID)

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		now := m.now()
		err := m.store.Create(ctx, &domain.Lock{
			ID:         lockID,
			CampaignID: campaignID,
			InstanceID: m.instanceID,
			AcquiredAt: now,
			ExpiresAt:  now.Add(m.ttl),
		})
		if err == nil {
			logger.Debug("lock_acquired", "campaign_id", campaignID, "instance_id", m.instanceID)
			return AcquireResult{Acquired: true, LockID: lockID, Message: "acquired"}, nil
		}
		if !errors.Is(err, ErrLockExists) {
			return AcquireResult{Message: "lock store error"}, apperrors.Database("distlock.acquire", err)
		}

		existing, err := m.store.Get(ctx, lockID)
		if errors.Is(err, ErrLockNotFound) {
			// Released between our create and read; try again.
			continue
		}
		if err != nil {
			return AcquireResult{Message: "lock store error"}, apperrors.Database("distlock.acquire", err)
		}

		if !existing.Expired(now) {
			return AcquireResult{
				Message: fmt.Sprintf("campaign %s is locked by %s until %s",
					campaignID, existing.InstanceID, existing.ExpiresAt.UTC().Format(time.RFC3339)),
			}, nil
		}

		deleted, err := m.store.DeleteExpired(ctx, lockID, now)
		if err != nil {
			return AcquireResult{Message: "lock store error"}, apperrors.Database("distlock.reclaim", err)
		}
		if deleted {
			logger.Warn("stale_lock_reclaimed",
				"campaign_id", campaignID, "previous_holder", existing.InstanceID,
				"expired_at", existing.ExpiresAt.UTC().Format(time.RFC3339))
		}
	}

	return AcquireResult{Message: fmt.Sprintf("campaign %s lock was taken by another holder", campaignID)}, nil
}

// Refresh extends a held lock by the TTL. Returns false if the lock is no
// longer ours.
func (m *Manager) Refresh(ctx context.Context, lockID string) (bool, error) {
	err := m.store.Extend(ctx, lockID, m.instanceID, m.now().Add(m.ttl))
	if errors.Is(err, ErrLockNotHeld) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Database("distlock.refresh", err)
	}
	return true, nil
}

// Release deletes a held lock. Returns false if the lock is no longer ours.
func (m *Manager) Release(ctx context.Context, lockID string) (bool, error) {
	err := m.store.Delete(ctx, lockID, m.instanceID)
	if errors.Is(err, ErrLockNotHeld) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Database("distlock.release", err)
	}
	return true, nil
}

// CleanupStale deletes every expired lock record and returns how many were
// removed. Live locks are never touched.
func (m *Manager) CleanupStale(ctx context.Context) (int, error) {
	now := m.now()
	expired, err := m.store.ListExpired(ctx, now)
	if err != nil {
		return 0, apperrors.Database("distlock.cleanup", err)
	}

	removed := 0
	for _, l := range expired {
		ok, err := m.store.DeleteExpired(ctx, l.ID, now)
		if err != nil {
			logger.Warn("stale_lock_cleanup_failed", "lock_id", l.ID, "error", err)
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		logger.Info("stale_locks_removed", "count", removed)
	}
	return removed, nil
}

// WithLock runs fn while holding the campaign lock. A background goroutine
// extends the lock every refresh interval until fn returns. The refresher is
// stopped and the lock released on every exit path, including panics. If the
// lock is held elsewhere fn is not called and the result has Acquired=false.
//
// The ctx passed to fn is cancelled with ErrLockLost as its cause once the
// lock is taken by another holder, or once refreshes have failed for a full
// TTL. WithLock then returns a KindLock error wrapping ErrLockLost.
func (m *Manager) WithLock(ctx context.Context, campaignID string, fn func(ctx context.Context) error) (AcquireResult, error) {
	res, err := m.Acquire(ctx, campaignID)
	if err != nil || !res.Acquired {
		return res, err
	}

	lockCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.refreshLoop(lockCtx, campaignID, res.LockID, stop, cancel)
	}()

	defer func() {
		close(stop)
		wg.Wait()

		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		released, err := m.Release(relCtx, res.LockID)
		if err != nil {
			logger.Error("lock_release_failed", "campaign_id", campaignID, "error", err)
		} else if !released {
			logger.Warn("lock_release_not_held", "campaign_id", campaignID)
		}
	}()

	err = fn(lockCtx)
	if cause := context.Cause(lockCtx); errors.Is(cause, ErrLockLost) {
		if err != nil && !errors.Is(err, ErrLockLost) {
			logger.Warn("lock_lost_run_error", "campaign_id", campaignID, "error", err)
		}
		return res, &apperrors.Error{Kind: apperrors.KindLock, Op: "distlock.with_lock", Err: cause}
	}
	return res, err
}

func (m *Manager) refreshLoop(ctx context.Context, campaignID, lockID string, stop <-chan struct{}, lost context.CancelCauseFunc) {
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	extended := m.now()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := m.Refresh(ctx, lockID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("lock_refresh_failed", "campaign_id", campaignID, "error", err)
				if m.now().Sub(extended) >= m.ttl {
					logger.Error("lock_lost", "campaign_id", campaignID, "instance_id", m.instanceID, "reason", "refresh_failing")
					lost(fmt.Errorf("%w: campaign %s: refresh failing for %s", ErrLockLost, campaignID, m.ttl))
					return
				}
				continue
			}
			if !ok {
				logger.Error("lock_lost", "campaign_id", campaignID, "instance_id", m.instanceID, "reason", "taken_over")
				lost(fmt.Errorf("%w: campaign %s held by another instance", ErrLockLost, campaignID))
				return
			}
			extended = m.now()
		}
	}
}
