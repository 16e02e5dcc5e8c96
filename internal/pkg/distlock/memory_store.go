package distlock

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

// MemoryStore keeps lock records in process memory. It gives the same
// guarantees as the shared backends, but only among callers in one process.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]domain.Lock
}

// NewMemoryStore creates an empty in-memory lock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[string]domain.Lock)}
}

func (s *MemoryStore) Create(_ context.Context, lock *domain.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[lock.ID]; ok {
		return ErrLockExists
	}
	s.locks[lock.ID] = *lock
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		return nil, ErrLockNotFound
	}
	return &l, nil
}

func (s *MemoryStore) Extend(_ context.Context, id, instanceID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok || l.InstanceID != instanceID {
		return ErrLockNotHeld
	}
	l.ExpiresAt = expiresAt
	s.locks[id] = l
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok || l.InstanceID != instanceID {
		return ErrLockNotHeld
	}
	delete(s.locks, id)
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok || !l.Expired(now) {
		return false, nil
	}
	delete(s.locks, id)
	return true, nil
}

func (s *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]domain.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Lock
	for _, l := range s.locks {
		if l.Expired(now) {
			out = append(out, l)
		}
	}
	return out, nil
}
