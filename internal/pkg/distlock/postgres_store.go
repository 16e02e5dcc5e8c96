package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

// uniqueViolation is the SQLSTATE raised when two inserts race on the
// primary key.
const uniqueViolation = "23505"

// PostgresStore keeps lock records in the campaign_locks table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed lock store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, lock *domain.Lock) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_locks (id, campaign_id, instance_id, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		lock.ID, lock.CampaignID, lock.InstanceID, lock.AcquiredAt, lock.ExpiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrLockExists
		}
		return fmt.Errorf("create lock: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Lock, error) {
	var l domain.Lock
	err := s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, instance_id, acquired_at, expires_at
		FROM campaign_locks WHERE id = $1`, id,
	).Scan(&l.ID, &l.CampaignID, &l.InstanceID, &l.AcquiredAt, &l.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lock: %w", err)
	}
	return &l, nil
}

func (s *PostgresStore) Extend(ctx context.Context, id, instanceID string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaign_locks SET expires_at = $3
		WHERE id = $1 AND instance_id = $2`, id, instanceID, expiresAt)
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id, instanceID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM campaign_locks WHERE id = $1 AND instance_id = $2`, id, instanceID)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM campaign_locks WHERE id = $1 AND expires_at <= $2`, id, now)
	if err != nil {
		return false, fmt.Errorf("delete expired lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete expired lock: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]domain.Lock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, instance_id, acquired_at, expires_at
		FROM campaign_locks WHERE expires_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired locks: %w", err)
	}
	defer rows.Close()

	var out []domain.Lock
	for rows.Next() {
		var l domain.Lock
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.InstanceID, &l.AcquiredAt, &l.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
