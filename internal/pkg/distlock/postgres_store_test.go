package distlock

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_CreateUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	lock := &domain.Lock{ID: "lock_c1", CampaignID: "c1", InstanceID: "a", AcquiredAt: now, ExpiresAt: now.Add(time.Minute)}

	mock.ExpectExec("INSERT INTO campaign_locks").
		WithArgs("lock_c1", "c1", "a", now, now.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO campaign_locks").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

	require.NoError(t, s.Create(context.Background(), lock))
	assert.ErrorIs(t, s.Create(context.Background(), lock), ErrLockExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, campaign_id, instance_id").
		WithArgs("lock_missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "lock_missing")
	assert.ErrorIs(t, err, ErrLockNotFound)
}

func TestPostgresStore_OwnerConditionedWrites(t *testing.T) {
	s, mock := newMockStore(t)
	exp := time.Now().Add(time.Minute)

	mock.ExpectExec("UPDATE campaign_locks SET expires_at").
		WithArgs("lock_c1", "b", exp).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM campaign_locks WHERE id = \\$1 AND instance_id").
		WithArgs("lock_c1", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.ErrorIs(t, s.Extend(context.Background(), "lock_c1", "b", exp), ErrLockNotHeld)
	assert.NoError(t, s.Delete(context.Background(), "lock_c1", "a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAndDeleteExpired(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "campaign_id", "instance_id", "acquired_at", "expires_at"}).
		AddRow("lock_c1", "c1", "a", now.Add(-time.Hour), now.Add(-time.Minute))
	mock.ExpectQuery("FROM campaign_locks WHERE expires_at").WithArgs(now).WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM campaign_locks WHERE id = \\$1 AND expires_at").
		WithArgs("lock_c1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	locks, err := s.ListExpired(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "a", locks[0].InstanceID)

	ok, err := s.DeleteExpired(context.Background(), "lock_c1", now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
