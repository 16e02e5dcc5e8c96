package distlock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

const redisKeyPrefix = "lock:"

// Lock records are hashes so ownership and expiry can be compared inside a
// script without JSON decoding. Redis key TTL tracks ExpiresAt so abandoned
// records also vanish on their own.
var (
	redisCreateScript = redis.NewScript(`
		if redis.call("exists", KEYS[1]) == 1 then
			return 0
		end
		redis.call("hset", KEYS[1], "campaign_id", ARGV[1], "instance_id", ARGV[2], "acquired_at", ARGV[3], "expires_at", ARGV[4])
		redis.call("pexpire", KEYS[1], ARGV[5])
		return 1
	`)

	redisExtendScript = redis.NewScript(`
		if redis.call("hget", KEYS[1], "instance_id") ~= ARGV[1] then
			return 0
		end
		redis.call("hset", KEYS[1], "expires_at", ARGV[2])
		redis.call("pexpire", KEYS[1], ARGV[3])
		return 1
	`)

	redisDeleteScript = redis.NewScript(`
		if redis.call("hget", KEYS[1], "instance_id") == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)

	redisDeleteExpiredScript = redis.NewScript(`
		local exp = redis.call("hget", KEYS[1], "expires_at")
		if not exp then
			return 0
		end
		if tonumber(exp) > tonumber(ARGV[1]) then
			return 0
		end
		return redis.call("del", KEYS[1])
	`)
)

// RedisStore keeps lock records in Redis.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed lock store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (s *RedisStore) ttlMillis(expiresAt time.Time) int64 {
	ms := expiresAt.Sub(s.now()).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

func (s *RedisStore) Create(ctx context.Context, lock *domain.Lock) error {
	n, err := redisCreateScript.Run(ctx, s.client, []string{redisKey(lock.ID)},
		lock.CampaignID, lock.InstanceID,
		lock.AcquiredAt.UnixMilli(), lock.ExpiresAt.UnixMilli(),
		s.ttlMillis(lock.ExpiresAt),
	).Int()
	if err != nil {
		return fmt.Errorf("redis create lock %s: %w", lock.ID, err)
	}
	if n == 0 {
		return ErrLockExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Lock, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get lock %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrLockNotFound
	}
	return parseRedisLock(id, fields)
}

func (s *RedisStore) Extend(ctx context.Context, id, instanceID string, expiresAt time.Time) error {
	n, err := redisExtendScript.Run(ctx, s.client, []string{redisKey(id)},
		instanceID, expiresAt.UnixMilli(), s.ttlMillis(expiresAt)).Int()
	if err != nil {
		return fmt.Errorf("redis extend lock %s: %w", id, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id, instanceID string) error {
	n, err := redisDeleteScript.Run(ctx, s.client, []string{redisKey(id)}, instanceID).Int()
	if err != nil {
		return fmt.Errorf("redis release lock %s: %w", id, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := redisDeleteExpiredScript.Run(ctx, s.client, []string{redisKey(id)}, now.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("redis delete expired lock %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *RedisStore) ListExpired(ctx context.Context, now time.Time) ([]domain.Lock, error) {
	var out []domain.Lock
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("redis list locks: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		l, err := parseRedisLock(key[len(redisKeyPrefix):], fields)
		if err != nil {
			return nil, err
		}
		if l.Expired(now) {
			out = append(out, *l)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis list locks: %w", err)
	}
	return out, nil
}

func parseRedisLock(id string, fields map[string]string) (*domain.Lock, error) {
	acquired, err := strconv.ParseInt(fields["acquired_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: bad acquired_at: %w", id, err)
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: bad expires_at: %w", id, err)
	}
	return &domain.Lock{
		ID:         id,
		CampaignID: fields["campaign_id"],
		InstanceID: fields["instance_id"],
		AcquiredAt: time.UnixMilli(acquired),
		ExpiresAt:  time.UnixMilli(expires),
	}, nil
}
