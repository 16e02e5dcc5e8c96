// Package redisstore keeps outcome counters in Redis hashes, one hash per
// scope, updated with HINCRBY.
package redisstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "outreach:metrics:"

// MetricRepo implements audit.MetricRepository on Redis.
type MetricRepo struct {
	client *redis.Client
}

// NewMetricRepo creates a Redis-backed counter store.
func NewMetricRepo(client *redis.Client) *MetricRepo {
	return &MetricRepo{client: client}
}

func (r *MetricRepo) Increment(ctx context.Context, scope, name string, delta int64) error {
	if err := r.client.HIncrBy(ctx, keyPrefix+scope, name, delta).Err(); err != nil {
		return fmt.Errorf("hincrby %s/%s: %w", scope, name, err)
	}
	return nil
}

func (r *MetricRepo) Snapshot(ctx context.Context, scope string) (map[string]int64, error) {
	raw, err := r.client.HGetAll(ctx, keyPrefix+scope).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", scope, err)
	}
	out := make(map[string]int64, len(raw))
	for name, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("metric %s/%s: %w", scope, name, err)
		}
		out[name] = n
	}
	return out, nil
}
