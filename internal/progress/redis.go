package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "mediapipe:progress:"

// setScript keeps the larger percentage, replaces the stage and refreshes
// the expiry in one round trip.
var setScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'percent') or '0') or 0
local p = tonumber(ARGV[2])
if cur > p then p = cur end
redis.call('HSET', KEYS[1], 'stage', ARGV[1], 'percent', tostring(p))
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return tostring(p)
`)

// Redis is a Tracker shared by every replica behind the load balancer.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Set(ctx context.Context, id string, stage Stage, percent float64) error {
	err := setScript.Run(ctx, r.client,
		[]string{redisKeyPrefix + id},
		string(stage),
		strconv.FormatFloat(clamp(percent), 'f', -1, 64),
		r.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("set progress %s: %w", id, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (Snapshot, error) {
	fields, err := r.client.HGetAll(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return Unknown, fmt.Errorf("get progress %s: %w", id, err)
	}
	if len(fields) == 0 {
		return Unknown, nil
	}

	percent, err := strconv.ParseFloat(fields["percent"], 64)
	if err != nil {
		percent = 0
	}
	return Snapshot{Stage: Stage(fields["stage"]), Percent: percent}, nil
}
