package jobxredis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
	"github.com/redis/go-redis/v9"
)

// Keys names the three Redis structures behind the queue.
type Keys struct {
	Queue      string
	Processing string
	Scheduled  string
}

func DefaultKeys() Keys {
	return Keys{
		Queue:      "jobrunner:queue",
		Processing: "jobrunner:processing",
		Scheduled:  "jobrunner:scheduled",
	}
}

// minBlock is the shortest blocking timeout Redis accepts; zero would block forever.
const minBlock = time.Second

// RedisQueue implements jobx.Queue. Ids are LPUSHed onto the queue list and
// moved from its right end into the processing list by BLMOVE, so a popped
// token is never outside Redis. Delayed pushes wait in a sorted set scored by
// due time in milliseconds.
type RedisQueue struct {
	rdb  *redis.Client
	keys Keys
}

var _ jobx.Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a Redis-backed dispatch queue. Empty key names fall
// back to DefaultKeys.
func NewRedisQueue(rdb *redis.Client, keys Keys) *RedisQueue {
	def := DefaultKeys()
	if keys.Queue == "" {
		keys.Queue = def.Queue
	}
	if keys.Processing == "" {
		keys.Processing = def.Processing
	}
	if keys.Scheduled == "" {
		keys.Scheduled = def.Scheduled
	}
	return &RedisQueue{rdb: rdb, keys: keys}
}

func (q *RedisQueue) Keys() Keys { return q.keys }

func (q *RedisQueue) Push(ctx context.Context, id kernel.JobID) error {
	if err := q.rdb.LPush(ctx, q.keys.Queue, jobx.EncodeToken(id)).Err(); err != nil {
		return redisErrors.NewWithCause(ErrPush, err).WithDetail("job_id", id)
	}
	return nil
}

func (q *RedisQueue) PushAt(ctx context.Context, id kernel.JobID, at time.Time) error {
	err := q.rdb.ZAdd(ctx, q.keys.Scheduled, redis.Z{
		Score:  float64(dueMillis(at)),
		Member: jobx.EncodeToken(id),
	}).Err()
	if err != nil {
		return redisErrors.NewWithCause(ErrSchedule, err).
			WithDetail("job_id", id).
			WithDetail("at", at.UTC().Format(time.RFC3339))
	}
	return nil
}

// dueMillis rounds at up to the next millisecond, so the promoter never sees a
// member as due before at.
func dueMillis(at time.Time) int64 {
	ms := at.UnixMilli()
	if at.After(time.UnixMilli(ms)) {
		ms++
	}
	return ms
}

func (q *RedisQueue) Reserve(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout < minBlock {
		timeout = minBlock
	}

	token, err := q.rdb.BLMove(ctx, q.keys.Queue, q.keys.Processing, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", redisErrors.NewWithCause(ErrReserve, err)
	}
	return token, nil
}

func (q *RedisQueue) Ack(ctx context.Context, token string) error {
	if err := q.rdb.LRem(ctx, q.keys.Processing, 1, token).Err(); err != nil {
		return redisErrors.NewWithCause(ErrAck, err).WithDetail("token", token)
	}
	return nil
}

func (q *RedisQueue) InFlight(ctx context.Context) ([]string, error) {
	tokens, err := q.rdb.LRange(ctx, q.keys.Processing, 0, -1).Result()
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrInFlight, err)
	}
	return tokens, nil
}

// restoreScript pushes the id back only when this caller removed the
// processing entry, so concurrent reapers restore a token at most once.
var restoreScript = redis.NewScript(`
local processing_key = KEYS[1]
local queue_key = KEYS[2]
if redis.call('LREM', processing_key, 1, ARGV[1]) > 0 then
    redis.call('RPUSH', queue_key, ARGV[2])
    return 1
end
return 0
`)

func (q *RedisQueue) Restore(ctx context.Context, token string, id kernel.JobID) (bool, error) {
	n, err := restoreScript.Run(ctx, q.rdb,
		[]string{q.keys.Processing, q.keys.Queue},
		token, jobx.EncodeToken(id),
	).Int()
	if err != nil {
		return false, redisErrors.NewWithCause(ErrRestore, err).
			WithDetail("token", token).
			WithDetail("job_id", id)
	}
	return n == 1, nil
}

// promoteScript moves due members of the scheduled set onto the queue, oldest first.
var promoteScript = redis.NewScript(`
local scheduled_key = KEYS[1]
local queue_key = KEYS[2]
local now = tonumber(ARGV[1])
local ids = redis.call('ZRANGEBYSCORE', scheduled_key, '-inf', now)
if #ids > 0 then
    for _, id in ipairs(ids) do
        redis.call('LPUSH', queue_key, id)
    end
    redis.call('ZREMRANGEBYSCORE', scheduled_key, '-inf', now)
end
return #ids
`)

func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{q.keys.Scheduled, q.keys.Queue},
		strconv.FormatInt(now.UnixMilli(), 10),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, redisErrors.NewWithCause(ErrPromote, err)
	}
	return n, nil
}

func (q *RedisQueue) Stats(ctx context.Context) (jobx.QueueStats, error) {
	pipe := q.rdb.Pipeline()
	ready := pipe.LLen(ctx, q.keys.Queue)
	inFlight := pipe.LLen(ctx, q.keys.Processing)
	scheduled := pipe.ZCard(ctx, q.keys.Scheduled)
	if _, err := pipe.Exec(ctx); err != nil {
		return jobx.QueueStats{}, redisErrors.NewWithCause(ErrStats, err)
	}
	return jobx.QueueStats{
		Ready:     ready.Val(),
		InFlight:  inFlight.Val(),
		Scheduled: scheduled.Val(),
	}, nil
}

// Ping checks the connection, for health endpoints.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
