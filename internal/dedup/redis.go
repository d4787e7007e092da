package dedup

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore shares dedup state between hosts. Fingerprints live in a set,
// company windows in a sorted set scored by unix milliseconds.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
}

func NewRedisStore(client goredis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "outpilot"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) fingerprintsKey() string { return r.prefix + ":dedup:fingerprints" }
func (r *RedisStore) windowsKey() string      { return r.prefix + ":dedup:windows" }

func (r *RedisStore) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	return r.client.SIsMember(ctx, r.fingerprintsKey(), fp).Result()
}

func (r *RedisStore) LastSeen(ctx context.Context, companyKey string) (time.Time, bool, error) {
	score, err := r.client.ZScore(ctx, r.windowsKey(), companyKey).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(int64(score)).UTC(), true, nil
}

func (r *RedisStore) Record(ctx context.Context, fp, companyKey string, at time.Time) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, r.fingerprintsKey(), fp)
		if companyKey != "" {
			pipe.ZAdd(ctx, r.windowsKey(), goredis.Z{Score: float64(at.UnixMilli()), Member: companyKey})
		}
		return nil
	})
	return err
}

func (r *RedisStore) PruneWindows(ctx context.Context, before time.Time) (int, error) {
	// exclusive upper bound: a window last seen exactly at the cutoff stays
	n, err := r.client.ZRemRangeByScore(ctx, r.windowsKey(), "-inf", "("+strconv.FormatInt(before.UnixMilli(), 10)).Result()
	return int(n), err
}

// Ping checks that the server is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
