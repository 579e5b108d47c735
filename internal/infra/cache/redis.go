package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// NewRedis はURLからクライアントを作り、起動時に疎通確認する。
func NewRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// 他のリクエストが同じキーを処理中
var ErrLocked = errors.New("key is locked")

// KeyLocker はキー単位の排他。unlockは必ず呼ぶこと。
type KeyLocker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

type RedisLocker struct {
	locker *redislock.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{locker: redislock.New(rdb)}
}

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := l.locker.Obtain(ctx, "lock:"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// 解放はリクエストのctxと切り離す（キャンセル後でも消す）
		_ = lock.Release(context.Background())
	}, nil
}

// Redisが無い構成用。一意制約だけで競合を解決する。
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
