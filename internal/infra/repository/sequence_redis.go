package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const sequenceKeyPrefix = "seq:"

// INCRで採番するストア（SEQUENCE_BACKEND=redis）
// 永続化はRedis側のAOF/RDB設定に依存する。
type SequenceRedisRepository struct {
	rdb *redis.Client
}

func NewSequenceRedisRepository(rdb *redis.Client) *SequenceRedisRepository {
	return &SequenceRedisRepository{rdb: rdb}
}

func (r *SequenceRedisRepository) Next(ctx context.Context, key string) (int64, error) {
	v, err := r.rdb.Incr(ctx, sequenceKeyPrefix+key).Result()
	if err != nil {
		return 0, classify(err)
	}
	return v, nil
}

func (r *SequenceRedisRepository) Current(ctx context.Context, key string) (int64, bool, error) {
	s, err := r.rdb.Get(ctx, sequenceKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify(err)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
