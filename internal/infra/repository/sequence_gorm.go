package repository

import (
	"context"
	"errors"
	"time"

	"backoffice/internal/domain/model"

	"gorm.io/gorm"
)

type SequenceGormRepository struct {
	db *gorm.DB
}

func NewSequenceGormRepository(db *gorm.DB) *SequenceGormRepository {
	return &SequenceGormRepository{db: db}
}

// 1文のupsertで+1して返す。読んでから書く形にはしない。
const nextSequenceSQL = `
INSERT INTO sequence_counters (key, value, created_at, updated_at)
VALUES (?, 1, ?, ?)
ON CONFLICT (key) DO UPDATE
    SET value = sequence_counters.value + 1,
        updated_at = EXCLUDED.updated_at
RETURNING value`

func (r *SequenceGormRepository) Next(ctx context.Context, key string) (int64, error) {
	now := time.Now()
	var value int64
	if err := r.db.WithContext(ctx).Raw(nextSequenceSQL, key, now, now).Scan(&value).Error; err != nil {
		return 0, classify(err)
	}
	return value, nil
}

func (r *SequenceGormRepository) Current(ctx context.Context, key string) (int64, bool, error) {
	var c model.SequenceCounter
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify(err)
	}
	return c.Value, true, nil
}

type IssuedNumberGormRepository struct {
	db *gorm.DB
}

func NewIssuedNumberGormRepository(db *gorm.DB) *IssuedNumberGormRepository {
	return &IssuedNumberGormRepository{db: db}
}

// codeが既にあればErrDuplicateKey
func (r *IssuedNumberGormRepository) Create(ctx context.Context, n model.IssuedNumber) error {
	if err := r.db.WithContext(ctx).Create(&n).Error; err != nil {
		return classify(err)
	}
	return nil
}
