package repository

import (
	"context"
	"errors"

	"backoffice/internal/domain/model"
	repo "backoffice/internal/repository"

	"gorm.io/gorm"
)

type LedgerGormRepository struct {
	db *gorm.DB
}

func NewLedgerGormRepository(db *gorm.DB) *LedgerGormRepository {
	return &LedgerGormRepository{db: db}
}

// エントリと明細を作成（明細はgormのassociationで同じtxに入る）
func (r *LedgerGormRepository) Create(ctx context.Context, entry *model.LedgerEntry) error {
	for i := range entry.Lines {
		entry.Lines[i].Position = i + 1
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return classify(err)
	}
	return nil
}

func (r *LedgerGormRepository) FindByID(ctx context.Context, id int64) (model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		First(&e, id).Error
	if err != nil {
		return model.LedgerEntry{}, classify(err)
	}
	return e, nil
}

func (r *LedgerGormRepository) FindByIdempotencyKey(ctx context.Context, actorID, key string) (model.LedgerEntry, bool, error) {
	var e model.LedgerEntry
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Where("actor_id = ? AND idempotency_key = ?", actorID, key).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.LedgerEntry{}, false, nil
	}
	if err != nil {
		return model.LedgerEntry{}, false, classify(err)
	}
	return e, true, nil
}

// 新しい順
func (r *LedgerGormRepository) List(ctx context.Context, q repo.LedgerListQuery) ([]model.LedgerEntry, int64, error) {
	db := r.db.WithContext(ctx)
	tx := db.Model(&model.LedgerEntry{})

	if q.Type != nil {
		tx = tx.Where("type = ?", *q.Type)
	}
	if q.ItemID != nil {
		tx = tx.Where("id IN (?)", db.Model(&model.LedgerLine{}).Select("entry_id").Where("item_id = ?", *q.ItemID))
	}
	if q.ActorID != "" {
		tx = tx.Where("actor_id = ?", q.ActorID)
	}
	if q.Reference != "" {
		tx = tx.Where("reference = ?", q.Reference)
	}
	if q.From != nil {
		tx = tx.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("created_at <= ?", *q.To)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return []model.LedgerEntry{}, 0, classify(err)
	}

	var entries []model.LedgerEntry
	offset := (q.Page - 1) * q.Limit
	err := tx.
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Order("id desc").
		Offset(offset).
		Limit(q.Limit).
		Find(&entries).Error
	if err != nil {
		return []model.LedgerEntry{}, 0, classify(err)
	}
	return entries, total, nil
}

// 台帳上の数量（quantityと一致するはず）
func (r *LedgerGormRepository) SumDeltaByItem(ctx context.Context, itemID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerLine{}).
		Select("COALESCE(SUM(delta), 0)").
		Where("item_id = ?", itemID).
		Scan(&sum).Error
	if err != nil {
		return 0, classify(err)
	}
	return sum, nil
}
