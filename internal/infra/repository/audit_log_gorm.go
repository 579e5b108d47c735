package repository

import (
	"context"

	"backoffice/internal/domain/model"
	repo "backoffice/internal/repository"

	"gorm.io/gorm"
)

const (
	defaultAuditPage = 50
	maxAuditPage     = 200
)

// 品目マスタの変更履歴（作成/更新/削除ごとに1行、before/afterはjsonb）。
// 在庫数量の動きは台帳側に残るので、ここには入らない。
type AuditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) *AuditLogGormRepository {
	return &AuditLogGormRepository{db: db}
}

// Create はマスタ変更と同じtxで呼ばれる（失敗したら変更ごとrollback）
func (r *AuditLogGormRepository) Create(ctx context.Context, entry model.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return classify(err)
	}
	return nil
}

// List は新しい順。品目の履歴画面ではResourceType+ResourceIDで絞る。
func (r *AuditLogGormRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	q := whereAudit(r.db.WithContext(ctx).Model(&model.AuditLog{}), f)
	limit, offset := auditPage(f.Limit, f.Offset)

	var logs []model.AuditLog
	if err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		return nil, classify(err)
	}
	return logs, nil
}

func whereAudit(q *gorm.DB, f repo.AuditLogFilter) *gorm.DB {
	if f.ResourceType != nil {
		q = q.Where("resource_type = ?", *f.ResourceType)
	}
	if f.ResourceID != nil {
		q = q.Where("resource_id = ?", *f.ResourceID)
	}
	if f.Action != nil {
		q = q.Where("action = ?", *f.Action)
	}
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.CreatedFrom != nil {
		q = q.Where("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		q = q.Where("created_at <= ?", *f.CreatedTo)
	}
	return q
}

// 範囲外のlimitは既定値、負のoffsetは0
func auditPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > maxAuditPage {
		limit = defaultAuditPage
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
