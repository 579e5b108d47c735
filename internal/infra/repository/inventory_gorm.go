package repository

import (
	"context"
	"strings"

	"backoffice/internal/domain/model"
	repo "backoffice/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// IDで品目を取得（論理削除済みはErrNotFound）
func (r *InventoryGormRepository) FindByID(ctx context.Context, id int64) (model.InventoryItem, error) {
	var item model.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return model.InventoryItem{}, classify(err)
	}
	return item, nil
}

// 検索/カテゴリ/保管場所/発注点以下/ページング
func (r *InventoryGormRepository) List(ctx context.Context, q repo.ItemListQuery) ([]model.InventoryItem, int64, error) {
	var items []model.InventoryItem
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.InventoryItem{})

	if s := strings.TrimSpace(q.Q); s != "" {
		like := "%" + s + "%"
		tx = tx.Where("name ILIKE ? OR sku ILIKE ?", like, like)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.Location != "" {
		tx = tx.Where("location = ?", q.Location)
	}
	if q.LowStock {
		tx = tx.Where("quantity <= min_level")
	}

	if err := tx.Count(&total).Error; err != nil {
		return []model.InventoryItem{}, 0, classify(err)
	}

	offset := (q.Page - 1) * q.Limit
	if err := tx.Order("name asc").Order("id asc").Offset(offset).Limit(q.Limit).Find(&items).Error; err != nil {
		return []model.InventoryItem{}, 0, classify(err)
	}
	return items, total, nil
}

// 品目の作成。quantityは必ず0から始める。
func (r *InventoryGormRepository) Create(ctx context.Context, item model.InventoryItem) (model.InventoryItem, error) {
	item.Quantity = 0
	if err := r.db.WithContext(ctx).Create(&item).Error; err != nil {
		return model.InventoryItem{}, classify(err)
	}
	return item, nil
}

// マスタ項目の更新
func (r *InventoryGormRepository) UpdateMaster(ctx context.Context, item model.InventoryItem) error {
	res := r.db.WithContext(ctx).Model(&model.InventoryItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
		"sku":            item.SKU,
		"name":           item.Name,
		"category":       item.Category,
		"unit":           item.Unit,
		"location":       item.Location,
		"min_level":      item.MinLevel,
		"value_per_unit": item.ValuePerUnit,
	})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 品目削除（台帳は残る）
func (r *InventoryGormRepository) SoftDelete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.InventoryItem{}, id)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// SELECT ... FOR UPDATE。id昇順で取るので、同じ品目を含むバッチ同士でもデッドロックしない。
func (r *InventoryGormRepository) LockByIDs(ctx context.Context, ids []int64) (map[int64]model.InventoryItem, error) {
	locked := make(map[int64]model.InventoryItem, len(ids))
	if len(ids) == 0 {
		return locked, nil
	}

	var items []model.InventoryItem
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, classify(err)
	}

	for _, it := range items {
		locked[it.ID] = it
	}
	return locked, nil
}

// 在庫が足りるときだけ加減算
func (r *InventoryGormRepository) ApplyDelta(ctx context.Context, itemID int64, delta int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.InventoryItem{}).
		Where("id = ? AND quantity + ? >= 0", itemID, delta).
		Update("quantity", gorm.Expr("quantity + ?", delta))

	if res.Error != nil {
		return false, classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// カテゴリ別の数量と金額
func (r *InventoryGormRepository) Valuation(ctx context.Context) ([]repo.CategoryValuation, error) {
	var rows []repo.CategoryValuation
	err := r.db.WithContext(ctx).
		Model(&model.InventoryItem{}).
		Select("category, COUNT(*) AS items, COALESCE(SUM(quantity), 0) AS quantity, COALESCE(SUM(quantity * value_per_unit), 0) AS value").
		Group("category").
		Order("category asc").
		Scan(&rows).Error
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}
