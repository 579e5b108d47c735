package repository

import (
	"context"

	"backoffice/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 品目一覧の検索条件
type ItemListQuery struct {
	Page     int
	Limit    int
	Q        string
	Category string
	Location string
	LowStock bool
}

// カテゴリ別の在庫金額
type CategoryValuation struct {
	Category string          `json:"category"`
	Items    int64           `json:"items"`
	Quantity int64           `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
}

type InventoryRepository interface {
	FindByID(ctx context.Context, id int64) (model.InventoryItem, error)
	List(ctx context.Context, q ItemListQuery) ([]model.InventoryItem, int64, error)

	// quantityは0で作成される（期首在庫は台帳経由）
	Create(ctx context.Context, item model.InventoryItem) (model.InventoryItem, error)

	// マスタ項目だけ更新（quantityは触らない）
	UpdateMaster(ctx context.Context, item model.InventoryItem) error
	SoftDelete(ctx context.Context, id int64) error

	// 行ロックを id 昇順で取得（トランザクション内専用）。存在しないidはmapに入らない。
	LockByIDs(ctx context.Context, ids []int64) (map[int64]model.InventoryItem, error)

	// quantity += delta。結果が負になる場合は更新せず false
	ApplyDelta(ctx context.Context, itemID int64, delta int64) (bool, error)

	Valuation(ctx context.Context) ([]CategoryValuation, error)
}
