package repository

import (
	"context"
	"time"

	"backoffice/internal/domain/model"
)

// 台帳一覧の絞り込み条件
type LedgerListQuery struct {
	Page      int
	Limit     int
	Type      *model.LedgerEntryType
	ItemID    *int64
	ActorID   string
	Reference string
	From      *time.Time
	To        *time.Time
}

// 台帳は追記のみ。更新/削除のメソッドは持たない。
type LedgerRepository interface {
	// エントリと明細をまとめて作成
	Create(ctx context.Context, entry *model.LedgerEntry) error

	FindByID(ctx context.Context, id int64) (model.LedgerEntry, error)
	// 冪等キーは操作者ごと
	FindByIdempotencyKey(ctx context.Context, actorID, key string) (model.LedgerEntry, bool, error)
	List(ctx context.Context, q LedgerListQuery) ([]model.LedgerEntry, int64, error)

	// 品目の符号付き数量の合計
	SumDeltaByItem(ctx context.Context, itemID int64) (int64, error)
}
