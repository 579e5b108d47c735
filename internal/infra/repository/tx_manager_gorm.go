package repository

import (
	"context"

	repo "backoffice/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	items     repo.InventoryRepository
	ledger    repo.LedgerRepository
	auditLogs repo.AuditLogRepository
}

func (r *txReposGorm) Items() repo.InventoryRepository    { return r.items }
func (r *txReposGorm) Ledger() repo.LedgerRepository      { return r.ledger }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository { return r.auditLogs }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

// READ COMMITTED + 行ロック(FOR UPDATE)で品目単位に直列化する。
func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	err := tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			items:     NewInventoryGormRepository(tx),
			ledger:    NewLedgerGormRepository(tx),
			auditLogs: NewAuditLogGormRepository(tx),
		}
		return fn(r)
	})
	//fnが返したエラーはそのまま、BEGIN/COMMIT失敗だけ分類する
	return classify(err)
}
