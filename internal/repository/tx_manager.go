package repository

import "context"

// トランザクション内で使う約束
type TxRepos interface {
	Items() InventoryRepository
	Ledger() LedgerRepository
	AuditLogs() AuditLogRepository
}

// UsecaseからTxの開始/commit/rollbackを隠す。
// fnがerrorを返すか、ctxがキャンセルされたらrollback。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
