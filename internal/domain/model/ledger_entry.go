package model

import "time"

type LedgerEntryType string

const (
	LedgerEntryReceipt    LedgerEntryType = "RECEIPT"
	LedgerEntryDispatch   LedgerEntryType = "DISPATCH"
	LedgerEntryAdjustment LedgerEntryType = "ADJUSTMENT"
)

func (t LedgerEntryType) Valid() bool {
	switch t {
	case LedgerEntryReceipt, LedgerEntryDispatch, LedgerEntryAdjustment:
		return true
	}
	return false
}

// 在庫移動1回分の台帳エントリ。作成後は更新も削除もしない。
// 訂正は新しいADJUSTMENTで行う。
type LedgerEntry struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Type           LedgerEntryType `gorm:"type:varchar(20);not null;index" json:"type"`
	ActorID        string          `gorm:"type:varchar(64);not null;index;uniqueIndex:uq_ledger_entries_actor_idempotency,priority:1" json:"actor_id"`
	Reference      string          `gorm:"type:varchar(100);not null;default:'';index" json:"reference"`
	Notes          string          `gorm:"type:text;not null;default:''" json:"notes"`
	IdempotencyKey *string         `gorm:"type:varchar(255);uniqueIndex:uq_ledger_entries_actor_idempotency,priority:2" json:"-"`
	Lines          []LedgerLine    `gorm:"foreignKey:EntryID;constraint:OnDelete:RESTRICT" json:"line_items"`
	CreatedAt      time.Time       `gorm:"not null;index" json:"timestamp"`
}

// 明細。品名/SKUは書き込み時点のスナップショット（品目の改名・削除後も履歴が変わらない）。
type LedgerLine struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	EntryID      int64  `gorm:"not null;index;uniqueIndex:uq_ledger_lines_entry_position,priority:1" json:"-"`
	Position     int    `gorm:"not null;uniqueIndex:uq_ledger_lines_entry_position,priority:2" json:"-"`
	ItemID       int64  `gorm:"not null;index" json:"item_id"`
	NameSnapshot string `gorm:"type:varchar(255);not null" json:"name"`
	SKUSnapshot  string `gorm:"type:varchar(64);not null" json:"sku"`

	// 依頼どおりの数量（RECEIPT/DISPATCHは正、ADJUSTMENTは符号付き）
	Quantity int64 `gorm:"not null" json:"quantity"`

	// 在庫への符号付き影響
	Delta int64 `gorm:"not null" json:"delta"`
}

// 種別ごとの在庫への符号
func SignedDelta(t LedgerEntryType, qty int64) int64 {
	if t == LedgerEntryDispatch {
		return -qty
	}
	return qty
}
