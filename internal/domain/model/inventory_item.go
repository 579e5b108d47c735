package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 在庫品目（マスタ + 現在庫）
// Quantityは台帳(ledger_lines)の合計のキャッシュ。台帳を通さずに更新しない。
type InventoryItem struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SKU          string          `gorm:"type:varchar(64);not null" json:"sku"`
	Name         string          `gorm:"type:varchar(255);not null" json:"name"`
	Category     string          `gorm:"type:varchar(100);not null;default:'';index" json:"category"`
	Quantity     int64           `gorm:"not null;default:0;check:chk_inventory_items_quantity,quantity >= 0" json:"quantity"`
	Unit         string          `gorm:"type:varchar(20);not null;default:''" json:"unit"`
	Location     string          `gorm:"type:varchar(100);not null;default:'';index" json:"location"`
	MinLevel     int64           `gorm:"not null;default:0" json:"min_level"`
	ValuePerUnit decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"value_per_unit"`
	CreatedAt    time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
}

// 発注点以下か
func (i InventoryItem) IsLowStock() bool {
	return i.Quantity <= i.MinLevel
}
