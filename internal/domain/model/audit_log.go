package model

import (
	"time"

	"gorm.io/datatypes"
)

// 品目マスタの作成、更新、削除など。
type AuditAction string

const (
	AuditActionCreateItem AuditAction = "CREATE_ITEM"
	AuditActionUpdateItem AuditAction = "UPDATE_ITEM"
	AuditActionDeleteItem AuditAction = "DELETE_ITEM"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceInventoryItem AuditResourceType = "inventory_item"
)

// 監査ログ（マスタ操作ログ）。
// 在庫数量の履歴は台帳側が正なので、ここには残さない。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したユーザーのID
	ActorID string `gorm:"type:varchar(64);not null;index" json:"actor_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	ResourceID int64 `gorm:"not null;index" json:"resource_id"`

	//変更前/変更後（jsonb）
	Before datatypes.JSON `gorm:"type:jsonb" json:"before"`
	After  datatypes.JSON `gorm:"type:jsonb" json:"after"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
