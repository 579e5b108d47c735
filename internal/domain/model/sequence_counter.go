package model

import "time"

// 採番カウンタ。キーごとに1行、初回利用時にupsertで作られ削除しない。
type SequenceCounter struct {
	Key       string    `gorm:"column:key;primaryKey;type:varchar(100)" json:"key"`
	Value     int64     `gorm:"not null" json:"value"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 払い出した文書番号の控え。codeの一意制約で重複採番を検出する。
type IssuedNumber struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DocType   string    `gorm:"type:varchar(40);not null;index" json:"doc_type"`
	SeqKey    string    `gorm:"type:varchar(100);not null" json:"key"`
	Value     int64     `gorm:"not null" json:"value"`
	Code      string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	ActorID   string    `gorm:"type:varchar(64);not null" json:"actor_id"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
