package repository

import (
	"context"

	"backoffice/internal/domain/model"
)

// 採番ストア。Nextは単一のアトミックなincrement-and-fetchで実装すること。
type SequenceRepository interface {
	// キーの値を+1して返す。未作成なら1で作る。
	Next(ctx context.Context, key string) (int64, error)

	// 最後に払い出した値（増やさない）
	Current(ctx context.Context, key string) (int64, bool, error)
}

type IssuedNumberRepository interface {
	Create(ctx context.Context, n model.IssuedNumber) error
}
