package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// 一意制約違反
	ErrDuplicateKey = errors.New("duplicate key")

	// DBやRedisに到達できない（リトライ可）
	ErrStorageUnavailable = errors.New("storage unavailable")
)
