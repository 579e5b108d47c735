package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	repo "backoffice/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// classify はドライバのエラーをrepositoryの番兵エラーに寄せる。
// 元のエラーも%wで残すので errors.As で辿れる。
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) ||
		errors.Is(err, repo.ErrDuplicateKey) ||
		errors.Is(err, repo.ErrStorageUnavailable) {
		return err
	}
	//キャンセル/タイムアウトは呼び出し側の判断
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %s: %w", repo.ErrDuplicateKey, pgErr.ConstraintName, err)
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			pgErr.Code == "57P01", // admin_shutdown
			pgErr.Code == "57P03", // cannot_connect_now
			pgErr.Code == "53300": // too_many_connections
			return fmt.Errorf("%w: %w", repo.ErrStorageUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) ||
		pgconn.Timeout(err) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %w", repo.ErrStorageUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", repo.ErrStorageUnavailable, err)
	}
	return err
}
