package db

import (
	"context"
	"fmt"

	"backoffice/internal/config"
	"backoffice/internal/domain/model"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config) (*gorm.DB, error) {
	gormDB, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)

	if cfg.TracingEnabled {
		if err := gormDB.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.PostgresDB))); err != nil {
			log.Warn().Err(err).Msg("db connected but failed to install otelgorm plugin")
		}
	}

	return gormDB, nil
}

// Migrate はテーブル作成のあと、AutoMigrateで表現できない制約を当てる。
func Migrate(gormDB *gorm.DB) error {
	if err := gormDB.AutoMigrate(
		&model.InventoryItem{},
		&model.LedgerEntry{},
		&model.LedgerLine{},
		&model.SequenceCounter{},
		&model.IssuedNumber{},
		&model.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return applySchemaPatches(gormDB)
}

// 何度流しても同じ結果になるDDLだけを置く。
func applySchemaPatches(gormDB *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// 論理削除済みのSKUは再利用できる
		{"unique live sku", `
CREATE UNIQUE INDEX IF NOT EXISTS uq_inventory_items_sku_live
    ON inventory_items (sku)
    WHERE deleted_at IS NULL`},

		// 台帳は追記のみ
		{"ledger immutability function", `
CREATE OR REPLACE FUNCTION reject_ledger_mutation() RETURNS trigger AS $$
BEGIN
  RAISE EXCEPTION 'ledger rows are immutable (table %)', TG_TABLE_NAME;
END $$ LANGUAGE plpgsql`},
		{"ledger_entries immutability trigger", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_ledger_entries_immutable') THEN
    CREATE TRIGGER trg_ledger_entries_immutable
      BEFORE UPDATE OR DELETE ON ledger_entries
      FOR EACH ROW EXECUTE FUNCTION reject_ledger_mutation();
  END IF;
END $$`},
		{"ledger_lines immutability trigger", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_ledger_lines_immutable') THEN
    CREATE TRIGGER trg_ledger_lines_immutable
      BEFORE UPDATE OR DELETE ON ledger_lines
      FOR EACH ROW EXECUTE FUNCTION reject_ledger_mutation();
  END IF;
END $$`},

		// 冪等キーは(actor_id, idempotency_key)で一意。旧来の全体一意indexは外す
		{"drop global idempotency index", `
DROP INDEX IF EXISTS idx_ledger_entries_idempotency_key`},

		// 品目別の台帳集計用
		{"ledger_lines item/entry index", `
CREATE INDEX IF NOT EXISTS idx_ledger_lines_item_entry
    ON ledger_lines (item_id, entry_id)`},
	}

	for _, p := range patches {
		if err := gormDB.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}

// Ping はヘルスチェック用
func Ping(ctx context.Context, gormDB *gorm.DB) error {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
