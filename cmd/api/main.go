package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backoffice/internal/config"
	"backoffice/internal/handler"
	"backoffice/internal/infra/cache"
	"backoffice/internal/infra/db"
	infraRepo "backoffice/internal/infra/repository"
	repo "backoffice/internal/repository"
	"backoffice/internal/server"
	"backoffice/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

func main() {
	//.envは無くてもよい（本番は環境変数）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	if err := db.Migrate(gormDB); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate")
	}

	//Redis（任意）
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
	}

	//Repository生成
	items := infraRepo.NewInventoryGormRepository(gormDB)
	ledger := infraRepo.NewLedgerGormRepository(gormDB)
	audits := infraRepo.NewAuditLogGormRepository(gormDB)
	issued := infraRepo.NewIssuedNumberGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)
	counters := newSequenceStore(cfg, gormDB, rdb)

	var locker cache.KeyLocker = cache.NoopLocker{}
	if rdb != nil {
		locker = cache.NewRedisLocker(rdb)
	}

	//Usecase生成
	seqUC := usecase.NewSequenceUsecase(counters, issued, cfg.Location, logger)
	ledgerUC := usecase.NewLedgerUsecase(txm, ledger, locker, cfg.TxTimeout, logger)
	itemUC := usecase.NewItemUsecase(txm, items, audits, cfg.TxTimeout, logger)

	//Handler生成
	checks := map[string]handler.Pinger{
		"db": func(ctx context.Context) error { return db.Ping(ctx, gormDB) },
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	e := server.New(logger)
	server.RegisterRoutes(e, cfg, server.Handlers{
		Health:    handler.NewHealthHandler(checks),
		Inventory: handler.NewInventoryHandler(ledgerUC),
		Items:     handler.NewItemHandler(itemUC),
		Sequences: handler.NewSequenceHandler(seqUC),
	})

	logger.Info().
		Str("env", cfg.GoEnv).
		Str("sequence_backend", cfg.SequenceBackend).
		Str("timezone", cfg.Location.String()).
		Bool("redis", rdb != nil).
		Msg("starting backoffice api")

	if err := server.Start(ctx, e, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// 開発はconsole、それ以外はJSON
func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func newSequenceStore(cfg config.Config, gormDB *gorm.DB, rdb *redis.Client) repo.SequenceRepository {
	if cfg.SequenceBackend == config.SequenceBackendRedis {
		return infraRepo.NewSequenceRedisRepository(rdb)
	}
	return infraRepo.NewSequenceGormRepository(gormDB)
}
