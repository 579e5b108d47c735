package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	SequenceBackendPostgres = "postgres"
	SequenceBackendRedis    = "redis"
)

// Configはアプリ全体の設定
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // development/production

	DatabaseURL      string // あれば最優先
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	DBMaxOpenConns   int
	DBMaxIdleConns   int

	RedisURL        string // 空ならRedisを使わない
	SequenceBackend string // postgres/redis

	JWTSecret string // JWT署名シークレット

	Timezone string         // 採番の期間キー（YYYY/YYYYMM）の基準
	Location *time.Location // Timezoneを解決したもの

	TxTimeout      time.Duration // 台帳トランザクション1回の上限
	TracingEnabled bool
	LogLevel       string
}

// Loadは環境変数（.envはmain側でgodotenvが読み込み済み）
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("GO_ENV", "development")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "postgres")
	v.SetDefault("POSTGRES_DB", "backoffice")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("SEQUENCE_BACKEND", SequenceBackendPostgres)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("TX_TIMEOUT", "10s")
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := Config{
		Port:  strings.TrimPrefix(v.GetString("PORT"), ":"),
		GoEnv: v.GetString("GO_ENV"),

		DatabaseURL:      v.GetString("DATABASE_URL"),
		PostgresHost:     v.GetString("POSTGRES_HOST"),
		PostgresPort:     v.GetInt("POSTGRES_PORT"),
		PostgresUser:     v.GetString("POSTGRES_USER"),
		PostgresPassword: v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:       v.GetString("POSTGRES_DB"),
		PostgresSSLMode:  v.GetString("POSTGRES_SSLMODE"),
		DBMaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),

		RedisURL:        v.GetString("REDIS_URL"),
		SequenceBackend: strings.ToLower(strings.TrimSpace(v.GetString("SEQUENCE_BACKEND"))),

		JWTSecret: v.GetString("JWT_SECRET"),

		Timezone:       v.GetString("TIMEZONE"),
		TxTimeout:      v.GetDuration("TX_TIMEOUT"),
		TracingEnabled: v.GetBool("TRACING_ENABLED"),
		LogLevel:       v.GetString("LOG_LEVEL"),
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DatabaseURL == "" && cfg.PostgresHost == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or POSTGRES_HOST is required")
	}
	switch cfg.SequenceBackend {
	case SequenceBackendPostgres:
	case SequenceBackendRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("SEQUENCE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return Config{}, fmt.Errorf("SEQUENCE_BACKEND must be postgres or redis")
	}
	if cfg.TxTimeout <= 0 {
		return Config{}, fmt.Errorf("TX_TIMEOUT must be positive")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("TIMEZONE is invalid: %w", err)
	}
	cfg.Location = loc

	return cfg, nil
}

func (c Config) IsDevelopment() bool {
	return c.GoEnv == "" || c.GoEnv == "development" || c.GoEnv == "dev"
}

// DATABASE_URLが無ければ個別設定から組み立てる
func (c Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}
