package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Audit    AuditConfig
	Store    StoreConfig
	Access   AccessConfig
	OTel     OTelConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// AuditConfig 稽核紀錄的傳輸方式：redis (stream)、kafka 或 memory
type AuditConfig struct {
	Driver         string
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroup     string
	PublishTimeout time.Duration
}

// StoreConfig 持久層：postgres 或 memory（memory 需搭配 fixture 檔）
type StoreConfig struct {
	Driver      string
	FixturePath string
}

type AccessConfig struct {
	Timezone          string
	TransferTTL       time.Duration
	ReconcileInterval time.Duration
	SweepInterval     time.Duration
}

type OTelConfig struct {
	Enabled       bool
	ServiceName   string
	CollectorAddr string
}

type LogConfig struct {
	Level       string
	Development bool
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	// .env 不存在時直接使用環境變數
	_ = v.ReadInConfig()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "postgres")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIN_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("JWT_ISSUER", "vanta")

	v.SetDefault("AUDIT_DRIVER", "redis")
	v.SetDefault("AUDIT_KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "vanta.audit")
	v.SetDefault("AUDIT_KAFKA_GROUP", "vanta-audit-writer")
	v.SetDefault("AUDIT_PUBLISH_TIMEOUT", "500ms")

	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("STORE_FIXTURE_PATH", "")

	v.SetDefault("ACCESS_TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("ACCESS_TRANSFER_TTL", "24h")
	v.SetDefault("ACCESS_RECONCILE_INTERVAL", "1m")
	v.SetDefault("ACCESS_SWEEP_INTERVAL", "5m")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "vanta-access")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)
}

func LoadConfig() (*Config, error) {
	v := newViper()

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Database: GetDatabaseConfig(v),
		Redis:    GetRedisConfig(v),
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		Audit: AuditConfig{
			Driver:         v.GetString("AUDIT_DRIVER"),
			KafkaBrokers:   strings.Split(v.GetString("AUDIT_KAFKA_BROKERS"), ","),
			KafkaTopic:     v.GetString("AUDIT_KAFKA_TOPIC"),
			KafkaGroup:     v.GetString("AUDIT_KAFKA_GROUP"),
			PublishTimeout: v.GetDuration("AUDIT_PUBLISH_TIMEOUT"),
		},
		Store: StoreConfig{
			Driver:      v.GetString("STORE_DRIVER"),
			FixturePath: v.GetString("STORE_FIXTURE_PATH"),
		},
		Access: AccessConfig{
			Timezone:          v.GetString("ACCESS_TIMEZONE"),
			TransferTTL:       v.GetDuration("ACCESS_TRANSFER_TTL"),
			ReconcileInterval: v.GetDuration("ACCESS_RECONCILE_INTERVAL"),
			SweepInterval:     v.GetDuration("ACCESS_SWEEP_INTERVAL"),
		},
		OTel: OTelConfig{
			Enabled:       v.GetBool("OTEL_ENABLED"),
			ServiceName:   v.GetString("OTEL_SERVICE_NAME"),
			CollectorAddr: v.GetString("OTEL_COLLECTOR_ADDR"),
		},
		Log: LogConfig{
			Level:       v.GetString("LOG_LEVEL"),
			Development: v.GetBool("LOG_DEVELOPMENT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func LoadTestConfig() *Config {
	testConfig := &DatabaseConfig{
		Host:     "localhost",
		Port:     "5433", // 測試 DB 用 5433 port
		User:     "postgres",
		Password: "postgres",
		DBName:   "test_db",
		SSLMode:  "disable",
		MaxConns: 25,
		MinConns: 1,
	}

	testRedisConfig := RedisConfig{
		Host:     "localhost",
		Port:     "6380", // 測試 Redis 用 6380 port
		Password: "",
		DB:       1,
	}

	return &Config{
		Database: *testConfig,
		Redis:    testRedisConfig,
		JWT:      JWTConfig{Secret: "test-secret", Issuer: "vanta-test"},
		Audit:    AuditConfig{Driver: "memory", PublishTimeout: 100 * time.Millisecond},
		Store:    StoreConfig{Driver: "memory"},
		Access: AccessConfig{
			Timezone:          "UTC",
			TransferTTL:       time.Hour,
			ReconcileInterval: time.Minute,
			SweepInterval:     time.Minute,
		},
	}
}

func GetDatabaseConfig(v *viper.Viper) DatabaseConfig {
	return DatabaseConfig{
		Host:     v.GetString("DB_HOST"),
		Port:     v.GetString("DB_PORT"),
		User:     v.GetString("DB_USER"),
		Password: v.GetString("DB_PASSWORD"),
		DBName:   v.GetString("DB_NAME"),
		SSLMode:  v.GetString("DB_SSL_MODE"),
		MaxConns: v.GetInt32("DB_MAX_CONNS"),
		MinConns: v.GetInt32("DB_MIN_CONNS"),
	}
}

func GetRedisConfig(v *viper.Viper) RedisConfig {
	return RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetString("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Audit.Driver {
	case "redis", "kafka", "memory":
	default:
		return fmt.Errorf("unknown AUDIT_DRIVER %q", c.Audit.Driver)
	}
	switch c.Store.Driver {
	case "postgres":
	case "memory":
		if c.Audit.Driver == "redis" {
			// memory store 沒有 redis 依賴時改用記憶體佇列
			c.Audit.Driver = "memory"
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Access.TransferTTL <= 0 {
		return fmt.Errorf("ACCESS_TRANSFER_TTL must be positive")
	}
	if c.Access.ReconcileInterval <= 0 || c.Access.SweepInterval <= 0 {
		return fmt.Errorf("ACCESS_RECONCILE_INTERVAL and ACCESS_SWEEP_INTERVAL must be positive")
	}
	return nil
}
