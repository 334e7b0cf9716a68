package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Shopify  ShopifyConfig
	Sync     SyncConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	CORSOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type ShopifyConfig struct {
	APIVersion string
	// TokenKey is the hex-encoded 32-byte key encrypting access tokens at rest
	TokenKey string
}

type SyncConfig struct {
	PageLimit    int
	PageDelay    time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	LeaseTTL     time.Duration
	// ShopRefreshInterval is how often the worker re-fetches every active
	// shop's profile from shop.json
	ShopRefreshInterval time.Duration
}

type WorkerConfig struct {
	Concurrency int
	MetricsPort string
}

func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("SHOPIFY_API_VERSION", "2024-01")
	viper.SetDefault("SYNC_PAGE_LIMIT", 50)
	viper.SetDefault("SYNC_PAGE_DELAY", "1s")
	viper.SetDefault("SYNC_MAX_ATTEMPTS", 3)
	viper.SetDefault("SYNC_RETRY_BACKOFF", "5s")
	viper.SetDefault("SYNC_LEASE_TTL", "10m")
	viper.SetDefault("SYNC_SHOP_REFRESH_INTERVAL", "2h")
	viper.SetDefault("WORKER_CONCURRENCY", 4)
	viper.SetDefault("WORKER_METRICS_PORT", "9090")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:        viper.GetString("SERVER_PORT"),
			Env:         viper.GetString("SERVER_ENV"),
			CORSOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		Shopify: ShopifyConfig{
			APIVersion: viper.GetString("SHOPIFY_API_VERSION"),
			TokenKey:   viper.GetString("SHOPIFY_TOKEN_KEY"),
		},
		Sync: SyncConfig{
			PageLimit:           viper.GetInt("SYNC_PAGE_LIMIT"),
			PageDelay:           viper.GetDuration("SYNC_PAGE_DELAY"),
			MaxAttempts:         viper.GetInt("SYNC_MAX_ATTEMPTS"),
			RetryBackoff:        viper.GetDuration("SYNC_RETRY_BACKOFF"),
			LeaseTTL:            viper.GetDuration("SYNC_LEASE_TTL"),
			ShopRefreshInterval: viper.GetDuration("SYNC_SHOP_REFRESH_INTERVAL"),
		},
		Worker: WorkerConfig{
			Concurrency: viper.GetInt("WORKER_CONCURRENCY"),
			MetricsPort: viper.GetString("WORKER_METRICS_PORT"),
		},
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
