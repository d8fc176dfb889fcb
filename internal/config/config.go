package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Store     StoreConfig
	Messaging MessagingConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	Environment string // "development", "production", "test"
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// StoreConfig selects the document store backing the social graph.
type StoreConfig struct {
	Driver     string // "postgres" or "badger"
	BadgerPath string
	InMemory   bool
}

type MessagingConfig struct {
	RateLimit  int
	RateWindow time.Duration
}

type LogConfig struct {
	Level string
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverBadger   = "badger"
)

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("APP_ENV", "development")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "gymtribe")
	v.SetDefault("DB_PASSWORD", "gymtribe")
	v.SetDefault("DB_NAME", "gymtribe")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)

	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("BADGER_PATH", "data/badger")
	v.SetDefault("BADGER_IN_MEMORY", false)

	v.SetDefault("MESSAGE_RATE_LIMIT", 30)
	v.SetDefault("MESSAGE_RATE_WINDOW", time.Minute)

	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads configuration from the environment, optionally overlaid on a
// .env file in the working directory.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:        v.GetString("SERVER_HOST"),
			Port:        v.GetInt("SERVER_PORT"),
			Environment: v.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			PoolSize: v.GetInt("REDIS_POOL_SIZE"),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(v.GetString("STORE_DRIVER")),
			BadgerPath: v.GetString("BADGER_PATH"),
			InMemory:   v.GetBool("BADGER_IN_MEMORY"),
		},
		Messaging: MessagingConfig{
			RateLimit:  v.GetInt("MESSAGE_RATE_LIMIT"),
			RateWindow: v.GetDuration("MESSAGE_RATE_WINDOW"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	switch cfg.Store.Driver {
	case StoreDriverPostgres, StoreDriverBadger:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.Store.Driver)
	}
	if cfg.Messaging.RateLimit <= 0 {
		return nil, fmt.Errorf("MESSAGE_RATE_LIMIT must be positive, got %d", cfg.Messaging.RateLimit)
	}

	return cfg, nil
}
