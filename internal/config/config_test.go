package config

import (
	"os"
	"testing"
	"time"
)

var configEnvVars = []string{
	"SERVER_HOST", "SERVER_PORT", "APP_ENV",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"STORE_DRIVER", "BADGER_PATH", "BADGER_IN_MEMORY",
	"MESSAGE_RATE_LIMIT", "MESSAGE_RATE_WINDOW", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnvVars {
		if old, ok := os.LookupEnv(v); ok {
			t.Cleanup(func() { os.Setenv(v, old) })
		}
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected Server.Host to be 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected Server.Port to be 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Environment != "development" {
		t.Errorf("expected Server.Environment development, got %s", cfg.Server.Environment)
	}
	if cfg.Database.User != "gymtribe" {
		t.Errorf("expected Database.User to be gymtribe, got %s", cfg.Database.User)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("expected Database.Port to be 5432, got %d", cfg.Database.Port)
	}
	if cfg.Redis.Port != 6379 {
		t.Errorf("expected Redis.Port to be 6379, got %d", cfg.Redis.Port)
	}
	if cfg.Redis.PoolSize != 20 {
		t.Errorf("expected Redis.PoolSize to be 20, got %d", cfg.Redis.PoolSize)
	}
	if cfg.Store.Driver != StoreDriverPostgres {
		t.Errorf("expected Store.Driver postgres, got %s", cfg.Store.Driver)
	}
	if cfg.Store.InMemory {
		t.Error("expected Store.InMemory to be false")
	}
	if cfg.Messaging.RateLimit != 30 {
		t.Errorf("expected Messaging.RateLimit 30, got %d", cfg.Messaging.RateLimit)
	}
	if cfg.Messaging.RateWindow != time.Minute {
		t.Errorf("expected Messaging.RateWindow 1m, got %v", cfg.Messaging.RateWindow)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected Log.Level info, got %s", cfg.Log.Level)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("STORE_DRIVER", "Badger")
	t.Setenv("BADGER_IN_MEMORY", "true")
	t.Setenv("MESSAGE_RATE_WINDOW", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("expected db host override, got %s", cfg.Database.Host)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("expected redis db 3, got %d", cfg.Redis.DB)
	}
	if cfg.Store.Driver != StoreDriverBadger {
		t.Errorf("expected badger driver, got %s", cfg.Store.Driver)
	}
	if !cfg.Store.InMemory {
		t.Error("expected in-memory badger")
	}
	if cfg.Messaging.RateWindow != 30*time.Second {
		t.Errorf("expected 30s window, got %v", cfg.Messaging.RateWindow)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.Log.Level)
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "mongo")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown store driver")
	}
}

func TestLoad_RejectsNonPositiveRateLimit(t *testing.T) {
	clearEnv(t)
	t.Setenv("MESSAGE_RATE_LIMIT", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero rate limit")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	want := "postgres://u:p@h:5432/n?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestRedisConfig_Addr(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6380}
	if got := r.Addr(); got != "cache:6380" {
		t.Fatalf("expected cache:6380, got %s", got)
	}
}
