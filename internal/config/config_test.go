package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

var allEnvVars = []string{
	"CONFIG_FILE",
	"HOST", "PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "ENVIRONMENT", "CORS_ALLOWED_ORIGINS",
	"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE", "DB_PATH",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME", "DB_AUTO_MIGRATE",
	"REDIS_ENABLED", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"REDIS_MIN_IDLE_CONNS", "REDIS_MAX_RETRIES", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"WORKER_CONCURRENCY", "WORKER_QUEUES",
	"JWT_SECRET", "JWT_ISSUER",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "RATE_LIMIT_BURST", "RATE_LIMIT_CLEANUP",
	"CACHE_ENABLED", "CACHE_WORKSPACE_TTL", "CACHE_TASK_TTL",
	"LOG_LEVEL", "LOG_FORMAT",
}

func setEnvVars(vars map[string]string) {
	for k, v := range vars {
		os.Setenv(k, v)
	}
}

func clearEnvVars(vars []string) {
	for _, k := range vars {
		os.Unsetenv(k)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnvVars(allEnvVars)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with default config, got: %v", err)
	}

	if config.Server.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", config.Server.Host)
	}

	if config.Server.Port != "8080" {
		t.Errorf("Expected default port '8080', got %s", config.Server.Port)
	}

	if config.Server.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", config.Server.Environment)
	}

	if len(config.Server.AllowedOrigins) != 1 || config.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Expected default CORS origin, got %v", config.Server.AllowedOrigins)
	}

	if config.Database.Driver != "postgres" {
		t.Errorf("Expected default DB driver 'postgres', got %s", config.Database.Driver)
	}

	if config.Database.Name != "tasktree" {
		t.Errorf("Expected default DB name 'tasktree', got %s", config.Database.Name)
	}

	if config.Database.MaxOpenConns != 25 {
		t.Errorf("Expected default max open conns 25, got %d", config.Database.MaxOpenConns)
	}

	if !config.Database.AutoMigrate {
		t.Error("Expected auto migrate to be enabled by default")
	}

	if !config.Redis.Enabled {
		t.Error("Expected redis to be enabled by default")
	}

	if config.Redis.PoolSize != 10 {
		t.Errorf("Expected default Redis pool size 10, got %d", config.Redis.PoolSize)
	}

	if config.Worker.Concurrency != 2 {
		t.Errorf("Expected default worker concurrency 2, got %d", config.Worker.Concurrency)
	}

	if len(config.Worker.Queues) != 1 || config.Worker.Queues[0] != "audit" {
		t.Errorf("Expected default queue 'audit', got %v", config.Worker.Queues)
	}

	if config.Auth.Issuer != "" {
		t.Errorf("Expected no default issuer, got %s", config.Auth.Issuer)
	}

	if !config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be enabled by default")
	}

	if config.RateLimit.RequestsPerMin != 300 {
		t.Errorf("Expected default requests per minute 300, got %d", config.RateLimit.RequestsPerMin)
	}

	if config.Cache.TaskTTL != 5*time.Minute {
		t.Errorf("Expected default task TTL 5m, got %v", config.Cache.TaskTTL)
	}

	if config.Log.Level != "info" || config.Log.Format != "json" {
		t.Errorf("Expected info/json logging, got %s/%s", config.Log.Level, config.Log.Format)
	}
}

func TestLoadConfig_CustomEnvironment(t *testing.T) {
	envVars := map[string]string{
		"HOST":                 "0.0.0.0",
		"PORT":                 "9000",
		"ENVIRONMENT":          "production",
		"CORS_ALLOWED_ORIGINS": "https://app.example.com, https://staging.example.com",
		"DB_HOST":              "db.example.com",
		"DB_PASSWORD":          "secure_password",
		"DB_MAX_OPEN_CONNS":    "50",
		"REDIS_ENABLED":        "false",
		"REDIS_DB":             "1",
		"WORKER_CONCURRENCY":   "8",
		"JWT_SECRET":           "super-secret-key",
		"JWT_ISSUER":           "https://id.example.com",
		"RATE_LIMIT_ENABLED":   "false",
		"READ_TIMEOUT":         "45s",
		"CACHE_TASK_TTL":       "90s",
		"LOG_LEVEL":            "DEBUG",
	}

	clearEnvVars(allEnvVars)
	setEnvVars(envVars)
	defer clearEnvVars(allEnvVars)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %s", config.Server.Host)
	}

	if config.Server.Port != "9000" {
		t.Errorf("Expected port '9000', got %s", config.Server.Port)
	}

	if len(config.Server.AllowedOrigins) != 2 || config.Server.AllowedOrigins[1] != "https://staging.example.com" {
		t.Errorf("Expected two trimmed origins, got %v", config.Server.AllowedOrigins)
	}

	if config.Database.MaxOpenConns != 50 {
		t.Errorf("Expected max open conns 50, got %d", config.Database.MaxOpenConns)
	}

	if config.Redis.Enabled {
		t.Error("Expected redis to be disabled")
	}

	if config.Redis.DB != 1 {
		t.Errorf("Expected Redis DB 1, got %d", config.Redis.DB)
	}

	if config.Worker.Concurrency != 8 {
		t.Errorf("Expected worker concurrency 8, got %d", config.Worker.Concurrency)
	}

	if config.Auth.Issuer != "https://id.example.com" {
		t.Errorf("Expected issuer to be set, got %s", config.Auth.Issuer)
	}

	if config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be disabled")
	}

	if config.Server.ReadTimeout != 45*time.Second {
		t.Errorf("Expected read timeout 45s, got %v", config.Server.ReadTimeout)
	}

	if config.Cache.TaskTTL != 90*time.Second {
		t.Errorf("Expected task TTL 90s, got %v", config.Cache.TaskTTL)
	}

	if config.Log.Level != "debug" {
		t.Errorf("Expected lower-cased log level 'debug', got %s", config.Log.Level)
	}
}

func TestLoadConfig_ProductionValidation(t *testing.T) {
	clearEnvVars(allEnvVars)
	setEnvVars(map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  "set",
	})
	defer clearEnvVars(allEnvVars)

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error when database password is missing in production")
	}

	os.Setenv("DB_DRIVER", "sqlite")
	if _, err := LoadConfig(); err != nil {
		t.Errorf("Expected sqlite to need no password, got: %v", err)
	}
}

func TestLoadConfig_ProductionJWTValidation(t *testing.T) {
	clearEnvVars(allEnvVars)
	setEnvVars(map[string]string{
		"ENVIRONMENT": "production",
		"DB_PASSWORD": "secret",
	})
	defer clearEnvVars(allEnvVars)

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error when JWT secret is the default in production")
	}
}

func TestLoadConfig_UnsupportedDriver(t *testing.T) {
	clearEnvVars(allEnvVars)
	os.Setenv("DB_DRIVER", "mysql")
	defer clearEnvVars(allEnvVars)

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnvVars(allEnvVars)
	defer clearEnvVars(allEnvVars)

	path := filepath.Join(t.TempDir(), "tasktree.yaml")
	content := []byte("port: \"7070\"\ndb_driver: sqlite\ndb_path: /tmp/file.db\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	setEnvVars(map[string]string{
		"CONFIG_FILE": path,
		"DB_PATH":     "/tmp/env.db",
	})

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.Server.Port != "7070" {
		t.Errorf("Expected port from file '7070', got %s", config.Server.Port)
	}

	if config.Database.Driver != "sqlite" {
		t.Errorf("Expected driver from file 'sqlite', got %s", config.Database.Driver)
	}

	if config.Database.Path != "/tmp/env.db" {
		t.Errorf("Expected environment to override file, got %s", config.Database.Path)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnvVars(allEnvVars)
	os.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	defer clearEnvVars(allEnvVars)

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestConfig_GetDatabaseDSN(t *testing.T) {
	config := &Config{
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     "5432",
			User:     "testuser",
			Password: "testpass",
			Name:     "testdb",
			SSLMode:  "disable",
		},
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if dsn := config.GetDatabaseDSN(); dsn != expected {
		t.Errorf("Expected DSN %s, got %s", expected, dsn)
	}

	config.Database.Driver = "sqlite"
	config.Database.Path = "data/tasktree.db"
	if dsn := config.GetDatabaseDSN(); dsn != "data/tasktree.db" {
		t.Errorf("Expected sqlite DSN to be the path, got %s", dsn)
	}
}

func TestConfig_GetRedisAddr(t *testing.T) {
	config := &Config{Redis: RedisConfig{Host: "redis.example.com", Port: "6380"}}

	if addr := config.GetRedisAddr(); addr != "redis.example.com:6380" {
		t.Errorf("Expected Redis address redis.example.com:6380, got %s", addr)
	}
}

func TestConfig_GetServerAddr(t *testing.T) {
	config := &Config{Server: ServerConfig{Host: "0.0.0.0", Port: "8080"}}

	if addr := config.GetServerAddr(); addr != "0.0.0.0:8080" {
		t.Errorf("Expected server address 0.0.0.0:8080, got %s", addr)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		environment string
		expected    bool
	}{
		{"production", true},
		{"development", false},
		{"staging", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			config := &Config{Server: ServerConfig{Environment: tt.environment}}
			if result := config.IsProduction(); result != tt.expected {
				t.Errorf("Expected IsProduction() to return %v for %s, got %v", tt.expected, tt.environment, result)
			}
		})
	}
}

func TestGetHelpers_FallBackOnInvalidValues(t *testing.T) {
	setEnvVars(map[string]string{
		"TEST_INT":      "not-a-number",
		"TEST_BOOL":     "maybe",
		"TEST_DURATION": "soon",
	})
	defer clearEnvVars([]string{"TEST_INT", "TEST_BOOL", "TEST_DURATION"})

	v := viper.New()
	v.AutomaticEnv()

	if got := getInt(v, "TEST_INT", 42); got != 42 {
		t.Errorf("Expected int fallback 42, got %d", got)
	}

	if got := getBool(v, "TEST_BOOL", true); !got {
		t.Error("Expected bool fallback true")
	}

	if got := getDuration(v, "TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("Expected duration fallback 1m, got %v", got)
	}

	if got := getString(v, "TEST_UNSET_STRING", "fallback"); got != "fallback" {
		t.Errorf("Expected string fallback, got %s", got)
	}
}

func TestGetStringSlice(t *testing.T) {
	os.Setenv("TEST_LIST", " a , ,b ")
	defer os.Unsetenv("TEST_LIST")

	v := viper.New()
	v.AutomaticEnv()

	got := getStringSlice(v, "TEST_LIST", nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected [a b], got %v", got)
	}

	if got := getStringSlice(v, "TEST_LIST_UNSET", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Errorf("Expected default slice, got %v", got)
	}
}

func BenchmarkLoadConfig(b *testing.B) {
	clearEnvVars(allEnvVars)
	for i := 0; i < b.N; i++ {
		_, _ = LoadConfig()
	}
}
