package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key"

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Worker    WorkerConfig    `json:"worker"`
	Auth      AuthConfig      `json:"auth"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Cache     CacheConfig     `json:"cache"`
	Log       LogConfig       `json:"log"`
}

type ServerConfig struct {
	Host           string        `json:"host"`
	Port           string        `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	Environment    string        `json:"environment"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver"`
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	Path            string        `json:"path"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         string        `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	MaxRetries   int           `json:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WorkerConfig struct {
	Concurrency int      `json:"concurrency"`
	Queues      []string `json:"queues"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
}

type RateLimitConfig struct {
	Enabled         bool          `json:"enabled"`
	RequestsPerMin  int           `json:"requests_per_minute"`
	BurstSize       int           `json:"burst_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

type CacheConfig struct {
	Enabled      bool          `json:"enabled"`
	WorkspaceTTL time.Duration `json:"workspace_ttl"`
	TaskTTL      time.Duration `json:"task_ttl"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig reads configuration from the environment and, when CONFIG_FILE
// is set, from that file. Environment variables win over file values.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host:           getString(v, "HOST", "localhost"),
			Port:           getString(v, "PORT", "8080"),
			ReadTimeout:    getDuration(v, "READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDuration(v, "WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getDuration(v, "IDLE_TIMEOUT", 60*time.Second),
			Environment:    getString(v, "ENVIRONMENT", "development"),
			AllowedOrigins: getStringSlice(v, "CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getString(v, "DB_DRIVER", "postgres")),
			Host:            getString(v, "DB_HOST", "localhost"),
			Port:            getString(v, "DB_PORT", "5432"),
			User:            getString(v, "DB_USER", "postgres"),
			Password:        getString(v, "DB_PASSWORD", ""),
			Name:            getString(v, "DB_NAME", "tasktree"),
			SSLMode:         getString(v, "DB_SSL_MODE", "disable"),
			Path:            getString(v, "DB_PATH", "tasktree.db"),
			MaxOpenConns:    getInt(v, "DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt(v, "DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDuration(v, "DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getDuration(v, "DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
			AutoMigrate:     getBool(v, "DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:      getBool(v, "REDIS_ENABLED", true),
			Host:         getString(v, "REDIS_HOST", "localhost"),
			Port:         getString(v, "REDIS_PORT", "6379"),
			Password:     getString(v, "REDIS_PASSWORD", ""),
			DB:           getInt(v, "REDIS_DB", 0),
			PoolSize:     getInt(v, "REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt(v, "REDIS_MIN_IDLE_CONNS", 5),
			MaxRetries:   getInt(v, "REDIS_MAX_RETRIES", 3),
			DialTimeout:  getDuration(v, "REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration(v, "REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration(v, "REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Worker: WorkerConfig{
			Concurrency: getInt(v, "WORKER_CONCURRENCY", 2),
			Queues:      getStringSlice(v, "WORKER_QUEUES", []string{"audit"}),
		},
		Auth: AuthConfig{
			JWTSecret: getString(v, "JWT_SECRET", defaultJWTSecret),
			Issuer:    getString(v, "JWT_ISSUER", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getBool(v, "RATE_LIMIT_ENABLED", true),
			RequestsPerMin:  getInt(v, "RATE_LIMIT_RPM", 300),
			BurstSize:       getInt(v, "RATE_LIMIT_BURST", 30),
			CleanupInterval: getDuration(v, "RATE_LIMIT_CLEANUP", 10*time.Minute),
		},
		Cache: CacheConfig{
			Enabled:      getBool(v, "CACHE_ENABLED", true),
			WorkspaceTTL: getDuration(v, "CACHE_WORKSPACE_TTL", 10*time.Minute),
			TaskTTL:      getDuration(v, "CACHE_TASK_TTL", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getString(v, "LOG_LEVEL", "info")),
			Format: strings.ToLower(getString(v, "LOG_FORMAT", "json")),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Password == "" && c.IsProduction() {
		return fmt.Errorf("database password is required in production")
	}

	if c.Auth.JWTSecret == defaultJWTSecret && c.IsProduction() {
		return fmt.Errorf("JWT secret must be set in production")
	}

	return nil
}

// GetDatabaseDSN returns the connection string for the configured driver.
// For sqlite it is the database file path.
func (c *Config) GetDatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getString(v *viper.Viper, key, defaultValue string) string {
	if value := v.GetString(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(v *viper.Viper, key string, defaultValue int) int {
	if !v.IsSet(key) {
		return defaultValue
	}
	if intValue, err := cast.ToIntE(v.Get(key)); err == nil {
		return intValue
	}
	return defaultValue
}

func getBool(v *viper.Viper, key string, defaultValue bool) bool {
	if !v.IsSet(key) {
		return defaultValue
	}
	if boolValue, err := cast.ToBoolE(v.Get(key)); err == nil {
		return boolValue
	}
	return defaultValue
}

func getDuration(v *viper.Viper, key string, defaultValue time.Duration) time.Duration {
	if !v.IsSet(key) {
		return defaultValue
	}
	if duration, err := cast.ToDurationE(v.Get(key)); err == nil {
		return duration
	}
	return defaultValue
}

// getStringSlice accepts either a list (config file) or a comma separated
// string (environment).
func getStringSlice(v *viper.Viper, key string, defaultValue []string) []string {
	if !v.IsSet(key) {
		return defaultValue
	}
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		raw = strings.Split(s, ",")
	}
	values, err := cast.ToStringSliceE(raw)
	if err != nil {
		return defaultValue
	}
	var out []string
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
