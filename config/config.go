package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	App       AppConfig       `yaml:"app"`
}

type ServerConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig selects and configures the blob store backend.
type StorageConfig struct {
	Driver             string        `yaml:"driver"` // s3 | gcs | memory
	Bucket             string        `yaml:"bucket"`
	Region             string        `yaml:"region"`
	Endpoint           string        `yaml:"endpoint"`
	PathStyle          bool          `yaml:"path_style"`
	AccessKeyID        string        `yaml:"access_key_id"`
	SecretAccessKey    string        `yaml:"secret_access_key"`
	GCSCredentialsPath string        `yaml:"gcs_credentials_path"`
	Timeout            time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	JWTSecret               string        `yaml:"jwt_secret"`
	JWTTTL                  time.Duration `yaml:"jwt_ttl"`
	FirebaseCredentialsPath string        `yaml:"firebase_credentials_path"`
}

type ReconcileConfig struct {
	Schedule   string        `yaml:"schedule"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type RateLimitConfig struct {
	AuthPerMinute int `yaml:"auth_per_minute"`
	AuthBurst     int `yaml:"auth_burst"`
}

type AppConfig struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	LogFile     string `yaml:"log_file"`
	Version     string `yaml:"version"`
}

// Defaults returns the configuration used when neither a config file nor
// environment variables provide a value.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        "5174",
			CORSOrigins: []string{"http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "sandbox",
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			Driver:  "s3",
			Region:  "us-east-1",
			Timeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			JWTTTL: time.Hour,
		},
		Reconcile: ReconcileConfig{
			Schedule:   "@every 5m",
			StaleAfter: 15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			AuthPerMinute: 20,
			AuthBurst:     5,
		},
		App: AppConfig{
			Environment: "development",
			LogLevel:    "info",
			LogFormat:   "text",
			Version:     "1.0.0",
		},
	}
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	} else if v := os.Getenv("FRONTEND_URI"); v != "" {
		cfg.Server.CORSOrigins = []string{strings.TrimRight(v, "/")}
	}

	cfg.Database.DSN = getEnv("DB_DSN", cfg.Database.DSN)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)

	cfg.Storage.Driver = strings.ToLower(getEnv("STORAGE_DRIVER", cfg.Storage.Driver))
	cfg.Storage.Bucket = getEnv("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Region = getEnv("STORAGE_REGION", cfg.Storage.Region)
	cfg.Storage.Endpoint = getEnv("STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.PathStyle = getEnvAsBool("STORAGE_PATH_STYLE", cfg.Storage.PathStyle)
	cfg.Storage.AccessKeyID = getEnv("STORAGE_ACCESS_KEY_ID", cfg.Storage.AccessKeyID)
	cfg.Storage.SecretAccessKey = getEnv("STORAGE_SECRET_ACCESS_KEY", cfg.Storage.SecretAccessKey)
	cfg.Storage.GCSCredentialsPath = getEnv("GCS_CREDENTIALS_PATH", cfg.Storage.GCSCredentialsPath)
	cfg.Storage.Timeout = getEnvAsDuration("STORAGE_TIMEOUT", cfg.Storage.Timeout)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTTTL = getEnvAsDuration("JWT_TTL", cfg.Auth.JWTTTL)
	cfg.Auth.FirebaseCredentialsPath = getEnv("FIREBASE_CREDENTIALS_PATH", cfg.Auth.FirebaseCredentialsPath)

	cfg.Reconcile.Schedule = getEnv("RECONCILE_SCHEDULE", cfg.Reconcile.Schedule)
	cfg.Reconcile.StaleAfter = getEnvAsDuration("RECONCILE_STALE_AFTER", cfg.Reconcile.StaleAfter)

	cfg.RateLimit.AuthPerMinute = getEnvAsInt("AUTH_RATE_PER_MIN", cfg.RateLimit.AuthPerMinute)
	cfg.RateLimit.AuthBurst = getEnvAsInt("AUTH_RATE_BURST", cfg.RateLimit.AuthBurst)

	cfg.App.Environment = getEnv("APP_ENV", cfg.App.Environment)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.LogFormat = getEnv("LOG_FORMAT", cfg.App.LogFormat)
	cfg.App.LogFile = getEnv("LOG_FILE", cfg.App.LogFile)
	cfg.App.Version = getEnv("APP_VERSION", cfg.App.Version)
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("DB_DSN or DB_HOST is required")
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Storage.Driver {
	case "memory":
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("STORAGE_BUCKET is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Storage.Timeout <= 0 {
		return errors.New("STORAGE_TIMEOUT must be positive")
	}

	return nil
}

// PostgresDSN returns DB_DSN when set, otherwise a key/value DSN built from
// the individual connection fields.
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "default", defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		slog.Warn("invalid boolean in environment, using default", "key", key, "default", defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "default", defaultValue)
		return defaultValue
	}

	return value
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.TrimRight(p, "/"))
		}
	}
	return out
}
