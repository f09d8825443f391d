package config

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port    string `yaml:"port"`
	BaseURL string `yaml:"base_url"`
	Env     string `yaml:"env"`
}

type DatabaseConfig struct {
	URL         string `yaml:"url"`
	SlowQueryMS int    `yaml:"slow_query_ms"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Expiration time.Duration `yaml:"expiration"`
}

type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

// ReceiptsConfig holds the key that signs receipt verification codes.
type ReceiptsConfig struct {
	Secret string `yaml:"secret"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type UploadsConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type PaymentsConfig struct {
	AutoApproveAfter time.Duration `yaml:"auto_approve_after"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RateLimitConfig struct {
	AuthPerMinute int `yaml:"auth_per_minute"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Redis     RedisConfig     `yaml:"redis"`
	Receipts  ReceiptsConfig  `yaml:"receipts"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Payments  PaymentsConfig  `yaml:"payments"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    "8080",
			BaseURL: "http://localhost:8080",
			Env:     "development",
		},
		Database: DatabaseConfig{
			URL:         "postgresql://postgres@localhost:5432/contractit",
			SlowQueryMS: 200,
		},
		JWT: JWTConfig{
			Expiration: 24 * time.Hour,
		},
		Redis: RedisConfig{
			IdempotencyTTL: 24 * time.Hour,
		},
		AMQP: AMQPConfig{
			Exchange: "contractit.events",
		},
		Uploads: UploadsConfig{
			Dir:      "uploads",
			MaxBytes: 5 << 20,
		},
		Payments: PaymentsConfig{
			AutoApproveAfter: 14 * 24 * time.Hour,
			SweepInterval:    time.Hour,
		},
		Outbox: OutboxConfig{
			Interval:   time.Second,
			BatchSize:  100,
			MaxRetries: 5,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		RateLimit: RateLimitConfig{
			AuthPerMinute: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (config.yaml if unset), then a .env file, then the process
// environment. Missing files are skipped.
func Load() (*Config, error) {
	cfg := Default()

	path := getEnv("CONFIG_FILE", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// godotenv never overrides variables already present in the environment.
	_ = godotenv.Load()

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.BaseURL = getEnv("BASE_URL", c.Server.BaseURL)
	c.Server.Env = getEnv("APP_ENV", c.Server.Env)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.SlowQueryMS = getEnvInt("DATABASE_SLOW_QUERY_MS", c.Database.SlowQueryMS)
	c.JWT.Secret = getEnv("JWT_SECRET", c.JWT.Secret)
	c.JWT.Expiration = getEnvDuration("JWT_EXPIRATION", c.JWT.Expiration)
	c.Receipts.Secret = getEnv("RECEIPT_SECRET", c.Receipts.Secret)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.AMQP.URL = getEnv("AMQP_URL", c.AMQP.URL)
	c.AMQP.Exchange = getEnv("AMQP_EXCHANGE", c.AMQP.Exchange)
	c.Uploads.Dir = getEnv("UPLOADS_DIR", c.Uploads.Dir)
	c.Uploads.MaxBytes = int64(getEnvInt("UPLOADS_MAX_BYTES", int(c.Uploads.MaxBytes)))
	c.Payments.AutoApproveAfter = getEnvDuration("PAYMENTS_AUTO_APPROVE_AFTER", c.Payments.AutoApproveAfter)
	c.Payments.SweepInterval = getEnvDuration("PAYMENTS_SWEEP_INTERVAL", c.Payments.SweepInterval)
	c.Outbox.Interval = getEnvDuration("OUTBOX_INTERVAL", c.Outbox.Interval)
	c.Outbox.BatchSize = getEnvInt("OUTBOX_BATCH_SIZE", c.Outbox.BatchSize)
	c.Outbox.MaxRetries = getEnvInt("OUTBOX_MAX_RETRIES", c.Outbox.MaxRetries)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = splitList(origins)
	}
	c.RateLimit.AuthPerMinute = getEnvInt("RATELIMIT_AUTH_PER_MINUTE", c.RateLimit.AuthPerMinute)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		if !c.IsDevelopment() {
			return errors.New("config: JWT_SECRET is required outside development")
		}
		c.JWT.Secret = "dev-secret-change-me"
	}
	if c.Receipts.Secret == "" {
		c.Receipts.Secret = deriveKey(c.JWT.Secret, "contractit receipts")
	}
	if c.JWT.Expiration <= 0 {
		return errors.New("config: jwt.expiration must be positive")
	}
	if c.Payments.AutoApproveAfter <= 0 {
		return errors.New("config: payments.auto_approve_after must be positive")
	}
	if c.Payments.SweepInterval <= 0 || c.Outbox.Interval <= 0 {
		return errors.New("config: sweep and outbox intervals must be positive")
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.MaxRetries <= 0 {
		return errors.New("config: outbox batch_size and max_retries must be positive")
	}
	if c.Uploads.MaxBytes <= 0 {
		return errors.New("config: uploads.max_bytes must be positive")
	}
	return nil
}

// deriveKey derives a purpose-bound key from secret, so a leaked receipt
// key cannot sign session tokens.
func deriveKey(secret, label string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(label))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "" || c.Server.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
