package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/RishiKendai/twinscan/internal/configs/env"
)

// Config holds all configuration for the application
type Config struct {
	// MongoDB
	MongoURI    string
	MongoDBName string

	// Redis
	RedisHost               string
	RedisPassword           string
	RedisStreamKey          string
	RedisConsumerGroup      string
	RedisDeadLetterKey      string
	StreamRetentionDuration time.Duration
	MaxRetries              int

	// Remote comparison backend (optional)
	Comparer      string
	RemoteBaseURL string
	RemoteAPIKey  string
	RemoteRPS     float64
	RemoteUser    string

	// JWT
	JWTSecret string
	JWTIssuer string

	// Rate Limiting
	RateLimitRPS float64

	// Concurrency
	MaxConcurrentCompute int
	Workers              int

	// Computation
	ComputationTimeout time.Duration
	ThresholdPercent   float64
	Extensions         []string
	FallbackCharset    string
	NormalizeMode      string
	AutoJunk           bool
	Granularity        string
	MaxFileSize        uint64

	// Output
	ReportsDir    string
	HistoryDBPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Server
	ServerPort  string
	MetricsPort string
}

func Load() (*Config, error) {
	cfg := &Config{}

	// MongoDB
	cfg.MongoURI = env.GetEnv("MONGO_URI", "")
	cfg.MongoDBName = env.GetEnv("MONGO_DB_NAME", "")

	// Redis
	cfg.RedisHost = env.GetEnv("REDIS_HOST", "localhost:6379")
	cfg.RedisPassword = env.GetEnv("REDIS_PASSWORD", "")
	cfg.RedisStreamKey = env.GetEnv("REDIS_STREAM_KEY", "twinscan:uploads")
	cfg.RedisConsumerGroup = env.GetEnv("REDIS_CONSUMER_GROUP", "twinscan:group")
	cfg.RedisDeadLetterKey = env.GetEnv("REDIS_DEAD_LETTER_KEY", "twinscan:dlq")
	retentionHours := env.GetEnvInt("STREAM_RETENTION_HOURS", 24)
	cfg.StreamRetentionDuration = time.Duration(retentionHours) * time.Hour
	cfg.MaxRetries = env.GetEnvInt("STREAM_MAX_RETRIES", 3)

	// Remote backend
	cfg.Comparer = strings.ToLower(env.GetEnv("COMPARER", "local"))
	cfg.RemoteBaseURL = env.GetEnv("REMOTE_BASE_URL", "")
	cfg.RemoteAPIKey = env.GetEnv("REMOTE_API_KEY", "")
	cfg.RemoteRPS = env.GetEnvFloat("REMOTE_RPS", 5.0)
	cfg.RemoteUser = env.GetEnv("REMOTE_USER", "twinscan")

	// JWT
	cfg.JWTSecret = env.GetEnv("JWT_SECRET", "")
	cfg.JWTIssuer = env.GetEnv("JWT_ISSUER", "twinscan")

	// Rate Limiting
	cfg.RateLimitRPS = env.GetEnvFloat("RATE_LIMIT_RPS", 10.0)

	// Concurrency
	cfg.MaxConcurrentCompute = env.GetEnvInt("MAX_CONCURRENT_COMPUTE", 2)
	cfg.Workers = env.GetEnvInt("WORKERS", 0)

	// Computation
	timeoutMinutes := env.GetEnvInt("COMPUTATION_TIMEOUT_MINUTES", 30)
	cfg.ComputationTimeout = time.Duration(timeoutMinutes) * time.Minute
	cfg.ThresholdPercent = env.GetEnvFloat("THRESHOLD_PERCENT", 10.0)
	cfg.Extensions = env.GetEnvList("EXTENSIONS", []string{".c", ".cpp", ".py", ".java"})
	cfg.FallbackCharset = env.GetEnv("FALLBACK_CHARSET", "gbk")
	cfg.NormalizeMode = strings.ToLower(env.GetEnv("NORMALIZE_MODE", "mixed"))
	cfg.AutoJunk = env.GetEnvBool("SIMILARITY_AUTOJUNK", false)
	cfg.Granularity = strings.ToLower(env.GetEnv("SIMILARITY_GRANULARITY", "char"))
	cfg.MaxFileSize = env.GetEnvBytes("MAX_FILE_SIZE", 512*1024)

	// Output
	cfg.ReportsDir = env.GetEnv("REPORTS_DIR", "reports")
	cfg.HistoryDBPath = env.GetEnv("HISTORY_DB_PATH", "")

	// Logging
	cfg.LogLevel = env.GetEnv("LOG_LEVEL", "info")
	cfg.LogFormat = env.GetEnv("LOG_FORMAT", "json")

	// Server
	cfg.ServerPort = env.GetEnv("SERVER_PORT", "8080")
	cfg.MetricsPort = env.GetEnv("METRICS_PORT", "2112")

	return cfg, nil
}

// ValidateCore checks the settings shared by the CLI and the server
func (c *Config) ValidateCore() error {
	if math.IsNaN(c.ThresholdPercent) || c.ThresholdPercent < 0 || c.ThresholdPercent > 100 {
		return fmt.Errorf("THRESHOLD_PERCENT must be within [0, 100], got %v", c.ThresholdPercent)
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("EXTENSIONS must list at least one extension")
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("EXTENSIONS entry %q must start with a dot", ext)
		}
	}
	if c.NormalizeMode != "mixed" && c.NormalizeMode != "language" {
		return fmt.Errorf("NORMALIZE_MODE must be mixed or language, got %q", c.NormalizeMode)
	}
	if c.Granularity != "char" && c.Granularity != "token" {
		return fmt.Errorf("SIMILARITY_GRANULARITY must be char or token, got %q", c.Granularity)
	}
	if c.MaxFileSize == 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be greater than 0")
	}
	if c.Workers < 0 {
		return fmt.Errorf("WORKERS must not be negative")
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.ValidateCore(); err != nil {
		return err
	}
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.MongoDBName == "" {
		return fmt.Errorf("MONGO_DB_NAME is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxConcurrentCompute <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_COMPUTE must be greater than 0")
	}
	if c.ComputationTimeout <= 0 {
		return fmt.Errorf("COMPUTATION_TIMEOUT_MINUTES must be greater than 0")
	}
	if c.StreamRetentionDuration <= 0 {
		return fmt.Errorf("STREAM_RETENTION_HOURS must be greater than 0")
	}
	if c.Comparer != "local" && c.Comparer != "remote" {
		return fmt.Errorf("COMPARER must be local or remote, got %q", c.Comparer)
	}
	if c.Comparer == "remote" && c.RemoteBaseURL == "" {
		return fmt.Errorf("REMOTE_BASE_URL is required when COMPARER=remote")
	}
	if c.RemoteBaseURL != "" && c.RemoteRPS <= 0 {
		return fmt.Errorf("REMOTE_RPS must be greater than 0 when REMOTE_BASE_URL is set")
	}
	return nil
}
