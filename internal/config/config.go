package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "DOCINGEST"

const (
	StorageLocal = "local"
	StorageS3    = "s3"

	CachePostgres = "postgres"
	CacheRedis    = "redis"
	CacheNone     = "none"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"local"`
	UploadDir      string `envconfig:"UPLOAD_DIR" default:"uploads"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"hr-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"52428800"`
	ChunkSize      int   `envconfig:"CHUNK_SIZE" default:"800"`
	ChunkOverlap   int   `envconfig:"CHUNK_OVERLAP" default:"200"`
	ChunkLookahead int   `envconfig:"CHUNK_LOOKAHEAD" default:"100"`
	MinTextChars   int   `envconfig:"MIN_TEXT_CHARS" default:"10"`

	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	ChatModel         string `envconfig:"CHAT_MODEL" default:"google/gemini-2.0-flash-001"`
	ChatFallbackModel string `envconfig:"CHAT_FALLBACK_MODEL"`
	AIKillSwitch      bool   `envconfig:"AI_KILL_SWITCH" default:"false"`

	EmbeddingCache    string        `envconfig:"EMBEDDING_CACHE" default:"postgres"`
	RedisURL          string        `envconfig:"REDIS_URL"`
	EmbeddingCacheTTL time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"720h"`

	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`
	TrustProxy         bool          `envconfig:"TRUST_PROXY" default:"false"`
	QueryTopK          int           `envconfig:"QUERY_TOP_K" default:"5"`
	MaxContextTokens   int           `envconfig:"MAX_CONTEXT_TOKENS" default:"3000"`
	ReembedInterval    time.Duration `envconfig:"REEMBED_INTERVAL" default:"30s"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	// Bootstrap: create initial company and API key on startup
	InitCompanyName string `envconfig:"INIT_COMPANY_NAME"`
	InitAPIKey      string `envconfig:"INIT_API_KEY"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.StorageBackend {
	case StorageLocal:
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required for local storage")
		}
	case StorageS3:
		if !c.HasS3() {
			return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.EmbeddingCache {
	case CachePostgres, CacheNone:
	case CacheRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when EMBEDDING_CACHE=redis")
		}
	default:
		return fmt.Errorf("unknown EMBEDDING_CACHE %q", c.EmbeddingCache)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be between 0 and CHUNK_SIZE")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	return nil
}

func (c *Config) HasS3() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// ModelsEnabled reports whether model calls are allowed at all.
func (c *Config) ModelsEnabled() bool {
	return c.HasOpenAI() && !c.AIKillSwitch
}

func (c *Config) UseRedisCache() bool {
	return c.EmbeddingCache == CacheRedis && c.RedisURL != ""
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	return ParseLevel(c.LogLevel)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
