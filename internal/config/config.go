package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Scheduler
	Workers          int           `env:"WORKERS" envDefault:"3"`
	RetryBudget      int           `env:"RETRY_BUDGET" envDefault:"2"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"2s"`
	JobTimeout       time.Duration `env:"JOB_TIMEOUT" envDefault:"30m"`
	JobRetention     time.Duration `env:"JOB_RETENTION" envDefault:"1h"`
	MaxFileSizeBytes int64         `env:"MAX_FILE_SIZE_BYTES" envDefault:"2147483648"`

	// Queue: empty DATABASE_URL runs the in-memory queue (no restart survival).
	DatabaseURL string `env:"DATABASE_URL"`

	// Result cache: "memory", "redis", or "off". Redis needs REDIS_URL.
	CacheBackend string        `env:"CACHE_BACKEND" envDefault:"memory"`
	RedisURL     string        `env:"REDIS_URL"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"24h"`

	// Spool directory watched for new media files. Empty disables the watcher.
	SpoolDir string `env:"SPOOL_DIR"`

	// Providers. A provider with no key (or URL, for whisper) is not wired.
	WhisperURL          string        `env:"WHISPER_URL"`
	WhisperModel        string        `env:"WHISPER_MODEL" envDefault:"Systran/faster-whisper-large-v3"`
	DeepInfraAPIKey     string        `env:"DEEPINFRA_API_KEY"`
	DeepInfraModel      string        `env:"DEEPINFRA_MODEL" envDefault:"openai/whisper-large-v3-turbo"`
	ElevenLabsAPIKey    string        `env:"ELEVENLABS_API_KEY"`
	ElevenLabsModel     string        `env:"ELEVENLABS_MODEL" envDefault:"scribe_v1"`
	ElevenLabsKeyterms  string        `env:"ELEVENLABS_KEYTERMS"`
	ProviderCallTimeout time.Duration `env:"PROVIDER_CALL_TIMEOUT" envDefault:"10m"`

	// Transcript archive
	ArchiveDir string `env:"ARCHIVE_DIR" envDefault:"./transcripts"`
	S3         S3Config

	// Ops HTTP server
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config enables mirroring archived transcripts to an S3-compatible store.
type S3Config struct {
	Endpoint       string        `env:"S3_ENDPOINT"`
	Region         string        `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket         string        `env:"S3_BUCKET"`
	Prefix         string        `env:"S3_PREFIX"`
	AccessKey      string        `env:"S3_ACCESS_KEY"`
	SecretKey      string        `env:"S3_SECRET_KEY"`
	PresignExpiry  time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
	ArchiveMaxDays int           `env:"S3_ARCHIVE_MAX_DAYS" envDefault:"0"`
}

// Enabled reports whether S3 mirroring is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	SpoolDir    string
	Workers     int
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.SpoolDir != "" {
		cfg.SpoolDir = overrides.SpoolDir
	}
	if overrides.Workers > 0 {
		cfg.Workers = overrides.Workers
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.CacheBackend {
	case "memory", "off":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("CACHE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (want memory, redis, or off)", c.CacheBackend)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("RETRY_BUDGET must not be negative, got %d", c.RetryBudget)
	}
	if c.S3.Enabled() && (c.S3.AccessKey == "" || c.S3.SecretKey == "") {
		return fmt.Errorf("S3_BUCKET set but S3_ACCESS_KEY/S3_SECRET_KEY missing")
	}
	return nil
}
