package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"DATABASE_URL": "postgres://localhost/stt",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.Workers != 3 {
			t.Errorf("Workers = %d, want 3", cfg.Workers)
		}
		if cfg.RetryBudget != 2 {
			t.Errorf("RetryBudget = %d, want 2", cfg.RetryBudget)
		}
		if cfg.JobTimeout != 30*time.Minute {
			t.Errorf("JobTimeout = %v, want 30m", cfg.JobTimeout)
		}
		if cfg.CacheBackend != "memory" {
			t.Errorf("CacheBackend = %q, want memory", cfg.CacheBackend)
		}
		if cfg.CacheTTL != 24*time.Hour {
			t.Errorf("CacheTTL = %v, want 24h", cfg.CacheTTL)
		}
		if cfg.ArchiveDir != "./transcripts" {
			t.Errorf("ArchiveDir = %q, want ./transcripts", cfg.ArchiveDir)
		}
		if cfg.S3.Enabled() {
			t.Error("S3 enabled without S3_BUCKET")
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:     "nonexistent.env",
			HTTPAddr:    ":9090",
			LogLevel:    "debug",
			DatabaseURL: "postgres://override/db",
			SpoolDir:    "/tmp/spool",
			Workers:     5,
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.DatabaseURL != "postgres://override/db" {
			t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
		}
		if cfg.SpoolDir != "/tmp/spool" {
			t.Errorf("SpoolDir = %q, want /tmp/spool", cfg.SpoolDir)
		}
		if cfg.Workers != 5 {
			t.Errorf("Workers = %d, want 5", cfg.Workers)
		}
	})

	t.Run("empty_overrides_use_env", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.DatabaseURL != "postgres://localhost/stt" {
			t.Errorf("DatabaseURL = %q, want env value", cfg.DatabaseURL)
		}
	})
}

func TestLoadRejectsRedisWithoutURL(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"CACHE_BACKEND": "redis",
	})
	defer cleanup()
	os.Unsetenv("REDIS_URL")

	if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
		t.Error("expected error for CACHE_BACKEND=redis without REDIS_URL")
	}
}

func TestLoadRejectsUnknownCacheBackend(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"CACHE_BACKEND": "memcached",
	})
	defer cleanup()

	if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
		t.Error("expected error for unknown cache backend")
	}
}

func TestLoadRejectsS3WithoutCredentials(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"S3_BUCKET": "transcripts",
	})
	defer cleanup()
	os.Unsetenv("S3_ACCESS_KEY")
	os.Unsetenv("S3_SECRET_KEY")

	if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
		t.Error("expected error for S3 bucket without credentials")
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
