package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/stt-engine/internal/api"
	"github.com/snarg/stt-engine/internal/cache"
	"github.com/snarg/stt-engine/internal/catalog"
	"github.com/snarg/stt-engine/internal/config"
	"github.com/snarg/stt-engine/internal/engine"
	"github.com/snarg/stt-engine/internal/ingest"
	"github.com/snarg/stt-engine/internal/media"
	"github.com/snarg/stt-engine/internal/queue"
	"github.com/snarg/stt-engine/internal/storage"
	"github.com/snarg/stt-engine/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "ops server listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace..error)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "Postgres URL for the durable queue")
	flag.StringVar(&overrides.SpoolDir, "spool-dir", "", "directory to watch for new media")
	flag.IntVar(&overrides.Workers, "workers", 0, "concurrent transcription workers")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("stt-engine starting")

	if !media.CheckFFprobe() {
		log.Fatal().Msg("ffprobe not found in PATH; media probing cannot work")
	}
	if !media.CheckFFmpeg() {
		log.Warn().Msg("ffmpeg not found in PATH; files needing transcoding will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers := buildProviders(cfg, log)
	if len(providers) == 0 {
		log.Fatal().Msg("no transcription providers configured; set WHISPER_URL, DEEPINFRA_API_KEY, or ELEVENLABS_API_KEY")
	}

	// Result cache
	var resultCache cache.Store
	switch cfg.CacheBackend {
	case "redis":
		rc, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rc.Close()
		resultCache = rc
	case "memory":
		mc := cache.NewMemory(5 * time.Minute)
		defer mc.Stop()
		resultCache = mc
	case "off":
	}
	if resultCache != nil {
		log.Info().Str("backend", resultCache.Type()).Msg("result cache enabled")
	}

	// Queue store
	var store queue.Store
	if cfg.DatabaseURL != "" {
		queueLog := log.With().Str("component", "queue").Logger()
		pg, err := queue.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.JobTimeout+5*time.Minute, queueLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to queue database")
		}
		defer pg.Close()
		store = pg
	} else {
		log.Warn().Msg("no DATABASE_URL set; queued jobs will not survive a restart")
		store = queue.NewMemoryStore(cfg.JobTimeout + 5*time.Minute)
	}

	// Transcript archive
	archive, archiveServices, err := storage.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize transcript archive")
	}
	for _, svc := range archiveServices {
		svc.Start()
		defer svc.Stop()
	}
	log.Info().Str("backend", archive.Type()).Msg("transcript archive ready")

	eng, err := engine.New(engine.Options{
		Catalog:          catalog.Default(),
		Providers:        providers,
		Cache:            resultCache,
		Queue:            store,
		Archive:          archive,
		Workers:          cfg.Workers,
		RetryBudget:      cfg.RetryBudget,
		RetryBaseDelay:   cfg.RetryBaseDelay,
		JobTimeout:       cfg.JobTimeout,
		Retention:        cfg.JobRetention,
		MaxFileSizeBytes: cfg.MaxFileSizeBytes,
		CacheTTL:         cfg.CacheTTL,
		Log:              log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}
	eng.Start()
	defer eng.Stop()

	// Spool watcher
	var watcherStats func() ingest.Stats
	if cfg.SpoolDir != "" {
		watcher := ingest.NewSpoolWatcher(eng, cfg.SpoolDir, log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.SpoolDir).Msg("failed to start spool watcher")
		}
		defer watcher.Stop()
		watcherStats = watcher.Stats
	}

	// Ops HTTP server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.Deps{
		Scheduler: eng,
		Queue:     store,
		Cache:     resultCache,
		Watcher:   watcherStats,
	}, version, startTime, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("stt-engine stopped")
}

// buildProviders wires an adapter for every provider with credentials.
func buildProviders(cfg *config.Config, log zerolog.Logger) map[string]transcribe.Provider {
	providers := make(map[string]transcribe.Provider)

	if cfg.WhisperURL != "" {
		providers["whisper"] = transcribe.NewWhisperClient(cfg.WhisperURL, cfg.WhisperModel, cfg.ProviderCallTimeout)
		log.Info().Str("url", cfg.WhisperURL).Str("model", cfg.WhisperModel).Msg("whisper provider enabled")
	}
	if cfg.DeepInfraAPIKey != "" {
		providers["deepinfra"] = transcribe.NewDeepInfraClient(cfg.DeepInfraAPIKey, cfg.DeepInfraModel, cfg.ProviderCallTimeout)
		log.Info().Str("model", cfg.DeepInfraModel).Msg("deepinfra provider enabled")
	}
	if cfg.ElevenLabsAPIKey != "" {
		providers["elevenlabs"] = transcribe.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsModel, cfg.ElevenLabsKeyterms, cfg.ProviderCallTimeout)
		log.Info().Str("model", cfg.ElevenLabsModel).Msg("elevenlabs provider enabled")
	}
	return providers
}
