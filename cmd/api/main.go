package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"imagestudio/internal/adapter/repo"
	"imagestudio/internal/http/handlers"
	httpapi "imagestudio/internal/http/httpapi"
	"imagestudio/internal/infra"
	"imagestudio/internal/infra/credentials"
	"imagestudio/internal/pipeline"
	"imagestudio/internal/providers/analysis"
	"imagestudio/internal/providers/genai"
	imageprovider "imagestudio/internal/providers/image"
	"imagestudio/internal/ratelimit"
	"imagestudio/internal/sqlinline"
	"imagestudio/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("service", cfg.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	if cfg.AutoMigrate {
		if err := infra.EnsureSchema(ctx, runner, sqlinline.QEnsureSchema); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
		logger.Info().Msg("schema ensured")
	}

	apiKey, err := credentials.NewStore(runner).ResolveGeminiAPIKey(ctx, cfg.GeminiAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("gemini api key lookup failed")
	}

	var analyzer pipeline.Analyzer = analysis.Disabled{}
	if apiKey != "" {
		gemini, err := analysis.NewGeminiAnalyzer(ctx, apiKey, cfg.GeminiModel, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init gemini analyzer")
		}
		defer gemini.Close()
		analyzer = gemini
	} else {
		logger.Warn().Msg("no gemini api key: analysis disabled, generation renders synthetic images")
	}

	imageClient, err := genai.NewClient(genai.Options{
		APIKey:  apiKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiImageModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init gemini image client")
	}

	store, staticDir, err := newObjectStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	limiter := newLimiter(rdb, cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	users := repo.NewUserRepository(runner)
	images := repo.NewImageRepository(runner)
	persistence := struct {
		*repo.UserRepositoryPG
		*repo.ImageRepositoryPG
	}{users, images}

	pipe := pipeline.New(
		pipeline.NewAnalysisOrchestrator(analyzer, nil, logger),
		pipeline.NewGenerationOrchestrator(imageprovider.NewStoredGenerator(imageClient, store, logger), persistence, cfg.ImageQuality, logger),
		pipeline.Options{Limits: pipeline.UploadLimits{General: cfg.UploadLimitGeneral, Specialty: cfg.UploadLimitGhibli}},
		logger,
	)

	app := handlers.NewApp(handlers.Deps{
		Pipeline:          pipe,
		Subscriptions:     users,
		Images:            images,
		Store:             store,
		Logger:            logger,
		MaxConcurrentRuns: int64(cfg.MaxConcurrentRuns),
	})
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Limiter:        limiter,
		StaticDir:      staticDir,
		Logger:         logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr()).Str("storage", cfg.StorageDriver).Msg("API listening")
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newObjectStore(cfg *infra.Config) (storage.ObjectStore, string, error) {
	if cfg.StorageDriver == "supabase" {
		s, err := storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		if err != nil {
			return nil, "", err
		}
		return s, "", nil
	}
	s, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, "", err
	}
	return s, s.BasePath(), nil
}

func newLimiter(rdb *redis.Client, cfg *infra.Config) ratelimit.Limiter {
	if rdb != nil {
		return ratelimit.NewRedis(rdb, "", cfg.RateLimitPerMin, time.Minute)
	}
	return ratelimit.NewMemory(cfg.RateLimitPerMin, time.Minute)
}
