package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dsa-autograder/internal/config"
	"github.com/noah-isme/dsa-autograder/internal/database"
	"github.com/noah-isme/dsa-autograder/internal/handler"
	"github.com/noah-isme/dsa-autograder/internal/middleware"
	"github.com/noah-isme/dsa-autograder/internal/observability"
	"github.com/noah-isme/dsa-autograder/internal/render"
	"github.com/noah-isme/dsa-autograder/internal/repository"
	"github.com/noah-isme/dsa-autograder/internal/router"
	"github.com/noah-isme/dsa-autograder/internal/service"
	"github.com/noah-isme/dsa-autograder/pkg/ai"
	"github.com/noah-isme/dsa-autograder/pkg/archive"
	cloud "github.com/noah-isme/dsa-autograder/pkg/cloudinary"
	dockerexec "github.com/noah-isme/dsa-autograder/pkg/docker"
)

const shutdownGrace = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	observability.RegisterMetrics()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, job events disabled")
		} else {
			defer natsConn.Close()
		}
	}

	var jobStore service.JobStore
	switch cfg.JobStore {
	case "redis":
		jobStore = service.NewRedisJobStore(redisClient, cfg.JobTTL)
	default:
		jobStore = service.NewMemoryJobStore()
	}

	retention := service.NewJobRetention(jobStore, cfg.JobTTL, cfg.SweepSchedule, logger)
	if err := retention.Start(); err != nil {
		log.Fatalf("failed to start job retention: %v", err)
	}
	defer retention.Stop()

	validate := validator.New(validator.WithRequiredStructEnabled())
	records := repository.NewSubmissionRecordRepository(db)

	rubrics := service.NewRubricClient(service.RubricClientConfig{
		BaseURL:  cfg.RubricAPIURL,
		APIKey:   cfg.RubricAPIKey,
		CacheTTL: cfg.RubricCacheTTL,
	}, observability.NewHTTPClient(cfg.RubricTimeout), redisClient, logger)

	deps := service.GradingDependencies{
		Jobs:      jobStore,
		Records:   records,
		Rubrics:   rubrics,
		Evaluator: buildEvaluator(cfg, logger),
		Expander:  archive.NewExpander(0),
		Webhook: service.NewWebhookNotifier(observability.NewHTTPClient(cfg.WebhookTimeout), service.WebhookConfig{
			Secret:      cfg.WebhookSecret,
			MaxAttempts: cfg.WebhookMaxAttempts,
		}, logger),
		Validator: validate,
		Logger:    logger,
	}

	if natsConn != nil {
		deps.Events = service.NewNATSEventPublisher(natsConn, cfg.NATSSubject, logger)
	}

	if cfg.SandboxEnabled {
		executor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
			Host:          cfg.DockerHost,
			Timeout:       cfg.ExecutionTimeout,
			MemoryLimitMB: int64(cfg.SandboxMemoryMB),
			CPUShares:     int64(cfg.SandboxCPUShares),
			Logger:        logger,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("docker unavailable, sandbox runs disabled")
		} else {
			defer executor.Close()
			deps.Runner = dockerexec.NewPythonRunner(executor, dockerexec.PythonRunnerConfig{
				Image:         cfg.SandboxImage,
				Timeout:       cfg.ExecutionTimeout,
				MemoryLimitMB: int64(cfg.SandboxMemoryMB),
				CPUShares:     int64(cfg.SandboxCPUShares),
				WorkspaceRoot: cfg.SandboxWorkspace,
			})
		}
	}

	if cfg.ArchiveEnabled() {
		archiver, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("cloudinary unavailable, uploads will not be archived")
		} else {
			deps.Archiver = archiver
		}
	}

	maxUploadBytes := int64(cfg.MaxUploadMB) * 1024 * 1024
	grading := service.NewGradingService(deps, service.GradingConfig{
		PassThreshold:        cfg.PassScoreThreshold,
		PlagiarismThreshold:  cfg.PlagiarismThreshold,
		MaxUploadBytes:       maxUploadBytes,
		AITimeout:            cfg.AITimeout,
		MaxConcurrentAICalls: cfg.MaxConcurrentAICalls,
	})
	reports := service.NewReportService(records, redisClient, time.Minute, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		Views:        render.NewEngine(),
		BodyLimit:    int(maxUploadBytes) * 4,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, DisableAccessLog: cfg.AppEnv != "development"})
	router.Register(app, cfg, router.Dependencies{
		GradingHandler:   handler.NewGradingHandler(grading, maxUploadBytes, logger),
		JobHandler:       handler.NewJobHandler(grading, logger),
		JobStreamHandler: handler.NewJobStreamHandler(grading, 2*time.Second, logger),
		ReportHandler:    handler.NewReportHandler(reports, logger),
		PageHandler:      handler.NewPageHandler(grading, cfg.AppName, logger),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, grading, logger)
}

func buildEvaluator(cfg config.Config, logger zerolog.Logger) ai.Evaluator {
	if cfg.AIProvider == "none" || cfg.OpenAIAPIKey == "" {
		logger.Warn().Str("provider", cfg.AIProvider).Msg("no evaluator configured, submissions will not be scored")
		return ai.NewFallbackEvaluator()
	}

	evaluator, err := ai.NewOpenAIEvaluator(ai.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.AIModel,
		BaseURL:     cfg.AIBaseURL,
		MaxTokens:   cfg.AIMaxTokens,
		Temperature: cfg.AITemperature,
		HTTPClient:  observability.NewHTTPClient(cfg.AITimeout),
		Logger:      logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("evaluator unavailable, falling back")
		return ai.NewFallbackEvaluator()
	}
	return evaluator
}

func waitForShutdown(app *fiber.App, grading service.GradingService, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := grading.Wait(ctx); err != nil {
		logger.Warn().Err(err).Msg("in-flight grading jobs did not finish before shutdown")
	}

	logger.Info().Msg("server stopped")
}
