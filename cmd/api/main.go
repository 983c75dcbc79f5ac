package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/database"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/internal/router"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/pkg/ai"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	generator, closeGenerator, err := newGenerator(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create model client")
	}
	defer closeGenerator()

	panel := ai.NewPanel(cfg.AIProvider, cfg.ConsensusModels, generator)
	dispatcher := grading.NewDispatcher(panel, grading.DispatcherConfig{
		CallTimeout: cfg.ConsensusCallTimeout,
		Logger:      logger,
	})
	evaluator := grading.NewEvaluator(grading.EvaluatorConfig{
		GradeStep: cfg.ConsensusGradeStep,
		PanelSize: dispatcher.PanelSize(),
	})
	machine := grading.NewStateMachine(nil)

	validate := validator.New(validator.WithRequiredStructEnabled())

	assessmentRepo := repository.NewAssessmentRepository(db)
	resultRepo := repository.NewQuestionResultRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	locker := service.NewLocalKeyLocker()
	if redisClient != nil {
		locker = service.NewRedisKeyLocker(redisClient, "grader:lock:", cfg.ReviewLockTTL)
	}
	notifier := service.NewReportNotifier(natsConn, redisClient, cfg.ReportsSubject, logger)

	activityService := service.NewActivityService(activityRepo, validate, logger)
	assessmentService := service.NewAssessmentService(assessmentRepo, validate, activityService, logger)
	gradingService := service.NewGradingService(service.GradingServiceConfig{
		Dispatcher:   dispatcher,
		Evaluator:    evaluator,
		StateMachine: machine,
		Assessments:  assessmentRepo,
		Results:      resultRepo,
		Validator:    validate,
		Activity:     activityService,
		Notifier:     notifier,
		Concurrency:  cfg.GradingConcurrency,
		Logger:       logger,
	})
	reviewService := service.NewReviewService(service.ReviewServiceConfig{
		Assessments:  assessmentRepo,
		Results:      resultRepo,
		StateMachine: machine,
		Locker:       locker,
		LockTimeout:  cfg.ReviewLockTTL,
		Validator:    validate,
		Activity:     activityService,
		Notifier:     notifier,
		Logger:       logger,
	})
	resultsService := service.NewResultsService(assessmentRepo, resultRepo)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    32 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		AssessmentHandler: handler.NewAssessmentHandler(assessmentService, logger),
		GradingHandler:    handler.NewGradingHandler(gradingService, logger),
		ReviewHandler:     handler.NewReviewHandler(reviewService, logger),
		ResultsHandler:    handler.NewResultsHandler(resultsService, logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		GradeLimiter:      middleware.RateLimit("grade", cfg.RateLimitMax, cfg.RateLimitWindow),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("provider", cfg.AIProvider).Int("panel", cfg.ConsensusModels).Msg("grading api listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func newGenerator(cfg config.Config, logger zerolog.Logger) (ai.Generator, func(), error) {
	switch cfg.AIProvider {
	case config.ProviderOpenAI:
		generator, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: logger,
		})
		if err != nil {
			return nil, func() {}, err
		}
		return generator, func() {}, nil
	default:
		generator, err := ai.NewGeminiGenerator(context.Background(), ai.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			Logger: logger,
		})
		if err != nil {
			return nil, func() {}, err
		}
		return generator, func() { _ = generator.Close() }, nil
	}
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	// In-flight grading requests may still be waiting on model calls.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
