package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/config"
	"github.com/kpipulse/api/internal/handler"
	"github.com/kpipulse/api/internal/middleware"
	"github.com/kpipulse/api/internal/runner"
	"github.com/kpipulse/api/internal/service"
	"github.com/kpipulse/api/internal/status"
	"github.com/kpipulse/api/internal/store"
	"github.com/kpipulse/api/internal/telemetry"
	"github.com/kpipulse/api/internal/worker"
	ws "github.com/kpipulse/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := newLogger(cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zlog.Warn("redis not available", zap.Error(err))
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize Postgres store and schema
	db, err := store.New(ctx, cfg.Postgres.DSN, cfg.Pipeline.BatchSize, zlog.Named("store"))
	if err != nil {
		zlog.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub and the status registry it replays
	hub := ws.NewHub(zlog.Named("ws"))
	registry := status.NewRegistry(hub, zlog.Named("status"))
	hub.SetStatusSource(registry)
	go hub.Run()

	// Initialize worker supervisor
	supervisor := runner.NewSupervisor(
		cfg.Worker.PythonBin,
		cfg.Worker.PythonArgs,
		cfg.Worker.ScriptDirs,
		cfg.Worker.BenignStderr,
		cfg.Worker.Timeout,
		runner.NewExecRunner(zlog.Named("runner")),
		zlog.Named("supervisor"),
	)

	// Initialize services
	notificationService := service.NewNotificationService(db, hub, zlog.Named("notifications"))
	pipelineService := service.NewPipelineService(registry, asynqClient, notificationService, cfg.Pipeline.Lines, zlog.Named("pipeline"))
	analysisService := service.NewAnalysisService(registry, asynqClient, notificationService, zlog.Named("analysis"))
	trainingService := service.NewTrainingService(registry, asynqClient, notificationService, cfg.Pipeline.Lines, zlog.Named("training"))
	predictionService := service.NewPredictionService(supervisor, zlog.Named("prediction"))

	// Initialize handlers
	pipelineHandler := handler.NewPipelineHandler(pipelineService)
	analysisHandler := handler.NewAnalysisHandler(analysisService, validate)
	trainingHandler := handler.NewTrainingHandler(trainingService, validate)
	predictionHandler := handler.NewPredictionHandler(predictionService, validate)
	notificationHandler := handler.NewNotificationHandler(notificationService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB, two workbooks per line
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check and metrics
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(telemetry.Handler()))

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	// Pipeline routes
	pipeline := api.Group("/pipeline")
	pipeline.Post("/run", rateLimiter.PipelineLimit(cfg.RateLimit.PipelinePerHour), pipelineHandler.Run)
	pipeline.Get("/status", pipelineHandler.Status)
	pipeline.Post("/cancel", pipelineHandler.Cancel)

	// Analysis routes
	analysis := api.Group("/analysis")
	analysis.Post("/generate/:line", rateLimiter.AnalysisLimit(cfg.RateLimit.AnalysisPerHour), analysisHandler.Generate)
	analysis.Get("/status", analysisHandler.Status)

	// Training routes
	training := api.Group("/training")
	training.Post("/start", rateLimiter.TrainingLimit(cfg.RateLimit.TrainingPerHour), trainingHandler.Start)
	training.Get("/status", trainingHandler.Status)

	// Prediction routes
	predict := api.Group("/predict", rateLimiter.PredictLimit(cfg.RateLimit.PredictPerMin))
	predict.Post("/", predictionHandler.Predict)
	predict.Post("/features", predictionHandler.Features)
	predict.Post("/metrics", predictionHandler.Metrics)
	predict.Post("/equation", predictionHandler.Equation)

	// Notification routes
	notifications := api.Group("/notifications")
	notifications.Get("/", notificationHandler.List)
	notifications.Post("/read", notificationHandler.MarkAllRead)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(hub.HandleConnection))

	// Start Asynq worker server
	go startWorkerServer(cfg, registry, supervisor, db, notificationService, zlog)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zlog.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Error("server shutdown error", zap.Error(err))
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	zlog.Info("server starting", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		zlog.Fatal("server error", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" || env == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func startWorkerServer(cfg *config.Config, registry *status.Registry, supervisor *runner.Supervisor, db *store.Store, notifier *service.NotificationService, zlog *zap.Logger) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				service.QueuePipeline: 6,
				service.QueueAnalysis: 2,
				service.QueueTraining: 2,
			},
		},
	)

	pipelineWorker := worker.NewPipelineWorker(registry, supervisor, db, notifier, zlog.Named("pipeline-worker"))
	analysisWorker := worker.NewAnalysisWorker(registry, supervisor, notifier, zlog.Named("analysis-worker"))
	trainingWorker := worker.NewTrainingWorker(registry, supervisor, notifier, zlog.Named("training-worker"))

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypePipeline, pipelineWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeAnalysis, analysisWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeTraining, trainingWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		zlog.Error("asynq worker error", zap.Error(err))
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
