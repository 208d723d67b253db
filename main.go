package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Tamabadger/anatoview-sub000/internal/canvas"
	"github.com/Tamabadger/anatoview-sub000/internal/config"
	"github.com/Tamabadger/anatoview-sub000/internal/handlers"
	"github.com/Tamabadger/anatoview-sub000/internal/queue"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories/casdoor"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories/postgres"
	"github.com/Tamabadger/anatoview-sub000/internal/services"
	"github.com/Tamabadger/anatoview-sub000/internal/utils"
	"github.com/Tamabadger/anatoview-sub000/internal/validator"
	"github.com/Tamabadger/anatoview-sub000/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Redis: %v", err)
		}
	}

	// Initialize repositories
	repoConfig := postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
		CasdoorConfig: casdoor.CasdoorConfig{
			Endpoint:         cfg.Casdoor.Endpoint,
			ClientID:         cfg.Casdoor.ClientID,
			ClientSecret:     cfg.Casdoor.ClientSecret,
			Certificate:      cfg.Casdoor.Cert,
			OrganizationName: cfg.Casdoor.Organization,
			ApplicationName:  cfg.Casdoor.Application,
		},
	}
	repoManager := postgres.NewRepositoryManager(repoConfig)
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Initialize queue transport
	wmLogger := watermill.NewSlogLogger(slogLogger)
	kafkaPublisher, err := queue.NewKafkaPublisher(cfg.Kafka.Brokers, wmLogger)
	if err != nil {
		log.Fatalf("Failed to initialize Kafka publisher: %v", err)
	}
	kafkaSubscriber, err := queue.NewKafkaSubscriber(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, wmLogger)
	if err != nil {
		log.Fatalf("Failed to initialize Kafka subscriber: %v", err)
	}
	publisher := queue.NewPublisher(kafkaPublisher)

	// Initialize Canvas passback client
	canvasClient := canvas.NewClient(canvas.Config{
		TokenURL:     cfg.Canvas.TokenURL,
		ClientID:     cfg.Canvas.ClientID,
		ClientSecret: cfg.Canvas.ClientSecret,
		Timeout:      cfg.Canvas.Timeout,
	})

	// Initialize validator
	validator := validator.New()

	// Initialize services
	serviceManager := services.NewServiceManager(db, repoManager.GetRepository(), slogLogger, validator, canvasClient, publisher)
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Start the grade passback worker
	worker, err := queue.NewWorker(kafkaSubscriber, kafkaPublisher, queue.WorkerConfig{
		MaxAttempts:  cfg.Sync.MaxAttempts,
		InitialDelay: cfg.Sync.InitialDelay,
		Concurrency:  cfg.Sync.Concurrency,
	}, func(ctx context.Context, job queue.GradeSyncJob) error {
		return serviceManager.GradeSync().ProcessSyncJob(ctx, job.AttemptID)
	}, wmLogger)
	if err != nil {
		log.Fatalf("Failed to initialize grade passback worker: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go func() {
		logger.Info("Starting grade passback worker",
			"concurrency", cfg.Sync.Concurrency,
			"max_attempts", cfg.Sync.MaxAttempts)
		if err := worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Fatalf("Grade passback worker stopped: %v", err)
		}
	}()

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, validator, logger, cfg.Casdoor, repoManager.GetRepository().User())

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	// Create HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Stop the worker
	workerCancel()
	if err := worker.Close(); err != nil {
		log.Printf("Failed to close worker: %v", err)
	}

	// Shutdown services (closes the publisher and repositories)
	if err := serviceManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown services: %v", err)
	}

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}
