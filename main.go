package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/johnwmail/clipsync/config"
	"github.com/johnwmail/clipsync/handlers"
	"github.com/johnwmail/clipsync/internal/services"
	"github.com/johnwmail/clipsync/internal/sweeper"
	"github.com/johnwmail/clipsync/internal/upload"
	"github.com/johnwmail/clipsync/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Lambda imports (only used when in Lambda mode)
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
)

// Version/build info (set via -ldflags at build time)
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "none"
)

// localUserID owns every clip when no JWT secret is configured
const localUserID = "local"

// isLambdaEnvironment detects if running in AWS Lambda
func isLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	cfg.Version = Version
	cfg.BuildTime = BuildTime
	cfg.CommitHash = CommitHash

	logger := setupLogging(cfg)
	slog.SetDefault(logger)

	logger.Info("Starting clipsync",
		"version", Version,
		"build_time", BuildTime,
		"commit", CommitHash,
		"storage", cfg.StorageType,
		"blobs", cfg.BlobBackend)

	// Set Gin mode based on environment
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.JWTSecret == "" {
		logger.Warn("No JWT secret configured; all requests share one partition", "user", localUserID)
	}

	store, err := storage.NewClipStore(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	uploader, err := upload.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize blob storage", "error", err)
		os.Exit(1)
	}

	svc := services.NewClipService(store, uploader, services.Options{
		HistoryLimit: cfg.HistoryLimit,
		Logger:       logger,
	})
	router := setupRouter(svc, cfg, blobDir(uploader), logger)
	backend := sweeper.NewBackend(store, cfg.BackendSweepCap, logger)

	if isLambdaEnvironment() {
		logger.Info("Starting in AWS Lambda mode")
		app := &lambdaApp{
			v1:      ginadapter.New(router),
			v2:      ginadapter.NewV2(router),
			sweeper: backend,
			logger:  logger,
		}
		lambda.Start(app.handle)
		return
	}

	logger.Info("Starting in HTTP server mode")
	runHTTPServer(router, cfg, store, backend, logger)
}

// blobDir is the directory served under /blobs, empty when blobs live elsewhere
func blobDir(u upload.Uploader) string {
	if fs, ok := u.(*upload.FilesystemUploader); ok {
		return fs.Dir()
	}
	return ""
}

// setupRouter creates and configures the Gin router
func setupRouter(svc *services.ClipService, cfg *config.Config, blobs string, logger *slog.Logger) *gin.Engine {
	clipsHandler := handlers.NewClipsHandler(svc, services.SessionConfig{
		SweepCap:         cfg.ClientSweepCap,
		SweepInterval:    cfg.ClientSweepInterval,
		RefilterInterval: cfg.RefilterInterval,
	}, cfg.MaxImageSize, logger)
	systemHandler := handlers.NewSystemHandler(cfg.Version)

	router := gin.New()

	// The live stream must not be buffered, so canonicalErrors is applied per group below
	router.Use(gin.Logger())
	router.Use(jsonRecovery(logger))

	// System routes
	router.GET("/health", systemHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if blobs != "" {
		router.Static("/blobs", blobs)
	}

	auth := handlers.SingleUser(localUserID)
	if cfg.JWTSecret != "" {
		auth = handlers.JWTAuth(cfg.JWTSecret)
	}
	api := router.Group("/api/v1", handlers.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst), auth)
	api.GET("/clips/stream", clipsHandler.Stream)

	buffered := api.Group("", canonicalErrors(logger))
	buffered.GET("/clips", clipsHandler.List)
	buffered.POST("/clips", clipsHandler.CreateText)
	buffered.POST("/clips/image", clipsHandler.CreateImage)
	buffered.DELETE("/clips/:id", clipsHandler.Delete)

	// Global 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	})

	return router
}

// runHTTPServer starts the HTTP server and the backend sweep, and blocks until SIGINT/SIGTERM
func runHTTPServer(router *gin.Engine, cfg *config.Config, store storage.ClipStore, backend *sweeper.Backend, logger *slog.Logger) {
	// Ensure cleanup on exit
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing storage", "error", err)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.RunEvery(sweepCtx, cfg.BackendSweepInterval, func(ctx context.Context) {
			backend.RunOnce(ctx)
		})
	}()

	// Live streams end when shutdown begins
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelStreams)

	go func() {
		logger.Info("Listening", "port", cfg.Port, "base_url", cfg.GetBaseURL())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	stopSweep()
	<-sweepDone

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	} else {
		logger.Info("Server shutdown complete")
	}
}
