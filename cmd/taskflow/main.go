package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pranjal030703/taskflow-pro/internal/authgate"
	"github.com/pranjal030703/taskflow-pro/internal/config"
	taskhub "github.com/pranjal030703/taskflow-pro/internal/hub"
	handlers "github.com/pranjal030703/taskflow-pro/internal/http"
	taskMiddleware "github.com/pranjal030703/taskflow-pro/internal/middleware"
	"github.com/pranjal030703/taskflow-pro/internal/repository"
	"github.com/pranjal030703/taskflow-pro/internal/service"
	"github.com/pranjal030703/taskflow-pro/shared/logger"
	"github.com/pranjal030703/taskflow-pro/shared/middleware"
)

func main() {
	logrusLogger := logger.Init("taskflow")

	cfg, err := config.Load()
	if err != nil {
		logrusLogger.WithError(err).Fatal("failed to load config")
	}

	var repo repository.TaskRepository
	switch cfg.DB.Driver {
	case "postgres":
		postgresRepo, err := repository.NewPostgresTaskRepository(cfg.DB.DSN())
		if err != nil {
			logrusLogger.WithError(err).Fatal("failed to connect to database")
		}
		defer postgresRepo.Close()
		if err := postgresRepo.Migrate(context.Background()); err != nil {
			logrusLogger.WithError(err).Fatal("failed to migrate database")
		}
		repo = postgresRepo
	case "sqlite3":
		sqliteRepo, err := repository.NewSQLiteTaskRepository(cfg.DB.DSN())
		if err != nil {
			logrusLogger.WithError(err).Fatal("failed to open database")
		}
		defer sqliteRepo.Close()
		if err := sqliteRepo.Migrate(context.Background()); err != nil {
			logrusLogger.WithError(err).Fatal("failed to migrate database")
		}
		repo = sqliteRepo
	case "memory":
		repo = repository.NewMemoryTaskRepository()
	default:
		logrusLogger.Fatal("unsupported database driver: " + cfg.DB.Driver)
	}

	eventHub := taskhub.New(logrusLogger, cfg.HubSendBuffer)
	taskService := service.NewTaskService(repo, eventHub, logrusLogger, cfg.ConflictRetries)
	verifier := authgate.NewJWTVerifier(cfg.JWTSecret, logrusLogger)

	taskHandler := handlers.NewTaskHandler(taskService, verifier, eventHub, logrusLogger)

	mux := http.NewServeMux()
	taskHandler.Register(mux)
	mux.Handle("GET /metrics", taskMiddleware.MetricsHandler())

	// Middleware chain (order matters).
	handler := middleware.RequestIDMiddleware(mux)
	handler = taskMiddleware.SecurityHeadersMiddleware(handler)
	handler = taskMiddleware.MetricsMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		logrusLogger.WithField("port", cfg.HTTPPort).Info("taskflow server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrusLogger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrusLogger.Info("shutting down taskflow server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logrusLogger.WithError(err).Error("graceful shutdown failed")
	}
}
