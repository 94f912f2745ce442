package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/janicogyle/ccs-membership-sub001/config"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/controller"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/repository"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/service"
	"github.com/janicogyle/ccs-membership-sub001/internal/db"
	"github.com/janicogyle/ccs-membership-sub001/internal/metrics"
	"github.com/janicogyle/ccs-membership-sub001/internal/middleware"
	"github.com/janicogyle/ccs-membership-sub001/internal/router"
	"github.com/janicogyle/ccs-membership-sub001/internal/scheduler"
	"github.com/janicogyle/ccs-membership-sub001/pkg/logger"
	"github.com/janicogyle/ccs-membership-sub001/pkg/mail"
	redispkg "github.com/janicogyle/ccs-membership-sub001/pkg/redis"
	"github.com/janicogyle/ccs-membership-sub001/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	logFormat := "json"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
		logFormat = "console"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      logFormat,
		EnableColor: true,
	})

	logger.Info("Starting CCS membership server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Redis is optional; without it rate limits are per process.
	if cfg.Redis.Addr != "" {
		if err := redispkg.Init(&cfg.Redis); err != nil {
			logger.Warn("Redis unavailable, falling back to in-process rate limiting", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer func() {
				if err := redispkg.Close(); err != nil {
					logger.Error("Failed to close Redis connection", err)
				}
			}()
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// Repositories and services
	accountRepo := repository.NewAccountRepository(db.GetDB(), cfg.Database.QueryTimeout)
	hasher := util.NewPasswordHasher(cfg.Auth.BcryptCost)
	mailer := mail.New(cfg.Mail, cfg.Auth.FrontendResetURL)

	authService, err := service.NewAuthService(accountRepo, hasher, cfg.Auth, cfg.JWT)
	if err != nil {
		logger.Fatal("Failed to initialize auth service", err)
	}
	passwordResetService := service.NewPasswordResetService(accountRepo, hasher, mailer, cfg.Auth)

	// Scheduler
	purgeScheduler := scheduler.NewResetGrantScheduler(accountRepo, cfg.Scheduler.ResetPurgeSpec)
	if err := purgeScheduler.Start(); err != nil {
		logger.Fatal("Failed to start reset grant scheduler", err)
	}
	defer purgeScheduler.Stop()

	// HTTP
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, redispkg.GetClient())
	if mem, ok := rateLimiter.(*middleware.MemoryRateLimiter); ok {
		defer mem.Stop()
	}

	r := router.NewRouter(
		controller.NewAuthController(authService, passwordResetService, collector),
		middleware.NewAuthMiddleware(cfg.JWT.Secret),
		rateLimiter,
		collector,
		registry,
		cfg,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}
	if err := passwordResetService.Drain(ctx); err != nil {
		logger.Error("Pending reset emails not delivered before shutdown", err)
	}
	logger.Info("Server stopped successfully")
}
