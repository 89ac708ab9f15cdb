package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/app"
	"github.com/GoPolymarket/frontdoor/internal/config"
	"github.com/GoPolymarket/frontdoor/internal/handler"
	"github.com/GoPolymarket/frontdoor/internal/middleware"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
	"github.com/GoPolymarket/frontdoor/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitWithOptions(logger.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Service: "frontdoor"})

	// 2. Wire orchestrator and persistence
	// The UI reads the destination from /v1/launch/status or the stream.
	a, err := app.New(context.Background(), cfg, app.Options{Interactive: true})
	if err != nil {
		log.Fatalf("Failed to initialize frontdoor: %v", err)
	}

	auditSvc, err := service.NewAuditService(cfg.Server.AuditDir, a.AuditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	// 3. Handlers
	fd := handler.NewFrontdoorHandler(a.Orchestrator)
	auditHandler := handler.NewAuditHandler(auditSvc, a.Orchestrator.Session().ID)

	var launchLimiter *rate.Limiter
	if cfg.Auth.LaunchQPS > 0 {
		launchLimiter = rate.NewLimiter(rate.Limit(cfg.Auth.LaunchQPS), cfg.Auth.LaunchBurst)
	}

	// 4. Router
	r := gin.Default()
	r.Use(middleware.Audit(auditSvc))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ErrorHandler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "frontdoor"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg))
	v1.Use(fd.Tag())
	{
		v1.GET("/bootstrap", fd.Bootstrap)
		v1.GET("/session", fd.GetSession)
		v1.POST("/wallet/connect", fd.ConnectWallet)
		v1.POST("/identity/login", fd.Login)
		v1.POST("/identity/logout", fd.Logout)
		v1.POST("/config/suggest", fd.SuggestConfig)
		v1.POST("/config/validate", fd.ValidateConfig)
		v1.GET("/onboarding/state", fd.OnboardingState)
		v1.POST("/onboarding/chat", fd.OnboardingChat)
		v1.GET("/launch/status", fd.Status)
		v1.GET("/launch/history", fd.History)
		v1.GET("/launch/stream", fd.Stream)
		v1.GET("/audit", auditHandler.List)

		launches := v1.Group("/launch")
		launches.Use(middleware.RateLimitMiddleware(launchLimiter))
		launches.Use(middleware.IdempotencyMiddleware(a.Idempotency, fd.SessionScope))
		launches.POST("", fd.Launch)
		launches.POST("/resume", fd.Resume)
	}

	// 5. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("frontdoor companion API started", "port", cfg.Server.Port, "gateway", cfg.Gateway.BaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	a.Close()
	auditSvc.Close()

	logger.Info("Server exiting")
}
