package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hugh/reconsole/internal/api"
	"github.com/hugh/reconsole/internal/api/client"
	"github.com/hugh/reconsole/internal/api/middleware"
	"github.com/hugh/reconsole/internal/console"
	"github.com/hugh/reconsole/internal/web"
	"github.com/hugh/reconsole/pkg/config"
	"github.com/hugh/reconsole/pkg/util"
)

// Version information (set during build)
var version = "dev"

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting recon console",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
		"backend", cfg.Backend.URL,
	)

	overrides, err := config.LoadRenderOverrides(cfg.Render.Path)
	if err != nil {
		logger.Error("failed to load render config", "error", err)
		os.Exit(1)
	}
	renderer := console.NewLogRenderer(console.DefaultRenderConfig().WithOverrides(overrides), console.HTMLMarkup{})

	apiClient := client.New(cfg.Backend.URL,
		client.WithTimeout(cfg.Backend.Timeout()),
		client.WithRateLimit(cfg.Backend.RequestsPerSecond, cfg.Backend.RequestBurst),
		client.WithLogger(logger),
	)

	// The console still starts when the backend is down; the page shows errors.
	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.Backend.HealthMaxWait()+cfg.Backend.Timeout())
	if err := apiClient.WaitHealthy(startCtx, cfg.Backend.HealthMaxWait()); err != nil {
		logger.Warn("scan backend not healthy", "backend", apiClient.BaseURL(), "error", err)
	}

	board := console.NewBoard(renderer)
	ctrl := console.NewController(apiClient, board, console.Options{
		Interval:             cfg.Poll.Interval(),
		Renderer:             renderer,
		Logger:               logger,
		ToolWarningThreshold: cfg.Poll.ToolWarningThreshold,
		Resolver:             console.NewDNSResolver(cfg.DNS.Resolver, 5*time.Second),
	})

	_, _ = ctrl.CheckTools(startCtx)
	if _, err := ctrl.RefreshRecent(startCtx); err != nil {
		logger.Warn("failed to load recent scans", "error", err)
	}
	cancelStart()

	// Load templates
	templates, err := web.LoadTemplates()
	if err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// Get static file system
	staticFS, err := web.GetStaticFS()
	if err != nil {
		logger.Error("failed to get static fs", "error", err)
		os.Exit(1)
	}

	csrfStore := middleware.NewCSRFStore()
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.WindowSeconds)

	router := api.NewRouter(api.RouterConfig{
		Console:        ctrl,
		Board:          board,
		Backend:        apiClient,
		Version:        version,
		Logger:         logger,
		Templates:      templates,
		StaticFS:       staticFS,
		CSRF:           csrfStore,
		RateLimiter:    rateLimiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// WriteTimeout is left unset: /ws holds its connection open.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	ctrl.Close()
	rateLimiter.Close()
	csrfStore.Close()

	logger.Info("server stopped")
}
