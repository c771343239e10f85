package api

import (
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/hugh/reconsole/internal/api/handlers"
	"github.com/hugh/reconsole/internal/api/middleware"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	Console        handlers.Console
	Board          handlers.Board
	Backend        handlers.BackendChecker
	Version        string
	Logger         *slog.Logger
	Templates      *template.Template
	StaticFS       fs.FS
	CSRF           *middleware.CSRFStore
	RateLimiter    *middleware.RateLimiter // nil disables rate limiting
	AllowedOrigins []string                // CORS allowed origins
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	if cfg.RateLimiter != nil {
		r.Use(middleware.RateLimit(cfg.RateLimiter))
	}

	// CORS - restrict to configured origins, or allow localhost in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	csrfStore := cfg.CSRF
	if csrfStore == nil {
		csrfStore = middleware.NewCSRFStore()
	}

	healthHandler := handlers.NewHealthHandler(cfg.Backend, cfg.Version)
	consoleHandler := handlers.NewConsoleHandler(cfg.Console, cfg.Board, cfg.Templates, csrfStore, cfg.Logger, cfg.AllowedOrigins)

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Console
	r.Group(func(r chi.Router) {
		r.Use(middleware.CSRF(csrfStore))

		r.Get("/", consoleHandler.Index)
		r.Get("/ws", consoleHandler.WS)
		r.Get("/api/board", consoleHandler.Snapshot)

		r.Post("/scan", consoleHandler.Submit)
		r.Post("/stop", consoleHandler.Stop)
		r.Post("/notices/dismiss", consoleHandler.DismissNotices)
		r.Post("/file/close", consoleHandler.CloseFile)

		r.Route("/scans/{id}", func(r chi.Router) {
			r.Post("/view", consoleHandler.View)
			r.Get("/results", consoleHandler.Results)
			r.Get("/files/{name}", consoleHandler.File)
			r.Get("/files/{name}/download", consoleHandler.Download)
		})
	})

	// Static files
	if cfg.StaticFS != nil {
		fileServer := http.FileServer(http.FS(cfg.StaticFS))
		r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	return &Router{r}
}
