// Package web serves the webhook endpoint for platform updates and the
// public product pages.
package web

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hpungsan/storebot/internal/config"
	"github.com/hpungsan/storebot/internal/telegram"
)

// SecretHeader carries the webhook secret on every platform request.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateFunc receives a decoded webhook update. It must not block on the
// update being handled.
type UpdateFunc func(u telegram.Update)

// Options configure the HTTP server.
type Options struct {
	Addr    string
	Secret  string
	Version string
}

// NewServer creates the HTTP server. onUpdate may be nil when the bot runs in
// polling mode; the webhook route then answers 404.
func NewServer(database *sql.DB, cfg *config.Config, onUpdate UpdateFunc, opts Options, log *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(database, cfg, onUpdate, opts, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the gin engine with every route.
func NewRouter(database *sql.DB, cfg *config.Config, onUpdate UpdateFunc, opts Options, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "web")

	h := &Handlers{
		db:       database,
		cfg:      cfg,
		renderer: NewRenderer(opts.Version, log),
		onUpdate: onUpdate,
		secret:   opts.Secret,
		log:      log,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log), securityHeaders())

	router.GET("/health", h.HandleHealth)
	if onUpdate != nil {
		router.POST("/webhook/:secret", h.HandleWebhook)
	}
	router.GET("/products/:id", h.HandleProduct)
	router.GET("/products/:id/image", h.HandleProductImage)
	router.GET("/stores/:seller", h.HandleStore)
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info("http server listening", "addr", srv.Addr)

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", "default-src 'self'; img-src 'self'")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Next()
	}
}

// requestLogger logs one line per request. Webhook paths are logged without
// the secret.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		log.Debug("http request",
			"method", c.Request.Method,
			"route", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
