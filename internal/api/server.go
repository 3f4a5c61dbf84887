// Package api is the HTTP server: the events and calendar API, push
// subscription registration, the web app manifest, the static app shell and
// Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devvluca/EclesIA/internal/eclesia/store"
	"github.com/devvluca/EclesIA/internal/events"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Options holds configuration for the server.
type Options struct {
	Events        *events.Repository
	Subscriptions store.SubscriptionStore // optional
	Metrics       *Metrics                // optional
	StaticDir     string                  // optional app shell
	Port          int
	Out           io.Writer
	Now           func() time.Time // calendar default dates; time.Now when nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Events == nil {
		return nil, fmt.Errorf("api: events repository is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), opts.Metrics.Middleware())

	h := &handlers{events: opts.Events, subs: opts.Subscriptions, metrics: opts.Metrics, now: opts.Now}
	registerRoutes(router, h)
	router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	router.GET("/manifest.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, DefaultManifest())
	})

	shell := newAppShell(opts.StaticDir)
	router.GET("/", func(c *gin.Context) {
		if shell.enabled() {
			shell.serveIndex(c)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "EclesIA backend is running"})
	})
	router.NoRoute(shell.handle)

	return router, nil
}

// Start launches the HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts Options) error {
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "EclesIA server running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
