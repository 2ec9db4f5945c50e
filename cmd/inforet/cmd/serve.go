package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/daqol/information-retrieval/internal/searcher/handler"
	"github.com/daqol/information-retrieval/internal/searcher/ranker"
	"github.com/daqol/information-retrieval/pkg/config"
	"github.com/daqol/information-retrieval/pkg/health"
	"github.com/daqol/information-retrieval/pkg/middleware"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				opts.cfg.Server.Port = port
			}
			return runServe(cmd.Context(), opts.cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", config.Default().Server.Port, "HTTP listen port")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	// the API serves /metrics itself
	cfg.Metrics.Enabled = false
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	a.withCache(ctx)
	a.withEvents()

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go limiter.Sweep(ctx, 5*time.Minute)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newRouter(a, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "store", cfg.Store.Driver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("search service stopped")
	return nil
}

func newRouter(a *app, limiter *middleware.Limiter) http.Handler {
	checker := health.NewChecker()
	checker.Register("store", health.Ping(a.store.Ping, true))
	if a.redis != nil {
		checker.Register("redis", health.Ping(a.redis.Ping, false))
	}

	h := handler.New(a.executor(), a.cache, a.searchEvents,
		ranker.Options{Above: a.cfg.Search.Above, Top: a.cfg.Search.Top})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.CORS(a.cfg.Server.CORSOrigins))
	r.Get("/health/live", checker.LiveHandler())
	r.Get("/health/ready", checker.ReadyHandler())
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter))
		}
		r.Use(middleware.Timeout(a.cfg.Server.RequestTimeout))
		r.Mount("/", h.Routes())
	})
	return r
}
