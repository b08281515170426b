package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Skufu/lifeline/internal/config"
	"github.com/Skufu/lifeline/internal/enrich"
	"github.com/Skufu/lifeline/internal/history"
	"github.com/Skufu/lifeline/internal/logging"
	"github.com/Skufu/lifeline/internal/modelstore"
	"github.com/Skufu/lifeline/internal/refine"
	"github.com/Skufu/lifeline/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	gin.SetMode(cfg.GinMode)
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	store, err := openHistory(ctx, cfg.History, log)
	if err != nil {
		log.WithError(err).Fatal("history store unavailable")
	}
	defer store.Close()

	bundle, engine := loadEngine(cfg.Models, log)
	defer bundle.Close()

	gateway, closeEnrich := buildEnrich(ctx, cfg.Enrich, log)
	defer closeEnrich()

	router := server.New(server.Deps{
		Engine:         engine,
		Enrich:         gateway,
		History:        store,
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	log.WithField("port", cfg.Port).Info("server listening")
	waitForShutdown(srv, log)
}

func openHistory(ctx context.Context, cfg config.HistoryConfig, log *logrus.Logger) (history.Store, error) {
	switch cfg.Backend {
	case config.HistoryMemory, "":
		return history.NewMemoryStore(), nil
	case config.HistorySQLite:
		return history.NewSQLiteStore(cfg.SQLitePath)
	case config.HistoryPostgres:
		return history.NewPostgresStore(ctx, cfg.DatabaseURL, log)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

// loadEngine returns a nil engine when the models cannot be loaded; the
// server then answers the prediction routes with 503.
func loadEngine(cfg config.ModelConfig, log *logrus.Logger) (*modelstore.Bundle, *refine.Engine) {
	bundle, err := modelstore.Load(cfg.Dir, modelstore.Options{ONNXLibPath: cfg.ONNXLibPath, Logger: log})
	if err != nil {
		log.WithError(err).WithField("dir", cfg.Dir).Error("failed to load models, running degraded")
		return nil, nil
	}

	engine, err := bundle.Engine(
		refine.WithMaxRefinements(cfg.MaxRefinements),
		refine.WithChooser(newChooser(cfg)),
		refine.WithLogger(log),
	)
	if err != nil {
		log.WithError(err).Error("failed to build refinement engine, running degraded")
		bundle.Close()
		return nil, nil
	}
	return bundle, engine
}

func newChooser(cfg config.ModelConfig) refine.Chooser {
	if cfg.Chooser == config.ChooserRandom {
		return refine.NewRandomChooser(cfg.ChooserSeed)
	}
	return refine.SplitChooser{}
}

// buildEnrich wires the Gemini client and caches. Without an API key the
// service serves template details and refuses chat.
func buildEnrich(ctx context.Context, cfg config.EnrichConfig, log *logrus.Logger) (*enrich.Service, func()) {
	opts := []enrich.ServiceOption{
		enrich.WithServiceLogger(log),
		enrich.WithMemoryCache(enrich.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL)),
	}
	closeFn := func() {}

	if cfg.RedisURL != "" {
		rc, err := enrich.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.WithError(err).Warn("shared details cache disabled")
		} else {
			opts = append(opts, enrich.WithSharedCache(rc))
			closeFn = func() { rc.Close() }
		}
	}

	var gen enrich.Generator
	if cfg.GeminiAPIKey != "" {
		client, err := enrich.NewGeminiClient(enrich.GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.GeminiModel,
			BaseURL:   cfg.GeminiBaseURL,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			Logger:    log,
		})
		if err != nil {
			log.WithError(err).Warn("text generation disabled")
		} else {
			gen = client
		}
	} else {
		log.Info("GEMINI_API_KEY not set, details use templates and chat is disabled")
	}

	return enrich.NewService(gen, opts...), closeFn
}

func waitForShutdown(srv *http.Server, log *logrus.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
