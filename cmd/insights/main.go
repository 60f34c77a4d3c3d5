// Package main запускает HTTP-сервер аналитического сервиса продавца.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/msafonov/merchant-insights/internal/advisor"
	"github.com/msafonov/merchant-insights/internal/cache"
	"github.com/msafonov/merchant-insights/internal/config"
	"github.com/msafonov/merchant-insights/internal/gemini"
	"github.com/msafonov/merchant-insights/internal/handler"
	"github.com/msafonov/merchant-insights/internal/insight"
	"github.com/msafonov/merchant-insights/internal/inventory"
	"github.com/msafonov/merchant-insights/internal/middleware"
	"github.com/msafonov/merchant-insights/internal/repository"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var generator advisor.Generator
	if cfg.GeminiAPIKey != "" {
		generator = gemini.NewClient(cfg.GeminiAPIKey)
	} else {
		sugar.Warn("gemini api key is not configured, advisor will reply with a fallback message")
	}

	sharedCache := cache.New()

	engine := insight.NewEngine(repo, logger, insight.DefaultThresholds())
	inventorySvc := inventory.NewService(repo, inventory.DefaultThresholds())
	advisorSvc := advisor.NewService(repo, generator, sharedCache, logger)

	metrics := middleware.NewMetrics(prometheus.DefaultRegisterer)

	h := handler.NewHandler(engine, inventorySvc, advisorSvc, logger, metrics)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting merchant insights server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
