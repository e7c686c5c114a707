package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/optionfolio/optionfolio/internal/config"
	"github.com/optionfolio/optionfolio/internal/dashboard"
	"github.com/optionfolio/optionfolio/internal/marketdata"
	"github.com/optionfolio/optionfolio/internal/refresh"
	"github.com/optionfolio/optionfolio/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Environment.LogLevel)
	logger.Infof("Starting options risk service (provider: %s)", cfg.MarketData.Provider)

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open storage")
	}

	quoter := marketdata.NewCircuitBreakerQuoter(
		marketdata.NewClient(cfg.MarketData.APIKey, cfg.MarketData.BaseURL, cfg.QuoteTimeout()),
	)

	refreshCfg := refresh.DefaultConfig
	refreshCfg.SampleCount = cfg.Simulation.SampleCount
	refresher := refresh.NewRefresher(store, quoter, logger, refreshCfg)

	server := dashboard.NewServer(dashboard.Config{
		Port:      cfg.Server.Port,
		AuthToken: cfg.Server.AuthToken,
	}, store, quoter, refresher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping...")
		cancel()
	}()

	if cfg.Refresh.Auto {
		go runRefreshLoop(ctx, cfg.RefreshInterval(), store, refresher, logger)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
	logger.Info("Stopped")
}

// runRefreshLoop re-prices every portfolio on a fixed cadence. Each tick is
// independent; a failed portfolio is logged and skipped, never retried early.
func runRefreshLoop(ctx context.Context, interval time.Duration,
	store storage.Interface, refresher *refresh.Refresher, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range store.ListPortfolios() {
				if err := refresher.RefreshPortfolio(ctx, name); err != nil {
					logger.WithError(err).Warnf("auto-refresh failed for portfolio %s", name)
				}
			}
		}
	}
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
