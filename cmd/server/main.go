// Package main wires together the notice crawler server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/transitops/notice-crawler/internal/api"
	"github.com/transitops/notice-crawler/internal/browser"
	"github.com/transitops/notice-crawler/internal/config"
	"github.com/transitops/notice-crawler/internal/crawler"
	"github.com/transitops/notice-crawler/internal/export"
	"github.com/transitops/notice-crawler/internal/logging"
	"github.com/transitops/notice-crawler/internal/site"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := browser.NewManager(browser.Config{
		Headless:  cfg.Browser.Headless,
		UserAgent: cfg.Browser.UserAgent,
		ExecPath:  cfg.Browser.ExecPath,
		OpTimeout: time.Duration(cfg.Browser.OpTimeoutSec) * time.Second,
		WindowW:   cfg.Browser.WindowWidth,
		WindowH:   cfg.Browser.WindowHeight,
	}, logger.Named("browser"))
	defer sessions.Close()

	adapters := site.Factory(site.Config{
		TOPISBaseURL: cfg.Sites.TOPISBaseURL,
		ICTRBaseURL:  cfg.Sites.ICTRBaseURL,
		UserAgent:    cfg.Browser.UserAgent,
		SettleDelay:  time.Duration(cfg.Crawler.SettleDelayMs) * time.Millisecond,
		HTTPTimeout:  time.Duration(cfg.Crawler.HTTPTimeoutSec) * time.Second,
		Logger:       logger.Named("site"),
	})

	policy := crawler.NewRetryPolicy(
		cfg.Crawler.MaxRetries,
		time.Duration(cfg.Crawler.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Crawler.BackoffMaxMs)*time.Millisecond,
	)
	svc := crawler.NewService(sessions, adapters, policy, crawler.ServiceConfig{
		Budget:         cfg.Crawler.Budget(),
		AttemptTimeout: cfg.Crawler.AttemptTimeout(),
		PageDelay:      cfg.Crawler.PageDelay(),
	}, logger.Named("crawler"))

	apiServer := api.NewServer(svc, export.NewRenderer(), api.Config{
		MaxConcurrentCrawls: cfg.Server.MaxConcurrentCrawl,
		MaxPagesDefault:     cfg.Crawler.MaxPagesDefault,
		RequestTimeout:      time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
