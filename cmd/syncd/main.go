package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"syncserver/internal/config"
	"syncserver/internal/engine"
	"syncserver/internal/janitor"
	"syncserver/internal/syncstore"
	"syncserver/internal/transport/httpapi"
)

func main() {
	configFile := flag.String("config", "", "path to a flat KEY=VALUE configuration file")
	port := flag.Int("port", 0, "listen port (overrides LOCAL_PORT, 0 = use config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := createLogger(*debug)
	defer logger.Sync()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.LoadFile(cfg, *configFile)
		if err != nil {
			logger.Fatal("failed to load configuration", zap.Error(err))
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.LocalPort = *port
	}

	logger.Info("starting sync server",
		zap.Int("port", cfg.LocalPort),
		zap.Int("max_views", cfg.MaxViews),
		zap.Duration("timeout_text", cfg.TimeoutText),
		zap.Duration("timeout_view", cfg.TimeoutView),
	)

	docs := syncstore.NewDocumentRegistry()
	views := syncstore.NewViewRegistry(docs, cfg.MaxViews)
	syncEngine := engine.New(views, logger)

	sweeper := janitor.New(docs, views, logger, time.Minute, cfg.TimeoutView, cfg.TimeoutText)
	go sweeper.Run()
	defer sweeper.Stop()

	handler := httpapi.New(syncEngine, logger, cfg.ConnectionOrigin, cfg.RequiredCookie)
	mux := http.NewServeMux()
	handler.Routes(mux)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.LocalPort),
		Handler: mux,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func createLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	return logger
}
