package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nastyazhadan/matching-engine/internal/app"
	"github.com/nastyazhadan/matching-engine/internal/config"
	logger "github.com/nastyazhadan/matching-engine/pkg/logging/zap"
)

func main() {
	envPath := flag.String("env", ".env", "path to the .env-style config file")
	flag.Parse()

	cfg, err := config.Load(*envPath)
	if err != nil {
		panic(err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.JSON); err != nil {
		panic(err)
	}
	defer logger.Sync()

	a, err := app.New(*cfg)
	if err != nil {
		logger.Fatal(context.Background(), "failed to construct app", zap.Error(err))
	}

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		logger.Fatal(context.Background(), "failed to start matching engine", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(context.Background(), "shutting down matching engine...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		logger.Error(context.Background(), "failed to stop matching engine cleanly", zap.Error(err))
	}

	logger.Info(context.Background(), "matching engine stopped")
}
