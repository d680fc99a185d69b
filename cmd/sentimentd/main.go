package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"telegram-sentiment/internal/app"
	"telegram-sentiment/internal/infra/config"
	"telegram-sentiment/internal/infra/logger"
)

func main() {
	// envPath определяет расположение .env с настройками сервиса.
	envPath := flag.String("env", "assets/.env", "path to .env file")
	flag.Parse()

	if err := config.Load(*envPath); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	env := config.Env()

	logger.Init(env.LogLevel)
	logger.EnableFile(logger.FileOptions{
		Path:       env.LogFile,
		Level:      env.LogFileLevel,
		MaxSizeMB:  env.LogFileMaxSize,
		MaxBackups: env.LogFileMaxBackups,
		MaxAgeDays: env.LogFileMaxAge,
		Compress:   env.LogFileCompress,
	})
	defer logger.Close()
	for _, msg := range config.Warnings() {
		logger.Warn(msg)
	}

	// Ctrl+C/SIGTERM отменяют ctx. stop() снимает подписку на сигналы.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.NewApp(env)
	if err := a.Init(ctx); err != nil {
		stop()
		logger.Fatal("app init failed", zap.Error(err))
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		a.Close()
		stop()
		logger.Fatal("app run failed", zap.Error(err))
	}
	logger.Info("Graceful shutdown complete")
}
