package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"telegram-sentiment/internal/adapters/cli"
	"telegram-sentiment/internal/app"
	"telegram-sentiment/internal/infra/config"
	"telegram-sentiment/internal/infra/logger"
	"telegram-sentiment/internal/infra/pr"
)

func main() {
	if err := pr.Init(); err != nil {
		logger.Fatal("failed to init readline", zap.Error(err))
	}
	defer pr.Close()

	envPath := flag.String("env", "assets/.env", "path to .env file")
	// reportsDir: куда команда save пишет отчёты.
	reportsDir := flag.String("reports", "data/reports", "directory for saved analysis reports")
	flag.Parse()

	if err := config.Load(*envPath); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	env := config.Env()

	// Логи идут через readline, чтобы не ломать строку ввода.
	logger.Init(env.LogLevel)
	logger.SetWriters(pr.Stdout(), pr.Stderr())
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.NewApp(env)
	if err := a.Init(ctx); err != nil {
		stop()
		logger.Fatal("app init failed", zap.Error(err))
	}
	defer a.Close()

	console := cli.NewService(a.Handshake, a.Analyzer, stop, *reportsDir)
	console.Start(ctx)
	<-ctx.Done()
	console.Stop()
	logger.Info("Bye")
}
