// Package app собирает сервис: конфигурация, PostgreSQL, кэш пиров, модель
// тональности, доменные сервисы и HTTP API. Отсюда же стартует и корректно
// останавливается HTTP-сервер.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"telegram-sentiment/internal/adapters/inference"
	"telegram-sentiment/internal/adapters/telegram/mtproto"
	"telegram-sentiment/internal/adapters/web"
	"telegram-sentiment/internal/domain/accounts"
	"telegram-sentiment/internal/domain/analysis"
	"telegram-sentiment/internal/domain/auth"
	"telegram-sentiment/internal/domain/keywords"
	"telegram-sentiment/internal/domain/remote"
	"telegram-sentiment/internal/domain/sentiment"
	"telegram-sentiment/internal/infra/config"
	"telegram-sentiment/internal/infra/database"
	"telegram-sentiment/internal/infra/logger"
	"telegram-sentiment/internal/infra/metrics"
)

const shutdownTimeout = 30 * time.Second

// App агрегирует зависимости сервиса и управляет их жизненным циклом.
type App struct {
	cfg config.EnvConfig

	db       *sqlx.DB
	peers    *mtproto.PeerCache
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// Handshake: двухшаговый вход (login/verify).
	Handshake *auth.Controller
	// Analyzer: список чатов и анализ сообщений.
	Analyzer *analysis.Orchestrator
}

// NewApp создаёт пустой каркас. Фактическая инициализация, в Init.
func NewApp(cfg config.EnvConfig) *App {
	return &App{cfg: cfg}
}

// Init поднимает все зависимости. Словарь и модель загружаются один раз до
// приёма первого запроса и далее только читаются.
// При ошибке уже открытые ресурсы закрываются.
func (a *App) Init(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	kw, err := keywords.Load(a.cfg.NegativeWords)
	if err != nil {
		return fmt.Errorf("load negative words: %w", err)
	}
	logger.Info("Negative words loaded", zap.Int("count", kw.Len()), zap.String("file", a.cfg.NegativeWords))

	model, err := inference.New(inference.Options{
		URL:     a.cfg.ModelURL,
		Token:   a.cfg.ModelToken,
		Timeout: time.Duration(a.cfg.ModelTimeoutSec) * time.Second,
		RPS:     float64(a.cfg.ModelRPS),
	})
	if err != nil {
		return fmt.Errorf("init sentiment model: %w", err)
	}
	classifier := sentiment.NewClassifier(model, kw, a.cfg.ModelMaxInput)
	pool := sentiment.NewPool(classifier, a.cfg.ModelWorkers, a.metrics)

	a.db, err = database.Connect(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxOpenConns)
	if err != nil {
		return err
	}
	if a.cfg.MigrateOnStart {
		if err := database.Migrate(a.db); err != nil {
			return err
		}
	}
	store := accounts.NewStore(a.db)

	a.peers, err = mtproto.OpenPeerCache(a.cfg.PeersCacheFile)
	if err != nil {
		return err
	}
	dialer := mtproto.NewDialer(mtproto.Options{
		TestDC:       a.cfg.TestDC,
		RPS:          float64(a.cfg.TelegramRPS),
		FloodMaxWait: time.Duration(a.cfg.FloodMaxWaitSec) * time.Second,
	}, a.peers)

	factory := remote.NewFactory(store, dialer, a.metrics)
	a.Handshake = auth.NewController(store, dialer, a.metrics)
	a.Analyzer = analysis.New(factory, pool, a.metrics)

	logger.Info("Service initialized",
		zap.Int("model_workers", pool.Workers()),
		zap.Bool("test_dc", a.cfg.TestDC))
	return nil
}

// Run запускает HTTP API и блокируется до отмены ctx, затем корректно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	metricsHandler := promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
	server := web.NewServer(a.cfg.HTTPAddress, a.Handshake, a.Analyzer, metricsHandler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Debug("Shutdown signal received, stopping web server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown web server: %w", err)
	}
	return <-errCh
}

// Close освобождает ресурсы в обратном порядке. Повторный вызов безопасен.
func (a *App) Close() {
	if a.peers != nil {
		if err := a.peers.Close(); err != nil {
			logger.Error("close peers cache", zap.Error(err))
		}
		a.peers = nil
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			logger.Error("close database", zap.Error(err))
		}
		a.db = nil
	}
}
