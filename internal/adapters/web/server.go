// Package web реализует HTTP API сервиса на chi: login, verify, chats, analyze, health, metrics.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"telegram-sentiment/internal/domain/analysis"
	"telegram-sentiment/internal/domain/auth"
	"telegram-sentiment/internal/domain/remote"
	"telegram-sentiment/internal/infra/logger"
)

const (
	readTimeout = 15 * time.Second
	// Анализ включает выгрузку истории и инференс, поэтому запись ответа может идти долго.
	writeTimeout = 5 * time.Minute
	idleTimeout  = 60 * time.Second
)

// Handshake: двухшаговый вход.
type Handshake interface {
	Login(ctx context.Context, apiID int, apiSecret, phone string) (auth.Result, error)
	Verify(ctx context.Context, phone, code, codeHash string, apiID int, apiSecret string) (auth.Result, error)
}

// Analyzer: список чатов и анализ сообщений.
type Analyzer interface {
	Chats(ctx context.Context, phone string) ([]remote.Chat, error)
	Analyze(ctx context.Context, phone string, chatID int64, limit int) (analysis.Report, error)
}

// Server: HTTP-сервер API.
type Server struct {
	srv       *http.Server
	handshake Handshake
	analyzer  Analyzer
}

// NewServer собирает роутер. metrics может быть nil, тогда /metrics не публикуется.
func NewServer(addr string, handshake Handshake, analyzer Analyzer, metrics http.Handler) *Server {
	s := &Server{handshake: handshake, analyzer: analyzer}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	r.Post("/login", s.handleLogin)
	r.Post("/verify", s.handleVerify)
	r.Post("/chats", s.handleChats)
	r.Post("/analyze", s.handleAnalyze)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// Handler возвращает корневой обработчик (для тестов).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start блокируется до остановки сервера.
func (s *Server) Start() error {
	logger.Info("Starting web server", zap.String("address", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server error: %w", err)
	}
	return nil
}

// Shutdown дожидается активных запросов и останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down web server...")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	writeResponse(w, []byte("OK"))
}
