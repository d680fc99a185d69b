package mtproto

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/go-faster/errors"
	tdsession "github.com/gotd/td/session"
	"go.uber.org/zap"

	"telegram-sentiment/internal/infra/logger"
)

// tokenStorage реализует tdsession.Storage в памяти одного соединения.
// Исходное состояние берётся из session_string, итоговое отдаётся через Token.
// Формат токена, base64 (std) от сериализованной gotd-сессии.
type tokenStorage struct {
	mux  sync.Mutex
	data []byte
}

var _ tdsession.Storage = (*tokenStorage)(nil)

// newTokenStorage декодирует токен. Повреждённый токен считается пустой сессией:
// соединение поднимется неавторизованным, и фабрика вернёт SessionExpired.
func newTokenStorage(token string) *tokenStorage {
	s := &tokenStorage{}
	if token == "" {
		return s
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		logger.Warn("stored session token is not valid base64, starting clean session", zap.Error(err))
		return s
	}
	s.data = data
	return s
}

func (s *tokenStorage) LoadSession(_ context.Context) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session storage is invalid")
	}
	s.mux.Lock()
	defer s.mux.Unlock()

	if len(s.data) == 0 {
		return nil, tdsession.ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *tokenStorage) StoreSession(_ context.Context, data []byte) error {
	if s == nil {
		return errors.New("nil session storage is invalid")
	}
	s.mux.Lock()
	defer s.mux.Unlock()

	s.data = append(s.data[:0:0], data...)
	return nil
}

// Token сериализует текущее состояние. Пустая сессия даёт пустую строку.
func (s *tokenStorage) Token() string {
	s.mux.Lock()
	defer s.mux.Unlock()

	if len(s.data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.data)
}
