// Package remote описывает живое соединение с Telegram в терминах домена и
// фабрику, которая поднимает его из сохранённых учётных данных.
//
// Соединение существует только внутри колбэка: Dial и Open открывают его,
// передают в fn и закрывают при любом выходе из fn. Держать Conn после
// возврата из колбэка нельзя.
package remote

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"telegram-sentiment/internal/domain/accounts"
	"telegram-sentiment/internal/domain/apperr"
	"telegram-sentiment/internal/infra/logger"
	"telegram-sentiment/internal/infra/metrics"
)

// ChatType: вид диалога в ответе chats.
type ChatType string

const (
	ChatPrivate ChatType = "Private"
	ChatGroup   ChatType = "Group"
	ChatChannel ChatType = "Channel"
)

// Chat: элемент списка диалогов. ID хранится как marked id (см. tgutil).
type Chat struct {
	ID    int64
	Title string
	Type  ChatType
}

// Message: исходное сообщение чата. SenderID пуст для анонимных постов канала.
type Message struct {
	ID       int
	Text     string
	SenderID *int64
}

// Entity: разрешённый чат, пригодный для чтения истории.
// Конкретное содержимое знает только адаптер, домен передаёт его обратно как есть.
type Entity interface {
	ChatID() int64
}

// Conn: живое соединение одного запроса. Не разделяется между запросами.
type Conn interface {
	// Authorized сообщает, авторизована ли сессия.
	Authorized(ctx context.Context) (bool, error)
	// SendCode запрашивает код подтверждения и возвращает phone_code_hash.
	SendCode(ctx context.Context, phone string) (string, error)
	// SignIn завершает вход кодом из SMS/Telegram.
	SignIn(ctx context.Context, phone, code, codeHash string) error
	// SessionToken сериализует текущее состояние сессии.
	SessionToken(ctx context.Context) (string, error)
	// Dialogs возвращает до limit последних диалогов.
	Dialogs(ctx context.Context, limit int) ([]Chat, error)
	// ResolveChat находит чат по marked id.
	ResolveChat(ctx context.Context, chatID int64) (Entity, error)
	// IterMessages отдаёт до limit последних сообщений, от новых к старым.
	// Ошибка из fn прерывает обход и возвращается как есть.
	IterMessages(ctx context.Context, chat Entity, limit int, fn func(Message) error) error
}

// Dialer открывает соединение, передаёт его в fn и гарантированно закрывает.
// Пустой cred.SessionToken означает новую неавторизованную сессию.
type Dialer interface {
	Dial(ctx context.Context, cred accounts.Credential, fn func(ctx context.Context, conn Conn) error) error
}

// CredentialGetter: часть Session Store, нужная фабрике.
type CredentialGetter interface {
	Get(ctx context.Context, phone string) (accounts.Credential, error)
}

// Factory поднимает авторизованные сессии по номеру телефона.
type Factory struct {
	store   CredentialGetter
	dialer  Dialer
	metrics *metrics.Metrics
}

// NewFactory создаёт фабрику. m может быть nil.
func NewFactory(store CredentialGetter, dialer Dialer, m *metrics.Metrics) *Factory {
	return &Factory{store: store, dialer: dialer, metrics: m}
}

// errNotAuthorized: внутренний маркер, чтобы не путать отказ авторизации с ошибкой fn.
var errNotAuthorized = errors.New("not authorized")

// Open находит учётные данные phone, поднимает соединение, проверяет авторизацию
// и выполняет fn. Сохранённый токен при истёкшей сессии не трогается.
func (f *Factory) Open(ctx context.Context, phone string, fn func(ctx context.Context, conn Conn) error) error {
	cred, err := f.store.Get(ctx, phone)
	if err != nil {
		return err
	}

	err = f.dialer.Dial(ctx, cred, func(ctx context.Context, conn Conn) error {
		f.metrics.SessionOpened()
		defer f.metrics.SessionClosed()

		ok, err := conn.Authorized(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errNotAuthorized
		}
		return fn(ctx, conn)
	})

	switch {
	case err == nil:
		f.metrics.ObserveSession("ok")
		return nil
	case errors.Is(err, errNotAuthorized):
		f.metrics.ObserveSession("expired")
		logger.Info("stored session is no longer authorized", zap.String("phone", phone))
		return apperr.SessionExpired("re-authentication required")
	default:
		f.metrics.ObserveSession(apperr.KindOf(err).String())
		return err
	}
}
