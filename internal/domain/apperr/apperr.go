// Package apperr задаёт закрытый набор доменных ошибок сервиса.
// Ошибки внешних зависимостей (gotd, PostgreSQL, модель) переводятся в эти
// варианты на границе адаптеров, поэтому домен и HTTP-слой никогда не
// разбирают конкретные типы ошибок сторонних библиотек.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind: тег варианта ошибки.
type Kind int

const (
	KindInternal       Kind = iota // непредвиденный сбой
	KindValidation                 // некорректный ввод, неверный/просроченный код
	KindNotFound                   // нет записи аккаунта
	KindSessionExpired             // сохранённая сессия больше не авторизована
	KindThrottled                  // FLOOD_WAIT от Telegram
	KindRemoteService              // прочие ошибки Telegram/транспорта
	KindInvalidChat                // chat_id не удалось разрешить
)

// String возвращает имя варианта для логов и метрик.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindSessionExpired:
		return "session_expired"
	case KindThrottled:
		return "throttled"
	case KindRemoteService:
		return "remote_service"
	case KindInvalidChat:
		return "invalid_chat"
	default:
		return "internal"
	}
}

// Error: доменная ошибка. Msg уходит клиенту как есть, Err сохраняет причину
// для errors.Is/As и логов. RetryAfter заполняется только для KindThrottled.
type Error struct {
	Kind       Kind
	Msg        string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is позволяет сравнивать с шаблонами вида &Error{Kind: KindNotFound}.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// Шаблоны для errors.Is.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrSessionExpired = &Error{Kind: KindSessionExpired}
	ErrThrottled      = &Error{Kind: KindThrottled}
	ErrRemoteService  = &Error{Kind: KindRemoteService}
	ErrInvalidChat    = &Error{Kind: KindInvalidChat}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

func SessionExpired(msg string) error {
	return &Error{Kind: KindSessionExpired, Msg: msg}
}

// Throttled сообщает обязательную паузу перед повтором.
func Throttled(wait time.Duration, err error) error {
	return &Error{
		Kind:       KindThrottled,
		Msg:        fmt.Sprintf("rate limited by Telegram, retry after %d seconds", int(wait.Round(time.Second)/time.Second)),
		RetryAfter: wait,
		Err:        err,
	}
}

// Remote оборачивает ошибку внешнего сервиса; сообщение причины сохраняется.
func Remote(msg string, err error) error {
	return &Error{Kind: KindRemoteService, Msg: msg, Err: err}
}

func InvalidChat(chatID int64, err error) error {
	return &Error{Kind: KindInvalidChat, Msg: fmt.Sprintf("chat %d not found (invalid id)", chatID), Err: err}
}

func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf возвращает вариант ошибки; всё, что не является *Error, считается KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As возвращает *Error из цепочки, если он там есть.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
