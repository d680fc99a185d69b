// Package auth реализует двухшаговый вход в Telegram: запрос кода и его проверку.
//
// Состояния номера: UNREGISTERED → CODE_SENT (после Login) → AUTHENTICATED
// (после Verify). Состояние живёт только в Session Store: между Login и Verify
// процесс может перезапуститься, промежуточная сессия восстанавливается из токена.
package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"telegram-sentiment/internal/domain/accounts"
	"telegram-sentiment/internal/domain/apperr"
	"telegram-sentiment/internal/domain/remote"
	"telegram-sentiment/internal/infra/logger"
	"telegram-sentiment/internal/infra/metrics"
)

// Статусы ответа handshake.
const (
	StatusAuthorized     = "authorized"
	StatusWaitingForCode = "waiting_for_code"
	StatusSuccess        = "success"
)

// Result: итог шага handshake. CodeHash заполнен только для StatusWaitingForCode.
type Result struct {
	Status   string
	CodeHash string
}

// Store: операции Session Store, которые использует handshake.
type Store interface {
	Get(ctx context.Context, phone string) (accounts.Credential, error)
	Upsert(ctx context.Context, cred accounts.Credential) error
	UpdateToken(ctx context.Context, phone, token string) error
}

// Controller проводит login/verify.
type Controller struct {
	store   Store
	dialer  remote.Dialer
	metrics *metrics.Metrics
}

// NewController создаёт контроллер. m может быть nil.
func NewController(store Store, dialer remote.Dialer, m *metrics.Metrics) *Controller {
	return &Controller{store: store, dialer: dialer, metrics: m}
}

var phoneRe = regexp.MustCompile(`^\+?[0-9]{5,15}$`)

// NormalizePhone убирает пробелы, дефисы и скобки.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

func validatePhone(phone string) error {
	if !phoneRe.MatchString(phone) {
		return apperr.Validation("invalid phone number format")
	}
	return nil
}

func validateAPI(apiID int, apiSecret string) error {
	if apiID <= 0 {
		return apperr.Validation("api_id must be a positive integer")
	}
	if strings.TrimSpace(apiSecret) == "" {
		return apperr.Validation("api_hash must not be empty")
	}
	return nil
}

// Login запрашивает код подтверждения.
//
// Если для номера уже есть строка, соединение поднимается с сохранённым токеном:
// уже авторизованная сессия возвращает StatusAuthorized без запроса кода и без
// записи в хранилище. Если с сохранённым токеном вход не удался (ключ отозван,
// соединение не поднимается), попытка повторяется со свежим ключом.
// Совпадение api_id/api_hash с сохранёнными не проверяется.
func (c *Controller) Login(ctx context.Context, apiID int, apiSecret, phone string) (res Result, err error) {
	defer func() { c.observe("login", err) }()

	phone = NormalizePhone(phone)
	if err := validatePhone(phone); err != nil {
		return Result{}, err
	}
	if err := validateAPI(apiID, apiSecret); err != nil {
		return Result{}, err
	}

	cred := accounts.Credential{Phone: phone, APIID: apiID, APISecret: apiSecret}
	stored, err := c.store.Get(ctx, phone)
	switch {
	case err == nil:
		cred.SessionToken = stored.SessionToken
	case errors.Is(err, apperr.ErrNotFound):
	default:
		return Result{}, apperr.Internal("load session", err)
	}

	authorized, codeHash, token, err := c.requestCode(ctx, cred)
	if err != nil && cred.SessionToken != "" && retryFresh(err) {
		// Сохранённый ключ мог умереть: тогда с ним не поднимается даже
		// соединение. Повторяем вход с чистого, неавторизованного ключа.
		logger.Info("login: stored session unusable, retrying with a fresh key",
			zap.String("phone", phone), zap.Error(err))
		cred.SessionToken = ""
		authorized, codeHash, token, err = c.requestCode(ctx, cred)
	}
	if err != nil {
		return Result{}, err
	}

	if authorized {
		logger.Info("login: session already authorized", zap.String("phone", phone))
		return Result{Status: StatusAuthorized}, nil
	}

	cred.SessionToken = token
	if err := c.store.Upsert(ctx, cred); err != nil {
		return Result{}, apperr.Internal("store session", err)
	}
	logger.Info("login: code sent", zap.String("phone", phone))
	return Result{Status: StatusWaitingForCode, CodeHash: codeHash}, nil
}

// requestCode поднимает соединение с cred и либо видит готовую авторизацию,
// либо запрашивает код и возвращает pre-auth токен.
func (c *Controller) requestCode(ctx context.Context, cred accounts.Credential) (authorized bool, codeHash, token string, err error) {
	err = c.dialer.Dial(ctx, cred, func(ctx context.Context, conn remote.Conn) error {
		ok, err := conn.Authorized(ctx)
		if err != nil {
			return remoteErr(err)
		}
		if ok {
			authorized = true
			return nil
		}

		codeHash, err = conn.SendCode(ctx, cred.Phone)
		if err != nil {
			return remoteErr(err)
		}
		token, err = conn.SessionToken(ctx)
		if err != nil {
			return apperr.Internal("serialize session", err)
		}
		return nil
	})
	if err != nil {
		return false, "", "", remoteErr(err)
	}
	return authorized, codeHash, token, nil
}

// retryFresh: стоит ли повторить вход без сохранённого токена. Ошибки ввода,
// FLOOD_WAIT и внутренние сбои от смены ключа не исчезнут.
func retryFresh(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindRemoteService, apperr.KindSessionExpired:
		return true
	default:
		return false
	}
}

// Verify подтверждает вход кодом. Нужен предшествующий Login для phone.
// apiID/apiSecret используются только для соединения, сохранённые значения не меняются.
func (c *Controller) Verify(ctx context.Context, phone, code, codeHash string, apiID int, apiSecret string) (res Result, err error) {
	defer func() { c.observe("verify", err) }()

	phone = NormalizePhone(phone)
	if err := validatePhone(phone); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(code) == "" {
		return Result{}, apperr.Validation("code must not be empty")
	}
	if strings.TrimSpace(codeHash) == "" {
		return Result{}, apperr.Validation("phone_code_hash must not be empty")
	}
	if err := validateAPI(apiID, apiSecret); err != nil {
		return Result{}, err
	}

	stored, err := c.store.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Result{}, err
		}
		return Result{}, apperr.Internal("load session", err)
	}

	dialCred := accounts.Credential{
		Phone:        phone,
		APIID:        apiID,
		APISecret:    apiSecret,
		SessionToken: stored.SessionToken,
	}

	var token string
	err = c.dialer.Dial(ctx, dialCred, func(ctx context.Context, conn remote.Conn) error {
		if err := conn.SignIn(ctx, phone, strings.TrimSpace(code), codeHash); err != nil {
			return signInErr(err)
		}
		var err error
		token, err = conn.SessionToken(ctx)
		if err != nil {
			return apperr.Internal("serialize session", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, remoteErr(err)
	}

	if err := c.store.UpdateToken(ctx, phone, token); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Result{}, err
		}
		return Result{}, apperr.Internal("store session", err)
	}
	logger.Info("verify: signed in", zap.String("phone", phone))
	return Result{Status: StatusSuccess}, nil
}

func (c *Controller) observe(step string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	c.metrics.ObserveHandshake(step, outcome)
}

// remoteErr оставляет доменные ошибки как есть, остальное считает сбоем Telegram.
func remoteErr(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Remote("telegram request failed", err)
}

// signInErr: отказ при вводе кода, ошибка клиента с текстом Telegram.
// FLOOD_WAIT и внутренние сбои сохраняют свой вид.
func signInErr(err error) error {
	e, ok := apperr.As(err)
	if ok {
		switch e.Kind {
		case apperr.KindThrottled, apperr.KindValidation, apperr.KindInternal:
			return err
		}
	}
	return &apperr.Error{Kind: apperr.KindValidation, Msg: err.Error(), Err: err}
}
