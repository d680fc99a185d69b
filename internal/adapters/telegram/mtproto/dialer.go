// Package mtproto адаптирует gotd/td: поднимает MTProto-соединение на время
// одного запроса и реализует remote.Conn. Ошибки gotd переводятся в apperr
// здесь, домен с типами gotd не работает.
package mtproto

import (
	"context"
	"time"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"telegram-sentiment/internal/domain/accounts"
	"telegram-sentiment/internal/domain/apperr"
	"telegram-sentiment/internal/domain/remote"
	"telegram-sentiment/internal/infra/logger"
)

// Options: параметры клиента.
type Options struct {
	// TestDC переключает клиента на тестовые DC Telegram.
	TestDC bool
	// RPS ограничивает частоту RPC на одно соединение.
	RPS float64
	// FloodMaxWait: сколько FLOOD_WAIT middleware готов переждать сам.
	// Более долгое ожидание возвращается вызывающему как Throttled.
	FloodMaxWait time.Duration
	// Device: паспорт устройства, который видит пользователь в списке сессий.
	Device telegram.DeviceConfig
}

// Dialer создаёт gotd-клиент на каждый запрос.
type Dialer struct {
	opts  Options
	peers *PeerCache
}

var _ remote.Dialer = (*Dialer)(nil)

// NewDialer создаёт Dialer. peers может быть nil: тогда каждый неизвестный
// chat id разрешается выгрузкой диалогов.
func NewDialer(opts Options, peers *PeerCache) *Dialer {
	if opts.RPS <= 0 {
		opts.RPS = 3
	}
	if opts.FloodMaxWait <= 0 {
		opts.FloodMaxWait = 5 * time.Second
	}
	if opts.Device.DeviceModel == "" {
		opts.Device = telegram.DeviceConfig{
			DeviceModel:   "telegram-sentiment",
			SystemVersion: "linux",
			AppVersion:    "1.0",
		}
	}
	return &Dialer{opts: opts, peers: peers}
}

func (d *Dialer) clientOptions(tokens *tokenStorage) telegram.Options {
	burst := max(int(d.opts.RPS*2), 1) //nolint:mnd // burst = 2*rate
	options := telegram.Options{
		SessionStorage: tokens,
		NoUpdates:      true,
		Middlewares: []telegram.Middleware{
			floodwait.NewSimpleWaiter().WithMaxWait(d.opts.FloodMaxWait),
			ratelimit.New(rate.Limit(d.opts.RPS), burst),
		},
		Device: d.opts.Device,
		Logger: logger.Logger().Named("mtproto").WithOptions(zap.IncreaseLevel(zap.WarnLevel)),
	}
	if d.opts.TestDC {
		options.DCList = dcs.Test()
	}
	return options
}

// Dial поднимает соединение с токеном cred.SessionToken (пустой, новая сессия),
// выполняет fn и закрывает соединение при любом исходе.
//
// Ошибка fn возвращается без изменений. Ошибка до запуска fn (подключение,
// handshake с DC) оборачивается в RemoteServiceError.
func (d *Dialer) Dial(ctx context.Context, cred accounts.Credential, fn func(ctx context.Context, conn remote.Conn) error) error {
	tokens := newTokenStorage(cred.SessionToken)
	client := telegram.NewClient(cred.APIID, cred.APISecret, d.clientOptions(tokens))

	var (
		ran   bool
		fnErr error
	)
	runErr := client.Run(ctx, func(ctx context.Context) error {
		ran = true
		fnErr = fn(ctx, &conn{
			client: client,
			api:    client.API(),
			tokens: tokens,
			peers:  d.peers.forPhone(cred.Phone),
		})
		return fnErr
	})

	if !ran {
		if runErr == nil {
			return apperr.Remote("connect to Telegram", context.Canceled)
		}
		logger.Warn("telegram connect failed", zap.String("phone", cred.Phone), zap.Error(runErr))
		return apperr.Remote("connect to Telegram", runErr)
	}
	if fnErr != nil {
		return fnErr
	}
	if runErr != nil {
		logger.Debug("telegram client stopped with error", zap.String("phone", cred.Phone), zap.Error(runErr))
	}
	return nil
}
