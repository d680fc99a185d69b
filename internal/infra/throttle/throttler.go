// Package throttle реализует ограничение частоты и повторные попытки для внешних вызовов
// (HTTP-модель тональности). В основе токен-бакет golang.org/x/time/rate и
// экспоненциальный backoff с джиттером. Серверные указания подождать (503 с
// estimated_time, Retry-After) распознаются через WaitExtractor.
// Throttler потокобезопасен: Do может вызываться параллельно.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

const (
	// burstMultiplier задаёт burst по умолчанию как кратное rate.
	burstMultiplier = 2
	// defaultMaxServerWaits: сколько раз подряд можно выполнить серверную паузу.
	defaultMaxServerWaits = 10
)

// WaitExtractor анализирует ошибку и возвращает паузу, которую попросил сервер.
// Первый распознавший экстрактор определяет паузу.
type WaitExtractor func(err error) (time.Duration, bool)

// StopRetryer: ошибка, после которой повторять бессмысленно.
type StopRetryer interface {
	StopRetry() bool
}

// Option задаёт параметры Throttler.
type Option func(*Throttler)

// WithMaxRetries ограничивает число повторов. <=0, без ограничения.
func WithMaxRetries(n int) Option {
	return func(t *Throttler) { t.maxRetries = n }
}

// WithBurst переопределяет ёмкость бакета.
func WithBurst(burst int) Option {
	return func(t *Throttler) { t.burst = burst }
}

// WithMaxWait ограничивает серверную паузу: если сервер просит ждать дольше,
// Do возвращает ошибку сразу.
func WithMaxWait(d time.Duration) Option {
	return func(t *Throttler) { t.maxWait = d }
}

// WithMaxServerWaits ограничивает число серверных пауз за один Do.
// Эти паузы не расходуют maxRetries и считаются отдельно. <=0, без ограничения.
func WithMaxServerWaits(n int) Option {
	return func(t *Throttler) { t.maxServerWaits = n }
}

// WithWaitExtractors регистрирует экстракторы серверных задержек.
func WithWaitExtractors(extractors ...WaitExtractor) Option {
	return func(t *Throttler) {
		t.waitExtractors = append(t.waitExtractors, extractors...)
	}
}

// WithRandom подменяет источник джиттера (для тестов).
func WithRandom(fn func() float64) Option {
	return func(t *Throttler) {
		if fn != nil {
			t.randomFn = fn
		}
	}
}

// Throttler: токен-бакет плюс стратегия повторов.
type Throttler struct {
	limiter *rate.Limiter
	burst   int

	waitExtractors []WaitExtractor
	maxRetries     int
	maxWait        time.Duration
	maxServerWaits int

	randomFn func() float64
}

// New создаёт троттлер на rps операций в секунду. burst по умолчанию 2*rps.
func New(rps float64, opts ...Option) *Throttler {
	if rps <= 0 {
		rps = 1
	}
	t := &Throttler{
		maxRetries:     -1,
		maxServerWaits: defaultMaxServerWaits,
		randomFn:       rand.Float64,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.burst <= 0 {
		t.burst = int(math.Ceil(rps * burstMultiplier))
	}
	t.limiter = rate.NewLimiter(rate.Limit(rps), t.burst)
	return t
}

// Do выполняет fn с учётом лимита и повторов:
//  1. ждём токен (с уважением к ctx);
//  2. вызываем fn;
//  3. StopRetryer или отмена ctx → вернуть ошибку; сервер назвал паузу →
//     подождать и повторить без роста attempt (но не больше maxServerWaits раз);
//     иначе backoff с джиттером.
func (t *Throttler) Do(ctx context.Context, fn func() error) error {
	attempt, serverWaits := 0, 0
	for {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}

		callErr := fn()
		if callErr == nil {
			return nil
		}

		var stopper StopRetryer
		waitDur, hasWait := t.extractWait(callErr)

		switch {
		case errors.As(callErr, &stopper) && stopper.StopRetry():
			return callErr
		case errors.Is(callErr, context.Canceled) || errors.Is(callErr, context.DeadlineExceeded):
			return callErr
		case hasWait:
			if t.maxWait > 0 && waitDur > t.maxWait {
				return callErr
			}
			if t.maxServerWaits > 0 && serverWaits >= t.maxServerWaits {
				return fmt.Errorf("throttle: server asked to wait %d times: last error: %w", serverWaits, callErr)
			}
			serverWaits++
			if err := sleep(ctx, waitDur); err != nil {
				return err
			}
			continue
		}

		if t.maxRetries > 0 && attempt >= t.maxRetries {
			return fmt.Errorf("throttle: max retries reached (%d): last error: %w", t.maxRetries, callErr)
		}

		d := t.expBackoff(attempt)
		attempt++
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
}

func (t *Throttler) extractWait(err error) (time.Duration, bool) {
	for _, extractor := range t.waitExtractors {
		if extractor == nil {
			continue
		}
		if wait, ok := extractor(err); ok {
			return wait, true
		}
	}
	return 0, false
}

// expBackoff: 2^attempt секунд, не больше 60с, с джиттером [0.85..1.15].
func (t *Throttler) expBackoff(attempt int) time.Duration {
	const (
		jitterRange = 0.3
		jitterMin   = 0.85
		maxSeconds  = 60.0
	)
	base := math.Min(math.Pow(2, float64(attempt)), maxSeconds)
	seconds := base * (t.randomFn()*jitterRange + jitterMin)
	return time.Duration(seconds * float64(time.Second))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
