// Package inference реализует HTTP-клиент модели тональности в формате text-classification
// (Hugging Face Inference API и совместимые серверы). Реализует sentiment.Model.
//
// Запрос: POST {"inputs": "<text>"}. Ответ: [[{"label","score"}, ...]] или
// [{"label","score"}, ...]; берётся метка с максимальной оценкой.
// Пока модель загружается, сервер отвечает 503 с estimated_time, клиент ждёт
// указанное время и повторяет запрос.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"telegram-sentiment/internal/domain/sentiment"
	"telegram-sentiment/internal/infra/logger"
	"telegram-sentiment/internal/infra/throttle"
)

const (
	maxBodyBytes   = 1 << 20
	defaultRetries = 3
	// maxLoadingWait: дольше этого ждать прогрева модели не будем.
	maxLoadingWait = 2 * time.Minute
	// maxLoadingWaits: столько раз подряд модель может ответить 503 "loading".
	maxLoadingWaits = 5
)

// Options: параметры клиента.
type Options struct {
	URL        string
	Token      string
	Timeout    time.Duration
	RPS        float64
	MaxRetries int
	HTTPClient *http.Client
}

// Client вызывает удалённую модель. Безопасен для конкурентного использования.
type Client struct {
	url       string
	token     string
	http      *http.Client
	throttler *throttle.Throttler
}

var _ sentiment.Model = (*Client)(nil)

// New создаёт клиента. URL обязателен.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("inference: model url is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultRetries
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		url:   opts.URL,
		token: opts.Token,
		http:  httpClient,
		throttler: throttle.New(opts.RPS,
			throttle.WithMaxRetries(opts.MaxRetries),
			throttle.WithMaxWait(maxLoadingWait),
			throttle.WithMaxServerWaits(maxLoadingWaits),
			throttle.WithWaitExtractors(LoadingWaitExtractor()),
		),
	}, nil
}

// LoadingError: модель ещё загружается (503 с estimated_time).
type LoadingError struct {
	Estimated time.Duration
	Message   string
}

func (e *LoadingError) Error() string {
	return fmt.Sprintf("model is loading (estimated %s): %s", e.Estimated, e.Message)
}

// StatusError: ответ сервера с неуспешным статусом.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model server returned %d: %s", e.Code, e.Body)
}

// StopRetry: ошибки клиента (4xx, кроме 429) повторять бессмысленно.
func (e *StatusError) StopRetry() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests
}

// LoadingWaitExtractor превращает LoadingError в паузу для троттлера.
func LoadingWaitExtractor() throttle.WaitExtractor {
	return func(err error) (time.Duration, bool) {
		var loading *LoadingError
		if !errors.As(err, &loading) {
			return 0, false
		}
		return loading.Estimated, true
	}
}

type request struct {
	Inputs string `json:"inputs"`
}

type label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type errorBody struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// Classify отправляет text модели и возвращает самую вероятную метку.
func (c *Client) Classify(ctx context.Context, text string) (sentiment.Prediction, error) {
	payload, err := json.Marshal(request{Inputs: text})
	if err != nil {
		return sentiment.Prediction{}, fmt.Errorf("inference: encode request: %w", err)
	}

	// Все повторы одного текста идут с одним X-Request-ID.
	requestID := uuid.NewString()
	var pred sentiment.Prediction
	err = c.throttler.Do(ctx, func() error {
		var callErr error
		pred, callErr = c.call(ctx, requestID, payload)
		if callErr != nil {
			logger.Debug("inference call failed", zap.String("request_id", requestID), zap.Error(callErr))
		}
		return callErr
	})
	if err != nil {
		return sentiment.Prediction{}, fmt.Errorf("inference: %w", err)
	}
	return pred, nil
}

func (c *Client) call(ctx context.Context, requestID string, payload []byte) (sentiment.Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return sentiment.Prediction{}, &StatusError{Code: http.StatusBadRequest, Body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return sentiment.Prediction{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return sentiment.Prediction{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.EstimatedTime > 0 {
			return sentiment.Prediction{}, &LoadingError{
				Estimated: time.Duration(eb.EstimatedTime * float64(time.Second)),
				Message:   eb.Error,
			}
		}
	}
	if resp.StatusCode != http.StatusOK {
		return sentiment.Prediction{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return parsePrediction(body)
}

// parsePrediction разбирает оба формата ответа и выбирает метку с максимальной оценкой.
func parsePrediction(body []byte) (sentiment.Prediction, error) {
	var labels []label

	var nested [][]label
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
		labels = nested[0]
	} else if err := json.Unmarshal(body, &labels); err != nil {
		return sentiment.Prediction{}, &StatusError{Code: http.StatusUnprocessableEntity, Body: "unexpected response: " + string(body)}
	}

	if len(labels) == 0 {
		return sentiment.Prediction{}, &StatusError{Code: http.StatusUnprocessableEntity, Body: "empty prediction"}
	}

	best := labels[0]
	for _, l := range labels[1:] {
		if l.Score > best.Score {
			best = l
		}
	}
	return sentiment.Prediction{Label: strings.ToUpper(best.Label), Score: best.Score}, nil
}
