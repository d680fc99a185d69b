package web

import (
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"telegram-sentiment/internal/domain/apperr"
	"telegram-sentiment/internal/infra/logger"
)

type errorResponse struct {
	Detail            string `json:"detail"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// statusFor переводит вид ошибки в HTTP-статус. Ошибки Telegram для шагов входа -
// 400, для чтения чатов, 500, поэтому статус для KindRemoteService задаёт вызывающий.
func statusFor(kind apperr.Kind, remoteStatus int) int {
	switch kind {
	case apperr.KindValidation, apperr.KindInvalidChat:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindSessionExpired:
		return http.StatusUnauthorized
	case apperr.KindThrottled:
		return http.StatusTooManyRequests
	case apperr.KindRemoteService:
		return remoteStatus
	default:
		return http.StatusInternalServerError
	}
}

// writeError пишет {"detail": ...}. Для 429 добавляет Retry-After.
// Внутренние ошибки клиенту не раскрываются.
func writeError(w http.ResponseWriter, r *http.Request, err error, remoteStatus int) {
	kind := apperr.KindOf(err)
	status := statusFor(kind, remoteStatus)
	body := errorResponse{Detail: err.Error()}

	if e, ok := apperr.As(err); ok && e.Kind == apperr.KindThrottled {
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		body.RetryAfterSeconds = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("kind", kind.String()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
		if kind == apperr.KindInternal {
			body.Detail = "internal server error"
		}
	} else {
		logger.Info("request rejected", fields...)
	}

	writeJSON(w, status, body)
}
