package web

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"go.uber.org/zap"

	"telegram-sentiment/internal/infra/logger"
)

// writeJSON сериализует v и отправляет со статусом status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to encode response", zap.Error(err))
		http.Error(w, `{"detail":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeResponse(w, data)
}

// writeResponse записывает ответ и логирует сбой записи вместе с местом вызова.
func writeResponse(w http.ResponseWriter, data []byte) {
	_, writeErr := w.Write(data)
	if writeErr == nil {
		return
	}

	callerLocation := "unknown"
	if _, file, line, ok := runtime.Caller(1); ok {
		if wd, getwdErr := os.Getwd(); getwdErr == nil {
			if rel, relErr := filepath.Rel(wd, file); relErr == nil {
				file = rel
			}
		}
		callerLocation = file + ":" + strconv.Itoa(line)
	}

	logger.Error("failed to write response",
		zap.String("caller", callerLocation),
		zap.Error(writeErr))
}
