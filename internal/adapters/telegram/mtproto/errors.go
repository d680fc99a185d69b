package mtproto

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/gotd/td/pool"
	"github.com/gotd/td/rpc"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"telegram-sentiment/internal/domain/apperr"
)

// RPC-ошибки, которые означают ошибку ввода пользователя.
var validationRPC = []string{
	"PHONE_CODE_INVALID",
	"PHONE_CODE_EXPIRED",
	"PHONE_CODE_EMPTY",
	"PHONE_CODE_HASH_EMPTY",
	"PHONE_NUMBER_UNOCCUPIED",
	"PHONE_NUMBER_BANNED",
	"API_ID_INVALID",
	"API_ID_PUBLISHED_FLOOD",
}

// RPC-ошибки отозванной или недействительной авторизации.
var expiredRPC = []string{
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_INVALID",
	"AUTH_KEY_DUPLICATED",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
	"USER_DEACTIVATED",
	"USER_DEACTIVATED_BAN",
}

// translate переводит ошибки gotd в доменные варианты apperr.
// Уже переведённые ошибки возвращаются без изменений.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	if wait, ok := tgerr.AsFloodWait(err); ok {
		return apperr.Throttled(wait, err)
	}
	if tgerr.Is(err, "PHONE_NUMBER_INVALID") {
		return &apperr.Error{Kind: apperr.KindValidation, Msg: "invalid phone number format", Err: err}
	}
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return &apperr.Error{Kind: apperr.KindValidation, Msg: "two-step verification is enabled (SESSION_PASSWORD_NEEDED)", Err: err}
	}
	var signUp *auth.SignUpRequired
	if errors.As(err, &signUp) {
		return &apperr.Error{Kind: apperr.KindValidation, Msg: "phone number is not registered in Telegram", Err: err}
	}
	if rpcErr, ok := tgerr.As(err); ok {
		switch {
		case tgerr.Is(err, validationRPC...):
			return &apperr.Error{Kind: apperr.KindValidation, Msg: rpcErr.Type, Err: err}
		case tgerr.Is(err, expiredRPC...):
			return &apperr.Error{Kind: apperr.KindSessionExpired, Msg: "re-authentication required", Err: err}
		default:
			return apperr.Remote("telegram error "+rpcErr.Type, err)
		}
	}
	if isNetworkError(err) {
		return apperr.Remote("telegram is unreachable", err)
	}
	return apperr.Remote("telegram request failed", err)
}

// isNetworkError: признак обрыва или недоступности транспорта MTProto.
func isNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, pool.ErrConnDead) || errors.Is(err, rpc.ErrEngineClosed) {
		return true
	}
	var retryErr *rpc.RetryLimitReachedErr
	if errors.As(err, &retryErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
