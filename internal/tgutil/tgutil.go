// Package tgutil содержит преобразования идентификаторов Telegram.
//
// Marked id, единое знаковое представление чата, которое отдаёт /chats и
// принимает /analyze: пользователь > 0, обычная группа = -id,
// канал и супергруппа = -(1000000000000 + id).
package tgutil

import "github.com/gotd/td/tg"

// PeerKind: тип peer, закодированный в marked id.
type PeerKind int

const (
	PeerUnknown PeerKind = iota
	PeerUser
	PeerChat
	PeerChannel
)

const channelShift int64 = 1_000_000_000_000

// GetPeerID нормализует peer до его числового идентификатора (user/chat/channel).
// Возвращает 0 для неизвестного типа peer.
func GetPeerID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return p.ChatID
	case *tg.PeerChannel:
		return p.ChannelID
	default:
		return 0
	}
}

// MarkedID кодирует пару (kind, id) в marked id.
func MarkedID(kind PeerKind, id int64) int64 {
	switch kind {
	case PeerUser:
		return id
	case PeerChat:
		return -id
	case PeerChannel:
		return -(channelShift + id)
	default:
		return 0
	}
}

// MarkedPeerID: marked id для peer из ответа API.
func MarkedPeerID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return MarkedID(PeerUser, p.UserID)
	case *tg.PeerChat:
		return MarkedID(PeerChat, p.ChatID)
	case *tg.PeerChannel:
		return MarkedID(PeerChannel, p.ChannelID)
	default:
		return 0
	}
}

// UnmarkID разбирает marked id. Для 0 возвращает PeerUnknown.
func UnmarkID(marked int64) (PeerKind, int64) {
	switch {
	case marked > 0:
		return PeerUser, marked
	case marked == 0:
		return PeerUnknown, 0
	case marked <= -channelShift:
		return PeerChannel, -marked - channelShift
	default:
		return PeerChat, -marked
	}
}
