package mtproto

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"

	"telegram-sentiment/internal/domain/remote"
	"telegram-sentiment/internal/tgutil"
)

const historyPageLimit = 100

// rpcError отличает сбой API от ошибки колбэка при обходе истории.
type rpcError struct{ err error }

func (e *rpcError) Error() string { return e.err.Error() }
func (e *rpcError) Unwrap() error { return e.err }

// historyPage: сообщения одной страницы MessagesGetHistory.
type historyPage struct {
	messages []tg.MessageClass
	users    []tg.UserClass
	chats    []tg.ChatClass
}

func normalizeHistoryResponse(resp tg.MessagesMessagesClass) (historyPage, error) {
	switch data := resp.(type) {
	case *tg.MessagesMessages:
		return historyPage{messages: data.Messages, users: data.Users, chats: data.Chats}, nil
	case *tg.MessagesMessagesSlice:
		return historyPage{messages: data.Messages, users: data.Users, chats: data.Chats}, nil
	case *tg.MessagesChannelMessages:
		return historyPage{messages: data.Messages, users: data.Users, chats: data.Chats}, nil
	case *tg.MessagesMessagesNotModified:
		return historyPage{}, nil
	default:
		return historyPage{}, fmt.Errorf("unexpected history response: %T", resp)
	}
}

// iterHistory обходит историю peer от новых сообщений к старым, до limit штук.
// Служебные сообщения входят в limit и отдаются в fn с пустым текстом.
func iterHistory(ctx context.Context, api *tg.Client, peer tg.InputPeerClass, limit int, onPage func(historyPage), fn func(remote.Message) error) error {
	offsetID := 0
	seen := 0

	for seen < limit {
		pageLimit := min(historyPageLimit, limit-seen)
		resp, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    pageLimit,
		})
		if err != nil {
			return &rpcError{err: fmt.Errorf("MessagesGetHistory: %w", err)}
		}

		page, err := normalizeHistoryResponse(resp)
		if err != nil {
			return &rpcError{err: err}
		}
		if len(page.messages) == 0 {
			return nil
		}
		if onPage != nil {
			onPage(page)
		}

		for _, raw := range page.messages {
			if seen >= limit {
				return nil
			}
			switch m := raw.(type) {
			case *tg.Message:
				seen++
				if err := fn(toMessage(m)); err != nil {
					return err
				}
				offsetID = m.ID
			case *tg.MessageService:
				seen++
				if err := fn(remote.Message{ID: m.ID}); err != nil {
					return err
				}
				offsetID = m.ID
			case *tg.MessageEmpty:
				offsetID = m.ID
			}
		}

		if len(page.messages) < pageLimit {
			return nil
		}
	}
	return nil
}

// toMessage переводит сообщение API в доменное. Отправитель, marked id:
// from_id, если он есть, иначе сам peer для входящих в личке и постов канала.
func toMessage(m *tg.Message) remote.Message {
	msg := remote.Message{ID: m.ID, Text: m.Message}

	if from, ok := m.GetFromID(); ok {
		id := tgutil.MarkedPeerID(from)
		msg.SenderID = &id
		return msg
	}
	switch m.PeerID.(type) {
	case *tg.PeerUser, *tg.PeerChannel:
		if !m.Out {
			id := tgutil.MarkedPeerID(m.PeerID)
			msg.SenderID = &id
		}
	}
	return msg
}
