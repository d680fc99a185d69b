package mtproto

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"telegram-sentiment/internal/domain/remote"
	"telegram-sentiment/internal/tgutil"
)

const (
	dialogFetchPageLimit  = 100
	dialogFetchZeroOffset = 0
	// dialogScanLimit ограничивает выгрузку при разрешении неизвестного chat id.
	dialogScanLimit = 1000
	noTitle         = "No Title"
)

var errDialogsNotModified = errors.New("dialogs not modified")

// fetchDialogs выгружает до maxDialogs диалогов через MessagesGetDialogs.
// Пагинация по (offset_date, offset_id, offset_peer) с накопленными access_hash.
func fetchDialogs(ctx context.Context, api *tg.Client, maxDialogs int) (*tg.MessagesDialogs, error) {
	result := &tg.MessagesDialogs{}

	offsetDate := dialogFetchZeroOffset
	offsetID := dialogFetchZeroOffset
	var offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}

	userHashes := make(map[int64]int64)
	channelHashes := make(map[int64]int64)

	for len(result.Dialogs) < maxDialogs {
		pageLimit := min(dialogFetchPageLimit, maxDialogs-len(result.Dialogs))
		resp, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      pageLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("MessagesGetDialogs: %w", err)
		}

		batch, err := normalizeDialogsResponse(resp)
		if err != nil {
			if errors.Is(err, errDialogsNotModified) {
				return result, nil
			}
			return nil, err
		}
		if len(batch.Dialogs) == 0 {
			break
		}

		result.Dialogs = append(result.Dialogs, batch.Dialogs...)
		result.Messages = append(result.Messages, batch.Messages...)
		result.Chats = append(result.Chats, batch.Chats...)
		result.Users = append(result.Users, batch.Users...)

		updateHashesFromBatch(batch, userHashes, channelHashes)

		lastDialog := batch.Dialogs[len(batch.Dialogs)-1]
		prevOffsetDate := offsetDate
		prevOffsetID := offsetID

		switch dlg := lastDialog.(type) {
		case *tg.Dialog:
			offsetID = dlg.TopMessage
			offsetDate = messageDate(batch.Messages, dlg.TopMessage)
			offsetPeer = dialogPeerToInput(dlg.Peer, userHashes, channelHashes)
		case *tg.DialogFolder:
			offsetID = dlg.TopMessage
			offsetDate = messageDate(batch.Messages, dlg.TopMessage)
			offsetPeer = dialogPeerToInput(dlg.Peer, userHashes, channelHashes)
		default:
			offsetPeer = &tg.InputPeerEmpty{}
		}

		if offsetDate == dialogFetchZeroOffset {
			offsetDate = prevOffsetDate
		}
		if offsetID == dialogFetchZeroOffset {
			offsetID = prevOffsetID
		}

		if len(batch.Dialogs) < pageLimit {
			break
		}
	}

	return result, nil
}

func normalizeDialogsResponse(resp tg.MessagesDialogsClass) (*tg.MessagesDialogs, error) {
	switch data := resp.(type) {
	case *tg.MessagesDialogs:
		return data, nil
	case *tg.MessagesDialogsSlice:
		return &tg.MessagesDialogs{
			Dialogs:  data.Dialogs,
			Messages: data.Messages,
			Chats:    data.Chats,
			Users:    data.Users,
		}, nil
	case *tg.MessagesDialogsNotModified:
		return nil, errDialogsNotModified
	default:
		return nil, fmt.Errorf("unexpected dialogs response: %T", resp)
	}
}

func updateHashesFromBatch(batch *tg.MessagesDialogs, userHashes, channelHashes map[int64]int64) {
	for _, entity := range batch.Users {
		if user, ok := entity.(*tg.User); ok {
			userHashes[user.ID] = user.AccessHash
		}
	}
	for _, entity := range batch.Chats {
		if channel, ok := entity.(*tg.Channel); ok {
			channelHashes[channel.ID] = channel.AccessHash
		}
	}
}

func messageDate(messages []tg.MessageClass, id int) int {
	for _, msg := range messages {
		switch item := msg.(type) {
		case *tg.Message:
			if item.ID == id {
				return item.Date
			}
		case *tg.MessageService:
			if item.ID == id {
				return item.Date
			}
		}
	}
	return dialogFetchZeroOffset
}

func dialogPeerToInput(peer tg.PeerClass, userHashes, channelHashes map[int64]int64) tg.InputPeerClass {
	switch entity := peer.(type) {
	case *tg.PeerUser:
		return &tg.InputPeerUser{
			UserID:     entity.UserID,
			AccessHash: userHashes[entity.UserID],
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: entity.ChatID}
	case *tg.PeerChannel:
		return &tg.InputPeerChannel{
			ChannelID:  entity.ChannelID,
			AccessHash: channelHashes[entity.ChannelID],
		}
	default:
		return &tg.InputPeerEmpty{}
	}
}

// dialogIndex: сущности выгрузки по marked id.
type dialogIndex struct {
	users map[int64]*tg.User
	chats map[int64]tg.ChatClass
}

func indexDialogs(batch *tg.MessagesDialogs) dialogIndex {
	idx := dialogIndex{
		users: make(map[int64]*tg.User, len(batch.Users)),
		chats: make(map[int64]tg.ChatClass, len(batch.Chats)),
	}
	for _, u := range batch.Users {
		if user, ok := u.(*tg.User); ok {
			idx.users[user.ID] = user
		}
	}
	for _, c := range batch.Chats {
		switch chat := c.(type) {
		case *tg.Chat:
			idx.chats[tgutil.MarkedID(tgutil.PeerChat, chat.ID)] = chat
		case *tg.ChatForbidden:
			idx.chats[tgutil.MarkedID(tgutil.PeerChat, chat.ID)] = chat
		case *tg.Channel:
			idx.chats[tgutil.MarkedID(tgutil.PeerChannel, chat.ID)] = chat
		case *tg.ChannelForbidden:
			idx.chats[tgutil.MarkedID(tgutil.PeerChannel, chat.ID)] = chat
		}
	}
	return idx
}

// chatsFromDialogs превращает выгрузку в список диалогов ответа /chats.
// Папки пропускаются. Пустое название заменяется на "No Title".
func chatsFromDialogs(batch *tg.MessagesDialogs, limit int) []remote.Chat {
	idx := indexDialogs(batch)
	chats := make([]remote.Chat, 0, min(limit, len(batch.Dialogs)))

	for _, d := range batch.Dialogs {
		if len(chats) >= limit {
			break
		}
		dlg, ok := d.(*tg.Dialog)
		if !ok {
			continue
		}

		marked := tgutil.MarkedPeerID(dlg.Peer)
		chat := remote.Chat{ID: marked}
		switch p := dlg.Peer.(type) {
		case *tg.PeerUser:
			chat.Type = remote.ChatPrivate
			chat.Title = userTitle(idx.users[p.UserID])
		default:
			chat.Title, chat.Type = chatTitle(idx.chats[marked])
		}
		if strings.TrimSpace(chat.Title) == "" {
			chat.Title = noTitle
		}
		chats = append(chats, chat)
	}
	return chats
}

func userTitle(u *tg.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" && u.Deleted {
		return "Deleted Account"
	}
	return name
}

// chatTitle: супергруппы считаются группами, каналами только broadcast.
func chatTitle(c tg.ChatClass) (string, remote.ChatType) {
	switch chat := c.(type) {
	case *tg.Chat:
		return chat.Title, remote.ChatGroup
	case *tg.ChatForbidden:
		return chat.Title, remote.ChatGroup
	case *tg.Channel:
		if chat.Broadcast {
			return chat.Title, remote.ChatChannel
		}
		return chat.Title, remote.ChatGroup
	case *tg.ChannelForbidden:
		if chat.Broadcast {
			return chat.Title, remote.ChatChannel
		}
		return chat.Title, remote.ChatGroup
	default:
		return "", remote.ChatGroup
	}
}
