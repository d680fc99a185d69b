package mtproto

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"telegram-sentiment/internal/domain/remote"
	"telegram-sentiment/internal/infra/logger"
	"telegram-sentiment/internal/tgutil"
)

// peerEntity: разрешённый чат: marked id и InputPeer для запросов истории.
type peerEntity struct {
	marked int64
	input  tg.InputPeerClass
}

func (e *peerEntity) ChatID() int64 { return e.marked }

// conn: remote.Conn поверх запущенного gotd-клиента. Живёт внутри client.Run.
type conn struct {
	client *telegram.Client
	api    *tg.Client
	tokens *tokenStorage
	peers  *phonePeers
}

var _ remote.Conn = (*conn)(nil)

func (c *conn) Authorized(ctx context.Context) (bool, error) {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, translate(errors.Wrap(err, "auth status"))
	}
	return status.Authorized, nil
}

func (c *conn) SendCode(ctx context.Context, phone string) (string, error) {
	sent, err := c.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", translate(errors.Wrap(err, "send code"))
	}
	switch s := sent.(type) {
	case *tg.AuthSentCode:
		return s.PhoneCodeHash, nil
	default:
		return "", translate(fmt.Errorf("unexpected sent code type %T", sent))
	}
}

func (c *conn) SignIn(ctx context.Context, phone, code, codeHash string) error {
	if _, err := c.client.Auth().SignIn(ctx, phone, code, codeHash); err != nil {
		return translate(errors.Wrap(err, "sign in"))
	}
	return nil
}

func (c *conn) SessionToken(_ context.Context) (string, error) {
	token := c.tokens.Token()
	if token == "" {
		return "", errors.New("session is empty")
	}
	return token, nil
}

func (c *conn) Dialogs(ctx context.Context, limit int) ([]remote.Chat, error) {
	batch, err := fetchDialogs(ctx, c.api, limit)
	if err != nil {
		return nil, translate(err)
	}
	c.remember(ctx, batch.Users, batch.Chats)
	return chatsFromDialogs(batch, limit), nil
}

// ResolveChat ищет access_hash в кэше пиров, при промахе выгружает диалоги.
func (c *conn) ResolveChat(ctx context.Context, chatID int64) (remote.Entity, error) {
	if kind, _ := tgutil.UnmarkID(chatID); kind == tgutil.PeerUnknown {
		return nil, errPeerUnknown
	}

	input, ok, err := c.peers.lookup(ctx, chatID)
	if err != nil {
		logger.Warn("peers cache lookup failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	if ok {
		return &peerEntity{marked: chatID, input: input}, nil
	}

	batch, err := fetchDialogs(ctx, c.api, dialogScanLimit)
	if err != nil {
		return nil, translate(err)
	}
	c.remember(ctx, batch.Users, batch.Chats)

	userHashes := make(map[int64]int64)
	channelHashes := make(map[int64]int64)
	updateHashesFromBatch(batch, userHashes, channelHashes)
	for _, d := range batch.Dialogs {
		dlg, ok := d.(*tg.Dialog)
		if !ok || tgutil.MarkedPeerID(dlg.Peer) != chatID {
			continue
		}
		return &peerEntity{marked: chatID, input: dialogPeerToInput(dlg.Peer, userHashes, channelHashes)}, nil
	}
	return nil, errPeerUnknown
}

func (c *conn) IterMessages(ctx context.Context, chat remote.Entity, limit int, fn func(remote.Message) error) error {
	entity, ok := chat.(*peerEntity)
	if !ok {
		return fmt.Errorf("foreign chat entity %T", chat)
	}
	onPage := func(p historyPage) { c.remember(ctx, p.users, p.chats) }

	err := iterHistory(ctx, c.api, entity.input, limit, onPage, fn)
	if err == nil {
		return nil
	}
	// Ошибку колбэка отдаём как есть, переводим только ошибки API.
	var rpcFailure *rpcError
	if errors.As(err, &rpcFailure) {
		return translate(rpcFailure.err)
	}
	return err
}

// remember кладёт сущности в кэш пиров; сбой кэша не ломает запрос.
func (c *conn) remember(ctx context.Context, users []tg.UserClass, chats []tg.ChatClass) {
	if err := c.peers.apply(ctx, users, chats); err != nil {
		logger.Warn("peers cache update failed", zap.Error(err))
	}
}
