package mtproto

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	bboltdb "github.com/gotd/contrib/bbolt"
	contribstorage "github.com/gotd/contrib/storage"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"
	"go.etcd.io/bbolt"

	"telegram-sentiment/internal/infra/storage"
	"telegram-sentiment/internal/tgutil"
)

const (
	peersBucketPrefix             = "peers:"
	dbOpenTimeout                 = time.Second
	dbFileMode        os.FileMode = 0o600
)

// errPeerUnknown: peer нет ни в кэше, ни в диалогах аккаунта.
var errPeerUnknown = errors.New("peer not found")

// PeerCache: персистентный кэш access_hash на bbolt, отдельный bucket на номер.
// Новое соединение не знает access_hash каналов и пользователей, без кэша
// каждое разрешение chat id требовало бы полной выгрузки диалогов.
type PeerCache struct {
	db *bbolt.DB
}

// OpenPeerCache открывает (или создаёт) файл кэша.
func OpenPeerCache(path string) (*PeerCache, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("peers cache: path is empty")
	}
	if err := storage.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("peers cache: %w", err)
	}
	db, err := bbolt.Open(path, dbFileMode, &bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("peers cache: open db: %w", err)
	}
	return &PeerCache{db: db}, nil
}

// Close закрывает файл базы данных.
func (c *PeerCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// forPhone возвращает хранилище пиров одного аккаунта. nil-кэш даёт nil.
func (c *PeerCache) forPhone(phone string) *phonePeers {
	if c == nil || c.db == nil {
		return nil
	}
	return &phonePeers{store: bboltdb.NewPeerStorage(c.db, []byte(peersBucketPrefix+phone))}
}

// phonePeers: кэш пиров одного номера. Методы безопасны для nil.
type phonePeers struct {
	store contribstorage.PeerStorage
}

// apply сохраняет сущности из ответа API.
func (p *phonePeers) apply(ctx context.Context, users []tg.UserClass, chats []tg.ChatClass) error {
	if p == nil {
		return nil
	}
	for _, u := range users {
		var value contribstorage.Peer
		if !value.FromUser(u) {
			continue
		}
		if err := p.store.Add(ctx, value); err != nil {
			return fmt.Errorf("store user peer: %w", err)
		}
	}
	for _, ch := range chats {
		var value contribstorage.Peer
		if !value.FromChat(ch) {
			continue
		}
		if err := p.store.Add(ctx, value); err != nil {
			return fmt.Errorf("store chat peer: %w", err)
		}
	}
	return nil
}

// lookup возвращает InputPeer для marked id из кэша; ok=false при промахе.
func (p *phonePeers) lookup(ctx context.Context, marked int64) (tg.InputPeerClass, bool, error) {
	kind, id := tgutil.UnmarkID(marked)
	if p == nil {
		return nil, false, nil
	}

	var key contribstorage.PeerKey
	switch kind {
	case tgutil.PeerUser:
		key = contribstorage.PeerKey{Kind: dialogs.User, ID: id}
	case tgutil.PeerChat:
		key = contribstorage.PeerKey{Kind: dialogs.Chat, ID: id}
	case tgutil.PeerChannel:
		key = contribstorage.PeerKey{Kind: dialogs.Channel, ID: id}
	default:
		return nil, false, nil
	}

	value, err := p.store.Find(ctx, key)
	if errors.Is(err, contribstorage.ErrPeerNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup peer: %w", err)
	}

	switch kind {
	case tgutil.PeerUser:
		return &tg.InputPeerUser{UserID: id, AccessHash: value.Key.AccessHash}, true, nil
	case tgutil.PeerChat:
		// Обычным группам access_hash не нужен.
		return &tg.InputPeerChat{ChatID: id}, true, nil
	default:
		return &tg.InputPeerChannel{ChannelID: id, AccessHash: value.Key.AccessHash}, true, nil
	}
}
