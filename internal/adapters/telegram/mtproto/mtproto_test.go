package mtproto

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-sentiment/internal/domain/apperr"
	"telegram-sentiment/internal/domain/remote"
)

func TestTranslate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{name: "flood wait", err: tgerr.New(420, "FLOOD_WAIT_30"), want: apperr.KindThrottled},
		{name: "invalid phone", err: tgerr.New(400, "PHONE_NUMBER_INVALID"), want: apperr.KindValidation},
		{name: "wrong code", err: tgerr.New(400, "PHONE_CODE_INVALID"), want: apperr.KindValidation},
		{name: "expired code", err: fmt.Errorf("sign in: %w", tgerr.New(400, "PHONE_CODE_EXPIRED")), want: apperr.KindValidation},
		{name: "revoked session", err: tgerr.New(401, "AUTH_KEY_UNREGISTERED"), want: apperr.KindSessionExpired},
		{name: "password needed", err: fmt.Errorf("sign in: %w", auth.ErrPasswordAuthNeeded), want: apperr.KindValidation},
		{name: "other rpc", err: tgerr.New(500, "INTERNAL"), want: apperr.KindRemoteService},
		{name: "network", err: fmt.Errorf("read: %w", errors.New("connection reset")), want: apperr.KindRemoteService},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := translate(tc.err)
			assert.Equal(t, tc.want, apperr.KindOf(got))
			assert.ErrorIs(t, got, tc.err)
		})
	}
}

func TestTranslate_FloodWaitDuration(t *testing.T) {
	t.Parallel()

	e, ok := apperr.As(translate(tgerr.New(420, "FLOOD_WAIT_42")))
	require.True(t, ok)
	assert.Equal(t, 42*time.Second, e.RetryAfter)
}

func TestTranslate_KeepsDomainErrors(t *testing.T) {
	t.Parallel()

	orig := apperr.NotFound("x")
	assert.Same(t, orig, translate(orig))
	assert.NoError(t, translate(nil))
}

func TestTokenStorage_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	empty := newTokenStorage("")
	_, err := empty.LoadSession(ctx)
	require.Error(t, err)
	assert.Empty(t, empty.Token())

	raw := []byte{0x00, 0x01, 0xfe, 0xff, 'a'}
	require.NoError(t, empty.StoreSession(ctx, raw))
	token := empty.Token()
	require.NotEmpty(t, token)

	restored := newTokenStorage(token)
	data, err := restored.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, raw, data)
	assert.Equal(t, token, restored.Token())
}

func TestTokenStorage_CorruptTokenIsEmpty(t *testing.T) {
	t.Parallel()

	s := newTokenStorage("%%% not base64 %%%")
	_, err := s.LoadSession(context.Background())
	require.Error(t, err)
}

func TestChatsFromDialogs(t *testing.T) {
	t.Parallel()

	batch := &tg.MessagesDialogs{
		Dialogs: []tg.DialogClass{
			&tg.Dialog{Peer: &tg.PeerUser{UserID: 1}},
			&tg.Dialog{Peer: &tg.PeerChat{ChatID: 2}},
			&tg.DialogFolder{},
			&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 3}},
			&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 4}},
			&tg.Dialog{Peer: &tg.PeerUser{UserID: 5}},
		},
		Users: []tg.UserClass{
			&tg.User{ID: 1, FirstName: "Ali", LastName: "Valiyev"},
			&tg.User{ID: 5},
		},
		Chats: []tg.ChatClass{
			&tg.Chat{ID: 2, Title: "Family"},
			&tg.Channel{ID: 3, Title: "News", Broadcast: true},
			&tg.Channel{ID: 4, Title: "Devs", Megagroup: true},
		},
	}

	got := chatsFromDialogs(batch, 50)
	assert.Equal(t, []remote.Chat{
		{ID: 1, Title: "Ali Valiyev", Type: remote.ChatPrivate},
		{ID: -2, Title: "Family", Type: remote.ChatGroup},
		{ID: -1000000000003, Title: "News", Type: remote.ChatChannel},
		{ID: -1000000000004, Title: "Devs", Type: remote.ChatGroup},
		{ID: 5, Title: "No Title", Type: remote.ChatPrivate},
	}, got)

	assert.Len(t, chatsFromDialogs(batch, 2), 2)
}

func TestToMessage(t *testing.T) {
	t.Parallel()

	// FromID опционален: флаг выставляет только сеттер.
	withFrom := &tg.Message{ID: 7, Message: "hi", PeerID: &tg.PeerChat{ChatID: 1}}
	withFrom.SetFromID(&tg.PeerUser{UserID: 9})
	m := toMessage(withFrom)
	require.NotNil(t, m.SenderID)
	assert.Equal(t, int64(9), *m.SenderID)

	m = toMessage(&tg.Message{ID: 8, Message: "post", PeerID: &tg.PeerChannel{ChannelID: 3}})
	require.NotNil(t, m.SenderID)
	assert.Equal(t, int64(-1000000000003), *m.SenderID)

	m = toMessage(&tg.Message{ID: 9, Message: "mine", Out: true, PeerID: &tg.PeerUser{UserID: 4}})
	assert.Nil(t, m.SenderID)
}

func TestPeerCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache, err := OpenPeerCache(filepath.Join(t.TempDir(), "nested", "peers.bbolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	alice := cache.forPhone("+111")
	bob := cache.forPhone("+222")

	require.NoError(t, alice.apply(ctx,
		[]tg.UserClass{&tg.User{ID: 10, AccessHash: 100}},
		[]tg.ChatClass{
			&tg.Channel{ID: 20, AccessHash: 200, Title: "News", Photo: &tg.ChatPhotoEmpty{}},
			&tg.Chat{ID: 30, Title: "Team", Photo: &tg.ChatPhotoEmpty{}},
		},
	))

	input, ok, err := alice.lookup(ctx, -1000000000020)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 20, AccessHash: 200}, input)

	input, ok, err = alice.lookup(ctx, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerUser{UserID: 10, AccessHash: 100}, input)

	input, ok, err = alice.lookup(ctx, -30)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerChat{ChatID: 30}, input)

	_, ok, err = bob.lookup(ctx, -1000000000020)
	require.NoError(t, err)
	assert.False(t, ok, "accounts must not share peers")

	var nilPeers *phonePeers
	_, ok, err = nilPeers.lookup(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}
