package tgutil

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
)

func TestMarkedPeerID(t *testing.T) {
	assert.Equal(t, int64(777), MarkedPeerID(&tg.PeerUser{UserID: 777}))
	assert.Equal(t, int64(-4242), MarkedPeerID(&tg.PeerChat{ChatID: 4242}))
	assert.Equal(t, int64(-1001234567890), MarkedPeerID(&tg.PeerChannel{ChannelID: 1234567890}))
	assert.Zero(t, MarkedPeerID(nil))
}

func TestUnmarkID(t *testing.T) {
	cases := []struct {
		marked int64
		kind   PeerKind
		id     int64
	}{
		{marked: 777, kind: PeerUser, id: 777},
		{marked: -4242, kind: PeerChat, id: 4242},
		{marked: -1001234567890, kind: PeerChannel, id: 1234567890},
		{marked: 0, kind: PeerUnknown, id: 0},
	}
	for _, tc := range cases {
		kind, id := UnmarkID(tc.marked)
		assert.Equal(t, tc.kind, kind, tc.marked)
		assert.Equal(t, tc.id, id, tc.marked)
		if kind != PeerUnknown {
			assert.Equal(t, tc.marked, MarkedID(kind, id))
		}
	}
}

func TestGetPeerID(t *testing.T) {
	assert.Equal(t, int64(5), GetPeerID(&tg.PeerChannel{ChannelID: 5}))
	assert.Zero(t, GetPeerID(nil))
}
