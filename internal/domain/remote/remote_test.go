package remote_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-sentiment/internal/domain/accounts"
	"telegram-sentiment/internal/domain/apperr"
	"telegram-sentiment/internal/domain/remote"
	"telegram-sentiment/internal/domain/remote/remotetest"
)

type memStore map[string]accounts.Credential

func (m memStore) Get(_ context.Context, phone string) (accounts.Credential, error) {
	cred, ok := m[phone]
	if !ok {
		return accounts.Credential{}, apperr.NotFound("account not registered, login required")
	}
	return cred, nil
}

const phone = "+998901234567"

func registered() memStore {
	return memStore{phone: {Phone: phone, APIID: 1, APISecret: "hash", SessionToken: "tok"}}
}

func TestFactory_Open_Success(t *testing.T) {
	t.Parallel()

	dialer := remotetest.NewDialer(&remotetest.Conn{IsAuthorized: true})
	f := remote.NewFactory(registered(), dialer, nil)

	called := false
	err := f.Open(context.Background(), phone, func(_ context.Context, conn remote.Conn) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, 1, dialer.Opened())
	assert.Equal(t, 1, dialer.Closed())
	assert.Equal(t, "tok", dialer.Credentials()[0].SessionToken)
}

func TestFactory_Open_NotRegistered(t *testing.T) {
	t.Parallel()

	dialer := remotetest.NewDialer(&remotetest.Conn{IsAuthorized: true})
	f := remote.NewFactory(memStore{}, dialer, nil)

	err := f.Open(context.Background(), phone, func(context.Context, remote.Conn) error {
		t.Fatal("callback must not run")
		return nil
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Zero(t, dialer.Opened())
}

func TestFactory_Open_Expired(t *testing.T) {
	t.Parallel()

	store := registered()
	dialer := remotetest.NewDialer(&remotetest.Conn{IsAuthorized: false})
	f := remote.NewFactory(store, dialer, nil)

	err := f.Open(context.Background(), phone, func(context.Context, remote.Conn) error {
		t.Fatal("callback must not run")
		return nil
	})
	require.ErrorIs(t, err, apperr.ErrSessionExpired)
	assert.Equal(t, dialer.Opened(), dialer.Closed())
	assert.Equal(t, "tok", store[phone].SessionToken)
}

func TestFactory_Open_DialFailure(t *testing.T) {
	t.Parallel()

	dialer := remotetest.NewDialer(&remotetest.Conn{IsAuthorized: true})
	dialer.DialErr = apperr.Remote("connect", errors.New("dial tcp: refused"))
	f := remote.NewFactory(registered(), dialer, nil)

	err := f.Open(context.Background(), phone, func(context.Context, remote.Conn) error { return nil })
	require.ErrorIs(t, err, apperr.ErrRemoteService)
	assert.Contains(t, err.Error(), "refused")
}

func TestFactory_Open_CallbackErrorClosesConnection(t *testing.T) {
	t.Parallel()

	dialer := remotetest.NewDialer(&remotetest.Conn{IsAuthorized: true})
	f := remote.NewFactory(registered(), dialer, nil)

	boom := errors.New("boom")
	err := f.Open(context.Background(), phone, func(context.Context, remote.Conn) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, dialer.Closed())
}
