package accounts_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-sentiment/internal/domain/accounts"
	"telegram-sentiment/internal/domain/apperr"
)

func newStore(t *testing.T) (*accounts.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return accounts.NewStore(sqlx.NewDb(db, "postgres")), mock
}

func TestStore_Upsert(t *testing.T) {
	store, mock := newStore(t)
	cred := accounts.Credential{Phone: "+998901234567", APIID: 42, APISecret: "hash", SessionToken: "tok"}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions (phone, api_id, api_hash, session_string)")).
		WithArgs(cred.Phone, cred.APIID, cred.APISecret, cred.SessionToken).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Повторный login с теми же данными, тот же upsert, а не вторая строка.
	mock.ExpectExec("ON CONFLICT \\(phone\\) DO UPDATE").
		WithArgs(cred.Phone, cred.APIID, cred.APISecret, cred.SessionToken).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Upsert(context.Background(), cred))
	require.NoError(t, store.Upsert(context.Background(), cred))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateToken(t *testing.T) {
	testCases := []struct {
		name     string
		setup    func(mock sqlmock.Sqlmock)
		wantKind apperr.Kind
		wantErr  bool
	}{
		{
			name: "updates existing row",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE sessions SET session_string").
					WithArgs("+1555", "new-token").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "missing row is not found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE sessions SET session_string").
					WithArgs("+1555", "new-token").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr:  true,
			wantKind: apperr.KindNotFound,
		},
		{
			name: "database failure is internal",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE sessions SET session_string").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr:  true,
			wantKind: apperr.KindInternal,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newStore(t)
			tc.setup(mock)

			err := store.UpdateToken(context.Background(), "+1555", "new-token")
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, tc.wantKind, apperr.KindOf(err))
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_Get(t *testing.T) {
	t.Run("round-trips the token byte for byte", func(t *testing.T) {
		store, mock := newStore(t)
		token := "AQAAAAEAAAB7ImRjIjoyLCJhZGRyIjoiMTQ5LjE1NC4xNjcuNTA6NDQzIn0=\n\t "

		rows := sqlmock.NewRows([]string{"phone", "api_id", "api_hash", "session_string"}).
			AddRow("+1555", 7, "secret", token)
		mock.ExpectQuery("SELECT phone, api_id, api_hash, session_string FROM sessions").
			WithArgs("+1555").
			WillReturnRows(rows)

		cred, err := store.Get(context.Background(), "+1555")
		require.NoError(t, err)
		assert.Equal(t, accounts.Credential{Phone: "+1555", APIID: 7, APISecret: "secret", SessionToken: token}, cred)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row is not found", func(t *testing.T) {
		store, mock := newStore(t)
		mock.ExpectQuery("SELECT phone").WithArgs("+1555").WillReturnError(sql.ErrNoRows)

		_, err := store.Get(context.Background(), "+1555")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})
}
