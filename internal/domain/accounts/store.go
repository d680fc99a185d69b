// Package accounts реализует хранилище учётных данных Telegram-аккаунтов (таблица sessions).
// Одна строка на номер телефона; хранилище, единственный источник истины о том,
// авторизован ли номер, и одновременно долговременное состояние handshake между
// вызовами login и verify (процесс может перезапуститься между ними).
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"telegram-sentiment/internal/domain/apperr"
)

// Credential: строка таблицы sessions.
type Credential struct {
	Phone        string `db:"phone"`
	APIID        int    `db:"api_id"`
	APISecret    string `db:"api_hash"`
	SessionToken string `db:"session_string"`
}

// Store: Session Store поверх PostgreSQL. Кэша нет: каждый вызов идёт в БД.
// Конкурентные запросы разных номеров не пересекаются: все записи, одиночные
// upsert/update по ключу phone.
type Store struct {
	db *sqlx.DB
}

// NewStore создаёт хранилище поверх готового пула.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const upsertQuery = `
	INSERT INTO sessions (phone, api_id, api_hash, session_string)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (phone) DO UPDATE SET
		api_id = EXCLUDED.api_id,
		api_hash = EXCLUDED.api_hash,
		session_string = EXCLUDED.session_string,
		updated_at = NOW()`

// Upsert вставляет или перезаписывает строку по phone. Идемпотентен.
func (s *Store) Upsert(ctx context.Context, cred Credential) error {
	if _, err := s.db.ExecContext(ctx, upsertQuery, cred.Phone, cred.APIID, cred.APISecret, cred.SessionToken); err != nil {
		return fmt.Errorf("upsert session %s: %w", cred.Phone, err)
	}
	return nil
}

const updateTokenQuery = `UPDATE sessions SET session_string = $2, updated_at = NOW() WHERE phone = $1`

// UpdateToken меняет только session_string. Нет строки, NotFound.
func (s *Store) UpdateToken(ctx context.Context, phone, token string) error {
	res, err := s.db.ExecContext(ctx, updateTokenQuery, phone, token)
	if err != nil {
		return fmt.Errorf("update session token %s: %w", phone, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session token %s: rows affected: %w", phone, err)
	}
	if affected == 0 {
		return apperr.NotFound("account not registered, login required")
	}
	return nil
}

const getQuery = `SELECT phone, api_id, api_hash, session_string FROM sessions WHERE phone = $1`

// Get возвращает учётные данные номера или NotFound.
func (s *Store) Get(ctx context.Context, phone string) (Credential, error) {
	var cred Credential
	if err := s.db.GetContext(ctx, &cred, getQuery, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, apperr.NotFound("account not registered, login required")
		}
		return Credential{}, fmt.Errorf("get session %s: %w", phone, err)
	}
	return cred, nil
}
