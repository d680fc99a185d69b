// Package database отвечает за подключение к PostgreSQL и применение встроенных миграций.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	// DefaultMaxIdleConns: число простаивающих соединений в пуле.
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime: максимальное время жизни соединения.
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout: таймаут проверки соединения при старте.
	DefaultPingTimeout = 5 * time.Second
)

// Connect открывает пул соединений по DSN (URL или key=value) и проверяет его ping'ом.
func Connect(ctx context.Context, dsn string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(min(DefaultMaxIdleConns, maxOpenConns))
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}

// Close закрывает пул, nil допустим.
func Close(db *sqlx.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
