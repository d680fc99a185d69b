// Package remotetest содержит управляемые подделки Dialer и Conn для тестов.
package remotetest

import (
	"context"
	"errors"
	"sync"

	"telegram-sentiment/internal/domain/accounts"
	"telegram-sentiment/internal/domain/remote"
)

// ErrChatNotFound возвращает ResolveChat для неизвестного chat id.
var ErrChatNotFound = errors.New("fake: chat not found")

// Entity: разрешённый чат подделки.
type Entity int64

func (e Entity) ChatID() int64 { return int64(e) }

// Conn: сценарий ответов одного соединения.
type Conn struct {
	IsAuthorized bool
	AuthErr      error

	CodeHash    string
	SendCodeErr error
	SignInErr   error
	// AuthorizeOnSignIn переводит соединение в авторизованное после успешного SignIn.
	AuthorizeOnSignIn bool

	Token    string
	TokenErr error

	Chats      []remote.Chat
	DialogsErr error

	// Known: разрешимые chat id; nil означает «любой».
	Known      map[int64]bool
	ResolveErr error

	Messages []remote.Message
	IterErr  error

	mu            sync.Mutex
	sendCodeCalls int
	signInCalls   int
	lastSignIn    [3]string
}

var _ remote.Conn = (*Conn)(nil)

func (c *Conn) Authorized(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.IsAuthorized, c.AuthErr
}

func (c *Conn) SendCode(_ context.Context, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendCodeCalls++
	if c.SendCodeErr != nil {
		return "", c.SendCodeErr
	}
	return c.CodeHash, nil
}

func (c *Conn) SignIn(_ context.Context, phone, code, codeHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signInCalls++
	c.lastSignIn = [3]string{phone, code, codeHash}
	if c.SignInErr != nil {
		return c.SignInErr
	}
	if c.AuthorizeOnSignIn {
		c.IsAuthorized = true
	}
	return nil
}

func (c *Conn) SessionToken(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Token, c.TokenErr
}

func (c *Conn) Dialogs(_ context.Context, limit int) ([]remote.Chat, error) {
	if c.DialogsErr != nil {
		return nil, c.DialogsErr
	}
	if limit > 0 && len(c.Chats) > limit {
		return c.Chats[:limit], nil
	}
	return c.Chats, nil
}

func (c *Conn) ResolveChat(_ context.Context, chatID int64) (remote.Entity, error) {
	if c.ResolveErr != nil {
		return nil, c.ResolveErr
	}
	if c.Known != nil && !c.Known[chatID] {
		return nil, ErrChatNotFound
	}
	return Entity(chatID), nil
}

func (c *Conn) IterMessages(_ context.Context, _ remote.Entity, limit int, fn func(remote.Message) error) error {
	for i, m := range c.Messages {
		if limit > 0 && i >= limit {
			break
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return c.IterErr
}

// SendCodeCalls: число вызовов SendCode.
func (c *Conn) SendCodeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendCodeCalls
}

// SignInCalls: число вызовов SignIn.
func (c *Conn) SignInCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signInCalls
}

// LastSignIn возвращает аргументы последнего SignIn: phone, code, hash.
func (c *Conn) LastSignIn() (string, string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSignIn[0], c.lastSignIn[1], c.lastSignIn[2]
}

// Dialer выдаёт Conn и считает открытия/закрытия.
type Dialer struct {
	Conn    *Conn
	DialErr error
	// StaleTokenErr возвращается только при Dial с непустым SessionToken.
	StaleTokenErr error

	mu     sync.Mutex
	opened int
	closed int
	creds  []accounts.Credential
}

var _ remote.Dialer = (*Dialer)(nil)

// NewDialer создаёт Dialer с указанным сценарием соединения.
func NewDialer(conn *Conn) *Dialer {
	return &Dialer{Conn: conn}
}

func (d *Dialer) Dial(ctx context.Context, cred accounts.Credential, fn func(ctx context.Context, conn remote.Conn) error) error {
	d.mu.Lock()
	d.creds = append(d.creds, cred)
	if d.DialErr != nil {
		d.mu.Unlock()
		return d.DialErr
	}
	if d.StaleTokenErr != nil && cred.SessionToken != "" {
		d.mu.Unlock()
		return d.StaleTokenErr
	}
	d.opened++
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.closed++
		d.mu.Unlock()
	}()
	return fn(ctx, d.Conn)
}

// Opened: число успешно открытых соединений.
func (d *Dialer) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Closed: число закрытых соединений.
func (d *Dialer) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Credentials: учётные данные всех попыток Dial по порядку.
func (d *Dialer) Credentials() []accounts.Credential {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]accounts.Credential(nil), d.creds...)
}
