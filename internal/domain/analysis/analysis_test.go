package analysis_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"telegram-sentiment/internal/domain/accounts"
	"telegram-sentiment/internal/domain/analysis"
	"telegram-sentiment/internal/domain/apperr"
	"telegram-sentiment/internal/domain/keywords"
	"telegram-sentiment/internal/domain/remote"
	"telegram-sentiment/internal/domain/remote/remotetest"
	"telegram-sentiment/internal/domain/sentiment"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const phone = "+998901234567"

type memStore struct{}

func (memStore) Get(_ context.Context, p string) (accounts.Credential, error) {
	if p != phone {
		return accounts.Credential{}, apperr.NotFound("account not registered, login required")
	}
	return accounts.Credential{Phone: phone, APIID: 1, APISecret: "s", SessionToken: "tok"}, nil
}

// jitterModel помечает негативными тексты с префиксом "bad" и отвечает с
// произвольной задержкой, чтобы классификации завершались не по порядку.
type jitterModel struct{}

func (jitterModel) Classify(ctx context.Context, text string) (sentiment.Prediction, error) {
	select {
	case <-time.After(time.Duration(rand.IntN(3)) * time.Millisecond):
	case <-ctx.Done():
		return sentiment.Prediction{}, ctx.Err()
	}
	if strings.HasPrefix(text, "bad") {
		return sentiment.Prediction{Label: "NEGATIVE", Score: 0.87654}, nil
	}
	return sentiment.Prediction{Label: "POSITIVE", Score: 0.9}, nil
}

type failingModel struct{}

func (failingModel) Classify(context.Context, string) (sentiment.Prediction, error) {
	return sentiment.Prediction{}, errors.New("model unavailable")
}

func newOrchestrator(conn *remotetest.Conn, model sentiment.Model) (*analysis.Orchestrator, *remotetest.Dialer) {
	dialer := remotetest.NewDialer(conn)
	factory := remote.NewFactory(memStore{}, dialer, nil)
	pool := sentiment.NewPool(sentiment.NewClassifier(model, keywords.New([]string{"yomon"}), 0), 4, nil)
	return analysis.New(factory, pool, nil), dialer
}

func sender(id int64) *int64 { return &id }

func TestAnalyze_SkipsBlankMessages(t *testing.T) {
	msgs := make([]remote.Message, 0, 50)
	for i := range 50 {
		text := "ok " + strconv.Itoa(i)
		if i%10 == 0 {
			text = " \n\t "
		}
		msgs = append(msgs, remote.Message{ID: 100 - i, Text: text})
	}

	o, dialer := newOrchestrator(&remotetest.Conn{IsAuthorized: true, Messages: msgs}, jitterModel{})
	rep, err := o.Analyze(context.Background(), phone, -1001234567890, 50)
	require.NoError(t, err)

	assert.Equal(t, 45, rep.AnalyzedCount)
	assert.Zero(t, rep.NegativeCount)
	assert.Empty(t, rep.NegativeMessages)
	assert.Equal(t, 1, dialer.Closed())
}

func TestAnalyze_PreservesRetrievalOrder(t *testing.T) {
	var msgs []remote.Message
	var want []int
	for i := range 40 {
		id := 1000 - i
		text := "fine"
		if i%3 == 0 {
			text = "bad " + strconv.Itoa(i)
			want = append(want, id)
		}
		if i == 7 {
			text = "Bu juda YOMON"
			want = append(want, id)
		}
		msgs = append(msgs, remote.Message{ID: id, Text: text, SenderID: sender(int64(i))})
	}

	o, _ := newOrchestrator(&remotetest.Conn{IsAuthorized: true, Messages: msgs}, jitterModel{})
	rep, err := o.Analyze(context.Background(), phone, 5, 0)
	require.NoError(t, err)

	got := make([]int, 0, len(rep.NegativeMessages))
	for _, m := range rep.NegativeMessages {
		got = append(got, m.ID)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, len(want), rep.NegativeCount)
	assert.Equal(t, 40, rep.AnalyzedCount)

	for _, m := range rep.NegativeMessages {
		require.NotNil(t, m.SenderID)
		if m.Text == "Bu juda YOMON" {
			assert.InDelta(t, 1.0, m.Confidence, 0)
		} else {
			assert.InDelta(t, 0.8765, m.Confidence, 1e-9)
		}
	}
}

func TestAnalyze_DefaultLimit(t *testing.T) {
	msgs := make([]remote.Message, 80)
	for i := range msgs {
		msgs[i] = remote.Message{ID: i + 1, Text: "text"}
	}

	o, _ := newOrchestrator(&remotetest.Conn{IsAuthorized: true, Messages: msgs}, jitterModel{})
	rep, err := o.Analyze(context.Background(), phone, 5, -3)
	require.NoError(t, err)
	assert.Equal(t, analysis.DefaultLimit, rep.AnalyzedCount)
}

func TestAnalyze_InvalidChatClosesSession(t *testing.T) {
	conn := &remotetest.Conn{IsAuthorized: true, Known: map[int64]bool{1: true}}
	o, dialer := newOrchestrator(conn, jitterModel{})

	_, err := o.Analyze(context.Background(), phone, 999, 50)
	require.ErrorIs(t, err, apperr.ErrInvalidChat)
	assert.Contains(t, err.Error(), "999")
	assert.Equal(t, 1, dialer.Opened())
	assert.Equal(t, 1, dialer.Closed())
}

func TestAnalyze_ResolveFailureKeepsKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "telegram unreachable",
			err:  apperr.Remote("telegram is unreachable", errors.New("connection reset")),
			want: apperr.ErrRemoteService,
		},
		{
			name: "session revoked",
			err:  apperr.SessionExpired("re-authentication required"),
			want: apperr.ErrSessionExpired,
		},
		{
			name: "flood wait",
			err:  apperr.Throttled(3*time.Second, errors.New("FLOOD_WAIT_3")),
			want: apperr.ErrThrottled,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &remotetest.Conn{IsAuthorized: true, ResolveErr: tc.err}
			o, dialer := newOrchestrator(conn, jitterModel{})

			_, err := o.Analyze(context.Background(), phone, -1001234567890, 50)
			require.ErrorIs(t, err, tc.want)
			assert.NotErrorIs(t, err, apperr.ErrInvalidChat)
			assert.Equal(t, dialer.Opened(), dialer.Closed())
		})
	}
}

func TestAnalyze_SessionErrors(t *testing.T) {
	o, _ := newOrchestrator(&remotetest.Conn{IsAuthorized: true}, jitterModel{})
	_, err := o.Analyze(context.Background(), "+10000000000", 1, 50)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	o, dialer := newOrchestrator(&remotetest.Conn{IsAuthorized: false}, jitterModel{})
	_, err = o.Analyze(context.Background(), phone, 1, 50)
	require.ErrorIs(t, err, apperr.ErrSessionExpired)
	assert.Equal(t, dialer.Opened(), dialer.Closed())
}

func TestAnalyze_IterationFailure(t *testing.T) {
	conn := &remotetest.Conn{
		IsAuthorized: true,
		Messages:     []remote.Message{{ID: 1, Text: "bad"}},
		IterErr:      errors.New("connection reset"),
	}
	o, dialer := newOrchestrator(conn, jitterModel{})

	_, err := o.Analyze(context.Background(), phone, 1, 50)
	require.ErrorIs(t, err, apperr.ErrRemoteService)
	assert.Equal(t, 1, dialer.Closed())
}

func TestAnalyze_ModelFailure(t *testing.T) {
	conn := &remotetest.Conn{IsAuthorized: true, Messages: []remote.Message{{ID: 1, Text: "x"}, {ID: 2, Text: "y"}}}
	o, dialer := newOrchestrator(conn, failingModel{})

	_, err := o.Analyze(context.Background(), phone, 1, 50)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, 1, dialer.Closed())
}

func TestChats(t *testing.T) {
	chats := []remote.Chat{
		{ID: 10, Title: "Alice", Type: remote.ChatPrivate},
		{ID: -20, Title: "No Title", Type: remote.ChatGroup},
		{ID: -1001, Title: "News", Type: remote.ChatChannel},
	}
	o, dialer := newOrchestrator(&remotetest.Conn{IsAuthorized: true, Chats: chats}, jitterModel{})

	got, err := o.Chats(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, chats, got)
	assert.Equal(t, 1, dialer.Closed())
}
