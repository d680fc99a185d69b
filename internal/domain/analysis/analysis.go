// Package analysis отвечает за выборку сообщений чата и поиск негативных среди них.
package analysis

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"telegram-sentiment/internal/domain/apperr"
	"telegram-sentiment/internal/domain/remote"
	"telegram-sentiment/internal/domain/sentiment"
	"telegram-sentiment/internal/infra/logger"
	"telegram-sentiment/internal/infra/metrics"
)

const (
	// DefaultLimit: окно сообщений, если клиент его не задал.
	DefaultLimit = 50
	// DialogsLimit: сколько диалогов отдаёт Chats.
	DialogsLimit = 50
)

// ClassifiedMessage: негативное сообщение в отчёте.
type ClassifiedMessage struct {
	ID         int     `json:"id"`
	Text       string  `json:"text"`
	SenderID   *int64  `json:"sender_id"`
	Confidence float64 `json:"confidence"`
}

// Report: итог анализа. NegativeMessages идут в порядке выдачи Telegram (от новых к старым).
type Report struct {
	AnalyzedCount    int                 `json:"analyzed_count"`
	NegativeCount    int                 `json:"negative_count"`
	NegativeMessages []ClassifiedMessage `json:"negative_messages"`
}

// Opener: фабрика живых сессий.
type Opener interface {
	Open(ctx context.Context, phone string, fn func(ctx context.Context, conn remote.Conn) error) error
}

// Classifier: классификация одного текста, обычно sentiment.Pool.
type Classifier interface {
	Classify(ctx context.Context, text string) (sentiment.Verdict, error)
}

// Orchestrator связывает сессии Telegram и классификатор.
type Orchestrator struct {
	sessions   Opener
	classifier Classifier
	metrics    *metrics.Metrics
}

// New создаёт оркестратор. m может быть nil.
func New(sessions Opener, classifier Classifier, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{sessions: sessions, classifier: classifier, metrics: m}
}

// Chats возвращает до DialogsLimit последних диалогов аккаунта.
func (o *Orchestrator) Chats(ctx context.Context, phone string) ([]remote.Chat, error) {
	var chats []remote.Chat
	err := o.sessions.Open(ctx, phone, func(ctx context.Context, conn remote.Conn) error {
		var err error
		chats, err = conn.Dialogs(ctx, DialogsLimit)
		if err != nil {
			return remoteErr("fetch dialogs", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chats, nil
}

// item: сообщение в очереди классификации; verdict пишет только своя горутина.
type item struct {
	msg     remote.Message
	verdict sentiment.Verdict
}

// Analyze классифицирует до limit последних сообщений чата chatID.
// Классификация идёт параллельно выборке: чтение следующих сообщений не ждёт модель.
func (o *Orchestrator) Analyze(ctx context.Context, phone string, chatID int64, limit int) (rep Report, err error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = apperr.KindOf(err).String()
		}
		o.metrics.ObserveAnalysis(outcome, rep.AnalyzedCount, rep.NegativeCount)
	}()

	var items []*item
	err = o.sessions.Open(ctx, phone, func(ctx context.Context, conn remote.Conn) error {
		chat, err := conn.ResolveChat(ctx, chatID)
		if err != nil {
			return chatErr(chatID, err)
		}

		g, gctx := errgroup.WithContext(ctx)
		iterErr := conn.IterMessages(gctx, chat, limit, func(m remote.Message) error {
			if strings.TrimSpace(m.Text) == "" {
				return nil
			}
			it := &item{msg: m}
			items = append(items, it)
			g.Go(func() error {
				v, err := o.classifier.Classify(gctx, it.msg.Text)
				if err != nil {
					return err
				}
				it.verdict = v
				return nil
			})
			return nil
		})
		// Дожидаемся всех классификаций даже при ошибке выборки.
		if err := g.Wait(); err != nil {
			if _, ok := apperr.As(err); ok {
				return err
			}
			return apperr.Internal("sentiment classification failed", err)
		}
		if iterErr != nil {
			return remoteErr("fetch messages", iterErr)
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	rep = Report{AnalyzedCount: len(items), NegativeMessages: []ClassifiedMessage{}}
	for _, it := range items {
		if !it.verdict.Negative {
			continue
		}
		rep.NegativeMessages = append(rep.NegativeMessages, ClassifiedMessage{
			ID:         it.msg.ID,
			Text:       it.msg.Text,
			SenderID:   it.msg.SenderID,
			Confidence: it.verdict.Confidence,
		})
	}
	rep.NegativeCount = len(rep.NegativeMessages)

	logger.Info("chat analyzed",
		zap.String("phone", phone),
		zap.Int64("chat_id", chatID),
		zap.Int("analyzed", rep.AnalyzedCount),
		zap.Int("negative", rep.NegativeCount))
	return rep, nil
}

// chatErr: InvalidChat только для неразрешимого id. Ошибки, уже получившие
// доменный вид (сессия отозвана, Telegram недоступен, FLOOD_WAIT), идут как есть.
func chatErr(chatID int64, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.InvalidChat(chatID, err)
}

func remoteErr(msg string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Remote(msg, err)
}
