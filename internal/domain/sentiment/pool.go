package sentiment

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"telegram-sentiment/internal/infra/metrics"
)

// Pool ограничивает число одновременных обращений к модели. Каждый вызов Classify -
// ровно одна классификация, без батчинга. Ожидание слота уважает ctx.
type Pool struct {
	classifier *Classifier
	sem        *semaphore.Weighted
	workers    int
	metrics    *metrics.Metrics
}

// NewPool создаёт пул на workers одновременных инференсов (минимум 1). m может быть nil.
func NewPool(c *Classifier, workers int, m *metrics.Metrics) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		classifier: c,
		sem:        semaphore.NewWeighted(int64(workers)),
		workers:    workers,
		metrics:    m,
	}
}

// Workers возвращает ёмкость пула.
func (p *Pool) Workers() int { return p.workers }

// Classify занимает слот пула и выполняет классификацию.
func (p *Pool) Classify(ctx context.Context, text string) (Verdict, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Verdict{}, err
	}
	defer p.sem.Release(1)

	start := time.Now()
	v, err := p.classifier.Classify(ctx, text)
	p.metrics.ObserveClassification(time.Since(start), v.Negative, v.KeywordMatched, err)
	return v, err
}
