package sentiment_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-sentiment/internal/domain/keywords"
	"telegram-sentiment/internal/domain/sentiment"
	"telegram-sentiment/internal/infra/metrics"
)

// stubModel возвращает фиксированный ответ и запоминает последний вход.
type stubModel struct {
	pred sentiment.Prediction
	err  error

	mu   sync.Mutex
	last string
}

func (m *stubModel) Classify(_ context.Context, text string) (sentiment.Prediction, error) {
	m.mu.Lock()
	m.last = text
	m.mu.Unlock()
	return m.pred, m.err
}

func TestClassifier_Classify(t *testing.T) {
	t.Parallel()

	kw := keywords.New([]string{"hate"})

	cases := []struct {
		name           string
		text           string
		pred           sentiment.Prediction
		wantNegative   bool
		wantConfidence float64
		wantKeyword    bool
	}{
		{
			name:           "keyword overrides positive model",
			text:           "I hate this",
			pred:           sentiment.Prediction{Label: "POSITIVE", Score: 0.1},
			wantNegative:   true,
			wantConfidence: 1.0,
			wantKeyword:    true,
		},
		{
			name:           "keyword overrides even a confident positive model",
			text:           "I HATE this",
			pred:           sentiment.Prediction{Label: "POSITIVE", Score: 0.99},
			wantNegative:   true,
			wantConfidence: 1.0,
			wantKeyword:    true,
		},
		{
			name:           "positive without keyword",
			text:           "Great job",
			pred:           sentiment.Prediction{Label: "POSITIVE", Score: 0.95},
			wantNegative:   false,
			wantConfidence: 0.95,
		},
		{
			name:           "negative model without keyword",
			text:           "Terrible",
			pred:           sentiment.Prediction{Label: "NEGATIVE", Score: 0.8},
			wantNegative:   true,
			wantConfidence: 0.8,
		},
		{
			name:           "score rounded to four decimals",
			text:           "Awful",
			pred:           sentiment.Prediction{Label: "NEGATIVE", Score: 0.987654321},
			wantNegative:   true,
			wantConfidence: 0.9877,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := sentiment.NewClassifier(&stubModel{pred: tc.pred}, kw, 0)
			got, err := c.Classify(context.Background(), tc.text)
			require.NoError(t, err)

			assert.Equal(t, tc.wantNegative, got.Negative)
			assert.Equal(t, tc.wantKeyword, got.KeywordMatched)
			assert.InDelta(t, tc.wantConfidence, got.Confidence, 1e-9)
		})
	}
}

func TestClassifier_TruncatesModelInputOnly(t *testing.T) {
	t.Parallel()

	model := &stubModel{pred: sentiment.Prediction{Label: "POSITIVE", Score: 0.5}}
	c := sentiment.NewClassifier(model, keywords.New([]string{"yomon"}), 10)

	// Ключевое слово стоит после границы обрезки, словарь всё равно должен сработать.
	text := strings.Repeat("ж", 20) + " yomon"
	got, err := c.Classify(context.Background(), text)
	require.NoError(t, err)

	assert.True(t, got.Negative)
	assert.Equal(t, 10, utf8.RuneCountInString(model.last))
	assert.True(t, utf8.ValidString(model.last))
}

func TestClassifier_ModelError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c := sentiment.NewClassifier(&stubModel{err: boom}, keywords.New(nil), 0)

	_, err := c.Classify(context.Background(), "text")
	require.ErrorIs(t, err, boom)
}

// blockingModel считает максимальное число одновременных вызовов.
type blockingModel struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (m *blockingModel) Classify(_ context.Context, _ string) (sentiment.Prediction, error) {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.peak.Load()
		if cur <= peak || m.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return sentiment.Prediction{Label: "NEGATIVE", Score: 0.7}, nil
}

func TestPool_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	model := &blockingModel{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	pool := sentiment.NewPool(sentiment.NewClassifier(model, keywords.New(nil), 0), 2, m)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			_, err := pool.Classify(context.Background(), "bad")
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, model.peak.Load(), int32(2))
	assert.InDelta(t, 10, testutil.ToFloat64(m.ClassificationsTotal.WithLabelValues("model")), 0)
}

func TestPool_RespectsContext(t *testing.T) {
	t.Parallel()

	pool := sentiment.NewPool(sentiment.NewClassifier(&stubModel{}, keywords.New(nil), 0), 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.Classify(ctx, "text")
	require.ErrorIs(t, err, context.Canceled)
}
