// Package sentiment реализует классификатор негативных сообщений.
// Решение складывается из двух независимых сигналов, объединённых через ИЛИ:
// вердикт предобученной модели и совпадение со словарём негативных слов.
// Совпадение со словарём фиксирует уверенность на 1.0 независимо от оценки модели.
package sentiment

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"go.uber.org/zap"

	"telegram-sentiment/internal/domain/keywords"
	"telegram-sentiment/internal/infra/logger"
)

// LabelNegative: метка модели для негативного текста.
const LabelNegative = "NEGATIVE"

// DefaultMaxInput: предел входа модели (в символах), более длинный текст молча обрезается.
const DefaultMaxInput = 512

// Prediction: ответ модели: метка и оценка в [0,1].
type Prediction struct {
	Label string
	Score float64
}

// Model: предобученная модель тональности. Реализация должна быть безопасна
// для конкурентных вызовов: один экземпляр разделяется всеми запросами.
type Model interface {
	Classify(ctx context.Context, text string) (Prediction, error)
}

// Verdict: итог классификации одного текста.
type Verdict struct {
	Negative       bool
	Confidence     float64
	KeywordMatched bool
	ModelLabel     string
}

// Classifier объединяет модель и словарь. Оба поля только читаются.
type Classifier struct {
	model    Model
	keywords *keywords.Set
	maxInput int
}

// NewClassifier создаёт классификатор. maxInput <= 0 означает DefaultMaxInput.
func NewClassifier(model Model, kw *keywords.Set, maxInput int) *Classifier {
	if maxInput <= 0 {
		maxInput = DefaultMaxInput
	}
	return &Classifier{model: model, keywords: kw, maxInput: maxInput}
}

// Classify возвращает вердикт для text.
func (c *Classifier) Classify(ctx context.Context, text string) (Verdict, error) {
	pred, err := c.model.Classify(ctx, truncateRunes(text, c.maxInput))
	if err != nil {
		return Verdict{}, fmt.Errorf("model inference: %w", err)
	}

	// Словарь проверяется по полному тексту, а не по обрезанному входу модели.
	keywordMatch := c.keywords.Contains(text)

	v := Verdict{
		Negative:       pred.Label == LabelNegative || keywordMatch,
		KeywordMatched: keywordMatch,
		ModelLabel:     pred.Label,
	}
	if keywordMatch {
		v.Confidence = 1.0
	} else {
		v.Confidence = round4(pred.Score)
	}

	if keywordMatch && logger.IsDebugEnabled() {
		logger.Debug("keyword override",
			zap.Strings("keywords", c.keywords.Match(text)),
			zap.String("model_label", pred.Label),
			zap.Float64("model_score", pred.Score))
	}
	return v, nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// truncateRunes обрезает строку до limit символов, не разрывая UTF-8.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
