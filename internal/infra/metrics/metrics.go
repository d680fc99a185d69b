// Package metrics описывает Prometheus-метрики сервиса. Все методы *Metrics безопасны
// для nil-получателя, поэтому домен и тесты могут работать без регистрации.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tgsentiment"

// Metrics хранит все метрики сервиса.
type Metrics struct {
	HandshakeTotal        *prometheus.CounterVec
	RemoteSessionsTotal   *prometheus.CounterVec
	RemoteSessionsOpen    prometheus.Gauge
	ClassificationsTotal  *prometheus.CounterVec
	ClassificationSeconds prometheus.Histogram
	AnalysesTotal         *prometheus.CounterVec
	MessagesAnalyzed      prometheus.Counter
	MessagesNegative      prometheus.Counter
}

// New создаёт и регистрирует метрики в reg (nil, DefaultRegisterer).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HandshakeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "handshake_total",
			Help:      "Login/verify calls by step and outcome",
		}, []string{"step", "outcome"}),
		RemoteSessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "sessions_total",
			Help:      "Live MTProto sessions opened, by outcome",
		}, []string{"outcome"}),
		RemoteSessionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "sessions_open",
			Help:      "Currently open MTProto sessions",
		}),
		ClassificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "classifications_total",
			Help:      "Classified messages by verdict source",
		}, []string{"result"}),
		ClassificationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "inference_seconds",
			Help:      "Model inference latency",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Analyze calls by outcome",
		}, []string{"outcome"}),
		MessagesAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "messages_analyzed_total",
			Help:      "Non-empty messages examined",
		}),
		MessagesNegative: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "messages_negative_total",
			Help:      "Messages classified as negative",
		}),
	}
}

// ObserveHandshake учитывает шаг handshake (login/verify) и его исход.
func (m *Metrics) ObserveHandshake(step, outcome string) {
	if m == nil {
		return
	}
	m.HandshakeTotal.WithLabelValues(step, outcome).Inc()
}

// SessionOpened/SessionClosed отслеживают живые соединения; баланс, признак отсутствия утечек.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.RemoteSessionsOpen.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.RemoteSessionsOpen.Dec()
}

// ObserveSession учитывает исход открытия сессии.
func (m *Metrics) ObserveSession(outcome string) {
	if m == nil {
		return
	}
	m.RemoteSessionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveClassification учитывает один инференс.
func (m *Metrics) ObserveClassification(d time.Duration, negative, keyword bool, err error) {
	if m == nil {
		return
	}
	m.ClassificationSeconds.Observe(d.Seconds())
	result := "positive"
	switch {
	case err != nil:
		result = "error"
	case keyword:
		result = "keyword"
	case negative:
		result = "model"
	}
	m.ClassificationsTotal.WithLabelValues(result).Inc()
}

// ObserveAnalysis учитывает результат analyze.
func (m *Metrics) ObserveAnalysis(outcome string, analyzed, negative int) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(outcome).Inc()
	m.MessagesAnalyzed.Add(float64(analyzed))
	m.MessagesNegative.Add(float64(negative))
}
