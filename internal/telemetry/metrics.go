package telemetry

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
)

const namespace = "livequiz"

// Metrics turns domain events into prometheus series.
type Metrics struct {
	events       *prometheus.CounterVec
	answers      *prometheus.CounterVec
	advances     *prometheus.CounterVec
	liveSessions prometheus.Gauge
	answerTime   prometheus.Histogram
}

// NewMetrics registers the collectors on r and subscribes them to eb.
func NewMetrics(r prometheus.Registerer, eb *event.Bus) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events published, by event name.",
		}, []string{"event"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers recorded, by correctness.",
		}, []string{"correct"}),
		advances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "question_advances_total",
			Help:      "Question transitions, by trigger (host or timeout).",
		}, []string{"trigger"}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Sessions created and not yet finished by this process.",
		}),
		answerTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_time_seconds",
			Help:      "Time taken by players to answer, as reported by clients.",
			Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 60},
		}),
	}

	for _, c := range []prometheus.Collector{m.events, m.answers, m.advances, m.liveSessions, m.answerTime} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}

	eb.SubscribeAll(m.observe)
	return m, nil
}

func (m *Metrics) observe(_ context.Context, e event.Event) error {
	m.events.WithLabelValues(e.Name()).Inc()

	switch e := e.(type) {
	case domain.EventSessionCreated:
		m.liveSessions.Inc()
	case domain.EventSessionFinished:
		m.liveSessions.Dec()
		m.advances.WithLabelValues(trigger(e.Auto)).Inc()
	case domain.EventQuestionAdvanced:
		m.advances.WithLabelValues(trigger(e.Auto)).Inc()
	case domain.EventAnswerSubmitted:
		m.answers.WithLabelValues(strconv.FormatBool(e.Answer.IsCorrect)).Inc()
		m.answerTime.Observe(e.Answer.TimeTakenSeconds)
	}

	return nil
}

func trigger(auto bool) string {
	if auto {
		return "timeout"
	}
	return "host"
}
