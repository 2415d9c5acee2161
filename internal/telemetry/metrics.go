package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "judgeboard"

var (
	answersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_submitted_total",
		Help:      "Number of accepted answer submissions.",
	}, []string{"kind"})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Number of session state transitions.",
	}, []string{"to"})

	recomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "recompute_duration_seconds",
		Help:      "Duration of team result recomputation.",
		Buckets:   prometheus.DefBuckets,
	})
)

// AnswerSubmitted counts an accepted submission, kind is "single" or "final".
func AnswerSubmitted(kind string) {
	answersSubmitted.WithLabelValues(kind).Inc()
}

// SessionTransition counts a session moving to the given status.
func SessionTransition(to string) {
	sessionTransitions.WithLabelValues(to).Inc()
}

// ObserveRecompute records the time elapsed since start.
func ObserveRecompute(start time.Time) {
	recomputeDuration.Observe(time.Since(start).Seconds())
}
