package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveQuizzes tracks sessions currently held by the registry.
	ActiveQuizzes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "songquiz_active_sessions",
			Help: "Number of quiz sessions currently running",
		},
	)

	// QuizSessions counts finished sessions by end reason (completed|stopped|failed).
	QuizSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songquiz_sessions_total",
			Help: "Total number of finished quiz sessions",
		},
		[]string{"reason"},
	)

	// QuizStartFailures counts rejected start requests by error code.
	QuizStartFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songquiz_start_failures_total",
			Help: "Total number of rejected quiz start requests",
		},
		[]string{"code"},
	)

	// RoundsResolved counts resolved rounds by outcome (won|timeout|skipped).
	RoundsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songquiz_rounds_resolved_total",
			Help: "Total number of resolved rounds",
		},
		[]string{"outcome"},
	)

	// Guesses counts evaluated guesses by verdict (won|rejected|ignored).
	Guesses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songquiz_guesses_total",
			Help: "Total number of submitted guesses",
		},
		[]string{"verdict"},
	)

	// TimeToAnswer measures seconds between song presentation and the winning guess.
	TimeToAnswer = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "songquiz_time_to_answer_seconds",
			Help:    "Elapsed time before a round was won",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20, 30, 60},
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "songquiz_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
