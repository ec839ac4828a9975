// Package metrics holds the Prometheus collectors the server exports on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	aiRequests     *prometheus.CounterVec
	aiDuration     *prometheus.HistogramVec
	quizSessions   *prometheus.CounterVec
	quizXPAwarded  prometheus.Counter
	mirrorRepairs  *prometheus.CounterVec
	friendRequests *prometheus.CounterVec
	activeQuizzes  prometheus.Gauge
}

// New registers every collector on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "levelup",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "levelup",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "levelup",
			Name:      "ai_requests_total",
			Help:      "AI provider calls by operation and outcome.",
		}, []string{"operation", "status"}),
		aiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "levelup",
			Name:      "ai_request_duration_seconds",
			Help:      "AI provider call latency by operation.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"operation"}),
		quizSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "levelup",
			Name:      "quiz_sessions_total",
			Help:      "Quiz sessions by lifecycle event.",
		}, []string{"event"}),
		quizXPAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "levelup",
			Name:      "quiz_xp_awarded_total",
			Help:      "XP folded into profiles by ended quiz sessions.",
		}),
		mirrorRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "levelup",
			Name:      "mirror_repairs_total",
			Help:      "Relationship rows fixed by the mirror repair job, by kind.",
		}, []string{"kind"}),
		friendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "levelup",
			Name:      "friend_request_actions_total",
			Help:      "Friend request transitions by action.",
		}, []string{"action"}),
		activeQuizzes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "levelup",
			Name:      "quiz_sessions_active",
			Help:      "Quiz sessions currently held in memory.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.aiRequests,
		m.aiDuration,
		m.quizSessions,
		m.quizXPAwarded,
		m.mirrorRepairs,
		m.friendRequests,
		m.activeQuizzes,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) ObserveAIRequest(operation, status string, duration time.Duration) {
	m.aiRequests.WithLabelValues(operation, status).Inc()
	m.aiDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) QuizStarted() {
	m.quizSessions.WithLabelValues("started").Inc()
	m.activeQuizzes.Inc()
}

func (m *Metrics) QuizEnded(score int64, persisted bool) {
	event := "ended"
	if !persisted {
		event = "persist_failed"
	}
	m.quizSessions.WithLabelValues(event).Inc()
	m.activeQuizzes.Dec()
	if persisted && score > 0 {
		m.quizXPAwarded.Add(float64(score))
	}
}

func (m *Metrics) FriendRequestAction(action string) {
	m.friendRequests.WithLabelValues(action).Inc()
}

func (m *Metrics) MirrorsRepaired(friendships, superseded, orphaned int64) {
	m.mirrorRepairs.WithLabelValues("friendship_restored").Add(float64(friendships))
	m.mirrorRepairs.WithLabelValues("superseded_request").Add(float64(superseded))
	m.mirrorRepairs.WithLabelValues("orphaned_request").Add(float64(orphaned))
}
