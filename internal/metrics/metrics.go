// Package metrics собирает prometheus-метрики сессий, задач и слушателя
// чата. Все методы безопасны для nil-получателя.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "live_agent"

type Metrics struct {
	registry *prometheus.Registry

	sessionsActive prometheus.Gauge
	connects       *prometheus.CounterVec
	workUnits      *prometheus.CounterVec
	retries        *prometheus.CounterVec
	maxRetries     *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	comments       *prometheus.CounterVec
}

// New регистрирует метрики в собственном реестре, чтобы тесты и несколько
// экземпляров приложения не конфликтовали в глобальном.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of account sessions in the registry.",
		}),
		connects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Dashboard connect attempts by platform and result.",
		}, []string{"platform", "result"}),
		workUnits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_work_units_total",
			Help:      "Task work units by platform, task and result.",
		}, []string{"platform", "task", "result"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Retried work unit attempts.",
		}, []string{"platform", "task"}),
		maxRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_max_retries_total",
			Help:      "Work units abandoned after the retry limit.",
		}, []string{"platform", "task"}),
		framesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_dropped_total",
			Help:      "Malformed chat entries dropped by the listener.",
		}, []string{"platform"}),
		comments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_total",
			Help:      "Chat messages delivered by message type.",
		}, []string{"msg_type"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) Connect(platform string, ok bool) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(platform, result(ok)).Inc()
}

func (m *Metrics) WorkUnit(platform, task string, ok bool) {
	if m == nil {
		return
	}
	m.workUnits.WithLabelValues(platform, task, result(ok)).Inc()
}

func (m *Metrics) Retry(platform, task string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(platform, task).Inc()
}

func (m *Metrics) MaxRetries(platform, task string) {
	if m == nil {
		return
	}
	m.maxRetries.WithLabelValues(platform, task).Inc()
}

// FramesDropped подходит как listener.WithDropHook.
func (m *Metrics) FramesDropped(platform string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.framesDropped.WithLabelValues(platform).Add(float64(n))
}

func (m *Metrics) Comment(msgType string) {
	if m == nil {
		return
	}
	m.comments.WithLabelValues(msgType).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
