// Package metrics описывает метрики Prometheus для решений о доступе,
// выдачи доступа и вызовов внешних сервисов.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics набор счётчиков и гистограмм бота.
type Metrics struct {
	decisions    *prometheus.CounterVec
	grants       *prometheus.CounterVec
	collaborator *prometheus.HistogramVec
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutorbot",
			Name:      "gate_decisions_total",
			Help:      "Outcomes of inbound user actions by action kind.",
		}, []string{"action", "outcome"}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutorbot",
			Name:      "grants_total",
			Help:      "Access grants by kind and result.",
		}, []string{"kind", "result"}),
		collaborator: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tutorbot",
			Name:      "collaborator_duration_seconds",
			Help:      "Duration of external collaborator calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collaborator", "status"}),
	}
	reg.MustRegister(m.decisions, m.grants, m.collaborator)
	return m
}

// Decision учитывает исход обработки действия.
func (m *Metrics) Decision(action, outcome string) {
	m.decisions.WithLabelValues(action, outcome).Inc()
}

// Grant учитывает попытку выдачи доступа.
func (m *Metrics) Grant(kind, result string) {
	m.grants.WithLabelValues(kind, result).Inc()
}

// Collaborator учитывает длительность вызова внешнего сервиса.
func (m *Metrics) Collaborator(name string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.collaborator.WithLabelValues(name, status).Observe(time.Since(started).Seconds())
}
