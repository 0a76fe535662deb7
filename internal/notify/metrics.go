package notify

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricNotificationsTotal counts notification attempts.
const MetricNotificationsTotal = "notifications_total"

// Status labels.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Metrics contains Prometheus metrics for notification dispatch.
type Metrics struct {
	notifications *prometheus.CounterVec
}

// NewMetrics creates notification metrics. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricNotificationsTotal,
				Help: "Total number of notifications handed to the notification service by kind and status",
			},
			[]string{"kind", "status"},
		),
	}
}

// Register registers the collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.notifications)
}

func (m *Metrics) record(kind EventKind, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(string(kind), status).Inc()
}
