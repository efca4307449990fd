// README: Prometheus metrics for lifecycle operations and outbound notifications.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	ServiceName string
	Environment string
}

// Recorder implements the lifecycle Metrics and notify Recorder hooks.
type Recorder struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	gatherer      prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry so
// tests can build as many recorders as they like.
func New(reg *prometheus.Registry, cfg Config) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "opsconsole"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	constLabels := prometheus.Labels{"service": service, "env": env}

	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "opsconsole_lifecycle_operations_total",
			Help:        "Lifecycle operations by domain, operation and outcome kind.",
			ConstLabels: constLabels,
		}, []string{"domain", "op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "opsconsole_lifecycle_operation_duration_seconds",
			Help:        "Lifecycle operation latency including store round-trips.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		}, []string{"domain", "op"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "opsconsole_notifications_total",
			Help:        "Outbound notification and thumbnail requests by channel and outcome.",
			ConstLabels: constLabels,
		}, []string{"domain", "channel", "outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(r.operations, r.duration, r.notifications)
	return r
}

func (r *Recorder) ObserveOperation(domain, op, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(domain, op, outcome).Inc()
	r.duration.WithLabelValues(domain, op).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveNotification(domain, channel, outcome string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(domain, channel, outcome).Inc()
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
