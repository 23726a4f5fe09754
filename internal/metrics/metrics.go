package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's prometheus collectors. Constructed once in
// main and injected; no package-level registration side effects beyond
// promauto's default registry.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	AuthAttempts     *prometheus.CounterVec
	TokensIssued     *prometheus.CounterVec
	ThrottledTotal   *prometheus.CounterVec
	IsolationDenials *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors on the given registerer.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_http_requests_total",
			Help: "Total HTTP requests processed",
		}, []string{"method", "path", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authz_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		AuthAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_auth_attempts_total",
			Help: "Authentication attempts by outcome",
		}, []string{"result", "reason"}),
		TokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_tokens_issued_total",
			Help: "Tokens issued by type",
		}, []string{"type"}),
		ThrottledTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_throttled_requests_total",
			Help: "Requests rejected by the throttle controller",
		}, []string{"scope"}),
		IsolationDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_isolation_denials_total",
			Help: "Writes rejected for crossing a tenant boundary",
		}, []string{"code"}),
	}
}
