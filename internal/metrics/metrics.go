package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace is used when no namespace is configured
const DefaultNamespace = "leadboard"

// BoardMetrics exposes counters/histograms for the board session and its Lead Store calls.
// A nil *BoardMetrics is valid and records nothing.
type BoardMetrics struct {
	loadsTotal       *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	bulkTotal        *prometheus.CounterVec
	quarantined      prometheus.Gauge
	storeLatency     *prometheus.HistogramVec
}

// NewBoardMetrics registers board metrics with reg (prometheus.DefaultRegisterer when nil)
func NewBoardMetrics(reg prometheus.Registerer, namespace string) *BoardMetrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &BoardMetrics{
		loadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "board",
			Name:      "loads_total",
			Help:      "Total pipeline reloads by result",
		}, []string{"result"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "board",
			Name:      "transitions_total",
			Help:      "Total drag and status-change resolutions by outcome",
		}, []string{"outcome"}),
		bulkTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "board",
			Name:      "bulk_actions_total",
			Help:      "Total bulk actions dispatched by action and result",
		}, []string{"action", "result"}),
		quarantined: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "board",
			Name:      "quarantined_leads",
			Help:      "Leads excluded from the last load because of unknown enum values",
		}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lead_store",
			Name:      "request_duration_seconds",
			Help:      "Latency of Lead Store requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.loadsTotal, m.transitionsTotal, m.bulkTotal, m.quarantined, m.storeLatency)
	return m
}

func (m *BoardMetrics) ObserveLoad(success bool, quarantined int) {
	if m == nil {
		return
	}
	m.loadsTotal.WithLabelValues(resultLabel(success)).Inc()
	if success {
		m.quarantined.Set(float64(quarantined))
	}
}

func (m *BoardMetrics) ObserveTransition(outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(outcome).Inc()
}

func (m *BoardMetrics) ObserveBulk(action string, success bool) {
	if m == nil {
		return
	}
	m.bulkTotal.WithLabelValues(action, resultLabel(success)).Inc()
}

func (m *BoardMetrics) ObserveStoreRequest(operation string, success bool, seconds float64) {
	if m == nil {
		return
	}
	m.storeLatency.WithLabelValues(operation, resultLabel(success)).Observe(seconds)
}

// ServiceMetrics exposes counters/histograms for the Lead Store API and the notification worker.
// A nil *ServiceMetrics is valid and records nothing.
type ServiceMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	statusChanges   *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
}

// NewServiceMetrics registers service metrics with reg (prometheus.DefaultRegisterer when nil)
func NewServiceMetrics(reg prometheus.Registerer, namespace string) *ServiceMetrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &ServiceMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status code",
		}, []string{"route", "code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "status_changes_total",
			Help:      "Total recorded lead status changes by target stage",
		}, []string{"new_status"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Total status-change notification deliveries by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestLatency, m.statusChanges, m.deliveriesTotal)
	return m
}

func (m *ServiceMetrics) ObserveRequest(route string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, codeLabel(code)).Inc()
	m.requestLatency.WithLabelValues(route).Observe(seconds)
}

func (m *ServiceMetrics) ObserveStatusChange(newStatus string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(newStatus).Inc()
}

// ObserveDelivery records a delivery result: "success", "retry" or "failed"
func (m *ServiceMetrics) ObserveDelivery(result string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(result).Inc()
}

// Handler returns the /metrics handler for the given gatherer (default gatherer when nil)
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func codeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
