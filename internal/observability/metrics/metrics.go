package metrics

import "github.com/prometheus/client_golang/prometheus"

// LabMetrics exposes counters/histograms for booking and tracking flows.
type LabMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	bookingsTotal     *prometheus.CounterVec
	statusChanges     *prometheus.CounterVec
	reportsTotal      prometheus.Counter
	loginsTotal       *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
}

func NewLabMetrics(reg prometheus.Registerer) *LabMetrics {
	m := &LabMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hmpv",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total store operations by outcome",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hmpv",
			Subsystem: "store",
			Name:      "operation_latency_seconds",
			Help:      "Latency of store operations including persistence",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hmpv",
			Subsystem: "appointments",
			Name:      "booked_total",
			Help:      "Appointments booked per test",
		}, []string{"test_id"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hmpv",
			Subsystem: "appointments",
			Name:      "status_changes_total",
			Help:      "Status transitions applied by target status",
		}, []string{"status"}),
		reportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hmpv",
			Subsystem: "reports",
			Name:      "attached_total",
			Help:      "Result reports attached to appointments",
		}),
		loginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hmpv",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by role and outcome",
		}, []string{"role", "outcome"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hmpv",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status class",
		}, []string{"route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.operationsTotal,
		m.operationLatency,
		m.bookingsTotal,
		m.statusChanges,
		m.reportsTotal,
		m.loginsTotal,
		m.httpRequestsTotal,
	)
	return m
}

func (m *LabMetrics) ObserveOperation(op string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operationsTotal.WithLabelValues(op, outcome).Inc()
	m.operationLatency.WithLabelValues(op).Observe(seconds)
}

func (m *LabMetrics) ObserveBooking(testID string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(testID).Inc()
}

func (m *LabMetrics) ObserveStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *LabMetrics) ObserveReport() {
	if m == nil {
		return
	}
	m.reportsTotal.Inc()
}

func (m *LabMetrics) ObserveLogin(role string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	if role == "" {
		role = "unknown"
	}
	m.loginsTotal.WithLabelValues(role, outcome).Inc()
}

func (m *LabMetrics) ObserveHTTP(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
