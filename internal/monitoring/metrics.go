package monitoring

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the console's Prometheus collectors. All methods are safe
// to call on a nil *Metrics so packages can be used without instrumentation.
type Metrics struct {
	gatherer prometheus.Gatherer

	Commands       *prometheus.CounterVec
	SessionState   prometheus.Gauge
	TracksStarted  prometheus.Counter
	SensorPorts    *prometheus.GaugeVec
	CatalogEntries prometheus.Gauge
	LinkRequests   *prometheus.CounterVec
	LinkDurations  *prometheus.HistogramVec
}

// NewMetrics registers collectors against reg, defaulting to the global
// registry when nil. Registering twice against the same registry returns the
// existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{gatherer: gatherer}
	var err error

	if m.Commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sidescan_commands_total",
		Help: "Acquisition commands dispatched to both boards, labeled by command and result.",
	}, []string{"command", "result"})); err != nil {
		return nil, err
	}
	if m.SessionState, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sidescan_session_state",
		Help: "Current session state: 0 idle, 1 armed, 2 recording.",
	})); err != nil {
		return nil, err
	}
	if m.TracksStarted, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sidescan_tracks_started_total",
		Help: "Tracks whose recording started successfully.",
	})); err != nil {
		return nil, err
	}
	if m.SensorPorts, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sidescan_sensor_ports",
		Help: "Sensor ports by configuration state.",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	if m.CatalogEntries, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sidescan_catalog_entries",
		Help: "Tracks visible in the catalog under the current policy.",
	})); err != nil {
		return nil, err
	}
	if m.LinkRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sidescan_link_requests_total",
		Help: "Device link requests, labeled by verb and result.",
	}, []string{"verb", "result"})); err != nil {
		return nil, err
	}
	if m.LinkDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sidescan_link_request_duration_seconds",
		Help:    "Device link round trip latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, []string{"verb"})); err != nil {
		return nil, err
	}
	return m, nil
}

// Handler exposes a /metrics handler for the registry the collectors live in.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveCommand counts one dispatched command. result is "ok", "rejected" or
// "partial".
func (m *Metrics) ObserveCommand(command, result string) {
	if m == nil || m.Commands == nil {
		return
	}
	m.Commands.WithLabelValues(command, result).Inc()
}

// SetSessionState records the numeric session state.
func (m *Metrics) SetSessionState(state int) {
	if m == nil || m.SessionState == nil {
		return
	}
	m.SessionState.Set(float64(state))
}

// IncTracksStarted counts a track that began recording.
func (m *Metrics) IncTracksStarted() {
	if m == nil || m.TracksStarted == nil {
		return
	}
	m.TracksStarted.Inc()
}

// SetSensorPorts replaces the per-state sensor port counts.
func (m *Metrics) SetSensorPorts(counts map[string]int) {
	if m == nil || m.SensorPorts == nil {
		return
	}
	m.SensorPorts.Reset()
	for state, n := range counts {
		m.SensorPorts.WithLabelValues(state).Set(float64(n))
	}
}

// SetCatalogEntries records the number of catalog entries.
func (m *Metrics) SetCatalogEntries(n int) {
	if m == nil || m.CatalogEntries == nil {
		return
	}
	m.CatalogEntries.Set(float64(n))
}

// ObserveLink records one device round trip.
func (m *Metrics) ObserveLink(verb string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	if m.LinkRequests != nil {
		m.LinkRequests.WithLabelValues(verb, result).Inc()
	}
	if m.LinkDurations != nil {
		m.LinkDurations.WithLabelValues(verb).Observe(d.Seconds())
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return c, err
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("collector already registered with incompatible type: %T", are.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}
