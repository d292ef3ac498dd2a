package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the monitor.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with message dispatch.
type Collector interface {
	IncHotReload(file string)
	IncMessages(kind string)
	IncReconnects()
	SetActiveResidents(count int)
	ObserveDwell(zone string, seconds float64)
	IncEvictions()
	IncAnomalies(kind string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncHotReload(string)          {}
func (noopCollector) IncMessages(string)           {}
func (noopCollector) IncReconnects()               {}
func (noopCollector) SetActiveResidents(int)       {}
func (noopCollector) ObserveDwell(string, float64) {}
func (noopCollector) IncEvictions()                {}
func (noopCollector) IncAnomalies(string)          {}

// PrometheusCollector exposes telemetry counters via Prometheus.
type PrometheusCollector struct {
	hotReloads      *prometheus.CounterVec
	messages        *prometheus.CounterVec
	reconnects      prometheus.Counter
	activeResidents prometheus.Gauge
	dwell           *prometheus.HistogramVec
	evictions       prometheus.Counter
	anomalies       *prometheus.CounterVec
}

var (
	registryLock    sync.Mutex
	hotReloadVec    *prometheus.CounterVec
	messageVec      *prometheus.CounterVec
	reconnectCtr    prometheus.Counter
	activeGauge     prometheus.Gauge
	dwellHist       *prometheus.HistogramVec
	evictionCtr     prometheus.Counter
	anomalyVec      *prometheus.CounterVec
	registeredOnReg prometheus.Registerer
)

// NewPrometheusCollector registers the required metrics with the provided registerer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registryLock.Lock()
	defer registryLock.Unlock()

	if registeredOnReg != reg {
		hotReloadVec = nil
		messageVec = nil
		reconnectCtr = nil
		activeGauge = nil
		dwellHist = nil
		evictionCtr = nil
		anomalyVec = nil
	}

	if hotReloadVec == nil {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zonewatch_config_hot_reload_total",
			Help: "Number of hot reload operations triggered per configuration source file.",
		}, []string{"file"})
		existing, err := registerCollector(reg, counter)
		if err != nil {
			return nil, err
		}
		hotReloadVec = existing.(*prometheus.CounterVec)
	}
	if messageVec == nil {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zonewatch_stream_messages_total",
			Help: "Number of messages received from the output stream, by payload kind.",
		}, []string{"kind"})
		existing, err := registerCollector(reg, counter)
		if err != nil {
			return nil, err
		}
		messageVec = existing.(*prometheus.CounterVec)
	}
	if reconnectCtr == nil {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zonewatch_stream_reconnects_total",
			Help: "Number of reconnect attempts made by the stream listener.",
		})
		existing, err := registerCollector(reg, counter)
		if err != nil {
			return nil, err
		}
		reconnectCtr = existing.(prometheus.Counter)
	}
	if activeGauge == nil {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zonewatch_residents_active",
			Help: "Number of residency records currently tracked.",
		})
		existing, err := registerCollector(reg, gauge)
		if err != nil {
			return nil, err
		}
		activeGauge = existing.(prometheus.Gauge)
	}
	if dwellHist == nil {
		hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zonewatch_dwell_seconds",
			Help:    "Completed dwell durations per zone.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"zone"})
		existing, err := registerCollector(reg, hist)
		if err != nil {
			return nil, err
		}
		dwellHist = existing.(*prometheus.HistogramVec)
	}
	if evictionCtr == nil {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zonewatch_residency_evictions_total",
			Help: "Number of residency records dropped for exceeding the maximum residency window.",
		})
		existing, err := registerCollector(reg, counter)
		if err != nil {
			return nil, err
		}
		evictionCtr = existing.(prometheus.Counter)
	}
	if anomalyVec == nil {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zonewatch_stream_anomalies_total",
			Help: "Number of contract anomalies observed in the event stream, by kind.",
		}, []string{"kind"})
		existing, err := registerCollector(reg, counter)
		if err != nil {
			return nil, err
		}
		anomalyVec = existing.(*prometheus.CounterVec)
	}
	registeredOnReg = reg

	return &PrometheusCollector{
		hotReloads:      hotReloadVec,
		messages:        messageVec,
		reconnects:      reconnectCtr,
		activeResidents: activeGauge,
		dwell:           dwellHist,
		evictions:       evictionCtr,
		anomalies:       anomalyVec,
	}, nil
}

func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector, nil
		}
		return nil, err
	}
	return collector, nil
}

// IncHotReload increments the counter for the provided file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}

// IncMessages records one received message of the given payload kind.
func (p *PrometheusCollector) IncMessages(kind string) {
	if p == nil || p.messages == nil {
		return
	}
	p.messages.WithLabelValues(kind).Inc()
}

// IncReconnects records a reconnect attempt.
func (p *PrometheusCollector) IncReconnects() {
	if p == nil || p.reconnects == nil {
		return
	}
	p.reconnects.Inc()
}

// SetActiveResidents updates the gauge tracking in-progress residencies.
func (p *PrometheusCollector) SetActiveResidents(count int) {
	if p == nil || p.activeResidents == nil {
		return
	}
	p.activeResidents.Set(float64(count))
}

// ObserveDwell records a completed dwell duration for a zone.
func (p *PrometheusCollector) ObserveDwell(zone string, seconds float64) {
	if p == nil || p.dwell == nil {
		return
	}
	p.dwell.WithLabelValues(zone).Observe(seconds)
}

// IncEvictions records a forced eviction.
func (p *PrometheusCollector) IncEvictions() {
	if p == nil || p.evictions == nil {
		return
	}
	p.evictions.Inc()
}

// IncAnomalies records a stream contract anomaly of the given kind.
func (p *PrometheusCollector) IncAnomalies(kind string) {
	if p == nil || p.anomalies == nil {
		return
	}
	p.anomalies.WithLabelValues(kind).Inc()
}
