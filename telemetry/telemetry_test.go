package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncHotReload("config.yaml")
	collector.IncMessages("stream")
	collector.ObserveDwell("1007", 5)
}

func TestPrometheusCollectorRegistersAndReusesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, collector)

	collector.IncMessages("event")
	collector.IncAnomalies("unknown_loss")
	collector.SetActiveResidents(3)
	collector.ObserveDwell("1007", 6)
	collector.IncEvictions()
	collector.IncReconnects()
	collector.IncHotReload("config.yaml")

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	requireCounterValue(t, byName["zonewatch_stream_messages_total"], 1)
	requireCounterValue(t, byName["zonewatch_stream_anomalies_total"], 1)
	requireCounterValue(t, byName["zonewatch_residency_evictions_total"], 1)
	requireCounterValue(t, byName["zonewatch_stream_reconnects_total"], 1)

	gauge := byName["zonewatch_residents_active"]
	require.NotNil(t, gauge)
	require.Equal(t, float64(3), gauge.Metric[0].Gauge.GetValue())

	hist := byName["zonewatch_dwell_seconds"]
	require.NotNil(t, hist)
	require.Equal(t, uint64(1), hist.Metric[0].Histogram.GetSampleCount())

	// A second collector on the same registry must reuse the metrics.
	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.messages, again.messages)

	again.IncMessages("event")
	families, err = reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "zonewatch_stream_messages_total" {
			requireCounterValue(t, mf, 2)
		}
	}
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.NotNil(t, mf)
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}
