// File: control/promexport.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Exposes a MetricsRegistry snapshot as Prometheus gauges.

package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromExporter adapts a MetricsRegistry snapshot to prometheus.Collector,
// translating every numeric metric into a gauge named with the given
// prefix and the metric's own key.
type PromExporter struct {
	metrics *MetricsRegistry
	prefix  string
}

// NewPromExporter wraps metrics for Prometheus scraping.
func NewPromExporter(metrics *MetricsRegistry, prefix string) *PromExporter {
	return &PromExporter{metrics: metrics, prefix: prefix}
}

// Describe satisfies prometheus.Collector. The metric set is dynamic, so
// no fixed descriptors are advertised.
func (e *PromExporter) Describe(ch chan<- *prometheus.Desc) {}

// Collect satisfies prometheus.Collector by emitting one gauge per numeric
// entry in the current snapshot.
func (e *PromExporter) Collect(ch chan<- prometheus.Metric) {
	for key, value := range e.metrics.GetSnapshot() {
		f, ok := toFloat64(value)
		if !ok {
			continue
		}
		desc := prometheus.NewDesc(e.prefix+"_"+sanitizeMetricName(key), key, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, f)
	}
}

// Handler builds an http.Handler serving this exporter on its own
// registry, isolated from the global default registry.
func (e *PromExporter) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(e)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func sanitizeMetricName(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out[i] = c
		} else {
			out[i] = '_'
		}
	}
	return string(out)
}
