// Package metrics exposes Prometheus collectors for query execution.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	execTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buntable_exec_total",
			Help: "Total number of executed queries",
		},
		[]string{"table", "op", "status"},
	)
	execDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buntable_exec_duration_seconds",
			Help:    "Query execution latency",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		},
		[]string{"op"},
	)
	listenerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buntable_listener_panics_total",
			Help: "Total number of recovered listener panics",
		},
	)
)

// ObserveExec records one exec outcome.
func ObserveExec(table, op string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	execTotal.WithLabelValues(table, op, status).Inc()
	execDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// IncListenerPanics counts a listener that panicked during delivery.
func IncListenerPanics() {
	listenerPanics.Inc()
}

// WriteSummary prints the buntable collectors of the default registry as
// "name{labels} value" lines.
func WriteSummary(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "buntable_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			lines = append(lines, fmt.Sprintf("%s%s %s", mf.GetName(), labels(m), value(mf.GetType(), m)))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func labels(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func value(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return fmt.Sprintf("%g", m.GetCounter().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("count=%d sum=%gs", h.GetSampleCount(), h.GetSampleSum())
	case dto.MetricType_GAUGE:
		return fmt.Sprintf("%g", m.GetGauge().GetValue())
	}
	return "?"
}
