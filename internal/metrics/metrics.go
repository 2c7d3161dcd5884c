// Package metrics exposes decoder statistics as Prometheus collectors.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/dcf77-receiver/internal/logic"
)

const namespace = "dcf77"

// Minute results used as the "result" label.
const (
	ResultValid      = "valid"
	ResultInvalid    = "invalid"
	ResultIncomplete = "incomplete"
)

// Metrics holds the collectors. Each instance owns its registry so tests can
// create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	bitsTotal       *prometheus.CounterVec // decoded bits (by value)
	faultyBitsTotal prometheus.Counter     // ambiguous pulses
	minutesTotal    *prometheus.CounterVec // minute boundaries (by result)
	second          prometheus.Gauge       // current second of the minute
	synced          prometheus.Gauge       // 1 after the first minute gap
	lastValid       prometheus.Gauge       // unix time of the last valid telegram
	clockOffset     prometheus.Gauge       // decoded minute start minus host clock
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		bitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bits_total",
			Help:      "Total number of decoded bits",
		}, []string{"value"}),
		faultyBitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faulty_bits_total",
			Help:      "Total number of bit slots whose pulse width could not be classified",
		}),
		minutesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "minutes_total",
			Help:      "Total number of minute boundaries after sync, by decode result",
		}, []string{"result"}),
		second: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "second",
			Help:      "Bits received since the last minute boundary",
		}),
		synced: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synced",
			Help:      "Whether the minute gap has been detected (1=yes, 0=no)",
		}),
		lastValid: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_valid_timestamp_seconds",
			Help:      "Unix timestamp of the last successfully decoded telegram",
		}),
		clockOffset: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_offset_seconds",
			Help:      "Decoded minute start minus host clock at the minute gap",
		}),
	}
}

// RecordEvent updates counters for a receiver event.
func (m *Metrics) RecordEvent(e logic.Event) {
	switch e.Type {
	case logic.EventBit:
		value := "0"
		if e.Value {
			value = "1"
		}
		m.bitsTotal.WithLabelValues(value).Inc()
	case logic.EventFaultyBit:
		m.faultyBitsTotal.Inc()
	case logic.EventMinute:
		m.minutesTotal.WithLabelValues(minuteResult(e)).Inc()
		if e.Valid() {
			m.lastValid.Set(float64(e.Timestamp.Unix()))
			m.clockOffset.Set(e.Time.Time().Sub(e.Timestamp).Seconds())
		}
	}
}

func minuteResult(e logic.Event) string {
	switch {
	case e.Err == nil:
		return ResultValid
	case errors.Is(e.Err, logic.ErrBitCount):
		return ResultIncomplete
	default:
		return ResultInvalid
	}
}

// SetState updates the per-tick gauges.
func (m *Metrics) SetState(second int, synced bool) {
	m.second.Set(float64(second))
	if synced {
		m.synced.Set(1)
	} else {
		m.synced.Set(0)
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Timeout: 5 * time.Second,
	})
}
