// Package metrics holds the prometheus collectors shared by the collaboration
// engine and the debounce scheduler. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docsync"

type Metrics struct {
	Sessions     prometheus.Gauge
	Rooms        prometheus.Gauge
	Broadcasts   *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
	Flushes      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of connected collaboration sessions.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Number of rooms with at least one member.",
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Events relayed to other room members.",
		}, []string{"event"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Room cache lookups on join by result.",
		}, []string{"result"}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Debounced document writes by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.Sessions, m.Rooms, m.Broadcasts, m.CacheLookups, m.Flushes)
	return m
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(n))
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.Rooms.Set(float64(n))
}

// Broadcast counts a relayed event. Room-scoped names such as "changes:<room>"
// are collapsed to their prefix to keep label cardinality bounded.
func (m *Metrics) Broadcast(event string) {
	if m == nil {
		return
	}
	if i := strings.IndexByte(event, ':'); i >= 0 {
		event = event[:i+1]
	}
	m.Broadcasts.WithLabelValues(event).Inc()
}

func (m *Metrics) CacheHit()   { m.cacheLookup("hit") }
func (m *Metrics) CacheMiss()  { m.cacheLookup("miss") }
func (m *Metrics) CacheError() { m.cacheLookup("error") }

func (m *Metrics) cacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// Flush records the outcome of one debounced write.
func (m *Metrics) Flush(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Flushes.WithLabelValues(outcome).Inc()
}
