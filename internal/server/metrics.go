package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics are the service's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	marketsLoaded prometheus.Gauge
	marketsState  *prometheus.GaugeVec
	refreshes     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	wsConnections prometheus.Gauge
	wsMessages    *prometheus.CounterVec
}

// NewMetrics registers collectors on a fresh registry with the Go and
// process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		marketsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lossless_markets_loaded",
			Help: "markets in the last successful snapshot",
		}),
		marketsState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lossless_markets_by_state",
			Help: "markets in the last snapshot by state",
		}, []string{"state"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lossless_market_refreshes_total",
			Help: "market list refreshes by result",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lossless_tx_notifications_total",
			Help: "transaction notifications by status",
		}, []string{"status"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lossless_ws_connections",
			Help: "open websocket connections",
		}),
		wsMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lossless_ws_messages_sent_total",
			Help: "websocket frames sent by topic",
		}, []string{"topic"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.marketsLoaded, m.marketsState, m.refreshes, m.notifications, m.wsConnections, m.wsMessages,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) snapshot(total, active, resolved, cancelled int) {
	if m == nil {
		return
	}
	m.marketsLoaded.Set(float64(total))
	m.marketsState.WithLabelValues("active").Set(float64(active))
	m.marketsState.WithLabelValues("resolved").Set(float64(resolved))
	m.marketsState.WithLabelValues("cancelled").Set(float64(cancelled))
}

func (m *Metrics) refresh(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) notification(status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status).Inc()
}

func (m *Metrics) wsConnected(delta float64) {
	if m == nil {
		return
	}
	m.wsConnections.Add(delta)
}

func (m *Metrics) wsSent(topic string) {
	if m == nil {
		return
	}
	m.wsMessages.WithLabelValues(topic).Inc()
}
