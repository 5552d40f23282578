// Package metrics is riptide's optional Prometheus surface. Every
// constructor accepts a prometheus.Registerer; passing nil yields a
// Metrics whose methods are no-ops, so embedding riptide carries no hard
// dependency on a running Prometheus registry.
//
// Grounded on the flow-ingest internal/metrics package-level promauto
// vars, adapted into an instance so multiple Metrics (e.g. one per test)
// don't collide on the default registry, plus a custom Collector for the
// message pool sampled the way runZeroInc-sockstats' TCPInfoCollector
// samples live connections.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ventosilenzioso/riptide/message"
)

// Metrics holds every riptide counter/gauge. The zero value (from a nil
// Registerer passed to New) has nil fields; every method checks for that
// and no-ops rather than panicking.
type Metrics struct {
	enabled bool

	PacketsSent     *prometheus.CounterVec
	PacketsReceived *prometheus.CounterVec

	ConnectionsActive prometheus.Gauge

	ReliableRetries   prometheus.Counter
	ReliableDelivered prometheus.Counter
	ReliableDropped   prometheus.Counter

	NotifyDelivered prometheus.Counter
	NotifyLost      prometheus.Counter

	ConnectionRTT *prometheus.GaugeVec
}

// New registers every riptide metric against reg and returns a Metrics
// ready for use. A nil reg yields a disabled Metrics: every method becomes
// a no-op instead of touching a nil pointer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	factory := promauto.With(reg)
	return &Metrics{
		enabled: true,
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riptide_packets_sent_total",
			Help: "Datagrams sent, by send mode.",
		}, []string{"mode"}),
		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riptide_packets_received_total",
			Help: "Datagrams received, by send mode.",
		}, []string{"mode"}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "riptide_connections_active",
			Help: "Connections currently in state Connected.",
		}),
		ReliableRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "riptide_reliable_retries_total",
			Help: "Reliable message resend attempts.",
		}),
		ReliableDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "riptide_reliable_delivered_total",
			Help: "Reliable messages acknowledged by their peer.",
		}),
		ReliableDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "riptide_reliable_dropped_total",
			Help: "Reliable messages dropped after exhausting their send-attempt budget.",
		}),
		NotifyDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "riptide_notify_delivered_total",
			Help: "Notify messages confirmed delivered by a piggybacked ack.",
		}),
		NotifyLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "riptide_notify_lost_total",
			Help: "Notify messages that fell off the ack window unacknowledged.",
		}),
		ConnectionRTT: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riptide_connection_rtt_seconds",
			Help: "Smoothed round-trip time per connection id.",
		}, []string{"connection_id"}),
	}
}

// ObservePacketSent/ObservePacketReceived record one datagram on the wire,
// labeled by its send mode ("unreliable", "reliable", "notify", "control").
func (m *Metrics) ObservePacketSent(mode string) {
	if m.enabled {
		m.PacketsSent.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) ObservePacketReceived(mode string) {
	if m.enabled {
		m.PacketsReceived.WithLabelValues(mode).Inc()
	}
}

// SetConnectionsActive reports the current Connected-state connection count.
func (m *Metrics) SetConnectionsActive(n int) {
	if m.enabled {
		m.ConnectionsActive.Set(float64(n))
	}
}

// AddReliableRetry/ObserveReliableDelivered/ObserveReliableDropped mirror
// reliability.Engine's per-message outcomes.
func (m *Metrics) AddReliableRetry() {
	if m.enabled {
		m.ReliableRetries.Inc()
	}
}
func (m *Metrics) ObserveReliableDelivered() {
	if m.enabled {
		m.ReliableDelivered.Inc()
	}
}
func (m *Metrics) ObserveReliableDropped() {
	if m.enabled {
		m.ReliableDropped.Inc()
	}
}

// ObserveNotifyDelivered/ObserveNotifyLost mirror the Engine's notify
// feedback events.
func (m *Metrics) ObserveNotifyDelivered() {
	if m.enabled {
		m.NotifyDelivered.Inc()
	}
}
func (m *Metrics) ObserveNotifyLost() {
	if m.enabled {
		m.NotifyLost.Inc()
	}
}

// SetConnectionRTT records a connection's latest smoothed RTT in seconds.
func (m *Metrics) SetConnectionRTT(connectionID uint16, seconds float64) {
	if m.enabled {
		m.ConnectionRTT.WithLabelValues(connIDLabel(connectionID)).Set(seconds)
	}
}

// DropConnectionRTT removes a terminated connection's RTT series so the
// gauge vector doesn't grow unbounded across reconnects.
func (m *Metrics) DropConnectionRTT(connectionID uint16) {
	if m.enabled {
		m.ConnectionRTT.DeleteLabelValues(connIDLabel(connectionID))
	}
}

func connIDLabel(id uint16) string {
	return strconv.Itoa(int(id))
}

// RegisterPoolCollector wires a message.Pool's InUse/Capacity counters into
// reg as a custom prometheus.Collector, the same "sample atomics on
// Collect" shape runZeroInc-sockstats' TCPInfoCollector uses for live TCP
// connections. A nil reg is a no-op.
func RegisterPoolCollector(reg prometheus.Registerer, pool *message.Pool) {
	if reg == nil || pool == nil {
		return
	}
	reg.MustRegister(&poolCollector{pool: pool})
}

type poolCollector struct {
	pool *message.Pool
}

var (
	poolInUseDesc = prometheus.NewDesc(
		"riptide_pool_messages_in_use", "Messages currently acquired from the pool and not yet released.", nil, nil)
	poolCapacityDesc = prometheus.NewDesc(
		"riptide_pool_capacity", "Pool logical capacity counter (grows/shrinks with peer lifecycle).", nil, nil)
)

func (c *poolCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- poolInUseDesc
	descs <- poolCapacityDesc
}

func (c *poolCollector) Collect(out chan<- prometheus.Metric) {
	out <- prometheus.MustNewConstMetric(poolInUseDesc, prometheus.GaugeValue, float64(c.pool.InUse()))
	out <- prometheus.MustNewConstMetric(poolCapacityDesc, prometheus.GaugeValue, float64(c.pool.Capacity()))
}
