package rtp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus instrumentation surface for the transport
// layer, built from promauto CounterVecs and GaugeVecs. A nil *Metrics is
// valid everywhere it's accepted: Sender and Receiver treat it as
// "instrumentation disabled." Endpoint takes no *Metrics.
type Metrics struct {
	PacketsSent     *prometheus.CounterVec
	PacketsReceived *prometheus.CounterVec
	PacketsLost     *prometheus.CounterVec
	PacketsLate     *prometheus.CounterVec
	PacketsDropped  *prometheus.CounterVec
	Jitter          *prometheus.GaugeVec
	ReportsSent     *prometheus.CounterVec
	ReportsReceived *prometheus.CounterVec
	BufferDepth     *prometheus.GaugeVec
	SendErrors      *prometheus.CounterVec
	ReceiveErrors   *prometheus.CounterVec
}

// MetricsConfig configures metric registration.
type MetricsConfig struct {
	Namespace string // defaults to "sam"
	Subsystem string // defaults to "rtp"
	Registerer prometheus.Registerer // defaults to prometheus.DefaultRegisterer
}

// DefaultMetricsConfig returns the zero-value defaults used when a field
// of MetricsConfig is left unset.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "sam", Subsystem: "rtp"}
}

// NewMetrics registers and returns the transport layer's Prometheus
// collectors. Each vector is labeled by "flow" (a caller-chosen flow
// identifier, e.g. a stream name) so one process can host many flows.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "sam"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "rtp"
	}
	factory := promauto.With(cfg.Registerer)
	if cfg.Registerer == nil {
		factory = promauto.With(prometheus.DefaultRegisterer)
	}

	return &Metrics{
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "packets_sent_total", Help: "RTP packets sent.",
		}, []string{"flow"}),
		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "packets_received_total", Help: "RTP packets received.",
		}, []string{"flow"}),
		PacketsLost: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "packets_lost_total", Help: "RTP packets inferred lost from sequence gaps.",
		}, []string{"flow"}),
		PacketsLate: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "packets_late_total", Help: "RTP packets arriving behind the jitter buffer's delivery cursor.",
		}, []string{"flow"}),
		PacketsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "packets_dropped_total", Help: "Packets the jitter buffer refused on arrival (late or duplicate).",
		}, []string{"flow", "reason"}),
		Jitter: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "jitter", Help: "Current RFC 3550 interarrival jitter estimate, in RTP-clock units.",
		}, []string{"flow"}),
		ReportsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "rtcp_reports_sent_total", Help: "RTCP SR/RR datagrams sent.",
		}, []string{"flow", "type"}),
		ReportsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "rtcp_reports_received_total", Help: "RTCP SR/RR datagrams received.",
		}, []string{"flow", "type"}),
		BufferDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "jitterbuffer_depth", Help: "Packets currently queued in the jitter buffer.",
		}, []string{"flow"}),
		SendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "send_errors_total", Help: "Transient socket write failures.",
		}, []string{"flow"}),
		ReceiveErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "receive_errors_total", Help: "Transient socket read failures.",
		}, []string{"flow"}),
	}
}
