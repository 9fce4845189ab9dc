// Package telemetry exposes Prometheus metrics for both server roles on an
// isolated registry, gated behind the opt-in, loopback-only /metrics
// endpoint described in the configuration surface.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge/histogram either server role records.
// Each instance owns its own registry so tests can spin up several without
// colliding on the global default one.
type Metrics struct {
	Registry *prometheus.Registry

	// Rendezvous engine
	RegistrationsTotal  *prometheus.CounterVec
	PunchHoleTotal       *prometheus.CounterVec
	PunchHoleDurationSec *prometheus.HistogramVec
	ConfigUpdatesTotal   *prometheus.CounterVec
	RelayServersHealthy  *prometheus.GaugeVec

	// Relay forwarder
	RelaySessionsTotal   *prometheus.CounterVec
	RelayActiveSessions  prometheus.Gauge
	RelayBytesTotal      *prometheus.CounterVec
	RelayDowngradesTotal prometheus.Counter
	RelayRejectionsTotal *prometheus.CounterVec

	// Abuse throttle
	AbuseRejectionsTotal *prometheus.CounterVec

	BuildInfo *prometheus.GaugeVec
}

// NewMetrics builds and registers every collector on a fresh registry.
func NewMetrics(version, goVersion string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "punchrelay_registrations_total",
				Help: "Total RegisterPeer requests handled.",
			},
			[]string{"result"},
		),
		PunchHoleTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "punchrelay_punch_hole_total",
				Help: "Total PunchHoleRequest outcomes.",
			},
			[]string{"result"},
		),
		PunchHoleDurationSec: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "punchrelay_punch_hole_duration_seconds",
				Help:    "Time from PunchHoleRequest to the reply reaching the requester.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"result"},
		),
		ConfigUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "punchrelay_config_updates_total",
				Help: "Total ConfigUpdate messages pushed to clients.",
			},
			[]string{"reason"},
		),
		RelayServersHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "punchrelay_relay_servers_healthy",
				Help: "Whether a configured relay server passed its last health check (1) or not (0).",
			},
			[]string{"relay_server"},
		),

		RelaySessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "punchrelay_relay_sessions_total",
				Help: "Total relay sessions paired.",
			},
			[]string{"mode"},
		),
		RelayActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "punchrelay_relay_active_sessions",
				Help: "Currently forwarding relay sessions.",
			},
		),
		RelayBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "punchrelay_relay_bytes_total",
				Help: "Total bytes forwarded by the relay server.",
			},
			[]string{"direction"},
		),
		RelayDowngradesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "punchrelay_relay_downgrades_total",
				Help: "Total sessions flipped permanently to the blacklist limiter.",
			},
		),
		RelayRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "punchrelay_relay_rejections_total",
				Help: "Total relay connections rejected before pairing.",
			},
			[]string{"reason"},
		),

		AbuseRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "punchrelay_abuse_rejections_total",
				Help: "Total requests rejected by the abuse throttle.",
			},
			[]string{"ban"},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "punchrelay_build_info",
				Help: "Build metadata, value is always 1.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		m.RegistrationsTotal,
		m.PunchHoleTotal,
		m.PunchHoleDurationSec,
		m.ConfigUpdatesTotal,
		m.RelayServersHealthy,
		m.RelaySessionsTotal,
		m.RelayActiveSessions,
		m.RelayBytesTotal,
		m.RelayDowngradesTotal,
		m.RelayRejectionsTotal,
		m.AbuseRejectionsTotal,
		m.BuildInfo,
	)

	m.BuildInfo.WithLabelValues(version, goVersion).Set(1)
	return m
}

// Handler returns an http.Handler serving this instance's metrics. Callers
// are responsible for gating it to loopback per the configuration surface.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
