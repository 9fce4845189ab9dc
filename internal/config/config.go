// Package config loads rendezvous-server and relay-server configuration
// from CLI flags, a ".env"-style INI file, and a YAML overlay, normalizing
// keys to the upper-with-hyphens environment variable convention used
// throughout the wire/config surface (e.g. "rendezvous_servers" becomes
// "RENDEZVOUS-SERVERS"; see Normalize in loader.go).
package config

// CurrentConfigVersion is the latest configuration schema version.
const CurrentConfigVersion = 1

// Config holds every tunable named in the external interface table.
// Both binaries load the same struct; each reads only the fields it needs.
type Config struct {
	Version int `yaml:"version,omitempty"`

	// Port is the rendezvous UDP/TCP port P. The auxiliary NAT/online-probe
	// listener binds P-1, the WebSocket listener binds P+2.
	Port int `yaml:"port"`

	// RelayPort is the relay server's TCP port R; its WebSocket listener
	// binds R+2.
	RelayPort int `yaml:"relay_port"`

	Serial int `yaml:"serial"`

	RendezvousServers []string `yaml:"rendezvous_servers,omitempty"`
	RelayServers      []string `yaml:"relay_servers,omitempty"`

	SoftwareURL string `yaml:"software_url,omitempty"`

	// Key is the operator-supplied signing/shared-secret argument; see
	// internal/identity for the three resolution cases.
	Key string `yaml:"key,omitempty"`

	// LicenceKey, when set, must match RequestRelay.LicenceKey for a relay
	// pairing to be accepted.
	LicenceKey string `yaml:"licence_key,omitempty"`

	// Rmem is the requested UDP receive buffer size in bytes. It is parsed
	// and stored, but no listener applies it: every UDP socket keeps the OS
	// default receive buffer.
	Rmem int `yaml:"rmem,omitempty"`

	// Mask is the CIDR defining the operator's LAN, used to classify
	// endpoints as LAN vs WAN for relay-forcing decisions.
	Mask string `yaml:"mask,omitempty"`

	// LocalIP substitutes for a LAN-side target's relay address. When empty,
	// no address is detected from the interfaces and no substitution is made.
	LocalIP string `yaml:"local_ip,omitempty"`

	DBURL                   string `yaml:"db_url"`
	MaxDatabaseConnections  int    `yaml:"max_database_connections"`
	AlwaysUseRelay          bool   `yaml:"always_use_relay"`

	// Relay-side bandwidth tunables. Mb/s unless noted.
	TotalBandwidthMbps     float64 `yaml:"total_bandwidth_mbps"`
	SingleBandwidthMbps    float64 `yaml:"single_bandwidth_mbps"`
	LimitSpeedMbps         float64 `yaml:"limit_speed_mbps"`
	DowngradeThreshold     float64 `yaml:"downgrade_threshold"`
	DowngradeStartCheckSec int     `yaml:"downgrade_start_check_sec"`

	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig controls the opt-in loopback-gated metrics endpoint.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// Defaults returns a Config populated with every documented default value.
func Defaults() Config {
	return Config{
		Version:                CurrentConfigVersion,
		Port:                   21116,
		RelayPort:              21117,
		Serial:                 0,
		Key:                    "-",
		DBURL:                  "db_v2.sqlite3",
		MaxDatabaseConnections: 1,
		AlwaysUseRelay:         false,
		TotalBandwidthMbps:     1000,
		SingleBandwidthMbps:    16,
		LimitSpeedMbps:         4,
		DowngradeThreshold:     0.66,
		DowngradeStartCheckSec: 30 * 60,
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: false, ListenAddress: "127.0.0.1:9091"},
		},
	}
}
