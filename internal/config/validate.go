package config

import (
	"fmt"
	"net"
)

// ValidateRendezvousConfig checks the subset of Config the rendezvous
// server binary depends on before it binds a single socket.
func ValidateRendezvousConfig(cfg Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", cfg.Port)
	}
	if cfg.Port < 2 {
		return fmt.Errorf("config: port %d leaves no room for the port-1 auxiliary listener", cfg.Port)
	}
	if cfg.Port > 65533 {
		return fmt.Errorf("config: port %d leaves no room for the port+2 websocket listener", cfg.Port)
	}
	if cfg.Serial < 0 {
		return fmt.Errorf("config: serial must not be negative")
	}
	if cfg.Mask != "" {
		if _, _, err := net.ParseCIDR(cfg.Mask); err != nil {
			return fmt.Errorf("config: mask %q: %w", cfg.Mask, err)
		}
	}
	if cfg.MaxDatabaseConnections < 1 {
		return fmt.Errorf("config: max_database_connections must be at least 1")
	}
	return nil
}

// ValidateRelayConfig checks the subset of Config the relay server binary
// depends on.
func ValidateRelayConfig(cfg Config) error {
	if cfg.RelayPort <= 0 || cfg.RelayPort > 65533 {
		return fmt.Errorf("config: relay_port %d out of range (needs room for the port+2 websocket listener)", cfg.RelayPort)
	}
	if cfg.TotalBandwidthMbps <= 0 {
		return fmt.Errorf("config: total_bandwidth_mbps must be positive")
	}
	if cfg.SingleBandwidthMbps <= 0 {
		return fmt.Errorf("config: single_bandwidth_mbps must be positive")
	}
	if cfg.DowngradeThreshold < 0 || cfg.DowngradeThreshold > 1 {
		return fmt.Errorf("config: downgrade_threshold must be within [0,1]")
	}
	return nil
}
