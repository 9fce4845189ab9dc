// Package listeners implements the boundary-listener concerns both server
// roles share: dual-stack-first binding with IPv4 fallback, SO_REUSEADDR/
// SO_REUSEPORT on Unix, IPv4-mapped-IPv6 address normalization, and
// supervised per-listener restart.
package listeners

import (
	"fmt"
	"net"
)

// ListenTCP binds TCP port on the IPv6 dual-stack wildcard address first
// (accepting both v4 and v6 clients on one socket), falling back to an
// IPv4-only bind if the platform or network stack rejects dual-stack.
func ListenTCP(port int) (net.Listener, error) {
	cfg := net.ListenConfig{Control: reuseControl}

	ln, err := cfg.Listen(nil, "tcp", fmt.Sprintf("[::]:%d", port))
	if err == nil {
		return ln, nil
	}

	ln4, err4 := cfg.Listen(nil, "tcp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err4 != nil {
		return nil, fmt.Errorf("listeners: bind tcp port %d: dual-stack: %w; ipv4 fallback: %v", port, err, err4)
	}
	return ln4, nil
}

// ListenUDP binds UDP port the same way ListenTCP does.
func ListenUDP(port int) (*net.UDPConn, error) {
	cfg := net.ListenConfig{Control: reuseControl}

	pc, err := cfg.ListenPacket(nil, "udp", fmt.Sprintf("[::]:%d", port))
	if err == nil {
		return pc.(*net.UDPConn), nil
	}

	pc4, err4 := cfg.ListenPacket(nil, "udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err4 != nil {
		return nil, fmt.Errorf("listeners: bind udp port %d: dual-stack: %w; ipv4 fallback: %v", port, err, err4)
	}
	return pc4.(*net.UDPConn), nil
}
