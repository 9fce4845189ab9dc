package listeners

import "net"

// NormalizeIP collapses an IPv4-mapped IPv6 address (::ffff:a.b.c.d) down
// to its plain IPv4 form so a client seen over a dual-stack socket hashes
// to the same map key as the same client seen over an IPv4-only listener.
func NormalizeIP(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

// NormalizeAddr applies NormalizeIP to a net.Addr's IP component, returning
// the original value unchanged if addr is not a recognized IP-bearing type.
func NormalizeAddr(addr net.Addr) net.Addr {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return &net.TCPAddr{IP: NormalizeIP(a.IP), Port: a.Port, Zone: a.Zone}
	case *net.UDPAddr:
		return &net.UDPAddr{IP: NormalizeIP(a.IP), Port: a.Port, Zone: a.Zone}
	default:
		return addr
	}
}
