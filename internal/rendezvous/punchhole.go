package rendezvous

import (
	"context"
	"net"
	"time"

	"github.com/shurlinet/punchrelay/internal/peerdir"
	"github.com/shurlinet/punchrelay/internal/wire"
)

// NAT type codes carried in PunchHole/PunchHoleResponse.nat_type. The wire
// format doesn't define these as a Go enum since the client is the only
// side that interprets most of them; the rendezvous engine only ever needs
// to force SYMMETRIC when bridging a LAN/WAN pair.
const natTypeSymmetric int32 = 1

// handlePunchHoleRequest implements §4.4.3.
func (s *Server) handlePunchHoleRequest(ctx context.Context, m *wire.PunchHoleRequest, from replyPath, ip net.IP) {
	start := time.Now()
	fail := func(reason wire.PunchHoleFailure, metricResult string) {
		from.send(&wire.PunchHoleResponse{Failure: reason})
		s.recordPunchOutcome(metricResult, start)
	}

	if s.State.LicenceKey != "" && m.LicenceKey != s.State.LicenceKey {
		fail(wire.FailureLicenseMismatch, "license-mismatch")
		return
	}

	target, ok := s.Dir.Get(ctx, m.ID)
	if !ok {
		fail(wire.FailureIDNotExist, "id-not-exist")
		return
	}

	snap := target.Snapshot()
	if time.Since(snap.LastRegTime) > offlineAfter {
		fail(wire.FailureOffline, "offline")
		return
	}

	targetIP := targetIPOf(snap)
	sameIntranet := !from.isWS() && sameFamily(ip, targetIP) && ip != nil && targetIP != nil && ip.Equal(targetIP)

	targetIsLAN := s.State.classifyLAN(targetIP)
	requesterIsLAN := s.State.classifyLAN(ip)
	forceRelay := s.State.AlwaysUseRelay() || (targetIsLAN != requesterIsLAN)

	natType := m.NatType
	relayServer := s.State.PickRelayServer()
	if forceRelay {
		natType = natTypeSymmetric
		if targetIsLAN && s.State.LocalIP != nil {
			relayServer = s.State.LocalIP.String()
		}
	}

	requesterAddr := wire.MangleAddr(ip, uint16(udpPortOf(from)))

	s.stashPunchRequester(m.ID, from)

	if sameIntranet {
		s.sendToTarget(ctx, m.ID, &wire.FetchLocalAddr{SocketAddr: requesterAddr, RelayServer: relayServer})
	} else {
		s.sendToTarget(ctx, m.ID, &wire.PunchHole{SocketAddr: requesterAddr, NatType: natType, RelayServer: relayServer})
	}
}

func (s *Server) recordPunchOutcome(result string, start time.Time) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.PunchHoleTotal.WithLabelValues(result).Inc()
	s.Metrics.PunchHoleDurationSec.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// targetIPOf extracts the best-known source ip for a peer snapshot,
// preferring the durable record's stored ip and falling back to the live
// socket address's host.
func targetIPOf(snap peerdir.Peer) net.IP {
	if snap.Info.IP != "" {
		return net.ParseIP(snap.Info.IP)
	}
	if snap.SocketAddr != nil {
		if host, _, err := net.SplitHostPort(snap.SocketAddr.String()); err == nil {
			return net.ParseIP(host)
		}
	}
	return nil
}

func sameFamily(a, b net.IP) bool {
	if a == nil || b == nil {
		return false
	}
	return (a.To4() != nil) == (b.To4() != nil)
}
