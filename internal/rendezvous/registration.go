package rendezvous

import (
	"context"
	"net"
	"time"

	"github.com/shurlinet/punchrelay/internal/wire"
)

// handleRegisterPeer implements §4.4.1: refresh the cached live state, tell
// the peer whether it must follow up with RegisterPk, and piggy-back a
// ConfigUpdate if the server's serial has moved ahead of the client's.
func (s *Server) handleRegisterPeer(ctx context.Context, m *wire.RegisterPeer, from replyPath, ip net.IP) {
	peer := s.Dir.GetOrCreate(ctx, m.ID)

	peer.Lock()
	var prevIP net.IP
	if prevAddr := peer.SocketAddr; prevAddr != nil {
		if host, _, err := net.SplitHostPort(prevAddr.String()); err == nil {
			prevIP = net.ParseIP(host)
		}
	}
	hadRow := len(peer.Guid) > 0
	hadPK := len(peer.PK) > 0

	ipChanged := prevIP != nil && ip != nil && !prevIP.Equal(ip) && !prevIP.IsLoopback()

	requestPk := !hadRow || !hadPK
	if !requestPk && ipChanged && peer.ReaskCount < 3 {
		requestPk = true
	}
	if requestPk && (!hadRow || !hadPK || ipChanged) {
		peer.ReaskCount++
	}

	peer.SocketAddr = &net.UDPAddr{IP: ip, Port: udpPortOf(from)}
	peer.LastRegTime = time.Now()
	peer.Unlock()

	if s.Metrics != nil {
		s.Metrics.RegistrationsTotal.WithLabelValues("ok").Inc()
	}

	if err := from.send(&wire.RegisterPeerResponse{RequestPk: requestPk}); err != nil {
		return
	}

	if s.State.Serial() > m.Serial {
		s.sendConfigUpdate(from, "serial-stale")
	}
}

func (s *Server) sendConfigUpdate(to replyPath, reason string) {
	cu := &wire.ConfigUpdate{
		Serial:            s.State.Serial(),
		RendezvousServers: s.State.RendezvousServers(),
	}
	if to.send(cu) == nil && s.Metrics != nil {
		s.Metrics.ConfigUpdatesTotal.WithLabelValues(reason).Inc()
	}
}

// udpPortOf extracts the observed source port from a replyPath. UDP and TCP
// reply paths both carry it; WebSocket doesn't expose a meaningful one here
// since the client's NAT mapping is hidden behind the proxy.
func udpPortOf(p replyPath) int {
	switch rp := p.(type) {
	case udpReplyPath:
		return rp.addr.Port
	case tcpReplyPath:
		if tcpAddr, ok := rp.conn.RemoteAddr().(*net.TCPAddr); ok {
			return tcpAddr.Port
		}
	}
	return 0
}

// handleRegisterPk implements §4.4.2.
func (s *Server) handleRegisterPk(ctx context.Context, m *wire.RegisterPk, from replyPath, ip net.IP) {
	if len(m.UUID) == 0 || len(m.PK) == 0 || len(m.ID) < 6 {
		from.send(&wire.RegisterPkResponse{Result: wire.RegisterPkUUIDMismatch})
		s.bumpAbuseMetric("uuid-mismatch")
		return
	}

	if s.Throttle.CheckIpBlocker(ip.String(), m.ID) {
		from.send(&wire.RegisterPkResponse{Result: wire.RegisterPkTooFrequent})
		s.bumpAbuseMetric("ip-throttle")
		return
	}

	peer := s.Dir.GetOrCreate(ctx, m.ID)

	peer.Lock()
	hadRow := len(peer.Guid) > 0
	sameUUID := hadRow && string(peer.UUID) == string(m.UUID)
	sameIP := peer.Info.IP == ip.String()
	samePK := string(peer.PK) == string(m.PK)

	if hadRow {
		if !sameUUID {
			peer.Unlock()
			from.send(&wire.RegisterPkResponse{Result: wire.RegisterPkUUIDMismatch})
			s.bumpAbuseMetric("uuid-mismatch")
			return
		}
		if !sameIP && !samePK {
			peer.Unlock()
			from.send(&wire.RegisterPkResponse{Result: wire.RegisterPkUUIDMismatch})
			s.bumpAbuseMetric("uuid-mismatch")
			return
		}
	}

	now := time.Now()
	if now.Sub(peer.RegPk.Timestamp) <= 6*time.Second {
		if peer.RegPk.Count >= 2 {
			peer.Unlock()
			from.send(&wire.RegisterPkResponse{Result: wire.RegisterPkTooFrequent})
			s.bumpAbuseMetric("reg-pk-rate")
			return
		}
		peer.RegPk.Count++
	} else {
		peer.RegPk.Count = 1
		peer.RegPk.Timestamp = now
	}
	ipChanged := hadRow && peer.Info.IP != "" && !sameIP
	peer.Unlock()

	if ipChanged {
		s.IPChanges.Record(m.ID, ip.String())
	}

	result := s.Dir.UpdatePk(ctx, m.ID, peer, &net.UDPAddr{IP: ip}, m.UUID, m.PK, ip.String())
	from.send(&wire.RegisterPkResponse{Result: result})
	if s.Metrics != nil {
		s.Metrics.RegistrationsTotal.WithLabelValues("pk-" + pkResultLabel(result)).Inc()
	}
}

func (s *Server) bumpAbuseMetric(reason string) {
	if s.Metrics != nil {
		s.Metrics.AbuseRejectionsTotal.WithLabelValues(reason).Inc()
	}
}

func pkResultLabel(r wire.RegisterPkResult) string {
	switch r {
	case wire.RegisterPkOK:
		return "ok"
	case wire.RegisterPkUUIDMismatch:
		return "uuid-mismatch"
	case wire.RegisterPkTooFrequent:
		return "too-frequent"
	case wire.RegisterPkNotSupport:
		return "not-support"
	default:
		return "server-error"
	}
}
