package rendezvous

import (
	"context"
	"net"

	"github.com/shurlinet/punchrelay/internal/listeners"
	"github.com/shurlinet/punchrelay/internal/wire"
)

// signIdentity bundles id and pk into an IdPk payload and signs it when a
// private key is configured, per §4.3. A bare-public-key identity can't
// sign, so the bundle is returned unsigned — the receiving client treats an
// unsigned pk as informational only.
func (s *Server) signIdentity(id string, pk []byte) []byte {
	bundle := wire.IdPk{ID: id, PK: pk}.Encode()
	if s.Identity.CanSign() {
		if signed, err := s.Identity.Sign(bundle); err == nil {
			return signed
		}
	}
	return bundle
}

// handlePunchHoleSent implements the PunchHole branch of §4.4.4: the
// target replied with its observed address, so rewrite it into a
// PunchHoleResponse and forward it to the stashed requester.
func (s *Server) handlePunchHoleSent(ctx context.Context, m *wire.PunchHoleSent) {
	requester, ok := s.takePunchRequester(m.ID)
	if !ok {
		return
	}
	targetPK := s.targetPK(ctx, m.ID)
	requester.send(&wire.PunchHoleResponse{
		SocketAddr:  m.SocketAddr,
		PK:          s.signIdentity(m.ID, targetPK),
		RelayServer: m.RelayServer,
		NatType:     m.NatType,
		Failure:     wire.FailureNone,
		IsLocal:     false,
	})
}

// handleLocalAddr implements the FetchLocalAddr branch of §4.4.4.
func (s *Server) handleLocalAddr(ctx context.Context, m *wire.LocalAddr) {
	requester, ok := s.takePunchRequester(m.ID)
	if !ok {
		return
	}
	targetPK := s.targetPK(ctx, m.ID)
	requester.send(&wire.PunchHoleResponse{
		SocketAddr:  m.LocalAddr,
		PK:          s.signIdentity(m.ID, targetPK),
		RelayServer: m.RelayServer,
		Failure:     wire.FailureNone,
		IsLocal:     true,
	})
}

func (s *Server) targetPK(ctx context.Context, id string) []byte {
	peer, ok := s.Dir.GetInMemory(id)
	if !ok {
		peer, ok = s.Dir.Get(ctx, id)
		if !ok {
			return nil
		}
	}
	return peer.Snapshot().PK
}

// handleRequestRelay implements §4.4.5's first half: stash the requester's
// TCP/WebSocket half under its normalized address and forward the request,
// augmented with the requester's mangled address, to the target.
func (s *Server) handleRequestRelay(ctx context.Context, m *wire.RequestRelay, from replyPath, ip net.IP) {
	if s.State.LicenceKey != "" && m.LicenceKey != s.State.LicenceKey {
		return
	}

	key := requesterAddrKey(from)
	s.pendingRelayMu.Lock()
	s.pendingRelay[key] = from
	s.pendingRelayMu.Unlock()

	// The target learns who to relay to purely by receiving this frame; its
	// RelayResponse.id only needs to echo key back so handleRelayResponse
	// can find the stashed requester half again.
	augmented := &wire.RequestRelay{
		ID:         key,
		UUID:       m.UUID,
		LicenceKey: m.LicenceKey,
		SocketAddr: wire.MangleAddr(ip, uint16(udpPortOf(from))),
	}
	s.sendToTarget(ctx, m.ID, augmented)
}

// handleRelayResponse implements §4.4.5's second half: sign the target's
// pk, rewrite relay_server for LAN/WAN bridging if needed, and forward to
// the stashed requester half.
func (s *Server) handleRelayResponse(ctx context.Context, m *wire.RelayResponse) {
	s.pendingRelayMu.Lock()
	requester, ok := s.pendingRelay[m.ID]
	if ok {
		delete(s.pendingRelay, m.ID)
	}
	s.pendingRelayMu.Unlock()
	if !ok {
		return
	}

	relayServer := m.RelayServer
	if s.State.classifyLAN(net.ParseIP(m.RelayServer)) && s.State.LocalIP != nil {
		relayServer = s.State.LocalIP.String()
	}

	requester.send(&wire.RelayResponse{
		SocketAddr:  m.SocketAddr,
		ID:          m.ID,
		Version:     m.Version,
		RelayServer: relayServer,
		PK:          s.signIdentity(m.ID, m.PK),
	})
}

// requesterAddrKey derives the normalized "ip:port" string §4.4.5 uses to
// key the stashed relay half, working for both plain TCP and WebSocket
// reply paths.
func requesterAddrKey(p replyPath) string {
	switch rp := p.(type) {
	case tcpReplyPath:
		return listeners.NormalizeAddr(rp.conn.RemoteAddr()).String()
	case wsReplyPath:
		return listeners.NormalizeAddr(rp.conn.RemoteAddr()).String()
	default:
		return p.remoteIP().String()
	}
}
