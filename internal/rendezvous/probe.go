package rendezvous

import (
	"context"
	"net"
	"time"

	"github.com/shurlinet/punchrelay/internal/config"
	"github.com/shurlinet/punchrelay/internal/wire"
)

// handleTestNatRequest implements §4.4.6's NAT probe: echo the observed
// source port and, if the client's serial is stale, piggyback a ConfigUpdate.
func (s *Server) handleTestNatRequest(m *wire.TestNatRequest, from replyPath) {
	resp := &wire.TestNatResponse{Port: int32(portOf(from))}
	if s.State.Serial() > m.Serial {
		resp.Cu = &wire.ConfigUpdate{
			Serial:            s.State.Serial(),
			RendezvousServers: s.State.RendezvousServers(),
		}
	}
	from.send(resp)
}

func portOf(p replyPath) int {
	switch rp := p.(type) {
	case udpReplyPath:
		return rp.addr.Port
	case tcpReplyPath:
		if a, ok := rp.conn.RemoteAddr().(*net.TCPAddr); ok {
			return a.Port
		}
	}
	return 0
}

// handleOnlineRequest implements §4.4.6's online probe: an MSB-first,
// ceil(n/8)-byte presence bitmap.
func (s *Server) handleOnlineRequest(ctx context.Context, m *wire.OnlineRequest, from replyPath) {
	n := len(m.Peers)
	states := make([]byte, (n+7)/8)
	for i, id := range m.Peers {
		peer, ok := s.Dir.GetInMemory(id)
		if !ok {
			continue
		}
		snap := peer.Snapshot()
		if time.Since(snap.LastRegTime) > offlineAfter {
			continue
		}
		states[i/8] |= 1 << uint(7-i%8)
	}
	from.send(&wire.OnlineResponse{States: states})
}

// handleConfigureUpdate implements §4.4.7: loopback-only, adopts the
// incoming serial and validated server sublist if it beats the server's own.
func (s *Server) handleConfigureUpdate(m *wire.ConfigureUpdate, ip net.IP) {
	if ip == nil || !ip.IsLoopback() {
		return
	}
	if m.Serial <= s.State.Serial() {
		return
	}
	validated := config.ValidateServerList(m.RendezvousServers)
	s.enqueue(func() {
		s.State.SetSerial(m.Serial)
		s.State.SetRendezvousServers(validated)
	})
}

// handleSoftwareUpdate implements §4.4.8.
func (s *Server) handleSoftwareUpdate(m *wire.SoftwareUpdate, from replyPath) {
	if m.URL == s.State.SoftwareURL {
		return
	}
	from.send(&wire.SoftwareUpdate{URL: s.State.SoftwareURL})
}
