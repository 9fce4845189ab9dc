package rendezvous

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/shurlinet/punchrelay/internal/abuse"
	"github.com/shurlinet/punchrelay/internal/control"
	"github.com/shurlinet/punchrelay/internal/identity"
	"github.com/shurlinet/punchrelay/internal/peerdir"
	"github.com/shurlinet/punchrelay/internal/telemetry"
	"github.com/shurlinet/punchrelay/internal/wire"
)

// Server ties together every C4 concern: the peer directory, the abuse
// throttle and ip-change history, the signing identity, and the
// process-wide tunables in State. Non-hot-path work (applying a validated
// ConfigureUpdate, relay health-check results) is funneled through inbox so
// it never races the per-connection goroutines that decode and reply
// directly off the read path.
type Server struct {
	Dir       *peerdir.Directory
	Throttle  *abuse.Throttle
	IPChanges *abuse.IpChangeHistory
	Identity  identity.Identity
	Metrics   *telemetry.Metrics
	State     *State

	// Console, when non-nil, receives loopback TCP connections on the
	// rendezvous port instead of having them parsed as protocol frames,
	// mirroring how the relay server multiplexes its own control plane
	// onto its pairing port.
	Console *control.Console

	inbox chan func()

	udpConn *net.UDPConn

	pendingRelayMu sync.Mutex
	pendingRelay   map[string]replyPath

	pendingPunchMu sync.Mutex
	pendingPunch   map[string]*pendingPunchEntry
}

// pendingPunchEntry remembers the requester's replyPath while a punch-hole
// round trip to the target is outstanding, keyed by the target's own id
// (see handlePunchHoleRequest/handlePunchHoleSent). Relay requests are
// stashed separately, in pendingRelay.
type pendingPunchEntry struct {
	path  replyPath
	timer *time.Timer
}

// punchPendingTTL bounds how long a requester's replyPath is held waiting
// for the target's PunchHoleSent/LocalAddr.
const punchPendingTTL = 30 * time.Second

func NewServer(dir *peerdir.Directory, throttle *abuse.Throttle, ipChanges *abuse.IpChangeHistory, id identity.Identity, metrics *telemetry.Metrics, state *State) *Server {
	return &Server{
		Dir:          dir,
		Throttle:     throttle,
		IPChanges:    ipChanges,
		Identity:     id,
		Metrics:      metrics,
		State:        state,
		inbox:        make(chan func(), 256),
		pendingRelay: make(map[string]replyPath),
		pendingPunch: make(map[string]*pendingPunchEntry),
	}
}

// SetUDPConn wires the shared UDP socket used to push unsolicited
// PunchHole/FetchLocalAddr messages to targets that aren't the source of
// the current request.
func (s *Server) SetUDPConn(conn *net.UDPConn) {
	s.udpConn = conn
}

// stashPunchRequester remembers path under targetID for up to
// punchPendingTTL, replacing (and expiring) any previous entry.
func (s *Server) stashPunchRequester(targetID string, path replyPath) {
	entry := &pendingPunchEntry{path: path}
	entry.timer = time.AfterFunc(punchPendingTTL, func() {
		s.pendingPunchMu.Lock()
		if cur, ok := s.pendingPunch[targetID]; ok && cur == entry {
			delete(s.pendingPunch, targetID)
		}
		s.pendingPunchMu.Unlock()
	})

	s.pendingPunchMu.Lock()
	if old, ok := s.pendingPunch[targetID]; ok {
		old.timer.Stop()
	}
	s.pendingPunch[targetID] = entry
	s.pendingPunchMu.Unlock()
}

// takePunchRequester pops and returns the requester's replyPath stashed for
// targetID, if any still outstanding.
func (s *Server) takePunchRequester(targetID string) (replyPath, bool) {
	s.pendingPunchMu.Lock()
	defer s.pendingPunchMu.Unlock()
	entry, ok := s.pendingPunch[targetID]
	if !ok {
		return nil, false
	}
	entry.timer.Stop()
	delete(s.pendingPunch, targetID)
	return entry.path, true
}

// sendToTarget delivers msg to the peer identified by id over the shared
// UDP socket, resolving the peer's last registered socket address from the
// in-memory cache if present, or — per §4.4.3's "else spawn a task that
// fetches from the durable store" — from the durable store otherwise.
func (s *Server) sendToTarget(ctx context.Context, id string, msg wire.Message) {
	if peer, ok := s.Dir.GetInMemory(id); ok {
		s.writeUDPTo(peer, msg)
		return
	}
	go func() {
		peer, ok := s.Dir.Get(ctx, id)
		if !ok {
			return
		}
		s.writeUDPTo(peer, msg)
	}()
}

func (s *Server) writeUDPTo(peer *peerdir.Peer, msg wire.Message) {
	if s.udpConn == nil {
		return
	}
	snap := peer.Snapshot()
	addr, ok := snap.SocketAddr.(*net.UDPAddr)
	if !ok || addr == nil {
		return
	}
	s.udpConn.WriteToUDP(wire.Encode(msg), addr)
}

// Run starts the inbox drain loop and the relay-server health-check
// scheduler. It blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) {
	go s.runInbox(ctx)
	s.runHealthCheck(ctx)
}

func (s *Server) runInbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.inbox:
			fn()
		}
	}
}

// enqueue submits fn to the single inbox-draining goroutine, used for the
// handful of operations §5 calls out as non-hot-path state mutations
// (ConfigureUpdate application, relay health-check results).
func (s *Server) enqueue(fn func()) {
	select {
	case s.inbox <- fn:
	default:
		slog.Warn("rendezvous inbox full, dropping queued work")
	}
}

func (s *Server) runHealthCheck(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkRelayHealth()
		}
	}
}

// checkRelayHealth attempts a short TCP dial to every configured relay
// server when more than one is configured, keeping the active rotation
// pruned of unreachable relays without draining a lone good one.
func (s *Server) checkRelayHealth() {
	servers := s.State.RelayServers()
	if len(servers) <= 1 {
		return
	}
	results := make(map[string]bool, len(servers))
	for _, r := range servers {
		conn, err := net.DialTimeout("tcp", r.Address, time.Second)
		healthy := err == nil
		if conn != nil {
			conn.Close()
		}
		results[r.Address] = healthy
		if s.Metrics != nil {
			val := 0.0
			if healthy {
				val = 1.0
			}
			s.Metrics.RelayServersHealthy.WithLabelValues(r.Address).Set(val)
		}
	}
	s.enqueue(func() { s.State.SetRelayHealth(results) })
}

// Dispatch routes one decoded message to its handler. from identifies
// which transport and address to reply on; ip is the normalized (IPv4-
// mapped-IPv6-collapsed) source address used for abuse/LAN checks.
func (s *Server) Dispatch(ctx context.Context, msg wire.Message, from replyPath, ip net.IP) {
	switch m := msg.(type) {
	case *wire.RegisterPeer:
		s.handleRegisterPeer(ctx, m, from, ip)
	case *wire.RegisterPk:
		s.handleRegisterPk(ctx, m, from, ip)
	case *wire.PunchHoleRequest:
		s.handlePunchHoleRequest(ctx, m, from, ip)
	case *wire.PunchHoleSent:
		s.handlePunchHoleSent(ctx, m)
	case *wire.LocalAddr:
		s.handleLocalAddr(ctx, m)
	case *wire.RequestRelay:
		s.handleRequestRelay(ctx, m, from, ip)
	case *wire.RelayResponse:
		s.handleRelayResponse(ctx, m)
	case *wire.TestNatRequest:
		s.handleTestNatRequest(m, from)
	case *wire.OnlineRequest:
		s.handleOnlineRequest(ctx, m, from)
	case *wire.ConfigureUpdate:
		s.handleConfigureUpdate(m, ip)
	case *wire.SoftwareUpdate:
		s.handleSoftwareUpdate(m, from)
	default:
		slog.Debug("rendezvous: unhandled message type", "type", msg)
	}
}
