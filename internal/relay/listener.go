package relay

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shurlinet/punchrelay/internal/telemetry"
	"github.com/shurlinet/punchrelay/internal/wire"
)

// pairingTimeout bounds how long a freshly accepted socket has to present
// its RequestRelay frame before it is dropped, matching the reference
// relay's 30_000ms next_timeout on the first read.
const pairingTimeout = 30 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Listener accepts relay pairing connections over plain TCP and WebSocket,
// routes loopback TCP connections to the operator control plane, applies
// the hard-drop blocklist, and pairs RequestRelay frames via PendingHalves.
type Listener struct {
	state         *State
	pending       *PendingHalves
	metrics       *telemetry.Metrics
	licenceKey    string
	handleControl func(net.Conn)
}

func NewListener(state *State, pending *PendingHalves, metrics *telemetry.Metrics, licenceKey string, handleControl func(net.Conn)) *Listener {
	return &Listener{
		state:         state,
		pending:       pending,
		metrics:       metrics,
		licenceKey:    licenceKey,
		handleControl: handleControl,
	}
}

// ServeTCP handles one accepted plain-TCP connection: loopback sources are
// routed to the control plane, everything else is expected to open with a
// RequestRelay frame.
func (l *Listener) ServeTCP(ctx context.Context, conn net.Conn) {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ip := net.ParseIP(host)

	if ip != nil && ip.IsLoopback() && l.handleControl != nil {
		l.handleControl(conn)
		return
	}

	if ip != nil && l.state.IsBlocked(ip.String()) {
		l.reject("blocked")
		conn.Close()
		return
	}

	r := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(pairingTimeout))
	payload, err := wire.ReadFrame(r)
	if err != nil {
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	msg, err := wire.Decode(payload)
	if err != nil {
		conn.Close()
		return
	}
	req, ok := msg.(*wire.RequestRelay)
	if !ok || req.UUID == "" {
		conn.Close()
		return
	}
	if l.licenceKey != "" && req.LicenceKey != l.licenceKey {
		l.reject("licence_mismatch")
		conn.Close()
		return
	}

	ipStr := ""
	if ip != nil {
		ipStr = ip.String()
	}
	l.pair(ctx, req.UUID, &half{conn: conn, reader: r, ip: ipStr, addr: conn.RemoteAddr().String()})
}

// ServeWS handles one WebSocket upgrade for the relay endpoint. Real client
// IP is reconstructed from X-Real-IP/X-Forwarded-For since the socket is
// typically behind a reverse proxy.
func (l *Listener) ServeWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ipStr := realClientIP(r)
	addrStr := r.RemoteAddr
	if r.Header.Get("X-Real-IP") != "" || r.Header.Get("X-Forwarded-For") != "" {
		// A reverse proxy rewrote the socket's remote address; its port is
		// meaningless to the client's actual NAT mapping, so the usage key
		// falls back to the bare ip in this case.
		addrStr = ipStr
	}
	if ipStr != "" && l.state.IsBlocked(ipStr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		l.reject("blocked")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(pairingTimeout))
	payload, err := wire.ReadWSFrame(conn)
	if err != nil {
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	msg, err := wire.Decode(payload)
	if err != nil {
		conn.Close()
		return
	}
	req, ok := msg.(*wire.RequestRelay)
	if !ok || req.UUID == "" {
		conn.Close()
		return
	}
	if l.licenceKey != "" && req.LicenceKey != l.licenceKey {
		l.reject("licence_mismatch")
		conn.Close()
		return
	}

	l.pair(ctx, req.UUID, &half{ws: conn, ip: ipStr, addr: addrStr})
}

func (l *Listener) pair(ctx context.Context, uuid string, h *half) {
	partner, paired := l.pending.Offer(uuid, h)
	if !paired {
		return
	}
	if l.metrics != nil {
		mode := "raw"
		if h.isWS() || partner.isWS() {
			mode = "framed"
		}
		l.metrics.RelaySessionsTotal.WithLabelValues(mode).Inc()
		l.metrics.RelayActiveSessions.Inc()
	}
	session := NewSession(uuid, partner, h, l.state, l.metrics)
	session.Run(ctx)
}

func (l *Listener) reject(reason string) {
	if l.metrics != nil {
		l.metrics.RelayRejectionsTotal.WithLabelValues(reason).Inc()
	}
}

// realClientIP reconstructs the true client address behind a reverse
// proxy, preferring X-Real-IP, then the first hop of X-Forwarded-For, then
// falling back to the socket's own remote address.
func realClientIP(r *http.Request) string {
	if v := r.Header.Get("X-Real-IP"); v != "" {
		return v
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		parts := strings.Split(v, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
