package relay

import (
	"context"
	"net"
	"net/http"

	"github.com/shurlinet/punchrelay/internal/control"
	"github.com/shurlinet/punchrelay/internal/listeners"
	"github.com/shurlinet/punchrelay/internal/telemetry"
)

// ListenAndServe binds the relay server's pairing TCP port and its
// WebSocket port (port+2, mirroring the rendezvous server's own port
// offset convention) and blocks until ctx is canceled. Loopback
// connections on the TCP port are routed to console instead of being
// treated as relay pairing attempts.
func ListenAndServe(ctx context.Context, port int, state *State, pending *PendingHalves, metrics *telemetry.Metrics, licenceKey string, console *control.Console) error {
	l := NewListener(state, pending, metrics, licenceKey, func(conn net.Conn) {
		control.Serve(conn, console)
	})

	go listeners.Supervise(ctx, "relay-tcp", func() (net.Listener, error) {
		return listeners.ListenTCP(port)
	}, func(conn net.Conn) {
		l.ServeTCP(ctx, conn)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		l.ServeWS(ctx, w, r)
	})
	go listeners.Supervise(ctx, "relay-ws", func() (net.Listener, error) {
		return listeners.ListenTCP(port + 2)
	}, func(conn net.Conn) {
		_ = http.Serve(listeners.NewSingleConnListener(conn), mux)
	})

	<-ctx.Done()
	return nil
}
