package rendezvous

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/shurlinet/punchrelay/internal/control"
	"github.com/shurlinet/punchrelay/internal/listeners"
	"github.com/shurlinet/punchrelay/internal/wire"
)

const udpReadBufferSize = 4096

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ListenAndServe binds the four listener sockets §4.4 describes (UDP/TCP
// at port, auxiliary TCP at port-1, WebSocket at port+2) and blocks until
// ctx is canceled. It also starts Server.Run's inbox and health-check
// loops.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	udpConn, err := listeners.ListenUDP(port)
	if err != nil {
		return err
	}
	s.SetUDPConn(udpConn)

	go s.Run(ctx)
	go s.serveUDP(ctx, udpConn)

	go listeners.Supervise(ctx, "rendezvous-tcp", func() (net.Listener, error) {
		return listeners.ListenTCP(port)
	}, s.serveTCPConn)

	go listeners.Supervise(ctx, "rendezvous-aux-tcp", func() (net.Listener, error) {
		return listeners.ListenTCP(port - 1)
	}, s.serveTCPConn)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWSHandler)
	go listeners.Supervise(ctx, "rendezvous-ws", func() (net.Listener, error) {
		return listeners.ListenTCP(port + 2)
	}, func(conn net.Conn) {
		_ = http.Serve(listeners.NewSingleConnListener(conn), mux)
	})

	<-ctx.Done()
	udpConn.Close()
	return nil
}

func (s *Server) serveUDP(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, udpReadBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("rendezvous: udp read failed", "err", err)
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		go s.handleUDPPacket(ctx, conn, addr, data)
	}
}

func (s *Server) handleUDPPacket(ctx context.Context, conn *net.UDPConn, addr *net.UDPAddr, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		return
	}
	normalized := listeners.NormalizeAddr(addr).(*net.UDPAddr)
	path := udpReplyPath{conn: conn, addr: normalized}
	s.Dispatch(ctx, msg, path, normalized.IP)
}

func (s *Server) serveTCPConn(conn net.Conn) {
	ctx := context.Background()
	defer conn.Close()

	remote := listeners.NormalizeAddr(conn.RemoteAddr())
	tcpAddr, _ := remote.(*net.TCPAddr)
	var ip net.IP
	if tcpAddr != nil {
		ip = tcpAddr.IP
	}

	if ip != nil && ip.IsLoopback() && s.Console != nil {
		control.Serve(conn, s.Console)
		return
	}

	r := bufio.NewReader(conn)
	path := tcpReplyPath{conn: conn, ip: ip}
	for {
		frame, err := wire.ReadFrame(r)
		if err != nil {
			return
		}
		msg, err := wire.Decode(frame)
		if err != nil {
			continue
		}
		s.Dispatch(ctx, msg, path, ip)
	}
}

func (s *Server) serveWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := context.Background()
	ip := realClientIP(r, conn)
	path := wsReplyPath{conn: conn, ip: ip}
	for {
		frame, err := wire.ReadWSFrame(conn)
		if err != nil {
			return
		}
		msg, err := wire.Decode(frame)
		if err != nil {
			continue
		}
		s.Dispatch(ctx, msg, path, ip)
	}
}

// realClientIP honors X-Real-IP / X-Forwarded-For the way the relay
// listener does, since a WebSocket client is typically behind a reverse
// proxy and its raw socket address belongs to the proxy, not the client.
func realClientIP(r *http.Request, conn *websocket.Conn) net.IP {
	if v := r.Header.Get("X-Real-IP"); v != "" {
		if ip := net.ParseIP(v); ip != nil {
			return ip
		}
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		first := v
		for i, c := range v {
			if c == ',' {
				first = v[:i]
				break
			}
		}
		if ip := net.ParseIP(trimSpace(first)); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return nil
	}
	return listeners.NormalizeIP(net.ParseIP(host))
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}
