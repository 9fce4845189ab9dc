package listeners

import "net"

// singleConn adapts one already-accepted net.Conn into a net.Listener that
// yields it exactly once, so an http.Server can run a WebSocket upgrade
// handshake on a connection a Supervise accept loop already accepted,
// without needing a second independent net.Listener for the WS port.
type singleConn struct {
	conn net.Conn
	addr net.Addr
}

// NewSingleConnListener wraps conn so the first Accept returns it and every
// subsequent Accept reports net.ErrClosed.
func NewSingleConnListener(conn net.Conn) net.Listener {
	return &singleConn{conn: conn}
}

func (l *singleConn) Accept() (net.Conn, error) {
	if l.conn == nil {
		return nil, net.ErrClosed
	}
	c := l.conn
	l.addr = c.LocalAddr()
	l.conn = nil
	return c, nil
}

func (l *singleConn) Close() error   { return nil }
func (l *singleConn) Addr() net.Addr { return l.addr }
