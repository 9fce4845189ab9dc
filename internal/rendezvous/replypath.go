package rendezvous

import (
	"bufio"
	"net"

	"github.com/gorilla/websocket"

	"github.com/shurlinet/punchrelay/internal/wire"
)

// replyPath abstracts over the three transports a request can arrive on
// (UDP, plain framed TCP, WebSocket) so a handler can reply without
// knowing which one the requester used, per §4.4.4's "forwards to the
// original requester over the same transport the requester came in on."
type replyPath interface {
	send(msg wire.Message) error
	remoteIP() net.IP
	isWS() bool
}

type udpReplyPath struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

func (p udpReplyPath) send(msg wire.Message) error {
	_, err := p.conn.WriteToUDP(wire.Encode(msg), p.addr)
	return err
}
func (p udpReplyPath) remoteIP() net.IP { return p.addr.IP }
func (p udpReplyPath) isWS() bool       { return false }

type tcpReplyPath struct {
	conn net.Conn
	ip   net.IP
}

func (p tcpReplyPath) send(msg wire.Message) error {
	return wire.WriteFrame(p.conn, wire.Encode(msg))
}
func (p tcpReplyPath) remoteIP() net.IP { return p.ip }
func (p tcpReplyPath) isWS() bool       { return false }

type wsReplyPath struct {
	conn *websocket.Conn
	ip   net.IP
}

func (p wsReplyPath) send(msg wire.Message) error {
	return wire.WriteWSFrame(p.conn, wire.Encode(msg))
}
func (p wsReplyPath) remoteIP() net.IP { return p.ip }
func (p wsReplyPath) isWS() bool       { return true }

// tcpReader pairs a buffered reader with the connection it reads from, so
// the per-connection goroutine can keep decoding frames after the first.
type tcpReader struct {
	conn net.Conn
	r    *bufio.Reader
}
