package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
)

// MaxFrameSize bounds a single TCP frame's payload, guarding the rendezvous
// and relay pairing listeners against a peer claiming an absurd length
// prefix and stalling a reader on an allocation that will never complete.
// A 2-byte prefix cannot exceed 65535, so ReadFrame never rejects a frame on
// this bound.
const MaxFrameSize = 256 * 1024

// WriteFrame writes a 2-byte big-endian length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > 0xFFFF {
		return fmt.Errorf("wire: frame payload of %d bytes exceeds 65535", len(payload))
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(hdr[:])
	if int(n) > MaxFrameSize {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds MaxFrameSize", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteWSFrame wraps payload in a single binary WebSocket message, carrying
// the same envelope bytes plain TCP framing would, so the rendezvous and
// relay engines can treat both transports uniformly above this layer.
func WriteWSFrame(conn *websocket.Conn, payload []byte) error {
	return conn.WriteMessage(websocket.BinaryMessage, payload)
}

// ReadWSFrame reads one binary WebSocket message's payload.
func ReadWSFrame(conn *websocket.Conn) ([]byte, error) {
	kind, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.BinaryMessage {
		return nil, fmt.Errorf("wire: expected binary websocket message, got kind %d", kind)
	}
	return data, nil
}
