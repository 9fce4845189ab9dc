package relay

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// halfExpiry bounds how long an unpaired relay request waits for its
// partner before the slot is reclaimed, matching the 30s sleep the
// reference relay uses to evict an abandoned PEERS entry.
const halfExpiry = 30 * time.Second

// half is one unpaired side of a relay session: either a raw net.Conn
// (plain TCP, pairs in raw mode) or a *websocket.Conn (always framed).
type half struct {
	conn   net.Conn
	ws     *websocket.Conn
	reader *bufio.Reader
	ip     string
	addr   string
}

func (h *half) isWS() bool { return h.ws != nil }

// usageKey is the "ip:port" string SessionUsage rows are keyed by. It
// falls back to the bare ip when the real port couldn't be recovered (a
// WebSocket half behind a reverse proxy that set X-Real-IP/X-Forwarded-For
// without a port, or a test-constructed half).
func (h *half) usageKey() string {
	if h.addr != "" {
		return h.addr
	}
	return h.ip
}

// PendingHalves is the relay server's token-keyed queue of sockets waiting
// for their partner, grounded on the reference implementation's
// PEERS: Arc<Mutex<HashMap<String, FramedStream>>>, with each stored half
// removed by its own halfExpiry timer armed when it is offered.
type PendingHalves struct {
	mu   sync.Mutex
	rows map[string]*pendingEntry
}

type pendingEntry struct {
	half    *half
	expires time.Time
	timer   *time.Timer
}

func NewPendingHalves() *PendingHalves {
	return &PendingHalves{rows: make(map[string]*pendingEntry)}
}

// Offer inserts h under uuid if no partner is waiting, returning (nil,
// false). If a partner is already waiting, it is removed and returned
// paired as (partner, true) and h is never stored.
func (p *PendingHalves) Offer(uuid string, h *half) (*half, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.rows[uuid]; ok {
		entry.timer.Stop()
		delete(p.rows, uuid)
		return entry.half, true
	}

	entry := &pendingEntry{half: h, expires: time.Now().Add(halfExpiry)}
	entry.timer = time.AfterFunc(halfExpiry, func() {
		p.expire(uuid, h)
	})
	p.rows[uuid] = entry
	return nil, false
}

func (p *PendingHalves) expire(uuid string, h *half) {
	p.mu.Lock()
	entry, ok := p.rows[uuid]
	if ok && entry.half == h {
		delete(p.rows, uuid)
	}
	p.mu.Unlock()
	if ok {
		closeHalf(h)
	}
}

// Len reports the number of unpaired halves currently waiting, for tests.
func (p *PendingHalves) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rows)
}

func closeHalf(h *half) {
	if h.ws != nil {
		h.ws.Close()
		return
	}
	if h.conn != nil {
		h.conn.Close()
	}
}
