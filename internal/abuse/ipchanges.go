package abuse

import (
	"sync"
	"time"
)

const (
	ipChangeWindow  = 180 * time.Second
	ipChangeGCAfter = 360 * time.Second
)

type ipChangeEntry struct {
	mu          sync.Mutex
	windowStart time.Time
	counts      map[string]int
}

// IpChangeHistory tracks, per PeerId, how many times each source ip has
// been observed within a rolling 180s window. Entries older than 360s are
// garbage-collectible by Sweep.
type IpChangeHistory struct {
	mu     sync.Mutex
	byPeer map[string]*ipChangeEntry
}

// NewIpChangeHistory returns an empty history.
func NewIpChangeHistory() *IpChangeHistory {
	return &IpChangeHistory{byPeer: make(map[string]*ipChangeEntry)}
}

// Record notes that peerID was observed from ip, starting a new 180s window
// if the previous one has elapsed.
func (h *IpChangeHistory) Record(peerID, ip string) {
	h.mu.Lock()
	e, ok := h.byPeer[peerID]
	if !ok {
		e = &ipChangeEntry{windowStart: time.Now(), counts: make(map[string]int)}
		h.byPeer[peerID] = e
	}
	h.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	if now.Sub(e.windowStart) > ipChangeWindow {
		e.windowStart = now
		e.counts = make(map[string]int)
	}
	e.counts[ip]++
}

// Counts returns a snapshot of the current window's per-ip counts for
// peerID.
func (h *IpChangeHistory) Counts(peerID string) map[string]int {
	h.mu.Lock()
	e, ok := h.byPeer[peerID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.counts))
	for ip, n := range e.counts {
		out[ip] = n
	}
	return out
}

// ClearPeer removes peerID's tracked history entirely, used by the
// operator console's "-" argument form.
func (h *IpChangeHistory) ClearPeer(peerID string) {
	h.mu.Lock()
	delete(h.byPeer, peerID)
	h.mu.Unlock()
}

// ClearAll removes every tracked peer's history, used by the operator
// console's "all" argument form.
func (h *IpChangeHistory) ClearAll() {
	h.mu.Lock()
	h.byPeer = make(map[string]*ipChangeEntry)
	h.mu.Unlock()
}

// Sweep removes entries whose window started more than 360s ago, bounding
// memory for peers that registered once and never came back.
func (h *IpChangeHistory) Sweep() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	for id, e := range h.byPeer {
		e.mu.Lock()
		expired := now.Sub(e.windowStart) > ipChangeGCAfter
		e.mu.Unlock()
		if expired {
			delete(h.byPeer, id)
		}
	}
}
