package peerdir

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/shurlinet/punchrelay/internal/wire"
)

// expiredTime is a sentinel placed far enough in the past that any
// "is the peer still online" check built on it fails until the peer
// actually re-registers. The original used one hour; we keep that margin.
func expiredTime() time.Time {
	return time.Now().Add(-time.Hour)
}

// PeerInfo is the small JSON document stored in the durable row's info
// column. ip is the only field the engine reads back.
type PeerInfo struct {
	IP string `json:"ip"`
}

// RegPkCounter throttles RegisterPk: it tracks how many registrations have
// landed since Timestamp. The data model describes this as capping at 3
// within 6 seconds; the registration handler in internal/rendezvous
// enforces a tighter 2-within-6s bound for the reject decision itself — the
// field here is the raw counter both readings are computed from.
type RegPkCounter struct {
	Count     int32
	Timestamp time.Time
}

// Peer is the in-memory live state for one currently-tracked PeerId.
// Zero value represents a lazily-created, never-registered entry: fields
// read as the empty/sentinel values Get and GetOrCreate are documented to
// hand back.
type Peer struct {
	mu sync.Mutex

	SocketAddr  net.Addr
	LastRegTime time.Time

	Guid []byte
	UUID []byte
	PK   []byte
	Info PeerInfo

	RegPk RegPkCounter

	// ReaskCount counts how many consecutive RegisterPeer replies have
	// already asked this peer to re-send RegisterPk because its source ip
	// changed. §4.4.1 caps this at 3 before it stops re-asking on every ip
	// change. RegisterPk success resets it to 0.
	ReaskCount int32
}

func newPeer() *Peer {
	return &Peer{
		LastRegTime: expiredTime(),
		RegPk:       RegPkCounter{Timestamp: expiredTime()},
	}
}

// Snapshot returns a shallow copy of the peer's fields for read-only use
// (e.g. the operator console or test assertions) without holding the lock
// across the caller's own work.
func (p *Peer) Snapshot() Peer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Peer{
		SocketAddr:  p.SocketAddr,
		LastRegTime: p.LastRegTime,
		Guid:        append([]byte(nil), p.Guid...),
		UUID:        append([]byte(nil), p.UUID...),
		PK:          append([]byte(nil), p.PK...),
		Info:        p.Info,
		RegPk:       p.RegPk,
		ReaskCount:  p.ReaskCount,
	}
}

// Lock exposes the per-peer mutex so callers performing a read-modify-write
// (RegisterPeer, RegisterPk) can serialize across goroutines without the
// directory itself becoming a bottleneck.
func (p *Peer) Lock()   { p.mu.Lock() }
func (p *Peer) Unlock() { p.mu.Unlock() }

// Directory is the two-tier peer directory: an in-memory cache over a
// durable SQLite store. Multiple readers, serialized writers per id.
type Directory struct {
	mu    sync.RWMutex
	cache map[string]*Peer
	store *Store
}

// NewDirectory wraps an already-open Store in a fresh, empty cache.
func NewDirectory(store *Store) *Directory {
	return &Directory{
		cache: make(map[string]*Peer),
		store: store,
	}
}

// Get returns the peer's live state, loading from the durable store on a
// cache miss and synthesizing sentinel timestamps so the peer reads as
// offline until it actually re-registers. Returns (nil, false) if the peer
// is unknown to both the cache and the store.
func (d *Directory) Get(ctx context.Context, id string) (*Peer, bool) {
	d.mu.RLock()
	p, ok := d.cache[id]
	d.mu.RUnlock()
	if ok {
		return p, true
	}

	rec, err := d.store.GetPeer(ctx, id)
	if err != nil || rec == nil {
		return nil, false
	}

	p = newPeer()
	p.Guid = rec.Guid
	p.UUID = rec.UUID
	p.PK = rec.PK
	var info PeerInfo
	if json.Unmarshal([]byte(rec.Info), &info) == nil {
		p.Info = info
	}

	d.mu.Lock()
	if existing, ok := d.cache[id]; ok {
		d.mu.Unlock()
		return existing, true
	}
	d.cache[id] = p
	d.mu.Unlock()
	return p, true
}

// GetOrCreate returns the existing entry for id, or race-safe-inserts a new
// zero-valued one.
func (d *Directory) GetOrCreate(ctx context.Context, id string) *Peer {
	if p, ok := d.Get(ctx, id); ok {
		return p
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.cache[id]; ok {
		return p
	}
	p := newPeer()
	d.cache[id] = p
	return p
}

// GetInMemory never touches the store.
func (d *Directory) GetInMemory(id string) (*Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.cache[id]
	return p, ok
}

// IsInMemory never touches the store.
func (d *Directory) IsInMemory(id string) bool {
	_, ok := d.GetInMemory(id)
	return ok
}

// UpdatePk serializes info to JSON, updates the live state in place, and
// writes through to the durable store: Insert if the row has no guid yet,
// otherwise UpdatePk. Returns wire.RegisterPkOK or
// wire.RegisterPkServerError.
func (d *Directory) UpdatePk(ctx context.Context, id string, peer *Peer, addr net.Addr, uuid, pk []byte, ip string) wire.RegisterPkResult {
	peer.Lock()
	peer.SocketAddr = addr
	peer.UUID = append([]byte(nil), uuid...)
	peer.PK = append([]byte(nil), pk...)
	peer.LastRegTime = time.Now()
	peer.Info.IP = ip
	peer.ReaskCount = 0
	infoStr, err := json.Marshal(peer.Info)
	guid := append([]byte(nil), peer.Guid...)
	peer.Unlock()
	if err != nil {
		infoStr = []byte("{}")
	}

	if len(guid) == 0 {
		newGuid, err := d.store.InsertPeer(ctx, id, uuid, pk, string(infoStr))
		if err != nil {
			return wire.RegisterPkServerError
		}
		peer.Lock()
		peer.Guid = newGuid
		peer.Unlock()
	} else {
		if err := d.store.UpdatePk(ctx, guid, id, pk, string(infoStr)); err != nil {
			return wire.RegisterPkServerError
		}
	}

	d.mu.Lock()
	d.cache[id] = peer
	d.mu.Unlock()

	return wire.RegisterPkOK
}
