// Package relay implements the relay server's pairing and byte-forwarding
// concerns: matching two sockets on a shared rendezvous token, then bridging
// their traffic under per-session and global bandwidth governance with
// downgrade and blocklist controls. The relay server holds its tunables in
// State rather than ambient globals, and its operator console commands
// (control.go) read and change them through it. The rendezvous server keeps
// its own, separate State in internal/rendezvous.
package relay

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/shurlinet/punchrelay/internal/ratelimit"
)

// Default tunables, overridable at runtime through the operator console.
const (
	DefaultTotalBandwidthMbps  = 1000.0 // 1 Gb/s
	DefaultSingleBandwidthMbps = 16.0
	DefaultLimitSpeedMbps      = 4.0
	DefaultDowngradeThreshold  = 0.66
	DefaultDowngradeStartCheck = 30 * 60 // seconds
)

// State is the relay server's process-wide mutable state: the rate-limit
// tunables, the soft-downgrade blacklist, the hard-drop blocklist, and the
// shared total-bandwidth limiter every session drains from. Scalar tunables
// are atomic so the forwarding hot path never takes a lock to read them;
// the blacklist/blocklist sets use a readers-writer mutex since membership
// checks vastly outnumber edits.
type State struct {
	totalMbps           atomic.Uint64 // math.Float64bits
	singleMbps          atomic.Uint64
	limitSpeedMbps      atomic.Uint64
	downgradeThreshold  atomic.Uint64
	downgradeStartCheck atomic.Int64 // seconds

	totalLimiter *ratelimit.BitLimiter

	mu        sync.RWMutex
	blacklist map[string]struct{}
	blocklist map[string]struct{}

	usage *UsageTable
}

// NewState builds a State with the documented defaults and a live total
// limiter sized to DefaultTotalBandwidthMbps.
func NewState() *State {
	s := &State{
		blacklist: make(map[string]struct{}),
		blocklist: make(map[string]struct{}),
		usage:     NewUsageTable(),
	}
	s.totalMbps.Store(math.Float64bits(DefaultTotalBandwidthMbps))
	s.singleMbps.Store(math.Float64bits(DefaultSingleBandwidthMbps))
	s.limitSpeedMbps.Store(math.Float64bits(DefaultLimitSpeedMbps))
	s.downgradeThreshold.Store(math.Float64bits(DefaultDowngradeThreshold))
	s.downgradeStartCheck.Store(DefaultDowngradeStartCheck)
	s.totalLimiter = ratelimit.NewBitLimiter(DefaultTotalBandwidthMbps)
	return s
}

func (s *State) TotalBandwidthMbps() float64  { return math.Float64frombits(s.totalMbps.Load()) }
func (s *State) SingleBandwidthMbps() float64 { return math.Float64frombits(s.singleMbps.Load()) }
func (s *State) LimitSpeedMbps() float64      { return math.Float64frombits(s.limitSpeedMbps.Load()) }
func (s *State) DowngradeThreshold() float64 {
	return math.Float64frombits(s.downgradeThreshold.Load())
}
func (s *State) DowngradeStartCheckSeconds() int64 { return s.downgradeStartCheck.Load() }

// SetTotalBandwidthMbps live-updates the shared global limiter, per the
// "tb" control-plane command.
func (s *State) SetTotalBandwidthMbps(mbps float64) {
	s.totalMbps.Store(math.Float64bits(mbps))
	s.totalLimiter.SetMbps(mbps)
}

func (s *State) SetSingleBandwidthMbps(mbps float64) {
	s.singleMbps.Store(math.Float64bits(mbps))
}

func (s *State) SetLimitSpeedMbps(mbps float64) {
	s.limitSpeedMbps.Store(math.Float64bits(mbps))
}

func (s *State) SetDowngradeThreshold(f float64) {
	s.downgradeThreshold.Store(math.Float64bits(f))
}

func (s *State) SetDowngradeStartCheckSeconds(secs int64) {
	s.downgradeStartCheck.Store(secs)
}

// TotalLimiter returns the shared limiter every session drains from after
// its own per-session limiter admits a write.
func (s *State) TotalLimiter() *ratelimit.BitLimiter { return s.totalLimiter }

// Usage returns the shared session-usage table, readable from the control
// plane's "usage" command.
func (s *State) Usage() *UsageTable { return s.usage }

func (s *State) IsBlacklisted(ip string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[ip]
	return ok
}

func (s *State) IsBlocked(ip string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocklist[ip]
	return ok
}

func (s *State) BlacklistAdd(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[ip] = struct{}{}
}

func (s *State) BlacklistRemove(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blacklist, ip)
}

func (s *State) BlacklistList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.blacklist))
	for ip := range s.blacklist {
		out = append(out, ip)
	}
	return out
}

func (s *State) BlocklistAdd(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocklist[ip] = struct{}{}
}

func (s *State) BlocklistRemove(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocklist, ip)
}

func (s *State) BlocklistList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.blocklist))
	for ip := range s.blocklist {
		out = append(out, ip)
	}
	return out
}
