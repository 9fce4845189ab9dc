// Package rendezvous implements the registration, punch-hole, relay
// negotiation, NAT/online probe, and configuration-sync protocol engine
// (C4): the long-lived process that lets two NATed peers discover each
// other's observed address and broker a relay fallback.
package rendezvous

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// RelayServerInfo is the rendezvous engine's view of one configured relay
// endpoint: its address and whether its last health check succeeded.
type RelayServerInfo struct {
	Address string
	Healthy bool
}

// healthCheckInterval matches §4.4.9's "every 3 s" relay pruning cadence.
const healthCheckInterval = 3 * time.Second

// offlineAfter is how long since LastRegTime a peer is still considered
// reachable for punch-hole purposes.
const offlineAfter = 30 * time.Second

// State is the rendezvous engine's process-wide mutable configuration:
// the relay-server rotation and its health, the rendezvous-server list a
// ConfigureUpdate can replace, and the scalar tunables the operator
// console exposes. Scalar fields are atomic so the registration/punch-hole
// hot path never blocks on a lock to read them.
type State struct {
	serial         atomic.Int32
	alwaysUseRelay atomic.Bool
	roundRobin     atomic.Uint64

	mu                sync.RWMutex
	relayServers      []RelayServerInfo
	rendezvousServers []string

	// Mask, LocalIP, SoftwareURL, and LicenceKey are set once at startup
	// and never mutated, so they need no synchronization.
	Mask        *net.IPNet
	LocalIP     net.IP
	SoftwareURL string
	LicenceKey  string
}

func NewState(serial int32, alwaysUseRelay bool, relayServers, rendezvousServers []string, mask *net.IPNet, localIP net.IP, softwareURL, licenceKey string) *State {
	s := &State{
		rendezvousServers: append([]string(nil), rendezvousServers...),
		Mask:              mask,
		LocalIP:           localIP,
		SoftwareURL:       softwareURL,
		LicenceKey:        licenceKey,
	}
	s.serial.Store(serial)
	s.alwaysUseRelay.Store(alwaysUseRelay)
	rows := make([]RelayServerInfo, len(relayServers))
	for i, addr := range relayServers {
		rows[i] = RelayServerInfo{Address: addr, Healthy: true}
	}
	s.relayServers = rows
	return s
}

func (s *State) Serial() int32          { return s.serial.Load() }
func (s *State) SetSerial(v int32)      { s.serial.Store(v) }
func (s *State) AlwaysUseRelay() bool   { return s.alwaysUseRelay.Load() }
func (s *State) SetAlwaysUseRelay(v bool) { s.alwaysUseRelay.Store(v) }

func (s *State) RendezvousServers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.rendezvousServers...)
}

func (s *State) SetRendezvousServers(servers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendezvousServers = append([]string(nil), servers...)
}

func (s *State) RelayServers() []RelayServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RelayServerInfo(nil), s.relayServers...)
}

// SetRelayServers replaces the configured relay list wholesale, resetting
// every entry to "healthy" until the next health-check pass proves
// otherwise; this is what the "relay-servers" console command triggers.
func (s *State) SetRelayServers(addrs []string) {
	rows := make([]RelayServerInfo, len(addrs))
	for i, a := range addrs {
		rows[i] = RelayServerInfo{Address: a, Healthy: true}
	}
	s.mu.Lock()
	s.relayServers = rows
	s.mu.Unlock()
}

// SetRelayHealth updates the health bit of each configured relay server in
// place, called once per healthCheckInterval tick.
func (s *State) SetRelayHealth(healthy map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.relayServers {
		if h, ok := healthy[s.relayServers[i].Address]; ok {
			s.relayServers[i].Healthy = h
		}
	}
}

// PickRelayServer returns the next healthy relay address in round-robin
// order, or "" if none are configured or healthy.
func (s *State) PickRelayServer() string {
	s.mu.RLock()
	healthy := make([]string, 0, len(s.relayServers))
	for _, r := range s.relayServers {
		if r.Healthy {
			healthy = append(healthy, r.Address)
		}
	}
	s.mu.RUnlock()
	if len(healthy) == 0 {
		return ""
	}
	idx := s.roundRobin.Add(1) - 1
	return healthy[idx%uint64(len(healthy))]
}

// classifyLAN reports whether ip falls inside the operator-configured LAN
// mask. A nil mask means no LAN is configured, so nothing classifies as LAN.
func (s *State) classifyLAN(ip net.IP) bool {
	if s.Mask == nil || ip == nil {
		return false
	}
	return s.Mask.Contains(ip)
}
