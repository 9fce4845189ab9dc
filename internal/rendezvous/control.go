package rendezvous

import (
	"fmt"
	"net"
	"strings"

	"github.com/shurlinet/punchrelay/internal/abuse"
	"github.com/shurlinet/punchrelay/internal/control"
)

// RegisterControlCommands mounts the rendezvous server's §4.6 command set
// onto console: relay rotation, abuse-throttle/ip-change inspection, the
// relay-force toggle, and the test-geo dry run.
func RegisterControlCommands(console *control.Console, state *State, throttle *abuse.Throttle, ipChanges *abuse.IpChangeHistory) {
	console.Register("Replace or print the relay server list.", func(args []string) string {
		if len(args) == 0 {
			var b strings.Builder
			for _, r := range state.RelayServers() {
				fmt.Fprintf(&b, "%s\t%t\n", r.Address, r.Healthy)
			}
			return strings.TrimRight(b.String(), "\n")
		}
		state.SetRelayServers(args)
		return "ok"
	}, "relay-servers", "rs")

	console.Register("List, inspect, or delete abuse-throttle entries: ib [ip] [-] or ib all.", func(args []string) string {
		if len(args) == 0 {
			var b strings.Builder
			for _, st := range throttle.List() {
				fmt.Fprintf(&b, "%-15s hits=%-4d ids=%d\n", st.IP, st.HitCount, st.DistinctIDs)
			}
			return strings.TrimRight(b.String(), "\n")
		}
		if args[0] == "all" {
			throttle.ClearAll()
			return "ok"
		}
		ip := args[0]
		if len(args) >= 2 && args[1] == "-" {
			throttle.ClearIP(ip)
			return "ok"
		}
		for _, st := range throttle.List() {
			if st.IP == ip {
				return fmt.Sprintf("%-15s hits=%d ids=%d", st.IP, st.HitCount, st.DistinctIDs)
			}
		}
		return "(not tracked)"
	}, "ip-blocker", "ib")

	console.Register("List, inspect, or delete ip-change history: ic [peer-id] [-] or ic all.", func(args []string) string {
		if len(args) == 0 {
			return "usage: ip-changes <peer-id>|all [-]"
		}
		if args[0] == "all" {
			ipChanges.ClearAll()
			return "ok"
		}
		id := args[0]
		if len(args) >= 2 && args[1] == "-" {
			ipChanges.ClearPeer(id)
			return "ok"
		}
		counts := ipChanges.Counts(id)
		if len(counts) == 0 {
			return "(no recorded ip changes)"
		}
		var b strings.Builder
		for ip, n := range counts {
			fmt.Fprintf(&b, "%-15s %d\n", ip, n)
		}
		return strings.TrimRight(b.String(), "\n")
	}, "ip-changes", "ic")

	console.Register("Get or toggle the always-use-relay flag.", func(args []string) string {
		if len(args) == 0 {
			return fmt.Sprintf("%t", state.AlwaysUseRelay())
		}
		switch strings.ToUpper(args[0]) {
		case "Y":
			state.SetAlwaysUseRelay(true)
		case "N":
			state.SetAlwaysUseRelay(false)
		default:
			return "usage: always-use-relay [Y/N]"
		}
		return "ok"
	}, "always-use-relay", "aur")

	console.Register("Compute which relay server a hypothetical pair would use.", func(args []string) string {
		if len(args) < 1 {
			return "usage: test-geo ip1 [ip2]"
		}
		ip1 := args[0]
		ip2 := ip1
		if len(args) >= 2 {
			ip2 = args[1]
		}
		lan1 := state.classifyLAN(net.ParseIP(ip1))
		lan2 := state.classifyLAN(net.ParseIP(ip2))
		relay := state.PickRelayServer()
		forced := state.AlwaysUseRelay() || lan1 != lan2
		return fmt.Sprintf("relay=%s forced=%t lan1=%t lan2=%t", relay, forced, lan1, lan2)
	}, "test-geo", "tg")
}
