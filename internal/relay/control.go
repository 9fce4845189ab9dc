package relay

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shurlinet/punchrelay/internal/control"
)

// RegisterControlCommands mounts the relay server's §4.6 command set
// (blacklist/blocklist management, rate-limit tunables, usage) onto
// console. Mounting the rendezvous server's own commands on a separate
// Console is independent of this call, so the two processes' command
// tables never collide.
func RegisterControlCommands(console *control.Console, state *State) {
	console.Register("List the soft-downgrade blacklist.", func(args []string) string {
		return formatIPList(state.BlacklistList())
	}, "blacklist", "b")

	console.Register("Add an ip to the soft-downgrade blacklist.", func(args []string) string {
		if len(args) < 1 {
			return "usage: blacklist-add <ip>"
		}
		state.BlacklistAdd(args[0])
		return "ok"
	}, "blacklist-add", "ba")

	console.Register("Remove an ip from the soft-downgrade blacklist.", func(args []string) string {
		if len(args) < 1 {
			return "usage: blacklist-remove <ip>"
		}
		state.BlacklistRemove(args[0])
		return "ok"
	}, "blacklist-remove", "br")

	console.Register("List the hard-drop blocklist.", func(args []string) string {
		return formatIPList(state.BlocklistList())
	}, "blocklist", "B")

	console.Register("Add an ip to the hard-drop blocklist.", func(args []string) string {
		if len(args) < 1 {
			return "usage: blocklist-add <ip>"
		}
		state.BlocklistAdd(args[0])
		return "ok"
	}, "blocklist-add", "Ba")

	console.Register("Remove an ip from the hard-drop blocklist.", func(args []string) string {
		if len(args) < 1 {
			return "usage: blocklist-remove <ip>"
		}
		state.BlocklistRemove(args[0])
		return "ok"
	}, "blocklist-remove", "Br")

	console.Register("Get or set the downgrade threshold fraction.", func(args []string) string {
		if len(args) == 0 {
			return fmt.Sprintf("%.4f", state.DowngradeThreshold())
		}
		f, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "usage: downgrade-threshold [float]"
		}
		state.SetDowngradeThreshold(f)
		return "ok"
	}, "downgrade-threshold", "dt")

	console.Register("Get or set the downgrade grace period in seconds.", func(args []string) string {
		if len(args) == 0 {
			return fmt.Sprintf("%d", state.DowngradeStartCheckSeconds())
		}
		secs, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return "usage: downgrade-start-check [secs]"
		}
		state.SetDowngradeStartCheckSeconds(secs)
		return "ok"
	}, "downgrade-start-check", "t")

	console.Register("Get or set the blacklist/downgrade speed cap, Mb/s.", func(args []string) string {
		if len(args) == 0 {
			return fmt.Sprintf("%.2f", state.LimitSpeedMbps())
		}
		mbps, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "usage: limit-speed [Mb/s]"
		}
		state.SetLimitSpeedMbps(mbps)
		return "ok"
	}, "limit-speed", "ls")

	console.Register("Get or set the global bandwidth cap, Mb/s.", func(args []string) string {
		if len(args) == 0 {
			return fmt.Sprintf("%.2f", state.TotalBandwidthMbps())
		}
		mbps, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "usage: total-bandwidth [Mb/s]"
		}
		state.SetTotalBandwidthMbps(mbps)
		return "ok"
	}, "total-bandwidth", "tb")

	console.Register("Get or set the per-session bandwidth cap, Mb/s.", func(args []string) string {
		if len(args) == 0 {
			return fmt.Sprintf("%.2f", state.SingleBandwidthMbps())
		}
		mbps, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "usage: single-bandwidth [Mb/s]"
		}
		state.SetSingleBandwidthMbps(mbps)
		return "ok"
	}, "single-bandwidth", "sb")

	console.Register("Print per-session usage, sorted by total bytes descending.", func(args []string) string {
		rows := state.Usage().Snapshot()
		if len(rows) == 0 {
			return "(no active sessions)"
		}
		var b strings.Builder
		for i, row := range rows {
			elapsedSec := float64(row.ElapsedMs()) / 1000
			totalMB := float64(row.TotalBits) / 8 / 1_000_000
			fmt.Fprintf(&b, "%s: %.0fs %.2fMB %dkb/s %dkb/s %dkb/s",
				row.Key, elapsedSec, totalMB,
				row.CurrentBitsPerSec/1000, row.HighestBitsPerSec/1000, row.AverageBitsPerSec()/1000)
			if i < len(rows)-1 {
				b.WriteByte('\n')
			}
		}
		return b.String()
	}, "usage", "u")
}

func formatIPList(ips []string) string {
	if len(ips) == 0 {
		return "(empty)"
	}
	return strings.Join(ips, "\n")
}
