package relay

import (
	"strings"
	"testing"

	"github.com/shurlinet/punchrelay/internal/control"
)

func newTestConsole(state *State) *control.Console {
	c := control.New()
	RegisterControlCommands(c, state)
	return c
}

func TestControlBlacklistAddListRemove(t *testing.T) {
	state := NewState()
	c := newTestConsole(state)

	if got := c.Dispatch("blacklist"); got != "(empty)" {
		t.Fatalf("got %q", got)
	}
	c.Dispatch("ba 10.0.0.1")
	if got := c.Dispatch("b"); got != "10.0.0.1" {
		t.Fatalf("got %q", got)
	}
	c.Dispatch("br 10.0.0.1")
	if got := c.Dispatch("blacklist"); got != "(empty)" {
		t.Fatalf("got %q after remove", got)
	}
}

func TestControlBlocklistShortForms(t *testing.T) {
	state := NewState()
	c := newTestConsole(state)

	c.Dispatch("Ba 192.0.2.1")
	if !state.IsBlocked("192.0.2.1") {
		t.Fatal("expected blocklist-add (Ba) to take effect")
	}
	c.Dispatch("Br 192.0.2.1")
	if state.IsBlocked("192.0.2.1") {
		t.Fatal("expected blocklist-remove (Br) to take effect")
	}
}

func TestControlDowngradeThresholdGetSet(t *testing.T) {
	state := NewState()
	c := newTestConsole(state)

	c.Dispatch("dt 0.5")
	if state.DowngradeThreshold() != 0.5 {
		t.Fatalf("got %v", state.DowngradeThreshold())
	}
	if got := c.Dispatch("downgrade-threshold"); got != "0.5000" {
		t.Fatalf("got %q", got)
	}
}

func TestControlBandwidthGetSet(t *testing.T) {
	state := NewState()
	c := newTestConsole(state)

	c.Dispatch("tb 500")
	if state.TotalBandwidthMbps() != 500 {
		t.Fatalf("got %v", state.TotalBandwidthMbps())
	}
	c.Dispatch("sb 10")
	if state.SingleBandwidthMbps() != 10 {
		t.Fatalf("got %v", state.SingleBandwidthMbps())
	}
	c.Dispatch("ls 2")
	if state.LimitSpeedMbps() != 2 {
		t.Fatalf("got %v", state.LimitSpeedMbps())
	}
}

func TestControlUsageEmptyAndPopulated(t *testing.T) {
	state := NewState()
	c := newTestConsole(state)

	if got := c.Dispatch("u"); got != "(no active sessions)" {
		t.Fatalf("got %q", got)
	}
	state.Usage().Start("10.0.0.1:5000")
	state.Usage().AddBytes("10.0.0.1:5000", 300)
	state.Usage().Tick("10.0.0.1:5000")
	got := c.Dispatch("usage")
	if !strings.Contains(got, "10.0.0.1:5000") || !strings.Contains(got, "MB") || !strings.Contains(got, "kb/s") {
		t.Fatalf("usage output missing expected fields: %q", got)
	}
}

func TestControlInvalidNumericArgReturnsUsage(t *testing.T) {
	state := NewState()
	c := newTestConsole(state)
	got := c.Dispatch("dt not-a-float")
	if !strings.Contains(got, "usage:") {
		t.Fatalf("got %q", got)
	}
}
