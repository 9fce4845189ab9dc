package rendezvous

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shurlinet/punchrelay/internal/wire"
)

func TestHandleTestNatRequestEchoesPort(t *testing.T) {
	s := newTestServer(t)
	server := newLoopbackUDP(t)
	client := newLoopbackUDP(t)

	from := udpReplyPath{conn: server, addr: client.LocalAddr().(*net.UDPAddr)}
	s.handleTestNatRequest(&wire.TestNatRequest{Serial: 1}, from)

	buf := make([]byte, 256)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("client.Read() error: %v", err)
	}
	msg, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("wire.Decode() error: %v", err)
	}
	resp, ok := msg.(*wire.TestNatResponse)
	if !ok {
		t.Fatalf("decoded %T, want *wire.TestNatResponse", msg)
	}
	if resp.Port != int32(client.LocalAddr().(*net.UDPAddr).Port) {
		t.Errorf("Port = %d, want %d", resp.Port, client.LocalAddr().(*net.UDPAddr).Port)
	}
}

func TestHandleTestNatRequestPiggybacksConfigUpdateWhenSerialStale(t *testing.T) {
	s := newTestServer(t)
	s.State.SetSerial(9)
	from := newFakeReplyPath("1.2.3.4")

	s.handleTestNatRequest(&wire.TestNatRequest{Serial: 1}, from)

	resp := (*from.sent)[0].(*wire.TestNatResponse)
	if resp.Cu == nil {
		t.Fatal("expected a piggybacked ConfigUpdate when the client serial is stale")
	}
	if resp.Cu.Serial != 9 {
		t.Errorf("Cu.Serial = %d, want 9", resp.Cu.Serial)
	}
}

func TestHandleTestNatRequestNoConfigUpdateWhenSerialCurrent(t *testing.T) {
	s := newTestServer(t)
	from := newFakeReplyPath("1.2.3.4")

	s.handleTestNatRequest(&wire.TestNatRequest{Serial: 1}, from)

	resp := (*from.sent)[0].(*wire.TestNatResponse)
	if resp.Cu != nil {
		t.Error("should not piggyback a ConfigUpdate when the client's serial is current")
	}
}

func TestPortOfUDPReplyPath(t *testing.T) {
	conn := newLoopbackUDP(t)
	p := udpReplyPath{conn: conn, addr: &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 54321}}
	if got := portOf(p); got != 54321 {
		t.Errorf("portOf() = %d, want 54321", got)
	}
}

func TestHandleOnlineRequestBuildsBitmap(t *testing.T) {
	s := newTestServer(t)
	registerLivePeer(t, s, "AAAAAA", "1.1.1.1")
	registerLivePeer(t, s, "CCCCCC", "3.3.3.3")
	from := newFakeReplyPath("1.2.3.4")

	s.handleOnlineRequest(context.Background(), &wire.OnlineRequest{
		Peers: []string{"AAAAAA", "BBBBBB", "CCCCCC"},
	}, from)

	resp := (*from.sent)[0].(*wire.OnlineResponse)
	if len(resp.States) != 1 {
		t.Fatalf("len(States) = %d, want 1 byte for 3 peers", len(resp.States))
	}
	// bit 0 (AAAAAA) and bit 2 (CCCCCC) set, bit 1 (BBBBBB, unknown) clear:
	// MSB-first => 0b101_00000 = 0xA0.
	if resp.States[0] != 0xA0 {
		t.Errorf("States[0] = %#x, want 0xa0", resp.States[0])
	}
}

func TestHandleOnlineRequestHandlesNonByteMultipleCount(t *testing.T) {
	s := newTestServer(t)
	from := newFakeReplyPath("1.2.3.4")

	s.handleOnlineRequest(context.Background(), &wire.OnlineRequest{
		Peers: []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8", "A9"},
	}, from)

	resp := (*from.sent)[0].(*wire.OnlineResponse)
	if len(resp.States) != 2 {
		t.Errorf("len(States) = %d, want ceil(9/8)=2", len(resp.States))
	}
}

func TestHandleConfigureUpdateIgnoresNonLoopback(t *testing.T) {
	s := newTestServer(t)
	orig := s.State.Serial()

	s.handleConfigureUpdate(&wire.ConfigureUpdate{Serial: orig + 10, RendezvousServers: []string{"rs3:21116"}}, net.ParseIP("8.8.8.8"))

	if s.State.Serial() != orig {
		t.Error("handleConfigureUpdate should ignore non-loopback sources")
	}
}

func TestHandleConfigureUpdateIgnoresStaleSerial(t *testing.T) {
	s := newTestServer(t)
	s.State.SetSerial(9)

	s.handleConfigureUpdate(&wire.ConfigureUpdate{Serial: 5}, net.ParseIP("127.0.0.1"))

	if s.State.Serial() != 9 {
		t.Error("handleConfigureUpdate should ignore a serial that doesn't beat the current one")
	}
}

func TestHandleConfigureUpdateAppliesFromLoopback(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.runInbox(ctx)

	s.handleConfigureUpdate(&wire.ConfigureUpdate{Serial: 42, RendezvousServers: []string{"rs3.example.invalid:21116"}}, net.ParseIP("127.0.0.1"))

	deadline := time.After(2 * time.Second)
	for {
		if s.State.Serial() == 42 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the inbox to apply the configure update")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestHandleSoftwareUpdateRepliesOnMismatch(t *testing.T) {
	s := newTestServer(t)
	s.State.SoftwareURL = "https://example.invalid/current"
	from := newFakeReplyPath("1.2.3.4")

	s.handleSoftwareUpdate(&wire.SoftwareUpdate{URL: "https://example.invalid/old"}, from)

	if len(*from.sent) != 1 {
		t.Fatalf("got %d replies, want 1", len(*from.sent))
	}
	resp := (*from.sent)[0].(*wire.SoftwareUpdate)
	if resp.URL != "https://example.invalid/current" {
		t.Errorf("URL = %q, want the server's current url", resp.URL)
	}
}

func TestHandleSoftwareUpdateSilentWhenMatching(t *testing.T) {
	s := newTestServer(t)
	s.State.SoftwareURL = "https://example.invalid/current"
	from := newFakeReplyPath("1.2.3.4")

	s.handleSoftwareUpdate(&wire.SoftwareUpdate{URL: "https://example.invalid/current"}, from)

	if len(*from.sent) != 0 {
		t.Error("handleSoftwareUpdate should stay silent when the url already matches")
	}
}
