package rendezvous

import (
	"context"
	"testing"

	"github.com/shurlinet/punchrelay/internal/wire"
)

func TestHandleRegisterPeerRequestsPkForNewPeer(t *testing.T) {
	s := newTestServer(t)
	from := newFakeReplyPath("1.2.3.4")

	s.handleRegisterPeer(context.Background(), &wire.RegisterPeer{ID: "AAAAAA", Serial: 1}, from, from.ip)

	if len(*from.sent) != 1 {
		t.Fatalf("got %d replies, want 1", len(*from.sent))
	}
	resp, ok := (*from.sent)[0].(*wire.RegisterPeerResponse)
	if !ok || !resp.RequestPk {
		t.Errorf("RegisterPeerResponse = %+v, want RequestPk=true for a never-seen peer", resp)
	}
}

func TestHandleRegisterPeerSkipsRequestPkOncePkKnown(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	peer := s.Dir.GetOrCreate(ctx, "AAAAAA")
	s.Dir.UpdatePk(ctx, "AAAAAA", peer, nil, []byte{0x01}, []byte{0x02}, "1.2.3.4")

	from := newFakeReplyPath("1.2.3.4")
	s.handleRegisterPeer(ctx, &wire.RegisterPeer{ID: "AAAAAA", Serial: 1}, from, from.ip)

	resp := (*from.sent)[0].(*wire.RegisterPeerResponse)
	if resp.RequestPk {
		t.Error("RequestPk should be false once pk is known and ip hasn't changed")
	}
}

func TestHandleRegisterPeerRequestsPkOnNonLoopbackIPChange(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	peer := s.Dir.GetOrCreate(ctx, "AAAAAA")
	s.Dir.UpdatePk(ctx, "AAAAAA", peer, nil, []byte{0x01}, []byte{0x02}, "1.2.3.4")

	first := newFakeReplyPath("1.2.3.4")
	s.handleRegisterPeer(ctx, &wire.RegisterPeer{ID: "AAAAAA", Serial: 1}, first, first.ip)

	changed := newFakeReplyPath("5.6.7.8")
	s.handleRegisterPeer(ctx, &wire.RegisterPeer{ID: "AAAAAA", Serial: 1}, changed, changed.ip)

	resp := (*changed.sent)[0].(*wire.RegisterPeerResponse)
	if !resp.RequestPk {
		t.Error("RequestPk should be true the first time the source ip changes from a non-loopback address")
	}
}

func TestHandleRegisterPeerSendsConfigUpdateWhenSerialStale(t *testing.T) {
	s := newTestServer(t)
	s.State.SetSerial(9)
	from := newFakeReplyPath("1.2.3.4")

	s.handleRegisterPeer(context.Background(), &wire.RegisterPeer{ID: "AAAAAA", Serial: 1}, from, from.ip)

	if len(*from.sent) != 2 {
		t.Fatalf("got %d replies, want 2 (response + config update)", len(*from.sent))
	}
	if _, ok := (*from.sent)[1].(*wire.ConfigUpdate); !ok {
		t.Errorf("second reply = %T, want *wire.ConfigUpdate", (*from.sent)[1])
	}
}

func TestHandleRegisterPkRejectsShortID(t *testing.T) {
	s := newTestServer(t)
	from := newFakeReplyPath("1.2.3.4")

	s.handleRegisterPk(context.Background(), &wire.RegisterPk{ID: "ab", UUID: []byte{1}, PK: []byte{2}}, from, from.ip)

	resp := (*from.sent)[0].(*wire.RegisterPkResponse)
	if resp.Result != wire.RegisterPkUUIDMismatch {
		t.Errorf("Result = %v, want RegisterPkUUIDMismatch for a too-short id", resp.Result)
	}
}

func TestHandleRegisterPkRejectsEmptyUUIDOrPK(t *testing.T) {
	s := newTestServer(t)
	from := newFakeReplyPath("1.2.3.4")

	s.handleRegisterPk(context.Background(), &wire.RegisterPk{ID: "AAAAAA", UUID: nil, PK: []byte{2}}, from, from.ip)

	resp := (*from.sent)[0].(*wire.RegisterPkResponse)
	if resp.Result != wire.RegisterPkUUIDMismatch {
		t.Errorf("Result = %v, want RegisterPkUUIDMismatch for empty uuid", resp.Result)
	}
}

func TestHandleRegisterPkFirstTimeSucceeds(t *testing.T) {
	s := newTestServer(t)
	from := newFakeReplyPath("1.2.3.4")

	s.handleRegisterPk(context.Background(), &wire.RegisterPk{ID: "AAAAAA", UUID: []byte{1}, PK: []byte{2}}, from, from.ip)

	resp := (*from.sent)[0].(*wire.RegisterPkResponse)
	if resp.Result != wire.RegisterPkOK {
		t.Fatalf("Result = %v, want OK", resp.Result)
	}
	if !s.Dir.IsInMemory("AAAAAA") {
		t.Error("successful RegisterPk should populate the in-memory cache")
	}
}

func TestHandleRegisterPkRejectsMismatchedUUID(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	first := newFakeReplyPath("1.2.3.4")
	s.handleRegisterPk(ctx, &wire.RegisterPk{ID: "AAAAAA", UUID: []byte{1}, PK: []byte{2}}, first, first.ip)

	second := newFakeReplyPath("9.9.9.9")
	s.handleRegisterPk(ctx, &wire.RegisterPk{ID: "AAAAAA", UUID: []byte{0xFF}, PK: []byte{0xFF}}, second, second.ip)

	resp := (*second.sent)[0].(*wire.RegisterPkResponse)
	if resp.Result != wire.RegisterPkUUIDMismatch {
		t.Errorf("Result = %v, want UUID_MISMATCH for a different uuid with different ip and pk", resp.Result)
	}
}

func TestHandleRegisterPkAllowsUpdateWithMatchingUUIDAndIP(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	first := newFakeReplyPath("1.2.3.4")
	s.handleRegisterPk(ctx, &wire.RegisterPk{ID: "AAAAAA", UUID: []byte{1}, PK: []byte{2}}, first, first.ip)

	second := newFakeReplyPath("1.2.3.4")
	s.handleRegisterPk(ctx, &wire.RegisterPk{ID: "AAAAAA", UUID: []byte{1}, PK: []byte{0xFF}}, second, second.ip)

	resp := (*second.sent)[0].(*wire.RegisterPkResponse)
	if resp.Result != wire.RegisterPkOK {
		t.Errorf("Result = %v, want OK when uuid matches and ip is unchanged", resp.Result)
	}
}

func TestHandleRegisterPkEnforcesPerPeerRate(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	ip := newFakeReplyPath("1.2.3.4").ip

	for i := 0; i < 2; i++ {
		from := newFakeReplyPath("1.2.3.4")
		s.handleRegisterPk(ctx, &wire.RegisterPk{ID: "AAAAAA", UUID: []byte{1}, PK: []byte{byte(i)}}, from, ip)
		resp := (*from.sent)[0].(*wire.RegisterPkResponse)
		if resp.Result != wire.RegisterPkOK {
			t.Fatalf("call %d: Result = %v, want OK within the first 2 calls in 6s", i, resp.Result)
		}
	}

	from := newFakeReplyPath("1.2.3.4")
	s.handleRegisterPk(ctx, &wire.RegisterPk{ID: "AAAAAA", UUID: []byte{1}, PK: []byte{9}}, from, ip)
	resp := (*from.sent)[0].(*wire.RegisterPkResponse)
	if resp.Result != wire.RegisterPkTooFrequent {
		t.Errorf("3rd call within 6s: Result = %v, want TOO_FREQUENT", resp.Result)
	}
}

func TestHandleRegisterPkTripsIPThrottle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	ip := newFakeReplyPath("1.2.3.4").ip

	for i := 0; i < 31; i++ {
		from := newFakeReplyPath("1.2.3.4")
		s.handleRegisterPk(ctx, &wire.RegisterPk{ID: "AAAAAA", UUID: []byte{1}, PK: []byte{2}}, from, ip)
	}

	from := newFakeReplyPath("1.2.3.4")
	s.handleRegisterPk(ctx, &wire.RegisterPk{ID: "AAAAAA", UUID: []byte{1}, PK: []byte{2}}, from, ip)
	resp := (*from.sent)[0].(*wire.RegisterPkResponse)
	if resp.Result != wire.RegisterPkTooFrequent {
		t.Errorf("Result = %v, want TOO_FREQUENT once the ip rate ban trips", resp.Result)
	}
}
