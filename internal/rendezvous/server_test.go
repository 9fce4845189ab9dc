package rendezvous

import (
	"context"
	"crypto/ed25519"
	"net"
	"path/filepath"
	"testing"

	"github.com/shurlinet/punchrelay/internal/abuse"
	"github.com/shurlinet/punchrelay/internal/identity"
	"github.com/shurlinet/punchrelay/internal/peerdir"
	"github.com/shurlinet/punchrelay/internal/wire"
)

// fakeReplyPath captures every message sent through it for assertions,
// standing in for whichever real transport a test wants to simulate.
type fakeReplyPath struct {
	ip      net.IP
	ws      bool
	sent    *[]wire.Message
	failing bool
}

func newFakeReplyPath(ip string) fakeReplyPath {
	return fakeReplyPath{ip: net.ParseIP(ip), sent: &[]wire.Message{}}
}

func (p fakeReplyPath) send(msg wire.Message) error {
	if p.failing {
		return errSendFailed
	}
	*p.sent = append(*p.sent, msg)
	return nil
}
func (p fakeReplyPath) remoteIP() net.IP { return p.ip }
func (p fakeReplyPath) isWS() bool       { return p.ws }

var errSendFailed = fakeErr("send failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := peerdir.OpenStore(context.Background(), filepath.Join(t.TempDir(), "test.sqlite3"), 1)
	if err != nil {
		t.Fatalf("OpenStore() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	dir := peerdir.NewDirectory(store)
	throttle := abuse.NewThrottle()
	ipChanges := abuse.NewIpChangeHistory()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	id := identity.Identity{Priv: priv, Pub: pub}
	state := newTestState()

	return NewServer(dir, throttle, ipChanges, id, nil, state)
}
