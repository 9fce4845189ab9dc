package peerdir

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite3")
	store, err := OpenStore(context.Background(), path, 1)
	if err != nil {
		t.Fatalf("OpenStore() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreGetPeerMissing(t *testing.T) {
	store := openTestStore(t)
	rec, err := store.GetPeer(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetPeer() error: %v", err)
	}
	if rec != nil {
		t.Fatalf("GetPeer() = %+v, want nil for unknown id", rec)
	}
}

func TestStoreInsertThenGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	guid, err := store.InsertPeer(ctx, "AAAAAA", []byte{0x01}, []byte{0x02, 0x03}, `{"ip":"1.2.3.4"}`)
	if err != nil {
		t.Fatalf("InsertPeer() error: %v", err)
	}
	if len(guid) != 16 {
		t.Fatalf("InsertPeer() guid length = %d, want 16", len(guid))
	}

	rec, err := store.GetPeer(ctx, "AAAAAA")
	if err != nil {
		t.Fatalf("GetPeer() error: %v", err)
	}
	if rec == nil {
		t.Fatal("GetPeer() = nil after insert")
	}
	if rec.ID != "AAAAAA" || string(rec.PK) != "\x02\x03" || rec.Info != `{"ip":"1.2.3.4"}` {
		t.Errorf("GetPeer() = %+v", rec)
	}
}

func TestStoreUpdatePk(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	guid, err := store.InsertPeer(ctx, "BBBBBB", []byte{0x01}, []byte{0x02}, `{}`)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.UpdatePk(ctx, guid, "BBBBBB", []byte{0xFF}, `{"ip":"9.9.9.9"}`); err != nil {
		t.Fatalf("UpdatePk() error: %v", err)
	}

	rec, err := store.GetPeer(ctx, "BBBBBB")
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.PK) != "\xFF" || rec.Info != `{"ip":"9.9.9.9"}` {
		t.Errorf("GetPeer() after UpdatePk = %+v", rec)
	}
}

func TestStoreUniqueIDIndex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.InsertPeer(ctx, "CCCCCC", nil, nil, "{}"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.InsertPeer(ctx, "CCCCCC", nil, nil, "{}"); err == nil {
		t.Fatal("InsertPeer() with a duplicate id should fail the unique index")
	}
}
