// Package peerdir implements the two-tier peer directory: an in-memory
// cache of live peer state backed by a durable SQLite store for the
// longer-lived identity fields (public key, assigned guid, operator notes).
package peerdir

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// PeerRecord is one durable row from the peer table.
type PeerRecord struct {
	Guid   []byte
	ID     string
	UUID   []byte
	PK     []byte
	User   []byte
	Status sql.NullInt64
	Info   string
}

// Store wraps the peer table over database/sql, using the pure-Go
// modernc.org/sqlite driver so the binary needs no cgo toolchain.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the SQLite file at path and
// ensures the peer table and its indexes exist.
func OpenStore(ctx context.Context, path string, maxConns int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("peerdir: open %s: %w", path, err)
	}
	if maxConns < 1 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("peerdir: ping %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the underlying database connection is reachable,
// for use as a watchdog health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const createTableSQL = `
create table if not exists peer (
	guid blob primary key not null,
	id varchar(100) not null,
	uuid blob not null,
	pk blob not null,
	created_at datetime not null default(current_timestamp),
	user blob,
	status tinyint,
	note varchar(300),
	info text not null
);
create unique index if not exists index_peer_id on peer (id);
create index if not exists index_peer_user on peer (user);
create index if not exists index_peer_created_at on peer (created_at);
create index if not exists index_peer_status on peer (status);
`

func (s *Store) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("peerdir: create tables: %w", err)
	}
	return nil
}

// GetPeer looks up a peer's durable record by id. It returns (nil, nil)
// when no row exists.
func (s *Store) GetPeer(ctx context.Context, id string) (*PeerRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"select guid, id, uuid, pk, user, status, info from peer where id = ?", id)

	rec := &PeerRecord{}
	var user sql.NullString
	err := row.Scan(&rec.Guid, &rec.ID, &rec.UUID, &rec.PK, &user, &rec.Status, &rec.Info)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peerdir: get_peer %s: %w", id, err)
	}
	if user.Valid {
		rec.User = []byte(user.String)
	}
	return rec, nil
}

// InsertPeer creates a new durable row, assigning a fresh guid, and
// returns it.
func (s *Store) InsertPeer(ctx context.Context, id string, uuidBytes, pk []byte, info string) ([]byte, error) {
	guid := uuid.New()
	guidBytes := guid[:]
	_, err := s.db.ExecContext(ctx,
		"insert into peer(guid, id, uuid, pk, info) values(?, ?, ?, ?, ?)",
		guidBytes, id, uuidBytes, pk, info)
	if err != nil {
		return nil, fmt.Errorf("peerdir: insert_peer %s: %w", id, err)
	}
	return guidBytes, nil
}

// UpdatePk rewrites the pk/id/info columns of an existing row identified by
// guid, used on re-registration of an already-stored peer.
func (s *Store) UpdatePk(ctx context.Context, guid []byte, id string, pk []byte, info string) error {
	_, err := s.db.ExecContext(ctx,
		"update peer set id=?, pk=?, info=? where guid=?", id, pk, info, guid)
	if err != nil {
		return fmt.Errorf("peerdir: update_pk %s: %w", id, err)
	}
	return nil
}
