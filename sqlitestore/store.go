// Package sqlitestore persists consensus snapshots in a SQLite database
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"github.com/RobustRoundRobin/go-hashgraph/consensus/vv"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	decided_below INTEGER NOT NULL,
	next_order    INTEGER NOT NULL,
	events        INTEGER NOT NULL,
	saved_at      INTEGER NOT NULL,
	data          BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_decided ON snapshots (decided_below);
`

// Store implements vv.SnapshotStore. Every save adds a row, LoadSnapshot
// returns the one furthest through consensus.
type Store struct {
	db    *sql.DB
	codec hashgraph.BytesCodec
	keep  int
}

type Option func(s *Store)

// WithKeep keeps only the latest n snapshots. The default keeps all of them.
func WithKeep(n int) Option {
	return func(s *Store) { s.keep = n }
}

// Open opens, creating if necessary, the snapshot database at path. Use
// ":memory:" for a private in memory database.
func Open(path string, codec hashgraph.BytesCodec, opts ...Option) (*Store, error) {

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite does not do concurrent writers and an in memory database is
	// per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot schema: %w", err)
	}

	s := &Store{db: db, codec: codec}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveSnapshot(ctx context.Context, snap *vv.Snapshot) error {

	data, err := vv.EncodeSnapshot(s.codec, snap)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (decided_below, next_order, events, saved_at, data)
		 VALUES (?, ?, ?, ?, ?)`,
		int64(snap.DecidedBelow), int64(snap.NextOrder), len(snap.Events),
		time.Now().UnixNano(), data); err != nil {
		return err
	}

	if s.keep > 0 {
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM snapshots WHERE id NOT IN (
			   SELECT id FROM snapshots ORDER BY decided_below DESC, id DESC LIMIT ?)`,
			s.keep); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadSnapshot returns the snapshot with the highest decided round, the most
// recently saved if there are several. It returns nil if there are none.
func (s *Store) LoadSnapshot(ctx context.Context) (*vv.Snapshot, error) {

	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots ORDER BY decided_below DESC, id DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return vv.DecodeSnapshot(s.codec, data)
}

// Count is the number of snapshots held
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}
