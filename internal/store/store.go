// Package store caches analyzer results in SQLite, keyed by document URI,
// content hash and language.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"vigil/internal/diagnostics"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tliron/commonlog"
	"github.com/vmihailenco/msgpack/v5"
)

var log = commonlog.GetLogger("vigil.store")

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

type Key struct {
	URI      string
	Hash     string
	Language string
}

type Record struct {
	Key
	Markers   []diagnostics.Marker
	CreatedAt time.Time
}

// Tx is the subset of store operations available inside WithTx.
type Tx interface {
	Put(rec Record) error
	DeleteURI(uri string) (int64, error)
}

type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
	now    func() time.Time
}

// Open opens or creates the database at path. An empty path or Memory keeps
// everything in memory.
func Open(path string) (*Store, error) {
	if path == "" {
		path = Memory
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to :memory: would see an empty database.
	db.SetMaxOpenConns(1)

	if path != Memory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Debugf("opened result cache at %s", path)
	return &Store{db: db, now: time.Now}, nil
}

// Get returns the cached markers for key, or ErrNotFound.
func (s *Store) Get(key Key) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrDatabaseClosed
	}

	var blob []byte
	var created int64
	err := s.db.QueryRow(
		`SELECT markers, created_at FROM results WHERE uri = ? AND hash = ? AND language = ?`,
		key.URI, key.Hash, key.Language,
	).Scan(&blob, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get result for %s: %w", key.URI, err)
	}

	var markers []diagnostics.Marker
	if err := msgpack.Unmarshal(blob, &markers); err != nil {
		return nil, fmt.Errorf("failed to decode markers for %s: %w", key.URI, err)
	}
	if markers == nil {
		markers = []diagnostics.Marker{}
	}
	return &Record{Key: key, Markers: markers, CreatedAt: time.Unix(created, 0)}, nil
}

// Put stores rec, replacing any entry with the same key. A zero CreatedAt is
// set to the current time.
func (s *Store) Put(rec Record) error {
	return s.WithTx(func(tx Tx) error {
		return tx.Put(rec)
	})
}

// DeleteURI drops every cached result of uri and returns how many were removed.
func (s *Store) DeleteURI(uri string) (int64, error) {
	var n int64
	err := s.WithTx(func(tx Tx) error {
		var err error
		n, err = tx.DeleteURI(uri)
		return err
	})
	return n, err
}

// Prune drops results created before cutoff.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrDatabaseClosed
	}
	res, err := s.db.Exec(`DELETE FROM results WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune results: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Debugf("pruned %d cached result(s)", n)
	}
	return n, nil
}

// Len returns the number of cached results.
func (s *Store) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrDatabaseClosed
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

// WithTx runs fn in a transaction, committing if it returns nil.
func (s *Store) WithTx(fn func(tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrDatabaseClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&sqlTx{tx: tx, now: s.now}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database. Later calls return ErrDatabaseClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDatabaseClosed
	}
	s.closed = true
	return s.db.Close()
}

type sqlTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *sqlTx) Put(rec Record) error {
	blob, err := msgpack.Marshal(rec.Markers)
	if err != nil {
		return fmt.Errorf("failed to encode markers for %s: %w", rec.URI, err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = t.now()
	}
	_, err = t.tx.Exec(`
        INSERT INTO results (uri, hash, language, markers, created_at) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(uri, hash, language) DO UPDATE SET markers = excluded.markers, created_at = excluded.created_at
    `, rec.URI, rec.Hash, rec.Language, blob, created.Unix())
	if err != nil {
		return fmt.Errorf("failed to store result for %s: %w", rec.URI, err)
	}
	return nil
}

func (t *sqlTx) DeleteURI(uri string) (int64, error) {
	res, err := t.tx.Exec(`DELETE FROM results WHERE uri = ?`, uri)
	if err != nil {
		return 0, fmt.Errorf("failed to delete results for %s: %w", uri, err)
	}
	return res.RowsAffected()
}
