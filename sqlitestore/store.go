// Package sqlitestore is a non-local flightcache.Storage backed by SQLite,
// demonstrating the async Storage contract against a real backend (spec
// §4.3).
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/flightcache"
	"github.com/p-blackswan/flightcache/serialize"
)

// Store is a SQLite-backed Storage[V]. Entries are serialized through an
// Adapter so the schema stays a flat (key, payload) table regardless of V.
type Store[V any] struct {
	db      *sql.DB
	adapter serialize.Adapter[V]
	logger  zerolog.Logger
}

// Open opens (or creates) the SQLite database at dbPath, applies its
// migrations, and returns a ready Store. Grounded on the teacher's
// internal/store.New: same WAL/busy-timeout pragmas, same ping-then-
// migrate sequence.
func Open[V any](dbPath string, adapter serialize.Adapter[V], logger zerolog.Logger) (*Store[V], error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}

	s := &Store[V]{db: db, adapter: adapter, logger: logger.With().Str("component", "sqlitestore").Logger()}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: pragma: %w", err)
		}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}

	s.logger.Info().Str("path", dbPath).Msg("sqlite storage initialized")
	return s, nil
}

func (s *Store[V]) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			key     TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store[V]) Close() error {
	return s.db.Close()
}

func (s *Store[V]) Get(ctx context.Context, key string) (flightcache.Entry[V], bool, error) {
	var zero flightcache.Entry[V]
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM cache_entries WHERE key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("sqlitestore: get: %w", err)
	}
	entry, err := s.adapter.Unmarshal(payload)
	if err != nil {
		return zero, false, fmt.Errorf("sqlitestore: decode %q: %w", key, err)
	}
	return entry, true, nil
}

func (s *Store[V]) Offer(ctx context.Context, key string, entry flightcache.Entry[V]) error {
	payload, err := s.adapter.Marshal(entry)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, payload) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload
	`, key, payload)
	if err != nil {
		return fmt.Errorf("sqlitestore: offer: %w", err)
	}
	return nil
}

func (s *Store[V]) Release(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("sqlitestore: release: %w", err)
	}
	return nil
}
