package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NeboLoop/chat-go-sdk/conversation"
)

// SQLite implements conversation.Store on a local SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ conversation.Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) a SQLite database at path and runs the
// schema migration. Use ":memory:" for a throwaway cache.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			conv_key   TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context, key conversation.Key) ([]conversation.Message, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM conversations WHERE conv_key = ?", string(key)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return decodeBlob(blob)
}

func (s *SQLite) Update(ctx context.Context, key conversation.Key, fn func([]conversation.Message) ([]conversation.Message, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var blob []byte
	err = tx.QueryRowContext(ctx, "SELECT data FROM conversations WHERE conv_key = ?", string(key)).Scan(&blob)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load %s: %w", key, err)
	}
	cur, err := decodeBlob(blob)
	if err != nil {
		return err
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	out, err := encodeBlob(next)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (conv_key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(conv_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(key), out, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return tx.Commit()
}

// Keys lists every cached conversation, most recently updated first.
func (s *SQLite) Keys(ctx context.Context) ([]conversation.Key, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT conv_key FROM conversations ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []conversation.Key
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, conversation.Key(k))
	}
	return keys, rows.Err()
}

// Delete drops a cached conversation.
func (s *SQLite) Delete(ctx context.Context, key conversation.Key) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE conv_key = ?", string(key))
	return err
}
