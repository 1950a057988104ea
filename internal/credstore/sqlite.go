package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore keeps keys in a credentials table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		address    TEXT PRIMARY KEY,
		client_key TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Load returns the key stored for address.
func (s *SQLiteStore) Load(ctx context.Context, address string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT client_key FROM credentials WHERE address = ?`, address,
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	return key, nil
}

// Save inserts or replaces the key for address.
func (s *SQLiteStore) Save(ctx context.Context, address, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (address, client_key, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			client_key = excluded.client_key,
			updated_at = excluded.updated_at
	`, address, key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
