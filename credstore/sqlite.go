package credstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a persistent Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path
// and initialises the schema. Use ":memory:" for an in-memory SQLite
// database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("credstore: open sqlite: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS nsapi_credentials (
			nation    TEXT PRIMARY KEY,
			password  TEXT NOT NULL DEFAULT '',
			autologin TEXT NOT NULL DEFAULT '',
			pin       TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("credstore: create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the stored credential for a nation, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, nation string) (Credential, error) {
	var c Credential
	err := s.db.QueryRowContext(ctx,
		`SELECT password, autologin, pin FROM nsapi_credentials WHERE nation = ?`, nation,
	).Scan(&c.Password, &c.Autologin, &c.Pin)

	if err == sql.ErrNoRows {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("credstore: get %q: %w", nation, err)
	}
	return c, nil
}

// Put stores the credential for a nation, replacing any previous one.
func (s *SQLiteStore) Put(ctx context.Context, nation string, c Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nsapi_credentials (nation, password, autologin, pin)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(nation) DO UPDATE SET
			password = excluded.password,
			autologin = excluded.autologin,
			pin = excluded.pin
	`, nation, c.Password, c.Autologin, c.Pin)
	if err != nil {
		return fmt.Errorf("credstore: put %q: %w", nation, err)
	}
	return nil
}

// Delete removes the credential for a nation.
func (s *SQLiteStore) Delete(ctx context.Context, nation string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM nsapi_credentials WHERE nation = ?`, nation)
	if err != nil {
		return fmt.Errorf("credstore: delete %q: %w", nation, err)
	}
	return nil
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
