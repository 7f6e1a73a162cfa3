package profiles

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no profile matches the lookup key.
var ErrNotFound = errors.New("profile not found")

// Store persists profiles in a local sqlite database.
type Store struct {
	path string
	conn *sql.DB
}

// Open opens the store at the default location.
func Open() (*Store, error) {
	return OpenAt(DefaultPath())
}

// OpenAt opens (or creates) the store at path. A corrupt database file is
// preserved under a timestamped name and recreated rather than blocking
// every future login.
func OpenAt(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}

	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	conn, err := openAndInit(clean)
	if err == nil {
		return &Store{path: clean, conn: conn}, nil
	}

	if !isCorruptSQLiteError(err) {
		return nil, err
	}

	if _, statErr := os.Stat(clean); statErr == nil {
		backupPath := clean + ".corrupt." + time.Now().UTC().Format("20060102T150405Z")
		if renameErr := os.Rename(clean, backupPath); renameErr != nil {
			return nil, fmt.Errorf("store appears corrupt (%v), and rename failed: %w", err, renameErr)
		}
	}

	conn, err = openAndInit(clean)
	if err != nil {
		return nil, err
	}
	return &Store{path: clean, conn: conn}, nil
}

// DefaultPath returns the default database location, honoring MSK_HOME.
func DefaultPath() string {
	if mskHome := os.Getenv("MSK_HOME"); mskHome != "" {
		return filepath.Join(mskHome, "data", "profiles.db")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".msk", "data", "profiles.db")
	}
	return filepath.Join(homeDir, ".msk", "data", "profiles.db")
}

func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Upsert inserts or overwrites the profile keyed by UUID.
func (s *Store) Upsert(p Profile) error {
	if p.UUID == "" {
		return fmt.Errorf("profile uuid is required")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	_, err := s.conn.Exec(`
INSERT INTO profiles (uuid, name, account_type, refresh_token, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(uuid) DO UPDATE SET
    name = excluded.name,
    account_type = excluded.account_type,
    refresh_token = excluded.refresh_token,
    updated_at = excluded.updated_at
`, p.UUID, p.Name, p.Type, p.RefreshToken, p.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Get looks a profile up by UUID.
func (s *Store) Get(uuid string) (Profile, error) {
	row := s.conn.QueryRow(`
SELECT uuid, name, account_type, refresh_token, updated_at
FROM profiles WHERE uuid = ?`, uuid)
	return scanProfile(row)
}

// GetByName looks a profile up by account name (case-insensitive).
func (s *Store) GetByName(name string) (Profile, error) {
	row := s.conn.QueryRow(`
SELECT uuid, name, account_type, refresh_token, updated_at
FROM profiles WHERE name = ? COLLATE NOCASE`, name)
	return scanProfile(row)
}

// List returns all profiles, most recently updated first.
func (s *Store) List() ([]Profile, error) {
	rows, err := s.conn.Query(`
SELECT uuid, name, account_type, refresh_token, updated_at
FROM profiles ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes the profile with the given UUID.
func (s *Store) Delete(uuid string) error {
	res, err := s.conn.Exec(`DELETE FROM profiles WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	var updatedAt string
	err := row.Scan(&p.UUID, &p.Name, &p.Type, &p.RefreshToken, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("scan profile: %w", err)
	}
	if ts, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		p.UpdatedAt = ts
	}
	return p, nil
}

func openAndInit(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite PRAGMAs are per-connection; keep a single shared connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	initErr := func() error {
		if err := conn.Ping(); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		if _, err := conn.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
			return fmt.Errorf("set journal_mode=WAL: %w", err)
		}
		return runMigrations(conn)
	}()

	if initErr != nil {
		_ = conn.Close()
		return nil, initErr
	}
	return conn, nil
}

func dsn(path string) string {
	return "file:" + filepath.ToSlash(path) + "?mode=rwc"
}

func isCorruptSQLiteError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "malformed")
}
