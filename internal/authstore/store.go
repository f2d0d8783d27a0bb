// Package authstore manages the API keys that authenticate clients of the
// HTTP gateway. Keys are stored in an embedded SQLite database.
//
// A full credential is "prefix#token": the prefix identifies the key, the
// token is the secret. Lookups that miss and lookups with a wrong token are
// deliberately indistinguishable so that prefixes cannot be enumerated.
package authstore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// KeyLifetime is how long an issued key stays valid.
const KeyLifetime = 365 * 24 * time.Hour

// CheckResult is the outcome of validating a credential.
type CheckResult int

const (
	// Valid means the prefix/token pair exists and has not expired.
	Valid CheckResult = iota
	// NotFound means the prefix does not exist or the token does not
	// match. The two cases are indistinguishable on purpose.
	NotFound
	// Expired means the pair exists but the key's lifetime has passed.
	Expired
)

func (r CheckResult) String() string {
	switch r {
	case Valid:
		return "valid"
	case NotFound:
		return "not found"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// KeyEntry is one API key row.
type KeyEntry struct {
	Prefix      string
	Token       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Description string
}

// Store is the API key database. All operations hold a process-wide mutex
// around the connection; they are all short-lived.
type Store struct {
	mu   sync.Mutex
	conn *sql.DB

	// now is a test seam for expiry checks and issuance timestamps.
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	prefix      TEXT PRIMARY KEY,
	token       TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL,
	description TEXT
)`

// New opens (or creates) the key database at the given path.
func New(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open key database: %w", err)
	}

	// A single connection keeps SQLite happy under the mutex.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize key schema: %w", err)
	}

	return &Store{conn: conn, now: time.Now}, nil
}

// NewTestStore creates an in-memory store for testing.
func NewTestStore() (*Store, error) {
	return New(":memory:")
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Issue generates a new API key and returns the full "prefix#token"
// credential. The key expires one year after issuance. A storage failure
// here is a programmer error and is returned to abort issuance.
func (s *Store) Issue(description string) (string, error) {
	prefix := uuid.NewString()
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.now()
	expiresAt := createdAt.Add(KeyLifetime)

	var desc any
	if description != "" {
		desc = description
	}

	_, err := s.conn.Exec(
		`INSERT INTO api_keys (prefix, token, created_at, expires_at, description) VALUES (?, ?, ?, ?, ?)`,
		prefix, token, createdAt.Unix(), expiresAt.Unix(), desc,
	)
	if err != nil {
		return "", fmt.Errorf("insert key: %w", err)
	}

	return prefix + "#" + token, nil
}

// Validate checks a prefix/token pair. Read failures degrade to NotFound.
func (s *Store) Validate(prefix, token string) CheckResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt int64
	err := s.conn.QueryRow(
		`SELECT expires_at FROM api_keys WHERE prefix = ? AND token = ?`,
		prefix, token,
	).Scan(&expiresAt)
	if err != nil {
		return NotFound
	}

	if expiresAt < s.now().Unix() {
		return Expired
	}
	return Valid
}

// DeleteByPrefix removes a key. Returns true iff exactly one row was
// deleted.
func (s *Store) DeleteByPrefix(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.conn.Exec(`DELETE FROM api_keys WHERE prefix = ?`, prefix)
	if err != nil {
		return false
	}
	n, err := res.RowsAffected()
	return err == nil && n == 1
}

// EditDescription replaces a key's description. An empty description
// clears it. Returns true iff exactly one row was updated.
func (s *Store) EditDescription(prefix, description string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var desc any
	if description != "" {
		desc = description
	}
	res, err := s.conn.Exec(`UPDATE api_keys SET description = ? WHERE prefix = ?`, desc, prefix)
	if err != nil {
		return false
	}
	n, err := res.RowsAffected()
	return err == nil && n == 1
}

// ListAll returns every key in insertion order. Read failures degrade to
// an empty list.
func (s *Store) ListAll() []KeyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(
		`SELECT prefix, token, created_at, expires_at, COALESCE(description, '') FROM api_keys ORDER BY rowid`,
	)
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()

	var entries []KeyEntry
	for rows.Next() {
		var e KeyEntry
		var createdAt, expiresAt int64
		if err := rows.Scan(&e.Prefix, &e.Token, &createdAt, &expiresAt, &e.Description); err != nil {
			continue
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		e.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries
}

// SetNowFunc overrides the store's clock. Test seam for expiry scenarios.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
