package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"
)

const createCredentialsTable = `CREATE TABLE IF NOT EXISTS credentials (
	namespace  TEXT NOT NULL,
	identifier TEXT NOT NULL,
	blob       TEXT NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
	PRIMARY KEY (namespace, identifier)
)`

// LibSQLStore keeps the namespace in a libSQL (embedded SQLite fork) table.
type LibSQLStore struct {
	db        *sql.DB
	namespace string
}

// NewLibSQLStore opens the database at url, e.g. "file:/path/credentials.db",
// and creates the credentials table if needed.
func NewLibSQLStore(ctx context.Context, url string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRowContext(ctx, p).Scan(&result)
	}

	if _, err := db.ExecContext(ctx, createCredentialsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating credentials table: %w", err)
	}
	return &LibSQLStore{db: db, namespace: DefaultNamespace}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

func (s *LibSQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM credentials WHERE namespace = ? AND identifier = ?`,
		s.namespace, key,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get credential: %w", err)
	}
	return blob, true, nil
}

func (s *LibSQLStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (namespace, identifier, blob, updated_at) VALUES (?, ?, ?, unixepoch())
		 ON CONFLICT(namespace, identifier) DO UPDATE SET blob=excluded.blob, updated_at=excluded.updated_at`,
		s.namespace, key, value,
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

func (s *LibSQLStore) Remove(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE namespace = ? AND identifier = ?`,
		s.namespace, key,
	)
	if err != nil {
		return false, fmt.Errorf("remove credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove credential: %w", err)
	}
	return n > 0, nil
}

func (s *LibSQLStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier FROM credentials WHERE namespace = ? ORDER BY identifier`,
		s.namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
