package kv

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable Store backed by a single-table sqlite database.
// modernc.org/sqlite is pure Go, so the binary stays cgo-free.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS kv (
  k   TEXT PRIMARY KEY,
  v   BLOB NOT NULL,
  ver INTEGER NOT NULL DEFAULT 1
);
`

// OpenSQLite opens (creating if needed) the sqlite database at path and
// ensures the kv schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open sqlite", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, storageErr("ensure schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	var value []byte
	var version uint64
	err := s.db.QueryRowContext(ctx, `SELECT v, ver FROM kv WHERE k = ?`, key).
		Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrKeyNotFound
	}
	if err != nil {
		return nil, 0, storageErr("get", err)
	}
	return value, version, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (k, v, ver) VALUES (?, ?, 1)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, ver = kv.ver + 1`,
		key, value)
	if err != nil {
		return storageErr("put", err)
	}
	return nil
}

// CompareAndSet implements Store.
func (s *SQLiteStore) CompareAndSet(ctx context.Context, key string, expected uint64, value []byte) error {
	if expected == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO kv (k, v, ver) VALUES (?, ?, 1) ON CONFLICT(k) DO NOTHING`,
			key, value)
		if err != nil {
			return storageErr("cas insert", err)
		}
		return casResult(res, "cas insert")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE kv SET v = ?, ver = ver + 1 WHERE k = ? AND ver = ?`,
		value, key, expected)
	if err != nil {
		return storageErr("cas update", err)
	}
	return casResult(res, "cas update")
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, key)
	if err != nil {
		return storageErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete", err)
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Scan implements Store.
func (s *SQLiteStore) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	query := `SELECT k, v, ver FROM kv WHERE k >= ? ORDER BY k`
	args := []any{prefix}
	if end := PrefixEnd(prefix); end != "" {
		query = `SELECT k, v, ver FROM kv WHERE k >= ? AND k < ? ORDER BY k`
		args = append(args, end)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("scan", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Version); err != nil {
			return nil, storageErr("scan row", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan rows", err)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// casResult converts an exec result into the CompareAndSet contract: zero
// affected rows means the expected version did not match.
func casResult(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return ErrVersionMismatch
	}
	return nil
}
