package kv

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a durable Store backed by a single kv table in PostgreSQL,
// for deployments that already run one.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS kv (
  k   TEXT PRIMARY KEY,
  v   BYTEA NOT NULL,
  ver BIGINT NOT NULL DEFAULT 1
)`

// OpenPostgres connects to the database at dsn and ensures the kv schema
// exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, storageErr("open postgres", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, storageErr("ensure schema", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	var value []byte
	var version uint64
	err := s.pool.QueryRow(ctx, `SELECT v, ver FROM kv WHERE k = $1`, key).
		Scan(&value, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrKeyNotFound
	}
	if err != nil {
		return nil, 0, storageErr("get", err)
	}
	return value, version, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv (k, v, ver) VALUES ($1, $2, 1)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, ver = kv.ver + 1`,
		key, value)
	if err != nil {
		return storageErr("put", err)
	}
	return nil
}

// CompareAndSet implements Store.
func (s *PostgresStore) CompareAndSet(ctx context.Context, key string, expected uint64, value []byte) error {
	if expected == 0 {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO kv (k, v, ver) VALUES ($1, $2, 1) ON CONFLICT (k) DO NOTHING`,
			key, value)
		if err != nil {
			return storageErr("cas insert", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionMismatch
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE kv SET v = $1, ver = ver + 1 WHERE k = $2 AND ver = $3`,
		value, key, expected)
	if err != nil {
		return storageErr("cas update", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionMismatch
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kv WHERE k = $1`, key)
	if err != nil {
		return storageErr("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Scan implements Store.
func (s *PostgresStore) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	query := `SELECT k, v, ver FROM kv WHERE k >= $1 ORDER BY k`
	args := []any{prefix}
	if end := PrefixEnd(prefix); end != "" {
		query = `SELECT k, v, ver FROM kv WHERE k >= $1 AND k < $2 ORDER BY k`
		args = append(args, end)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("scan", err)
	}
	defer rows.Close()

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
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
