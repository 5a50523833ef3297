package db

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/gleanhub/go-claimsync/models"
)

// SqliteStore persists viewer records in a single-file SQLite database, the
// default backend for on-device agents. Values are whole-record replacements
// so an interrupted write never leaves a partially updated record behind.
type SqliteStore struct {
	db *sql.DB
}

var _ models.KeyValueRepository = &SqliteStore{}

func NewSqliteStore(ctx context.Context, path string) (*SqliteStore, error) {
	sqlDb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err = sqlDb.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_records (
			k TEXT PRIMARY KEY,
			v BLOB NOT NULL
		);
	`); err != nil {
		sqlDb.Close()
		return nil, err
	}
	return &SqliteStore{sqlDb}, nil
}

func (s *SqliteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT v FROM kv_records WHERE k = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *SqliteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv_records (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v",
		key, value,
	)
	return err
}

func (s *SqliteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv_records WHERE k = ?", key)
	return err
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}
