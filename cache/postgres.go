package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const create_cache_entries_table = `CREATE TABLE IF NOT EXISTS cache_entries (
		key VARCHAR(255) PRIMARY KEY,
		value BYTEA NOT NULL,
		updated_on TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`

// PostgresStore keeps entries in the cache_entries table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens the database connection and runs migrations.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to database")

	s := &PostgresStore{db: db}
	if err := s.migrateDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrateDB() error {
	var count int
	has_table_query := `select count(*)
		from information_schema.tables
		where table_name = $1`
	err := s.db.Get(&count, has_table_query, "cache_entries")
	if err != nil {
		return fmt.Errorf("failed to check for cache_entries table: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := s.db.Exec(create_cache_entries_table); err != nil {
		return fmt.Errorf("failed to create table cache_entries: %w", err)
	}
	slog.Info("Created table", "table", "cache_entries")
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	upsert_row := `insert into cache_entries
			(key, value, updated_on)
		values
			($1, $2, current_timestamp)
		on conflict (key) do update set value = excluded.value, updated_on = excluded.updated_on`
	_, err := s.db.ExecContext(ctx, upsert_row, key, value)
	if err != nil {
		return fmt.Errorf("failed to save cache entry %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `select value from cache_entries where key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `delete from cache_entries where key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `delete from cache_entries`)
	if err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
