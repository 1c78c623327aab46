package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB оборачивает подключение к Postgres.
// Используется, когда задан DATABASE_URL: тогда карта ID и сессия бота живут в БД.
type DB struct {
	Conn *sql.DB
}

func NewDB(conn *sql.DB) *DB {
	return &DB{Conn: conn}
}

// Open открывает подключение и проверяет его пингом.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewDB(conn), nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS id_map (
		source_id  BIGINT PRIMARY KEY,
		dest_id    TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS bot_session (
		name      TEXT PRIMARY KEY,
		data_json TEXT NOT NULL,
		date_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate создаёт таблицы, если их ещё нет.
func (db *DB) Migrate(ctx context.Context) error {
	for _, q := range schema {
		if _, err := db.Conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (db *DB) Close() error { return db.Conn.Close() }
