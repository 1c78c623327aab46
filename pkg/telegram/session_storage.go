package telegram

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gotd/td/session"
)

// DBSessionStorage хранит сессию бота в таблице bot_session.
type DBSessionStorage struct {
	DB   *sql.DB
	Name string
}

// LoadSession загружает сессию из БД.
func (s *DBSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	if s == nil || s.DB == nil {
		return nil, session.ErrNotFound
	}
	var data string
	err := s.DB.QueryRowContext(ctx, "SELECT data_json FROM bot_session WHERE name = $1", s.Name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// StoreSession сохраняет сессию, перезаписывая прежнюю.
func (s *DBSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	if s == nil || s.DB == nil {
		return session.ErrNotFound
	}
	_, err := s.DB.ExecContext(
		ctx,
		"INSERT INTO bot_session (name, data_json) VALUES ($1, $2) "+
			"ON CONFLICT (name) DO UPDATE SET data_json = EXCLUDED.data_json, date_time = NOW()",
		s.Name,
		string(data),
	)
	return err
}
