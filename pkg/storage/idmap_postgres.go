package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/lib/pq"
)

// PostgresIDMap — карта ID в таблице id_map.
// Таблица загружается в память при старте; чтения идут из памяти, изменения пишутся сразу в БД.
type PostgresIDMap struct {
	mu   sync.RWMutex
	db   *DB
	data map[int]string
}

// LoadPostgresIDMap читает всю таблицу id_map.
func LoadPostgresIDMap(ctx context.Context, db *DB) (*PostgresIDMap, error) {
	rows, err := db.Conn.QueryContext(ctx, `SELECT source_id, dest_id FROM id_map`)
	if err != nil {
		return nil, fmt.Errorf("load id map: %w", err)
	}
	defer rows.Close()

	m := &PostgresIDMap{db: db, data: make(map[int]string)}
	for rows.Next() {
		var (
			src  int64
			dest string
		)
		if err := rows.Scan(&src, &dest); err != nil {
			return nil, fmt.Errorf("scan id map: %w", err)
		}
		m.data[int(src)] = dest
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PostgresIDMap) Get(sourceID int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[sourceID]
	return v, ok
}

// Set обновляет память и делает upsert всех ID одним запросом.
func (m *PostgresIDMap) Set(sourceIDs []int, destID string) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	m.mu.Lock()
	for _, id := range sourceIDs {
		m.data[id] = destID
	}
	m.mu.Unlock()

	_, err := m.db.Conn.Exec(`
		INSERT INTO id_map (source_id, dest_id)
		SELECT unnest($1::bigint[]), $2
		ON CONFLICT (source_id) DO UPDATE SET dest_id = EXCLUDED.dest_id, updated_at = NOW()`,
		pq.Array(toInt64(sourceIDs)), destID)
	if err != nil {
		return fmt.Errorf("upsert id map: %w", err)
	}
	return nil
}

func (m *PostgresIDMap) Delete(sourceIDs ...int) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	m.mu.Lock()
	for _, id := range sourceIDs {
		delete(m.data, id)
	}
	m.mu.Unlock()

	if _, err := m.db.Conn.Exec(`DELETE FROM id_map WHERE source_id = ANY($1)`, pq.Array(toInt64(sourceIDs))); err != nil {
		return fmt.Errorf("delete id map: %w", err)
	}
	return nil
}

func (m *PostgresIDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func toInt64(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
