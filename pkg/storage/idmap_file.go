package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// FileIDMap хранит соответствие ID сообщения Telegram → ID поста X в плоском JSON-файле.
// Файл целиком читается при старте и целиком перезаписывается при каждом изменении.
// Если запись не удалась, память остаётся источником истины до следующей успешной записи.
type FileIDMap struct {
	mu   sync.RWMutex
	path string
	data map[int]string
}

// LoadFileIDMap читает файл карты. Отсутствующий файл — пустая карта.
// Повреждённый файл тоже даёт пустую карту, но вместе с ошибкой, чтобы её можно было залогировать.
func LoadFileIDMap(path string) (*FileIDMap, error) {
	m := &FileIDMap{path: path, data: make(map[int]string)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("read id map: %w", err)
	}

	var stored map[string]string
	if err := json.Unmarshal(raw, &stored); err != nil {
		// Старый формат хранил список ID без пар — его нельзя восстановить.
		var legacy []json.RawMessage
		if json.Unmarshal(raw, &legacy) == nil {
			return m, nil
		}
		return m, fmt.Errorf("decode id map %s: %w", path, err)
	}
	for k, v := range stored {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		m.data[id] = v
	}
	return m, nil
}

// Get возвращает ID поста для сообщения.
func (m *FileIDMap) Get(sourceID int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[sourceID]
	return v, ok
}

// Set записывает (или перезаписывает) одно значение для всех ID пачки.
func (m *FileIDMap) Set(sourceIDs []int, destID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range sourceIDs {
		m.data[id] = destID
	}
	return m.saveLocked()
}

// Delete удаляет записи. Отсутствующие ID пропускаются.
func (m *FileIDMap) Delete(sourceIDs ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for _, id := range sourceIDs {
		if _, ok := m.data[id]; ok {
			delete(m.data, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return m.saveLocked()
}

// Len возвращает число записей.
func (m *FileIDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// saveLocked пишет во временный файл и переименовывает его, чтобы не оставить файл обрезанным.
func (m *FileIDMap) saveLocked() error {
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[strconv.Itoa(k)] = v
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode id map: %w", err)
	}
	if dir := filepath.Dir(m.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create id map dir: %w", err)
		}
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write id map: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace id map: %w", err)
	}
	return nil
}
