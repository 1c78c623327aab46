package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Sudoers хранит владельца бота и список администраторов (JSON-массив ID в файле).
// Владелец задаётся конфигурацией и в файл не пишется.
type Sudoers struct {
	mu    sync.RWMutex
	path  string
	owner int64
	list  []int64
}

// LoadSudoers читает список администраторов; при отсутствии файла создаёт пустой.
func LoadSudoers(path string, owner int64) (*Sudoers, error) {
	s := &Sudoers{path: path, owner: owner}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, s.saveLocked()
	}
	if err != nil {
		return s, fmt.Errorf("read sudoers: %w", err)
	}
	if err := json.Unmarshal(raw, &s.list); err != nil {
		s.list = nil
		return s, fmt.Errorf("decode sudoers: %w", err)
	}
	return s, nil
}

func (s *Sudoers) IsOwner(userID int64) bool { return userID == s.owner }

// IsAuthorized — владелец или администратор из списка.
func (s *Sudoers) IsAuthorized(userID int64) bool {
	if s.IsOwner(userID) {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.list, userID)
}

// Add добавляет администратора. false — уже есть или это владелец.
func (s *Sudoers) Add(userID int64) (bool, error) {
	if userID <= 0 || s.IsOwner(userID) {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.list, userID) {
		return false, nil
	}
	s.list = append(s.list, userID)
	return true, s.saveLocked()
}

// Remove удаляет администратора. false — его не было в списке.
func (s *Sudoers) Remove(userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.Index(s.list, userID)
	if idx < 0 {
		return false, nil
	}
	s.list = slices.Delete(s.list, idx, idx+1)
	return true, s.saveLocked()
}

// List возвращает копию списка администраторов.
func (s *Sudoers) List() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.list)
}

func (s *Sudoers) saveLocked() error {
	list := s.list
	if list == nil {
		list = []int64{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create sudoers dir: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write sudoers: %w", err)
	}
	return nil
}
