// Package media управляет временными файлами вложений одной попытки публикации.
package media

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Stage — рабочий каталог одной попытки публикации.
// Всё, что скачано в Dir, удаляется в Release независимо от исхода публикации.
type Stage struct {
	dir   string
	paths []string
}

// NewStage создаёт уникальный подкаталог внутри root.
func NewStage(root string) (*Stage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	dir := filepath.Join(root, uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Stage{dir: dir}, nil
}

// Dir возвращает каталог для скачивания.
func (s *Stage) Dir() string { return s.dir }

// Add регистрирует скачанный файл. Пустые пути игнорируются.
func (s *Stage) Add(path string) {
	if path == "" {
		return
	}
	s.paths = append(s.paths, path)
}

// Paths возвращает файлы в порядке добавления.
func (s *Stage) Paths() []string {
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// Release удаляет каталог вместе со всеми файлами. Повторный вызов безопасен.
func (s *Stage) Release() error {
	if s == nil || s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.paths = nil
	return err
}
